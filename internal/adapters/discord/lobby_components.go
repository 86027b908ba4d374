package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// custom_id: "<acción>:<lobbyID>[:<arg>]"
const (
	cidVote   = "lobby_vote"
	cidHost   = "lobby_host"
	cidResult = "lobby_result"
	cidCancel = "lobby_cancel"

	// leaver_check:<lobbyID>:<jugador>
	cidLeaverCheck = "leaver_check"

	cidQueueJoin  = "queue_join"
	cidQueueLeave = "queue_leave"
	cidAdminPanel = "admin_panel"
	cidKickSelect = "kick_select"

	cidPartyAccept  = "party_accept"
	cidPartyDecline = "party_decline"
)

func customID(action string, parts ...string) string {
	return strings.Join(append([]string{action}, parts...), ":")
}

// parseCustomID separa la acción de sus argumentos.
func parseCustomID(id string) (action string, args []string) {
	parts := strings.Split(id, ":")
	return parts[0], parts[1:]
}

func voteComponents(lobbyID string, maps []string) []discordgo.MessageComponent {
	if len(maps) == 0 {
		return nil
	}
	opts := make([]discordgo.SelectMenuOption, 0, len(maps))
	for _, m := range maps {
		opts = append(opts, discordgo.SelectMenuOption{Label: m, Value: m})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    customID(cidVote, lobbyID),
				Placeholder: "Elegí un mapa",
				Options:     opts,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Style: discordgo.SecondaryButton, Label: "Quiero ser host", CustomID: customID(cidHost, lobbyID), Emoji: &discordgo.ComponentEmoji{Name: "👑"}},
			discordgo.Button{Style: discordgo.DangerButton, Label: "Cancelar", CustomID: customID(cidCancel, lobbyID)},
		}},
	}
}

// resultComponents: un botón por equipo (máx. 5 por fila), empate y cancelar.
func resultComponents(lobbyID string, teams int) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	flush := func() {
		if len(row) > 0 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	for i := 1; i <= teams; i++ {
		row = append(row, discordgo.Button{
			Style:    discordgo.PrimaryButton,
			Label:    fmt.Sprintf("Ganó Equipo %d", i),
			CustomID: customID(cidResult, lobbyID, fmt.Sprintf("team%d", i)),
		})
		if len(row) == 5 {
			flush()
		}
	}
	flush()
	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Style: discordgo.SecondaryButton, Label: "Empate", CustomID: customID(cidResult, lobbyID, "draw")},
		discordgo.Button{Style: discordgo.SecondaryButton, Label: "Quiero ser host", CustomID: customID(cidHost, lobbyID), Emoji: &discordgo.ComponentEmoji{Name: "👑"}},
		discordgo.Button{Style: discordgo.DangerButton, Label: "Cancelar", CustomID: customID(cidCancel, lobbyID)},
	}})
	return rows
}

// leaverCheckComponents: el jugador reportado avisa que sigue en el lobby.
func leaverCheckComponents(lobbyID, player string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Style: discordgo.SuccessButton, Label: "No, sigo acá", CustomID: customID(cidLeaverCheck, lobbyID, player)},
		}},
	}
}

func partyInviteComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Style: discordgo.SuccessButton, Label: "Aceptar", CustomID: cidPartyAccept},
			discordgo.Button{Style: discordgo.SecondaryButton, Label: "Rechazar", CustomID: cidPartyDecline},
		}},
	}
}
