package discord

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// delivery es un mensaje a un canal o (si UserID != "") por DM.
type delivery struct {
	ChannelID string
	UserID    string
	Msg       *discordgo.MessageSend
}

// Notifier es el sink de eventos hacia Discord. Nunca bloquea al core: cada
// evento se entrega en su propia goroutine y los errores sólo se loguean.
type Notifier struct {
	api messenger
	// canal de auditoría de la cola ("" = sin auditoría)
	audit func(ctx context.Context, queueID string) string
	// se llama con cada queue_changed (refresco del mensaje de la cola)
	onQueue func(queueID string)
	spawn   func(func())
}

func NewNotifier(api messenger, audit func(ctx context.Context, queueID string) string, onQueue func(queueID string)) *Notifier {
	return &Notifier{api: api, audit: audit, onQueue: onQueue, spawn: func(f func()) { go f() }}
}

func (n *Notifier) Notify(_ context.Context, e domain.Event) {
	if e.Kind == domain.EventQueueChanged {
		if n.onQueue != nil {
			n.onQueue(e.QueueID)
		}
		return
	}
	n.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		audit := ""
		if n.audit != nil {
			audit = n.audit(ctx, e.QueueID)
		}
		for _, d := range render(e, audit) {
			n.deliver(ctx, d)
		}
	})
}

func (n *Notifier) deliver(ctx context.Context, d delivery) {
	ch := d.ChannelID
	if d.UserID != "" {
		dm, err := n.api.UserChannelCreate(d.UserID, discordgo.WithContext(ctx))
		if err != nil {
			log.Printf("[notify] DM %s: %v", d.UserID, err)
			return
		}
		ch = dm.ID
	}
	if ch == "" {
		return
	}
	if _, err := n.api.ChannelMessageSendComplex(ch, d.Msg, discordgo.WithContext(ctx)); err != nil {
		log.Printf("[notify] send %s: %v", ch, err)
	}
}

// render arma los mensajes de un evento. Puro, así se testea sin Discord.
func render(e domain.Event, audit string) []delivery {
	var out []delivery
	lobbyMsg := func(m *discordgo.MessageSend) {
		if e.ChannelID != "" {
			out = append(out, delivery{ChannelID: e.ChannelID, Msg: m})
		}
	}
	auditMsg := func(text string) {
		if audit != "" {
			out = append(out, delivery{ChannelID: audit, Msg: &discordgo.MessageSend{Content: text}})
		}
	}
	resultsMsg := func(m *discordgo.MessageSend) {
		if e.ResultsChannel != "" {
			out = append(out, delivery{ChannelID: e.ResultsChannel, Msg: m})
		}
	}
	dm := func(text string) {
		for _, p := range e.Players {
			out = append(out, delivery{UserID: p, Msg: &discordgo.MessageSend{Content: text}})
		}
	}

	switch e.Kind {
	case domain.EventLobbyFormed:
		auditMsg(fmt.Sprintf("🎮 Lobby `%s` formado en **%s**\n%s", e.LobbyID, e.QueueID, teamsText(e.Teams)))

	case domain.EventVoteOpened, domain.EventVoteRound:
		title := "🗺️ Votación de mapa"
		if e.Kind == domain.EventVoteRound {
			title = "🗺️ Nueva ronda de votación"
		}
		lobbyMsg(&discordgo.MessageSend{
			Content: mentions(flatten(e.Teams)),
			Embeds: []*discordgo.MessageEmbed{{
				Title:       title,
				Description: teamsText(e.Teams) + "\nHosts: " + mentions(e.Hosts),
			}},
			Components: voteComponents(e.LobbyID, e.Maps),
		})

	case domain.EventMapChosen:
		text := "▶️ ¡A jugar!"
		if e.Map != "" {
			text = fmt.Sprintf("▶️ Mapa: **%s**. ¡A jugar!", e.Map)
		}
		lobbyMsg(&discordgo.MessageSend{
			Content:    text + "\nHosts: " + mentions(e.Hosts) + "\nAl terminar, reporten el resultado:",
			Components: resultComponents(e.LobbyID, len(e.Teams)),
		})

	case domain.EventHostChanged:
		lobbyMsg(&discordgo.MessageSend{Content: "👑 Hosts: " + mentions(e.Hosts)})

	case domain.EventLeaverMarked:
		lobbyMsg(&discordgo.MessageSend{Content: "🚪 Marcado como leaver: " + mentions(e.Players)})
		auditMsg(fmt.Sprintf("🚪 Lobby `%s`: leaver %s", e.LobbyID, mentions(e.Players)))

	case domain.EventLeaverPending:
		lobbyMsg(&discordgo.MessageSend{
			Content:    fmt.Sprintf("❓ %s fue reportado como leaver. Si seguís en el lobby avisá antes de %s.", mentions(e.Players), e.Message),
			Components: leaverCheckComponents(e.LobbyID, firstID(e.Players)),
		})

	case domain.EventLeaverDisputed:
		lobbyMsg(&discordgo.MessageSend{Content: "✅ " + mentions(e.Players) + " sigue en el lobby."})
		auditMsg(fmt.Sprintf("↩️ Lobby `%s`: %s disputó la marca de leaver", e.LobbyID, mentions(e.Players)))

	case domain.EventVoteReminder:
		lobbyMsg(&discordgo.MessageSend{Content: "🔔 Falta tu voto: " + mentions(e.Players)})

	case domain.EventMatchResolved:
		auditMsg(fmt.Sprintf("🏁 Lobby `%s` (%s): **%s**%s\n%s", e.LobbyID, e.QueueID, e.Outcome, mapSuffix(e.Map), teamsText(e.Teams)))
		resultsMsg(&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("🏁 %s: %s%s", e.QueueID, e.Outcome, mapSuffix(e.Map)),
			Description: teamsText(e.Teams) + deltasText(e.Deltas),
			Footer:      &discordgo.MessageEmbedFooter{Text: e.LobbyID},
		}}})

	case domain.EventLobbyCancelled:
		auditMsg(fmt.Sprintf("🛑 Lobby `%s` cancelado: %s", e.LobbyID, e.Message))
		resultsMsg(&discordgo.MessageSend{Content: fmt.Sprintf("🛑 Lobby `%s` (%s) cancelado: %s", e.LobbyID, e.QueueID, e.Message)})

	case domain.EventLobbyAlert:
		lobbyMsg(&discordgo.MessageSend{Content: "⚠️ " + e.Message})
		auditMsg(fmt.Sprintf("🚨 Lobby `%s`: %s", e.LobbyID, e.Message))

	case domain.EventPlayerBanned:
		dm(fmt.Sprintf("⛔ Fuiste baneado de **%s**: %s", scopeName(e.QueueID), e.Message))
		auditMsg(fmt.Sprintf("⛔ Ban en %s: %s (%s)", scopeName(e.QueueID), mentions(e.Players), e.Message))

	case domain.EventEntryDropped:
		dm(fmt.Sprintf("ℹ️ Saliste de la cola **%s**: %s", e.QueueID, e.Message))
	}
	return out
}

func teamsText(teams [][]string) string {
	var b strings.Builder
	for i, t := range teams {
		fmt.Fprintf(&b, "**Equipo %d:** %s\n", i+1, mentions(t))
	}
	return b.String()
}

// deltasText lista el cambio de rating por jugador, ordenado por id.
func deltasText(deltas map[string]float64) string {
	if len(deltas) == 0 {
		return ""
	}
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString("\n**Rating**\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "<@%s> %+.1f\n", id, deltas[id])
	}
	return b.String()
}

func firstID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func mentions(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "<@" + id + ">"
	}
	return strings.Join(out, " ")
}

func flatten(teams [][]string) []string {
	var out []string
	for _, t := range teams {
		out = append(out, t...)
	}
	return out
}

func mapSuffix(m string) string {
	if m == "" {
		return ""
	}
	return " en " + m
}

func scopeName(queueID string) string {
	if queueID == "" {
		return "todas las colas"
	}
	return queueID
}
