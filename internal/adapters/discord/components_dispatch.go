package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func (r *Router) handleMessageComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.MessageComponentData()
	action, params := parseCustomID(data.CustomID)

	_ = DeferEphemeral(s, ic)

	c := r.newCtx(s, ic)
	c.Params = params
	c.Values = data.Values

	if !r.clickLimiter.Allow(c.UserID) {
		ReplyEphemeral(s, ic, "⏳ Esperá un segundo…")
		return
	}
	h, ok := r.components[action]
	if !ok {
		log.Printf("[component] custom_id desconocido: %s", data.CustomID)
		return
	}
	r.run(s, ic, "component."+action, 8*time.Second, c, h)
}

func (r *Router) componentTable() map[string]ComponentHandler {
	return map[string]ComponentHandler{
		cidQueueJoin: func(ctx context.Context, c *Ctx) (string, error) {
			return r.queue.Join(ctx, r.paramQueue(c), c.UserID, c.Name)
		},
		cidQueueLeave: func(ctx context.Context, c *Ctx) (string, error) {
			return r.queue.Leave(ctx, r.paramQueue(c), c.UserID)
		},
		cidAdminPanel: r.adminPanel,
		cidKickSelect: func(ctx context.Context, c *Ctx) (string, error) {
			if !c.Admin {
				return "🔒 No tienes permisos para esta acción.", nil
			}
			if len(c.Values) == 0 {
				return "⚠️ Selección inválida.", nil
			}
			msg, err := r.queue.Leave(ctx, r.paramQueue(c), c.Values[0])
			if err != nil {
				return "", err
			}
			if msg == "ℹ️ No estabas en la cola." {
				return "ℹ️ Ese jugador no estaba en la cola.", nil
			}
			return "✅ Jugador kickeado.", nil
		},

		cidVote: func(ctx context.Context, c *Ctx) (string, error) {
			if _, err := r.ownLobby(c); err != nil {
				return "", err
			}
			if len(c.Values) == 0 {
				return "⚠️ Selección inválida.", nil
			}
			return r.lobbies.Vote(ctx, c.UserID, c.Values[0])
		},
		cidHost: func(ctx context.Context, c *Ctx) (string, error) {
			if _, err := r.ownLobby(c); err != nil {
				return "", err
			}
			return r.lobbies.VolunteerHost(ctx, c.UserID)
		},
		// el host cierra el resultado; el resto vota
		cidResult: func(ctx context.Context, c *Ctx) (string, error) {
			l, err := r.ownLobby(c)
			if err != nil {
				return "", err
			}
			o, err := domain.ParseOutcome(c.Param(1), len(l.Teams()))
			if err != nil {
				return "", err
			}
			if l.IsHost(c.UserID) {
				return r.lobbies.ReportResult(ctx, c.UserID, o, false)
			}
			return r.lobbies.SubmitResultVote(ctx, c.UserID, o)
		},
		cidCancel: func(ctx context.Context, c *Ctx) (string, error) {
			return r.lobbies.CancelLobby(ctx, c.UserID, c.Param(0), "cancelado desde Discord", c.Admin)
		},
		cidLeaverCheck: func(ctx context.Context, c *Ctx) (string, error) {
			if c.Param(1) != c.UserID {
				return "❌ Este botón es sólo para el jugador reportado.", nil
			}
			if _, err := r.ownLobby(c); err != nil {
				return "", err
			}
			return r.lobbies.DisputeLeaver(ctx, c.UserID)
		},

		cidPartyAccept: func(ctx context.Context, c *Ctx) (string, error) {
			return r.parties.Accept(ctx, c.UserID)
		},
		cidPartyDecline: func(ctx context.Context, c *Ctx) (string, error) {
			return r.parties.Decline(ctx, c.UserID)
		},
	}
}

// ownLobby valida que el botón sea del lobby en el que está el jugador.
func (r *Router) ownLobby(c *Ctx) (*lobby.Lobby, error) {
	l, ok := r.lobbies.LobbyOf(c.UserID)
	if !ok || l.ID() != c.Param(0) {
		return nil, domain.ErrNotInLobby
	}
	return l, nil
}

// los botones de la UI de cola llevan el id de la cola
func (r *Router) paramQueue(c *Ctx) string {
	if q := c.Param(0); q != "" {
		return q
	}
	return r.queueArg(c)
}

func (r *Router) adminPanel(ctx context.Context, c *Ctx) (string, error) {
	if !c.Admin {
		return "🔒 No tienes permisos para esta acción.", nil
	}
	queueID := r.paramQueue(c)
	snap, _, err := r.queue.Snapshot(ctx, queueID)
	if err != nil {
		return "", err
	}
	if len(snap.Entries) == 0 {
		return "ℹ️ La cola está vacía.", nil
	}

	opts := make([]discordgo.SelectMenuOption, 0, 25)
	for i, e := range snap.Entries {
		if i == 25 {
			break
		}
		m := e.Members[0]
		label := truncate(fmt.Sprintf("%02d) %s", i+1, m.Name), 100)
		desc := m.PlayerID
		if e.Kind == domain.GroupEntry {
			desc = fmt.Sprintf("%s · grupo de %d", m.PlayerID, len(e.Members))
		}
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       label,
			Value:       m.PlayerID,
			Description: truncate(desc, 100),
		})
	}
	err = ReplyComponents(r.s, c.Event, "Elige un jugador para **kickear**:", []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{discordgo.SelectMenu{
			CustomID:    customID(cidKickSelect, queueID),
			Placeholder: "Selecciona a quién kickear",
			Options:     opts,
		}}},
	})
	if err != nil {
		return "", fmt.Errorf("panel admin: %w", err)
	}
	return "", nil
}
