// slash commands: acá sólo se lee la interacción y se despacha a los servicios
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func (r *Router) handleSlashCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.ApplicationCommandData()
	c := r.newCtx(s, ic)
	c.Sub, c.Args = flattenOptions(data.Options)
	name := data.Name
	if c.Sub != "" {
		name += " " + c.Sub
	}
	log.Printf("cmd: /%s by=%s guild=%s", name, c.UserID, ic.GuildID)

	_ = DeferEphemeral(s, ic)

	cmd, ok := r.commands[name]
	if !ok {
		ReplyEphemeral(s, ic, "🤔 Comando desconocido.")
		return
	}
	if cmd.AdminOnly && !c.Admin {
		ReplyEphemeral(s, ic, "🔒 No tienes permisos para esta acción.")
		return
	}
	r.run(s, ic, "cmd./"+name, 12*time.Second, c, cmd.Handler)
}

// flattenOptions devuelve el subcomando (si hay) y sus opciones por nombre.
func flattenOptions(opts []*discordgo.ApplicationInteractionDataOption) (string, map[string]string) {
	args := map[string]string{}
	subName := ""
	for _, o := range opts {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			subName = o.Name
			_, inner := flattenOptions(o.Options)
			for k, v := range inner {
				args[k] = v
			}
			continue
		}
		args[o.Name] = fmt.Sprint(o.Value)
	}
	return subName, args
}

func (r *Router) commandTable() map[string]Command {
	cmds := []Command{
		// ---------- cola ----------
		{Name: "queue join", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.queue.Join(ctx, r.queueArg(c), c.UserID, c.Name)
		}},
		{Name: "queue leave", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.queue.Leave(ctx, r.queueArg(c), c.UserID)
		}},
		{Name: "queue status", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.queue.Status(ctx, r.queueArg(c))
		}},

		// ---------- grupos ----------
		{Name: "party invite", Handler: r.partyInvite},
		{Name: "party accept", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.parties.Accept(ctx, c.UserID)
		}},
		{Name: "party decline", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.parties.Decline(ctx, c.UserID)
		}},
		{Name: "party leave", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.parties.Leave(ctx, c.UserID)
		}},
		{Name: "party show", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			p, ok := r.parties.Of(c.UserID)
			if !ok {
				return "ℹ️ No estás en un grupo. Invitá a alguien con `/party invite`.", nil
			}
			return partyText(p, time.Now()), nil
		}},

		// ---------- lobby ----------
		{Name: "lobby vote", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			m, _ := c.Arg("mapa")
			return r.lobbies.Vote(ctx, c.UserID, strings.TrimSpace(m))
		}},
		{Name: "lobby host", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.lobbies.VolunteerHost(ctx, c.UserID)
		}},
		{Name: "lobby leaver", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			target, _ := c.Arg("jugador")
			return r.lobbies.ReportLeaver(ctx, c.UserID, target, c.Admin)
		}},
		{Name: "lobby result", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			o, err := r.outcomeArg(c, c.UserID)
			if err != nil {
				return "", err
			}
			return r.lobbies.ReportResult(ctx, c.UserID, o, c.Admin)
		}},
		{Name: "lobby resultvote", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			o, err := r.outcomeArg(c, c.UserID)
			if err != nil {
				return "", err
			}
			return r.lobbies.SubmitResultVote(ctx, c.UserID, o)
		}},
		{Name: "lobby cancel", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			reason, _ := c.Arg("motivo")
			return r.lobbies.CancelLobby(ctx, c.UserID, "", reason, c.Admin)
		}},
		{Name: "lobby ping", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.lobbies.PingNonVoters(ctx, c.UserID)
		}},
		{Name: "lobby status", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			l, ok := r.lobbies.LobbyOf(c.UserID)
			if !ok {
				return "", domain.ErrNotInLobby
			}
			return lobbyText(l.View()), nil
		}},

		// ---------- perfil ----------
		{Name: "register", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			region, _ := c.Arg("region")
			raw, _ := c.Arg("roles")
			var roles []domain.Role
			for _, p := range strings.Split(raw, ",") {
				if p = strings.TrimSpace(p); p != "" {
					roles = append(roles, domain.Role(p))
				}
			}
			return r.profiles.Register(ctx, c.UserID, c.Name, region, roles)
		}},
		{Name: "stats", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id := c.UserID
			if other, ok := c.Arg("jugador"); ok {
				id = other
			}
			return r.profiles.Stats(ctx, id)
		}},
		{Name: "leaderboard", Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.profiles.Leaderboard(ctx, 10)
		}},

		// ---------- config ----------
		{Name: "configure show", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.config.Show(ctx, r.queueArg(c))
		}},
		{Name: "configure set", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			msg, err := r.config.Update(ctx, r.queueArg(c), patchFromArgs(c))
			if err == nil {
				r.refreshQueueUI(r.queueArg(c))
			}
			return msg, err
		}},
		{Name: "queueui", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			if err := r.publishQueueUI(ctx, r.queueArg(c), c.Event.ChannelID); err != nil {
				return "", err
			}
			return "✅ UI publicada aquí. Usa los botones para unirte/salir.", nil
		}},

		// ---------- admin ----------
		{Name: "admin ban", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			target, _ := c.Arg("jugador")
			mins, _ := c.IntArg("minutos")
			queueID, _ := c.Arg("cola")
			reason, _ := c.Arg("motivo")
			return r.admin.Ban(ctx, c.UserID, target, queueID, time.Duration(mins)*time.Minute, reason)
		}},
		{Name: "admin unban", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			target, _ := c.Arg("jugador")
			queueID, _ := c.Arg("cola")
			return r.admin.Unban(ctx, target, queueID)
		}},
		{Name: "admin bans", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.admin.Bans(ctx)
		}},
		{Name: "admin leavers", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.admin.Leavers(ctx, 20)
		}},
		{Name: "admin force", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id, _ := c.Arg("lobby")
			l, ok := r.lobbies.Get(id)
			if !ok {
				return "", domain.ErrLobbyNotFound
			}
			raw, _ := c.Arg("resultado")
			o, err := domain.ParseOutcome(raw, len(l.Teams()))
			if err != nil {
				return "", err
			}
			return r.admin.ForceOutcome(ctx, id, o)
		}},
		{Name: "admin cancel", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id, _ := c.Arg("lobby")
			reason, _ := c.Arg("motivo")
			return r.admin.CancelLobby(ctx, c.UserID, id, reason)
		}},
		{Name: "admin retry", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id, _ := c.Arg("lobby")
			return r.admin.RetryProvisioning(ctx, id)
		}},
		{Name: "admin closevote", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id, _ := c.Arg("lobby")
			if err := r.lobbies.CloseVoteNow(ctx, id); err != nil {
				return "", err
			}
			return "🗳️ Votación cerrada.", nil
		}},
		{Name: "admin chatlog", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			id, _ := c.Arg("lobby")
			return r.admin.ChatLog(ctx, strings.TrimSpace(id), 30)
		}},
		{Name: "admin lobbies", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			return r.admin.Lobbies(), nil
		}},
		{Name: "admin kick", AdminOnly: true, Handler: func(ctx context.Context, c *Ctx) (string, error) {
			target, _ := c.Arg("jugador")
			kicked := r.queue.Kick(ctx, target)
			if len(kicked) == 0 {
				return "ℹ️ Ese jugador no estaba en ninguna cola.", nil
			}
			return fmt.Sprintf("✅ <@%s> sacado de: %s.", target, strings.Join(kicked, ", ")), nil
		}},
	}

	out := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		out[c.Name] = c
	}
	return out
}

func (r *Router) partyInvite(ctx context.Context, c *Ctx) (string, error) {
	target, _ := c.Arg("jugador")
	msg, err := r.parties.Invite(ctx, c.UserID, target)
	if err != nil {
		return "", err
	}
	// la invitación le llega por DM con botones
	go func() {
		dm, err := r.s.UserChannelCreate(target)
		if err != nil {
			log.Printf("[party] DM %s: %v", target, err)
			return
		}
		_, err = r.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
			Content:    fmt.Sprintf("👥 <@%s> te invitó a su grupo.", c.UserID),
			Components: partyInviteComponents(),
		})
		if err != nil {
			log.Printf("[party] invite %s: %v", target, err)
		}
	}()
	return msg, nil
}

// outcomeArg lee "resultado" con la cantidad de equipos del lobby de player.
func (r *Router) outcomeArg(c *Ctx, player string) (domain.Outcome, error) {
	raw, _ := c.Arg("resultado")
	l, ok := r.lobbies.LobbyOf(player)
	if !ok {
		return domain.Outcome{}, domain.ErrNotInLobby
	}
	return domain.ParseOutcome(raw, len(l.Teams()))
}

func patchFromArgs(c *Ctx) service.ConfigPatch {
	var p service.ConfigPatch
	intp := func(name string) *int {
		if v, ok := c.IntArg(name); ok {
			return &v
		}
		return nil
	}
	strp := func(name string) *string {
		if v, ok := c.Arg(name); ok {
			return &v
		}
		return nil
	}
	p.TeamCount = intp("team_count")
	p.TeamSize = intp("team_size")
	p.RoleCombos = strp("roles")
	p.RegionMode = strp("region_mode")
	p.MapPool = strp("maps")
	p.VoteSize = intp("vote_size")
	p.VoteTimeSeconds = intp("vote_time_seconds")
	p.PreventRecentMaps = intp("prevent_recent_maps")
	p.Capacity = intp("capacity")
	p.MinWaitSeconds = intp("min_wait_seconds")
	if v, ok := c.FloatArg("balance_threshold"); ok {
		p.BalanceThreshold = &v
	}
	p.MaxNoShows = intp("max_no_shows")
	p.ResultQuorum = intp("result_quorum")
	p.HostMode = strp("host_mode")
	p.CategoryID = strp("category")
	p.LobbyVoiceID = strp("lobby_voice")
	p.AuditChannel = strp("audit_channel")
	p.ResultsChannel = strp("results_channel")
	p.LeaverVerifySecs = intp("leaver_check_seconds")
	if v, ok := c.BoolArg("log_chats"); ok {
		p.LogChats = &v
	}
	return p
}
