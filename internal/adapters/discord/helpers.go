package discord

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
)

func fmtRemain(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// truncate corta a n runas (límite de labels de Discord).
func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}

func partyText(p service.Party, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 **Grupo de <@%s>** (%d)\n", p.Leader, len(p.Members))
	for _, m := range p.Members {
		fmt.Fprintf(&b, "• <@%s>\n", m)
	}
	pending := make([]string, 0, len(p.Invites))
	for id, until := range p.Invites {
		if until.After(now) {
			pending = append(pending, fmt.Sprintf("<@%s> (%s)", id, fmtRemain(until.Sub(now))))
		}
	}
	if len(pending) > 0 {
		sort.Strings(pending)
		b.WriteString("Invitaciones pendientes: " + strings.Join(pending, ", "))
	}
	return b.String()
}

func lobbyText(v lobby.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 **Lobby %s** · %s\n", shortID(v.ID), v.State)
	for i, t := range v.Teams {
		fmt.Fprintf(&b, "**Equipo %d:** %s\n", i+1, mentions(t.PlayerIDs()))
	}
	if v.Map != "" {
		fmt.Fprintf(&b, "🗺️ Mapa: **%s**\n", v.Map)
	} else if len(v.Candidates) > 0 {
		parts := make([]string, len(v.Candidates))
		for i, m := range v.Candidates {
			parts[i] = fmt.Sprintf("%s (%d)", m, v.VoteCounts[m])
		}
		fmt.Fprintf(&b, "🗳️ Ronda %d: %s", v.VoteRound, strings.Join(parts, ", "))
		if !v.VoteDeadline.IsZero() {
			fmt.Fprintf(&b, " · cierra en %s", fmtRemain(time.Until(v.VoteDeadline)))
		}
		b.WriteString("\n")
	}
	if len(v.Hosts) > 0 {
		fmt.Fprintf(&b, "👑 Host: %s\n", mentions(v.Hosts))
	}
	return b.String()
}
