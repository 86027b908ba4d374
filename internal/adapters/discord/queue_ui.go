package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

// atajos de tunning (para los timers y ajustar aqui)
const (
	uiDebounce   = 150 * time.Millisecond
	ctxRenderMax = 2 * time.Second
)

// Publica o reposta la UI de la cola en ESTE canal
func (r *Router) publishQueueUI(ctx context.Context, queueID, channelID string) error {
	embed, comps, err := r.renderQueueEmbed(ctx, queueID)
	if err != nil {
		return err
	}
	msg, err := r.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{comps},
	})
	if err != nil {
		return err
	}
	return r.ui.Upsert(ctx, queueID, channelID, msg.ID)
}

// refreshQueueUI re-renderiza el mensaje fijo de la cola; varios cambios
// seguidos se agrupan en una sola edición.
func (r *Router) refreshQueueUI(queueID string) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if t, ok := r.refreshTimers[queueID]; ok {
		t.Stop()
	}
	r.refreshTimers[queueID] = time.AfterFunc(uiDebounce, func() {
		r.refreshMu.Lock()
		delete(r.refreshTimers, queueID)
		r.refreshMu.Unlock()

		defer step("ui.refresh." + queueID)()
		ctx, cancel := context.WithTimeout(context.Background(), ctxRenderMax)
		defer cancel()
		r.editQueueUI(ctx, queueID)
	})
}

func (r *Router) editQueueUI(ctx context.Context, queueID string) {
	ui, err := r.ui.Get(ctx, queueID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[ui.refresh] get %s: %v", queueID, err)
		return
	}
	embed, comps, err := r.renderQueueEmbed(ctx, queueID)
	if err != nil {
		log.Printf("[ui.refresh] render %s: %v", queueID, err)
		return
	}
	em := []*discordgo.MessageEmbed{embed}
	cc := []discordgo.MessageComponent{comps}
	_, err = r.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    ui.QueueChannelID,
		ID:         ui.QueueMessageID,
		Embeds:     &em,
		Components: &cc,
	})
	if err == nil {
		return
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		log.Printf("[ui.edit] status=%d retryAfter=%s body=%s",
			re.Response.StatusCode, re.Response.Header.Get("Retry-After"), string(re.ResponseBody))
		return
	}
	log.Printf("[ui.edit] err=%v", err)
}

// Render del embed + botones
func (r *Router) renderQueueEmbed(ctx context.Context, queueID string) (*discordgo.MessageEmbed, discordgo.MessageComponent, error) {
	snap, cfg, err := r.queue.Snapshot(ctx, queueID)
	if err != nil {
		return nil, nil, err
	}
	return queueEmbed(snap, cfg), queueButtons(queueID), nil
}

func queueEmbed(snap matchmaking.Snapshot, cfg domain.QueueConfig) *discordgo.MessageEmbed {
	desc := "Nadie en cola."
	if len(snap.Entries) > 0 {
		desc = service.FormatQueue(snap, cfg)
	}
	mode := make([]string, cfg.TeamCount)
	for i := range mode {
		mode[i] = fmt.Sprint(cfg.TeamSize)
	}
	footer := strings.Join(mode, "v")
	if len(cfg.MapPool) > 0 {
		footer += fmt.Sprintf(" · %d mapas", len(cfg.MapPool))
	}
	return &discordgo.MessageEmbed{
		Title:       "🎮 Cola " + cfg.ID,
		Description: desc,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   snap.At.Format(time.RFC3339),
	}
}

func queueButtons(queueID string) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Style:    discordgo.PrimaryButton,
				Label:    "La llevo",
				CustomID: customID(cidQueueJoin, queueID),
				Emoji:    &discordgo.ComponentEmoji{Name: "🌕"},
			},
			discordgo.Button{
				Style:    discordgo.SecondaryButton,
				Label:    "Chau",
				CustomID: customID(cidQueueLeave, queueID),
				Emoji:    &discordgo.ComponentEmoji{Name: "👋"},
			},
			discordgo.Button{
				Style:    discordgo.SecondaryButton,
				Label:    "Admin",
				CustomID: customID(cidAdminPanel, queueID),
				Emoji:    &discordgo.ComponentEmoji{Name: "👮"},
			},
		},
	}
}

// RefreshQueue es el hook que recibe el Notifier en queue_changed.
func (r *Router) RefreshQueue(queueID string) { r.refreshQueueUI(queueID) }
