package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Lo implementa QueueService.
type QueueKicker interface {
	Kick(ctx context.Context, playerID string) []string
}

// AdminService agrupa las acciones de moderación. Los permisos se validan en
// el adapter (rol de admin en Discord).
type AdminService struct {
	bans     BanStore
	matches  MatchStore
	queues   QueueKicker
	lobbies  *LobbyService
	notifier Notifier
	opts     options
}

func NewAdminService(bans BanStore, matches MatchStore, queues QueueKicker, lobbies *LobbyService, notifier Notifier, opts ...Option) *AdminService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AdminService{bans: bans, matches: matches, queues: queues, lobbies: lobbies, notifier: notifier, opts: buildOptions(opts)}
}

// Ban banea a player (queueID vacío = global) y lo saca de las colas donde esté.
func (s *AdminService) Ban(ctx context.Context, admin, player, queueID string, d time.Duration, reason string) (string, error) {
	if d <= 0 {
		return "", fmt.Errorf("%w: la duración tiene que ser positiva", domain.ErrValidation)
	}
	now := s.opts.now()
	b := domain.Ban{
		PlayerID:  player,
		QueueID:   queueID,
		Until:     now.Add(d),
		Reason:    strings.TrimSpace(reason),
		IssuedBy:  admin,
		CreatedAt: now,
	}
	if err := s.bans.SetBan(ctx, b); err != nil {
		return "", err
	}

	kicked := s.queues.Kick(ctx, player)
	log.Printf("[admin] %s baneó a %s (%s) por %s; sacado de %v", admin, player, queueID, d, kicked)
	s.notifier.Notify(ctx, domain.Event{
		Kind: domain.EventPlayerBanned, QueueID: queueID, At: now,
		Players: []string{player}, Message: b.Reason,
	})

	scope := "todas las colas"
	if queueID != "" {
		scope = "la cola " + queueID
	}
	return fmt.Sprintf("⛔ <@%s> baneado de %s hasta <t:%d:f>.", player, scope, b.Until.Unix()), nil
}

func (s *AdminService) Unban(ctx context.Context, player, queueID string) (string, error) {
	ok, err := s.bans.ClearBan(ctx, player, queueID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "ℹ️ No había un ban vigente.", nil
	}
	return fmt.Sprintf("✅ <@%s> desbaneado.", player), nil
}

func (s *AdminService) Bans(ctx context.Context) (string, error) {
	bans, err := s.bans.ListBans(ctx, s.opts.now())
	if err != nil {
		return "", err
	}
	if len(bans) == 0 {
		return "ℹ️ No hay bans vigentes.", nil
	}
	var b strings.Builder
	b.WriteString("⛔ **Bans vigentes**\n")
	for _, ban := range bans {
		scope := "global"
		if !ban.Global() {
			scope = ban.QueueID
		}
		fmt.Fprintf(&b, "• <@%s> (%s) hasta <t:%d:R> — %s\n", ban.PlayerID, scope, ban.Until.Unix(), ban.Reason)
	}
	return b.String(), nil
}

func (s *AdminService) Leavers(ctx context.Context, limit int) (string, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, err := s.matches.ListLeavers(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "ℹ️ Sin leavers registrados.", nil
	}
	var b strings.Builder
	b.WriteString("🚩 **Últimos leavers**\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "• <@%s> %s en `%s` <t:%d:R>\n", r.PlayerID, r.Kind, r.LobbyID, r.At.Unix())
	}
	return b.String(), nil
}

func (s *AdminService) ForceOutcome(ctx context.Context, lobbyID string, o domain.Outcome) (string, error) {
	return s.lobbies.ForceOutcome(ctx, lobbyID, o)
}

func (s *AdminService) CancelLobby(ctx context.Context, admin, lobbyID, reason string) (string, error) {
	return s.lobbies.CancelLobby(ctx, admin, lobbyID, reason, true)
}

func (s *AdminService) RetryProvisioning(ctx context.Context, lobbyID string) (string, error) {
	return s.lobbies.RetryProvisioning(ctx, lobbyID)
}

// ChatLog muestra el chat guardado de un lobby.
func (s *AdminService) ChatLog(ctx context.Context, lobbyID string, limit int) (string, error) {
	if s.opts.chatLog == nil {
		return "ℹ️ El log de chat no está habilitado.", nil
	}
	if limit <= 0 || limit > 50 {
		limit = 30
	}
	lines, err := s.opts.chatLog.ChatLog(ctx, lobbyID, limit)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return fmt.Sprintf("ℹ️ No hay chat guardado para `%s`.", lobbyID), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💬 **Chat de `%s`**\n", lobbyID)
	for _, l := range lines {
		fmt.Fprintf(&b, "`%s` <@%s>: %s\n", l.At.UTC().Format("15:04"), l.AuthorID, l.Content)
	}
	return b.String(), nil
}

// Lobbies lista los lobbies activos para el panel de admin.
func (s *AdminService) Lobbies() string {
	views := s.lobbies.Active()
	if len(views) == 0 {
		return "ℹ️ No hay lobbies activos."
	}
	var b strings.Builder
	b.WriteString("🎮 **Lobbies activos**\n")
	for _, v := range views {
		fmt.Fprintf(&b, "• `%s` (%s) %s", v.ID, v.QueueID, v.State)
		if v.Map != "" {
			fmt.Fprintf(&b, " · %s", v.Map)
		}
		if len(v.Alerts) > 0 {
			fmt.Fprintf(&b, " · ⚠️ %s", v.Alerts[len(v.Alerts)-1])
		}
		b.WriteString("\n")
	}
	return b.String()
}
