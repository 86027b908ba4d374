package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

type ProfileService struct {
	profiles ProfileStore
	rating   rating.Function
	opts     options
}

func NewProfileService(profiles ProfileStore, rf rating.Function, opts ...Option) *ProfileService {
	return &ProfileService{profiles: profiles, rating: rf, opts: buildOptions(opts)}
}

// ensureProfile trae el perfil y, si no existe, lo crea con el rating inicial.
// Refresca el nombre visible cuando cambió.
func ensureProfile(ctx context.Context, store ProfileStore, rf rating.Function, id, name string, now time.Time) (domain.Profile, error) {
	p, err := store.GetProfile(ctx, id)
	if err == nil {
		if name != "" && name != p.Name {
			p.Name = name
			p.UpdatedAt = now
			if err := store.UpsertProfile(ctx, p); err != nil {
				return domain.Profile{}, err
			}
		}
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.Profile{}, err
	}
	p = domain.Profile{ID: id, Name: name, Rating: rf.Default(), UpdatedAt: now}
	if err := store.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Register crea o actualiza región y roles del jugador.
func (s *ProfileService) Register(ctx context.Context, id, name, region string, roles []domain.Role) (string, error) {
	now := s.opts.now()
	p, err := ensureProfile(ctx, s.profiles, s.rating, id, name, now)
	if err != nil {
		return "", err
	}
	p.Region = strings.ToLower(strings.TrimSpace(region))
	p.Roles = normalizeRoles(roles)
	p.UpdatedAt = now
	if err := s.profiles.UpsertProfile(ctx, p); err != nil {
		return "", err
	}

	roleList := "cualquiera"
	if len(p.Roles) > 0 {
		parts := make([]string, len(p.Roles))
		for i, r := range p.Roles {
			parts[i] = string(r)
		}
		roleList = strings.Join(parts, ", ")
	}
	region = p.Region
	if region == "" {
		region = "sin región"
	}
	return fmt.Sprintf("✅ Perfil guardado: **%s** · %s · roles: %s", p.Name, region, roleList), nil
}

func normalizeRoles(roles []domain.Role) []domain.Role {
	seen := map[domain.Role]bool{}
	var out []domain.Role
	for _, r := range roles {
		r = domain.Role(strings.ToLower(strings.TrimSpace(string(r))))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// Stats es el /whoami del bot.
func (s *ProfileService) Stats(ctx context.Context, id string) (string, error) {
	p, err := s.profiles.GetProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", domain.ErrNotRegistered
	}
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Jugador:** <@%s> (%s)\n", p.ID, p.Name)
	fmt.Fprintf(&b, "**Rating:** %.1f (μ %.2f · σ %.2f)\n", s.rating.Skill(p.Rating), p.Rating.Mu, p.Rating.Sigma)
	fmt.Fprintf(&b, "**Partidas:** %d (%dW / %dL / %dD)\n", p.Games(), p.Wins, p.Losses, p.Draws)
	fmt.Fprintf(&b, "**Strikes:** %d", p.Strikes)
	for _, ban := range p.Bans {
		scope := "global"
		if !ban.Global() {
			scope = ban.QueueID
		}
		fmt.Fprintf(&b, "\n⛔ Ban (%s) hasta <t:%d:R>: %s", scope, ban.Until.Unix(), ban.Reason)
	}
	return b.String(), nil
}

func (s *ProfileService) Leaderboard(ctx context.Context, limit int) (string, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}
	top, err := s.profiles.Leaderboard(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "ℹ️ Todavía no hay partidas jugadas.", nil
	}
	var b strings.Builder
	b.WriteString("🏆 **Ranking**\n")
	for i, p := range top {
		fmt.Fprintf(&b, "%d) **%s** — %.0f · %dW/%dL\n", i+1, p.Name, s.rating.Skill(p.Rating), p.Wins, p.Losses)
	}
	return b.String(), nil
}
