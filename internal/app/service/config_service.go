package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

// Lo implementa QueueService: aplica la config nueva a la cola en memoria.
type ConfigApplier interface {
	ApplyConfig(ctx context.Context, cfg domain.QueueConfig) int
}

type ConfigService struct {
	repo    QueueConfigRepo
	applier ConfigApplier
	opts    options
}

func NewConfigService(repo QueueConfigRepo, applier ConfigApplier, opts ...Option) *ConfigService {
	return &ConfigService{repo: repo, applier: applier, opts: buildOptions(opts)}
}

// ConfigPatch: nil = no tocar.
type ConfigPatch struct {
	TeamCount         *int
	TeamSize          *int
	RoleCombos        *string
	RegionMode        *string
	MapPool           *string
	VoteSize          *int
	VoteTimeSeconds   *int
	PreventRecentMaps *int
	Capacity          *int
	MinWaitSeconds    *int
	BalanceThreshold  *float64
	MaxNoShows        *int
	ResultQuorum      *int
	HostMode          *string
	CategoryID        *string
	LobbyVoiceID      *string
	AuditChannel      *string
	ResultsChannel    *string
	LeaverVerifySecs  *int
	LogChats          *bool
}

func (s *ConfigService) Get(ctx context.Context, queueID string) (domain.QueueConfig, error) {
	cfg, err := s.repo.Get(ctx, queueID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.opts.defaults(queueID), nil
	}
	return cfg, err
}

func (s *ConfigService) Show(ctx context.Context, queueID string) (string, error) {
	cfg, err := s.Get(ctx, queueID)
	if err != nil {
		return "", err
	}
	return FormatConfig(cfg), nil
}

func (s *ConfigService) Update(ctx context.Context, queueID string, patch ConfigPatch) (string, error) {
	cur, err := s.Get(ctx, queueID)
	if err != nil {
		return "", err
	}
	next, err := applyPatch(cur, patch)
	if err != nil {
		return "", err
	}
	if err := matchmaking.ValidateConfig(next); err != nil {
		return "", err
	}
	if err := s.repo.Upsert(ctx, next); err != nil {
		return "", err
	}

	msg := FormatConfig(next)
	if s.applier != nil {
		if n := s.applier.ApplyConfig(ctx, next); n > 0 {
			msg += fmt.Sprintf("\n⚠️ %d entradas salieron de la cola porque ya no cumplen la config.", n)
		}
	}
	return msg, nil
}

func applyPatch(cfg domain.QueueConfig, p ConfigPatch) (domain.QueueConfig, error) {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setSecs := func(dst *time.Duration, v *int) {
		if v != nil {
			*dst = time.Duration(*v) * time.Second
		}
	}

	setInt(&cfg.TeamCount, p.TeamCount)
	setInt(&cfg.TeamSize, p.TeamSize)
	setInt(&cfg.VoteSize, p.VoteSize)
	setInt(&cfg.PreventRecentMaps, p.PreventRecentMaps)
	setInt(&cfg.Capacity, p.Capacity)
	setInt(&cfg.MaxNoShows, p.MaxNoShows)
	setInt(&cfg.ResultQuorum, p.ResultQuorum)
	setSecs(&cfg.VoteTime, p.VoteTimeSeconds)
	setSecs(&cfg.MinWait, p.MinWaitSeconds)
	setStr(&cfg.CategoryID, p.CategoryID)
	setStr(&cfg.LobbyVoiceID, p.LobbyVoiceID)
	setStr(&cfg.AuditChannel, p.AuditChannel)
	setStr(&cfg.ResultsChannel, p.ResultsChannel)
	setSecs(&cfg.LeaverVerification, p.LeaverVerifySecs)
	if p.LogChats != nil {
		cfg.LogChats = *p.LogChats
	}
	if p.BalanceThreshold != nil {
		cfg.BalanceThreshold = *p.BalanceThreshold
	}
	if p.RegionMode != nil {
		cfg.RegionMode = domain.RegionMode(strings.ToLower(strings.TrimSpace(*p.RegionMode)))
	}
	if p.HostMode != nil {
		switch m := domain.HostMode(strings.ToLower(strings.TrimSpace(*p.HostMode))); m {
		case domain.HostOverall, domain.HostPerTeam:
			cfg.HostMode = m
		default:
			return cfg, fmt.Errorf("%w: host mode %q", domain.ErrValidation, *p.HostMode)
		}
	}
	if p.MapPool != nil {
		cfg.MapPool = splitList(*p.MapPool)
	}
	if p.RoleCombos != nil {
		combos, err := ParseRoleCombos(*p.RoleCombos)
		if err != nil {
			return cfg, err
		}
		cfg.RoleCombos = combos
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseRoleCombos lee "tank:1,dps:2,support:2; tank:2,dps:3". Vacío = sin
// restricción de roles.
func ParseRoleCombos(s string) ([]domain.RoleCombo, error) {
	var out []domain.RoleCombo
	for _, raw := range strings.Split(s, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		combo := domain.RoleCombo{}
		for _, slot := range strings.Split(raw, ",") {
			name, count, ok := strings.Cut(strings.TrimSpace(slot), ":")
			if !ok {
				return nil, fmt.Errorf("%w: rol %q sin cantidad", domain.ErrValidation, slot)
			}
			n, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w: cantidad inválida en %q", domain.ErrValidation, slot)
			}
			combo[domain.Role(strings.ToLower(strings.TrimSpace(name)))] += n
		}
		out = append(out, combo)
	}
	return out, nil
}

func FormatRoleCombo(c domain.RoleCombo) string {
	roles := make([]string, 0, len(c))
	for r := range c {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = fmt.Sprintf("%s:%d", r, c[domain.Role(r)])
	}
	return strings.Join(parts, ",")
}

func FormatConfig(cfg domain.QueueConfig) string {
	combos := "libre"
	if len(cfg.RoleCombos) > 0 {
		parts := make([]string, len(cfg.RoleCombos))
		for i, c := range cfg.RoleCombos {
			parts[i] = FormatRoleCombo(c)
		}
		combos = strings.Join(parts, " | ")
	}
	maps := "sin votación"
	if len(cfg.MapPool) > 0 {
		maps = strings.Join(cfg.MapPool, ", ")
	}
	return fmt.Sprintf(
		"**Config de %s**\n• equipos: **%d x %d**\n• roles: **%s**\n• región: **%s**\n• mapas: **%s** (vota %d, %s)\n• evitar últimos mapas: **%d**\n• capacidad: **%d** · espera mínima: **%s** · umbral de balance: **%.1f**\n• hosts: **%s** · no-shows máx: **%d** · quorum resultado: **%d**\n• disputa de leaver: **%s** · logs de chat: **%s** · resultados: **%s**",
		cfg.ID, cfg.TeamCount, cfg.TeamSize, combos, cfg.RegionMode, maps, cfg.VoteSize, cfg.VoteTime,
		cfg.PreventRecentMaps, cfg.Capacity, cfg.MinWait, cfg.BalanceThreshold,
		cfg.HostMode, cfg.MaxNoShows, cfg.ResultVotesNeeded(),
		cfg.LeaverVerification, onOff(cfg.LogChats), channelOrNone(cfg.ResultsChannel),
	)
}

func onOff(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

func channelOrNone(id string) string {
	if id == "" {
		return "sin canal"
	}
	return "<#" + id + ">"
}
