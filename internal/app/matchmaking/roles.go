package matchmaking

import (
	"fmt"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// canFill: un jugador sin preferencias (o con "any") entra en cualquier slot,
// y un slot "any" acepta a cualquiera.
func canFill(prefs []domain.Role, slot domain.Role) bool {
	if slot == domain.RoleAny || len(prefs) == 0 {
		return true
	}
	for _, p := range prefs {
		if p == domain.RoleAny || p == slot {
			return true
		}
	}
	return false
}

// assignRoles busca un matching miembro→slot (Kuhn). Sirve tanto para equipos
// completos como parciales: sólo exige que cada miembro tenga un slot distinto.
func assignRoles(members []domain.Member, combo domain.RoleCombo) ([]domain.Role, bool) {
	slots := combo.Slots()
	if len(members) > len(slots) {
		return nil, false
	}
	owner := make([]int, len(slots))
	for i := range owner {
		owner[i] = -1
	}

	var try func(m int, seen []bool) bool
	try = func(m int, seen []bool) bool {
		for s, role := range slots {
			if seen[s] || !canFill(members[m].Roles, role) {
				continue
			}
			seen[s] = true
			if owner[s] < 0 || try(owner[s], seen) {
				owner[s] = m
				return true
			}
		}
		return false
	}

	for m := range members {
		if !try(m, make([]bool, len(slots))) {
			return nil, false
		}
	}

	out := make([]domain.Role, len(members))
	for s, m := range owner {
		if m >= 0 {
			out[m] = slots[s]
		}
	}
	return out, true
}

// teamRoles devuelve la asignación contra la primera combinación válida.
// Sin combinaciones configuradas todos quedan como "any".
func teamRoles(members []domain.Member, cfg domain.QueueConfig) ([]domain.Role, bool) {
	if len(cfg.RoleCombos) == 0 {
		if len(members) > cfg.TeamSize {
			return nil, false
		}
		out := make([]domain.Role, len(members))
		for i := range out {
			out[i] = domain.RoleAny
		}
		return out, true
	}
	for _, c := range cfg.RoleCombos {
		if roles, ok := assignRoles(members, c); ok {
			return roles, true
		}
	}
	return nil, false
}

// CheckEntry es el chequeo grueso al entrar a la cola: el grupo tiene que
// caber en un equipo y admitir al menos una asignación de roles.
func CheckEntry(e domain.QueueEntry, cfg domain.QueueConfig) error {
	if e.Slots() == 0 {
		return fmt.Errorf("%w: empty entry", domain.ErrValidation)
	}
	if e.Slots() > cfg.TeamSize {
		return domain.ErrEntryTooLarge
	}
	if _, ok := teamRoles(e.Members, cfg); !ok {
		return domain.ErrInvalidRoleCombination
	}
	if cfg.RegionMode != domain.RegionOff && e.Kind == domain.GroupEntry && e.Region() == "" {
		return domain.ErrMixedRegions
	}
	return nil
}

// ValidateConfig rechaza configuraciones imposibles antes de persistirlas.
func ValidateConfig(cfg domain.QueueConfig) error {
	if cfg.TeamCount < 2 {
		return fmt.Errorf("%w: team_count must be >= 2", domain.ErrValidation)
	}
	if cfg.TeamSize < 1 {
		return fmt.Errorf("%w: team_size must be >= 1", domain.ErrValidation)
	}
	for i, c := range cfg.RoleCombos {
		if c.Size() != cfg.TeamSize {
			return fmt.Errorf("%w: role combo %d has %d slots, team_size is %d",
				domain.ErrValidation, i+1, c.Size(), cfg.TeamSize)
		}
	}
	switch cfg.RegionMode {
	case "", domain.RegionOff, domain.RegionMatch, domain.RegionTeam, domain.RegionBestEffort:
	default:
		return fmt.Errorf("%w: unknown region mode %q", domain.ErrValidation, cfg.RegionMode)
	}
	if cfg.Capacity > 0 && cfg.Capacity < cfg.PlayersPerMatch() {
		return fmt.Errorf("%w: capacity below one match", domain.ErrValidation)
	}
	for _, n := range cfg.VoteRounds {
		if n < 1 {
			return fmt.Errorf("%w: vote rounds must narrow to >= 1", domain.ErrValidation)
		}
	}
	return nil
}
