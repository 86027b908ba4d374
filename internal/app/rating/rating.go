// Package rating contiene las funciones de rating intercambiables. El resto
// del bot sólo conoce la interfaz Function.
package rating

import (
	"fmt"
	"strings"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type Participant struct {
	PlayerID string
	Rating   domain.Rating
}

// Function calcula los ratings nuevos de un match terminado. Es pura: no
// toca el store. Un outcome cancel devuelve un mapa vacío.
type Function interface {
	Name() string
	Default() domain.Rating
	// Skill proyecta el rating al escalar que usa el balanceo de equipos.
	Skill(r domain.Rating) float64
	Apply(teams [][]Participant, outcome domain.Outcome) map[string]domain.Rating
}

// New elige el modelo por nombre ("openskill" por defecto, o "elo").
func New(model string) (Function, error) {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "", "openskill", "plackett-luce":
		return NewOpenSkill(), nil
	case "elo":
		return NewElo(DefaultK), nil
	default:
		return nil, fmt.Errorf("unknown rating model %q", model)
	}
}

// Deltas es un helper para logs y notificaciones: nuevo - anterior (en mu).
func Deltas(teams [][]Participant, updated map[string]domain.Rating) map[string]float64 {
	out := make(map[string]float64, len(updated))
	for _, team := range teams {
		for _, p := range team {
			if r, ok := updated[p.PlayerID]; ok {
				out[p.PlayerID] = r.Mu - p.Rating.Mu
			}
		}
	}
	return out
}

func valid(teams [][]Participant, outcome domain.Outcome) bool {
	if outcome.Kind == domain.OutcomeCancel || len(teams) < 2 {
		return false
	}
	if outcome.Kind == domain.OutcomeWin && (outcome.Winner < 0 || outcome.Winner >= len(teams)) {
		return false
	}
	for _, t := range teams {
		if len(t) == 0 {
			return false
		}
	}
	return true
}
