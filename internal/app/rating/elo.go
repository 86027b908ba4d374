package rating

import (
	"math"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

const (
	DefaultElo = 1200
	DefaultK   = 32
)

// Elo clásico por promedio de equipo: cada equipo juega contra el promedio
// de cada rival y todos sus jugadores reciben el mismo delta.
type Elo struct {
	K float64
}

func NewElo(k float64) Elo { return Elo{K: k} }

func (Elo) Name() string { return "elo" }

func (Elo) Default() domain.Rating { return domain.Rating{Mu: DefaultElo} }

func (Elo) Skill(r domain.Rating) float64 { return r.Mu }

// ExpectedScore: probabilidad de que a le gane a b.
func ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

func (e Elo) Apply(teams [][]Participant, outcome domain.Outcome) map[string]domain.Rating {
	out := map[string]domain.Rating{}
	if !valid(teams, outcome) {
		return out
	}
	k := e.K
	if k <= 0 {
		k = DefaultK
	}

	avgs := make([]float64, len(teams))
	for i, team := range teams {
		for _, p := range team {
			avgs[i] += p.Rating.Mu
		}
		avgs[i] /= float64(len(team))
	}
	place := outcome.Placements(len(teams))

	for i, team := range teams {
		var expected, actual float64
		for j := range teams {
			if i == j {
				continue
			}
			expected += ExpectedScore(avgs[i], avgs[j])
			switch {
			case place[i] < place[j]:
				actual += 1
			case place[i] == place[j]:
				actual += 0.5
			}
		}
		opponents := float64(len(teams) - 1)
		delta := k * (actual - expected) / opponents
		for _, p := range team {
			out[p.PlayerID] = domain.Rating{Mu: math.Round(p.Rating.Mu + delta), Sigma: p.Rating.Sigma}
		}
	}
	return out
}
