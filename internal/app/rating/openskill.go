package rating

import (
	osrating "github.com/intinig/go-openskill/rating"
	"github.com/intinig/go-openskill/types"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

const (
	defaultMu    = 25.0
	defaultSigma = defaultMu / 3
)

// OpenSkill usa Plackett-Luce (go-openskill). Empates = mismo rank.
type OpenSkill struct{}

func NewOpenSkill() OpenSkill { return OpenSkill{} }

func (OpenSkill) Name() string { return "openskill" }

func (OpenSkill) Default() domain.Rating {
	return domain.Rating{Mu: defaultMu, Sigma: defaultSigma}
}

func (OpenSkill) Skill(r domain.Rating) float64 { return r.Mu }

func (OpenSkill) Apply(teams [][]Participant, outcome domain.Outcome) map[string]domain.Rating {
	out := map[string]domain.Rating{}
	if !valid(teams, outcome) {
		return out
	}

	in := make([]types.Team, len(teams))
	for i, team := range teams {
		t := make(types.Team, len(team))
		for k, p := range team {
			t[k] = types.Rating{Mu: p.Rating.Mu, Sigma: p.Rating.Sigma}
		}
		in[i] = t
	}

	res := osrating.Rate(in, &types.OpenSkillOptions{Rank: outcome.Placements(len(teams))})
	for i, team := range teams {
		for k, p := range team {
			r := res[i][k]
			out[p.PlayerID] = domain.Rating{Mu: r.Mu, Sigma: r.Sigma}
		}
	}
	return out
}

// DrawProbability sirve para mostrar qué tan parejo salió el match.
func (OpenSkill) DrawProbability(teams [][]Participant) float64 {
	in := make([]types.Team, len(teams))
	for i, team := range teams {
		t := make(types.Team, len(team))
		for k, p := range team {
			t[k] = types.Rating{Mu: p.Rating.Mu, Sigma: p.Rating.Sigma}
		}
		in[i] = t
	}
	return osrating.PredictDraw(in, nil)
}
