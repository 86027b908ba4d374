package matchmaking

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

const (
	defaultMaxNodes = 50000
	scoreEpsilon    = 1e-9
)

// Snapshot es la vista inmutable de una cola en un instante.
type Snapshot struct {
	QueueID string
	At      time.Time
	Entries []domain.QueueEntry
}

// BalanceFunc puntúa los promedios de skill de los equipos; menor es mejor.
type BalanceFunc func(averages []float64) float64

// Spread = promedio máximo - promedio mínimo.
func Spread(averages []float64) float64 {
	if len(averages) == 0 {
		return 0
	}
	return lo.Max(averages) - lo.Min(averages)
}

// Variance castiga más un equipo muy desbalanceado que varios apenas corridos.
func Variance(averages []float64) float64 {
	if len(averages) == 0 {
		return 0
	}
	mean := lo.Sum(averages) / float64(len(averages))
	return lo.SumBy(averages, func(a float64) float64 { return (a - mean) * (a - mean) }) / float64(len(averages))
}

// BalanceByName resuelve el nombre usado en la config ("spread", "variance").
func BalanceByName(name string) (BalanceFunc, bool) {
	switch name {
	case "", "spread":
		return Spread, true
	case "variance":
		return Variance, true
	}
	return nil, false
}

// Engine arma equipos a partir de un snapshot. El valor cero usa Spread.
type Engine struct {
	Balance BalanceFunc
}

// AttemptFormation corre el motor por defecto.
func AttemptFormation(snap Snapshot, cfg domain.QueueConfig) (domain.MatchProposal, bool) {
	return Engine{}.Attempt(snap, cfg)
}

type bucket struct {
	region  string
	players int
	entries []domain.QueueEntry
	perTeam bool
}

// Attempt devuelve false cuando todavía no hay formación posible.
// No modifica nada: es una función pura del snapshot y la config.
func (eng Engine) Attempt(snap Snapshot, cfg domain.QueueConfig) (domain.MatchProposal, bool) {
	if cfg.TeamCount < 1 || cfg.TeamSize < 1 {
		return domain.MatchProposal{}, false
	}
	balance := eng.Balance
	if balance == nil {
		balance = Spread
	}

	eligible := lo.Filter(snap.Entries, func(e domain.QueueEntry, _ int) bool {
		if e.Slots() == 0 || e.Slots() > cfg.TeamSize {
			return false
		}
		if e.BannedAt(snap.At) {
			return false
		}
		return cfg.MinWait <= 0 || snap.At.Sub(e.JoinedAt) >= cfg.MinWait
	})
	sortFIFO(eligible)

	for _, b := range buckets(eligible, cfg) {
		if b.players < cfg.PlayersPerMatch() {
			continue
		}
		s := newSearch(b, cfg, balance)
		best, ok := s.run()
		if !ok {
			continue
		}
		if cfg.BalanceThreshold > 0 && best.score > cfg.BalanceThreshold+scoreEpsilon {
			continue
		}
		p := s.proposal(best)
		p.QueueID = snap.QueueID
		p.At = snap.At
		return p, true
	}
	return domain.MatchProposal{}, false
}

func sortFIFO(entries []domain.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

func countPlayers(entries []domain.QueueEntry) int {
	return lo.SumBy(entries, func(e domain.QueueEntry) int { return e.Slots() })
}

// buckets parte los candidatos según el modo de región, el más grande primero.
func buckets(entries []domain.QueueEntry, cfg domain.QueueConfig) []bucket {
	all := bucket{entries: entries, players: countPlayers(entries)}

	switch cfg.RegionMode {
	case domain.RegionMatch, domain.RegionBestEffort:
		groups := lo.GroupBy(entries, func(e domain.QueueEntry) string { return e.Region() })
		out := make([]bucket, 0, len(groups)+1)
		for region, es := range groups {
			out = append(out, bucket{region: region, entries: es, players: countPlayers(es)})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].players != out[j].players {
				return out[i].players > out[j].players
			}
			return out[i].region < out[j].region
		})
		if cfg.RegionMode == domain.RegionBestEffort && len(out) > 1 {
			out = append(out, all)
		}
		return out
	case domain.RegionTeam:
		all.perTeam = true
		return []bucket{all}
	default:
		return []bucket{all}
	}
}

type teamState struct {
	members []domain.Member
	sum     float64
	region  string
}

type candidate struct {
	score float64
	// índice FIFO del jugador más antiguo que queda afuera; mayor es más justo
	oldestLeft int
	teams      [][]int
	chosen     []int
}

type search struct {
	b       bucket
	cfg     domain.QueueConfig
	balance BalanceFunc

	needed   int
	suffix   []int
	maxNodes int
	nodes    int

	teams     []teamState
	teamOf    [][]int
	chosen    []int
	firstSkip int

	best  candidate
	found bool
	done  bool
}

func newSearch(b bucket, cfg domain.QueueConfig, balance BalanceFunc) *search {
	s := &search{
		b:         b,
		cfg:       cfg,
		balance:   balance,
		needed:    cfg.PlayersPerMatch(),
		maxNodes:  cfg.MaxSearchNodes,
		teams:     make([]teamState, cfg.TeamCount),
		teamOf:    make([][]int, cfg.TeamCount),
		firstSkip: -1,
	}
	if s.maxNodes <= 0 {
		s.maxNodes = defaultMaxNodes
	}
	n := len(b.entries)
	s.suffix = make([]int, n+1)
	for i := n - 1; i >= 0; i-- {
		s.suffix[i] = s.suffix[i+1] + b.entries[i].Slots()
	}
	return s
}

func (s *search) run() (candidate, bool) {
	s.dfs(0, 0)
	return s.best, s.found
}

func (s *search) dfs(i, placed int) {
	if s.done {
		return
	}
	s.nodes++
	if s.nodes > s.maxNodes {
		s.done = true
		return
	}
	if placed == s.needed {
		s.evaluate(i)
		return
	}
	if i == len(s.b.entries) || placed+s.suffix[i] < s.needed {
		return
	}

	e := s.b.entries[i]
	for _, t := range s.placements(e) {
		s.place(t, i, e)
		s.dfs(i+1, placed+e.Slots())
		s.unplace(t, e)
		if s.done {
			return
		}
	}

	prev := s.firstSkip
	if prev < 0 {
		s.firstSkip = i
	}
	s.dfs(i+1, placed)
	s.firstSkip = prev
}

// placements devuelve los equipos donde la entrada cabe, en orden greedy
// (menor suma de skill primero). Sólo se prueba el primer equipo vacío.
func (s *search) placements(e domain.QueueEntry) []int {
	var out []int
	triedEmpty := false
	for t := range s.teams {
		ts := s.teams[t]
		if len(ts.members)+e.Slots() > s.cfg.TeamSize {
			continue
		}
		if len(ts.members) == 0 {
			if triedEmpty {
				continue
			}
			triedEmpty = true
		}
		if s.b.perTeam && len(ts.members) > 0 && ts.region != e.Region() {
			continue
		}
		merged := append(append([]domain.Member(nil), ts.members...), e.Members...)
		if _, ok := teamRoles(merged, s.cfg); !ok {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return s.teams[out[a]].sum < s.teams[out[b]].sum
	})
	return out
}

func (s *search) place(t, i int, e domain.QueueEntry) {
	ts := &s.teams[t]
	if len(ts.members) == 0 {
		ts.region = e.Region()
	}
	ts.members = append(ts.members, e.Members...)
	ts.sum += e.SkillSum()
	s.teamOf[t] = append(s.teamOf[t], i)
	s.chosen = append(s.chosen, i)
}

func (s *search) unplace(t int, e domain.QueueEntry) {
	ts := &s.teams[t]
	ts.members = ts.members[:len(ts.members)-e.Slots()]
	ts.sum -= e.SkillSum()
	if len(ts.members) == 0 {
		ts.region = ""
		ts.sum = 0
	}
	s.teamOf[t] = s.teamOf[t][:len(s.teamOf[t])-1]
	s.chosen = s.chosen[:len(s.chosen)-1]
}

func (s *search) evaluate(next int) {
	avgs := make([]float64, len(s.teams))
	for t, ts := range s.teams {
		if len(ts.members) != s.cfg.TeamSize {
			return
		}
		avgs[t] = ts.sum / float64(s.cfg.TeamSize)
	}
	score := s.balance(avgs)
	oldest := next
	if s.firstSkip >= 0 {
		oldest = s.firstSkip
	}

	better := !s.found ||
		score < s.best.score-scoreEpsilon ||
		(math.Abs(score-s.best.score) <= scoreEpsilon && oldest > s.best.oldestLeft)
	if !better {
		return
	}

	c := candidate{score: score, oldestLeft: oldest, chosen: append([]int(nil), s.chosen...)}
	c.teams = make([][]int, len(s.teamOf))
	for t, idx := range s.teamOf {
		c.teams[t] = append([]int(nil), idx...)
	}
	s.best = c
	s.found = true

	// balance perfecto sin saltear a nadie: no se puede mejorar
	if score <= scoreEpsilon && s.firstSkip < 0 {
		s.done = true
	}
}

func (s *search) proposal(c candidate) domain.MatchProposal {
	p := domain.MatchProposal{Region: s.b.region, Score: c.score}
	if s.b.perTeam {
		p.Region = ""
	}

	chosen := append([]int(nil), c.chosen...)
	sort.Ints(chosen)
	for _, i := range chosen {
		p.Entries = append(p.Entries, s.b.entries[i])
	}

	for _, idx := range c.teams {
		var members []domain.Member
		var sum float64
		for _, i := range idx {
			members = append(members, s.b.entries[i].Members...)
			sum += s.b.entries[i].SkillSum()
		}
		roles, _ := teamRoles(members, s.cfg)
		team := domain.Team{Average: sum / float64(s.cfg.TeamSize)}
		for k, m := range members {
			team.Players = append(team.Players, domain.Assignment{Member: m, Role: roles[k]})
		}
		p.Teams = append(p.Teams, team)
	}
	return p
}
