package lobby

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Tally junta votos de mapa. Cada jugador tiene un voto por ronda y puede
// cambiarlo mientras la ronda esté abierta.
type Tally struct {
	mu         sync.Mutex
	matchID    string
	eligible   map[string]bool
	candidates []string
	rounds     []int
	round      int
	votes      map[string]string
	closed     bool
	winner     string
}

// NewTally: rounds son los tamaños a los que se achica la lista antes de la
// elección final (ej [2] = primero quedan 2, después 1).
func NewTally(matchID string, candidates, eligible []string, rounds []int) *Tally {
	t := &Tally{
		matchID:    matchID,
		eligible:   make(map[string]bool, len(eligible)),
		candidates: append([]string(nil), candidates...),
		votes:      map[string]string{},
	}
	for _, p := range eligible {
		t.eligible[p] = true
	}
	for _, n := range rounds {
		if n > 1 && n < len(t.candidates) {
			t.rounds = append(t.rounds, n)
		}
	}
	return t
}

func (t *Tally) Register(player, mapName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrVotingClosed
	}
	if !t.eligible[player] {
		return domain.ErrNotInLobby
	}
	if !contains(t.candidates, mapName) {
		return domain.ErrUnknownMap
	}
	t.votes[player] = mapName
	return nil
}

// Revoke saca a un jugador del padrón (leaver durante la votación).
func (t *Tally) Revoke(player string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.eligible, player)
	delete(t.votes, player)
}

func (t *Tally) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.candidates...)
}

func (t *Tally) Round() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.round
}

func (t *Tally) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countsLocked()
}

func (t *Tally) countsLocked() map[string]int {
	out := make(map[string]int, len(t.candidates))
	for _, c := range t.candidates {
		out[c] = 0
	}
	for _, m := range t.votes {
		out[m]++
	}
	return out
}

// Pending lista los habilitados que todavía no votaron en la ronda actual.
func (t *Tally) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for p := range t.eligible {
		if _, ok := t.votes[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// AllVoted = quórum: votaron todos los habilitados.
func (t *Tally) AllVoted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.eligible) > 0 && len(t.votes) >= len(t.eligible)
}

// Close resuelve la ronda actual. Si quedan rondas, achica la lista, limpia
// los votos y devuelve final=false.
func (t *Tally) Close() (winner string, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.winner, true
	}
	if len(t.candidates) == 0 {
		t.closed = true
		return "", true
	}

	counts := t.countsLocked()
	if t.round < len(t.rounds) {
		t.candidates = Resolve(t.matchID, t.round, t.candidates, counts, t.rounds[t.round])
		t.round++
		t.votes = map[string]string{}
		if len(t.candidates) > 1 {
			return "", false
		}
	} else {
		t.candidates = Resolve(t.matchID, t.round, t.candidates, counts, 1)
	}
	t.closed = true
	t.winner = t.candidates[0]
	return t.winner, true
}

func (t *Tally) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Resolve ordena por votos y se queda con los primeros keep. Los empates se
// rompen con un PRNG sembrado con el id del match y la ronda: reproducible
// con el id, impredecible sin él.
func Resolve(matchID string, round int, candidates []string, counts map[string]int, keep int) []string {
	order := append([]string(nil), candidates...)
	sort.Strings(order)
	rng := seeded(matchID, round)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if keep < 1 {
		keep = 1
	}
	if keep > len(order) {
		keep = len(order)
	}
	return order[:keep]
}

// PickCandidates elige n mapas del pool, evitando los jugados hace poco
// siempre que queden suficientes.
func PickCandidates(matchID string, pool []string, n int, recent []string) []string {
	if n <= 0 || n > len(pool) {
		n = len(pool)
	}
	fresh := make([]string, 0, len(pool))
	for _, m := range pool {
		if !contains(recent, m) {
			fresh = append(fresh, m)
		}
	}
	src := fresh
	if len(fresh) < n {
		src = append([]string(nil), pool...)
	}
	sort.Strings(src)
	rng := seeded(matchID, -1)
	rng.Shuffle(len(src), func(i, j int) { src[i], src[j] = src[j], src[i] })
	out := append([]string(nil), src[:n]...)
	sort.Strings(out)
	return out
}

func seeded(matchID string, round int) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(matchID))
	return rand.New(rand.NewPCG(h.Sum64(), uint64(int64(round))))
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
