package lobby

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func TestTally_MajorityWins(t *testing.T) {
	tl := NewTally("m-1", []string{"A", "B"}, []string{"p1", "p2", "p3"}, nil)
	require.NoError(t, tl.Register("p1", "A"))
	require.NoError(t, tl.Register("p2", "A"))
	require.NoError(t, tl.Register("p3", "B"))
	assert.True(t, tl.AllVoted())

	w, final := tl.Close()
	assert.True(t, final)
	assert.Equal(t, "A", w)

	assert.ErrorIs(t, tl.Register("p1", "B"), domain.ErrVotingClosed)
}

func TestTally_TieIsDeterministicPerMatch(t *testing.T) {
	resolve := func(id string) string {
		tl := NewTally(id, []string{"A", "B"}, []string{"p1", "p2"}, nil)
		require.NoError(t, tl.Register("p1", "A"))
		require.NoError(t, tl.Register("p2", "B"))
		w, _ := tl.Close()
		return w
	}

	first := resolve("match-42")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, resolve("match-42"))
	}

	// con distintos ids el desempate no es siempre el mismo
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		seen[resolve(fmt.Sprint("match-", i))] = true
	}
	assert.Len(t, seen, 2)
}

func TestTally_ChangeVoteAndRevoke(t *testing.T) {
	tl := NewTally("m", []string{"A", "B"}, []string{"p1", "p2"}, nil)
	require.NoError(t, tl.Register("p1", "A"))
	require.NoError(t, tl.Register("p1", "B"))
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, tl.Counts())
	assert.False(t, tl.AllVoted())

	tl.Revoke("p2")
	assert.True(t, tl.AllVoted())
	assert.ErrorIs(t, tl.Register("p2", "A"), domain.ErrNotInLobby)
}

func TestTally_MultiRound(t *testing.T) {
	tl := NewTally("m-7", []string{"A", "B", "C", "D"}, []string{"p1", "p2", "p3"}, []int{2})
	require.NoError(t, tl.Register("p1", "C"))
	require.NoError(t, tl.Register("p2", "C"))
	require.NoError(t, tl.Register("p3", "A"))

	w, final := tl.Close()
	assert.False(t, final)
	assert.Empty(t, w)
	assert.False(t, tl.Closed())
	assert.Equal(t, 1, tl.Round())
	assert.ElementsMatch(t, []string{"A", "C"}, tl.Candidates())
	assert.ErrorIs(t, tl.Register("p1", "B"), domain.ErrUnknownMap)

	require.NoError(t, tl.Register("p1", "A"))
	require.NoError(t, tl.Register("p2", "A"))
	w, final = tl.Close()
	assert.True(t, final)
	assert.Equal(t, "A", w)
	assert.True(t, tl.Closed())
}

func TestTally_NoVotesStillPicks(t *testing.T) {
	tl := NewTally("m-9", []string{"A", "B", "C"}, []string{"p1"}, nil)
	w, final := tl.Close()
	assert.True(t, final)
	assert.Contains(t, []string{"A", "B", "C"}, w)
}

func TestPickCandidates(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e"}

	got := PickCandidates("m", pool, 3, nil)
	assert.Len(t, got, 3)
	assert.Equal(t, got, PickCandidates("m", pool, 3, nil))

	got = PickCandidates("m", pool, 3, []string{"a", "b"})
	assert.ElementsMatch(t, []string{"c", "d", "e"}, got)

	// no alcanza con los frescos: se usa el pool entero
	got = PickCandidates("m", pool, 4, []string{"a", "b"})
	assert.Len(t, got, 4)

	assert.Equal(t, pool, PickCandidates("m", pool, 0, nil))
}

func TestEscalatingBans(t *testing.T) {
	p := EscalatingBans{Threshold: 3, Base: 30 * time.Minute, Max: 4 * time.Hour}
	assert.Zero(t, p.BanDuration(0))
	assert.Zero(t, p.BanDuration(2))
	assert.Equal(t, 30*time.Minute, p.BanDuration(3))
	assert.Equal(t, time.Hour, p.BanDuration(4))
	assert.Equal(t, 2*time.Hour, p.BanDuration(5))
	assert.Equal(t, 4*time.Hour, p.BanDuration(6))
	assert.Equal(t, 4*time.Hour, p.BanDuration(60))

	assert.Zero(t, EscalatingBans{}.BanDuration(10))

	f := BanPolicyFunc(func(s int) time.Duration { return time.Duration(s) * time.Minute })
	assert.Equal(t, 2*time.Minute, f.BanDuration(2))
}
