package matchmaking

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(cfg domain.QueueConfig) (*Queue, *fakeClock) {
	clk := &fakeClock{now: t0}
	return NewQueue(cfg, WithClock(clk.Now)), clk
}

func TestQueue_JoinErrors(t *testing.T) {
	cfg := cfg2x2()
	cfg.Capacity = 4
	cfg.RoleCombos = []domain.RoleCombo{{"tank": 1, "dps": 1}}
	q, _ := newTestQueue(cfg)

	_, err := q.Join(domain.NewSolo(member("a", 10, "tank")))
	require.NoError(t, err)

	_, err = q.Join(domain.NewSolo(member("a", 10, "tank")))
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)
	assert.ErrorIs(t, err, domain.ErrValidation)

	until := t0.Add(time.Hour)
	banned := member("b", 10, "dps")
	banned.BannedUntil = &until
	_, err = q.Join(domain.NewSolo(banned))
	assert.ErrorIs(t, err, domain.ErrBanned)
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	_, err = q.Join(domain.NewGroup("g", []domain.Member{member("t1", 1, "tank"), member("t2", 1, "tank")}))
	assert.ErrorIs(t, err, domain.ErrInvalidRoleCombination)

	_, err = q.Join(domain.NewGroup("big", []domain.Member{member("x", 1), member("y", 1), member("z", 1)}))
	assert.ErrorIs(t, err, domain.ErrEntryTooLarge)

	for _, id := range []string{"c", "d", "e"} {
		_, err = q.Join(domain.NewSolo(member(id, 10, "dps")))
		require.NoError(t, err)
	}
	_, err = q.Join(domain.NewSolo(member("f", 10, "dps")))
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	entries, players := q.Len()
	assert.Equal(t, 4, entries)
	assert.Equal(t, 4, players)
	require.NoError(t, q.CheckIntegrity())
}

func TestQueue_BannedJoinLeavesQueueUnchanged(t *testing.T) {
	q, _ := newTestQueue(cfg2x2())
	_, err := q.Join(domain.NewSolo(member("a", 10)))
	require.NoError(t, err)
	before := q.Snapshot().Entries

	until := t0.Add(time.Minute)
	m := member("b", 10)
	m.BannedUntil = &until
	_, err = q.Join(domain.NewSolo(m))
	require.ErrorIs(t, err, domain.ErrNotEligible)

	assert.Equal(t, before, q.Snapshot().Entries)
}

func TestQueue_MixedRegionGroupRejected(t *testing.T) {
	cfg := cfg2x2()
	cfg.RegionMode = domain.RegionMatch
	q, _ := newTestQueue(cfg)

	a, b := member("a", 1), member("b", 1)
	a.Region, b.Region = "eu", "na"
	_, err := q.Join(domain.NewGroup("g", []domain.Member{a, b}))
	assert.ErrorIs(t, err, domain.ErrMixedRegions)
}

func TestQueue_LeaveIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(cfg2x2())
	_, ok := q.Leave("ghost")
	assert.False(t, ok)

	_, err := q.Join(domain.NewGroup("party", []domain.Member{member("a", 1), member("b", 1)}))
	require.NoError(t, err)

	// cualquiera del grupo saca al grupo entero
	e, ok := q.Leave("b")
	require.True(t, ok)
	assert.Equal(t, "party", e.ID)
	assert.False(t, q.Contains("a"))

	_, ok = q.Leave("party")
	assert.False(t, ok)
	require.NoError(t, q.CheckIntegrity())
}

func TestQueue_FormConsumesEntries(t *testing.T) {
	q, clk := newTestQueue(cfg2x2())
	for i, s := range []float64{10, 12, 50, 52, 30} {
		_, err := q.Join(domain.NewSolo(member(fmt.Sprint("p", i), s)))
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	p, ok, err := q.Form()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, p.PlayerIDs(), 4)

	entries, _ := q.Len()
	assert.Equal(t, 1, entries)
	for _, id := range p.PlayerIDs() {
		assert.False(t, q.Contains(id))
	}

	_, ok, err = q.Form()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_ConsumeTwiceIsConsistencyViolation(t *testing.T) {
	q, _ := newTestQueue(cfg2x2())
	for i := 0; i < 4; i++ {
		_, err := q.Join(domain.NewSolo(member(fmt.Sprint("p", i), float64(i))))
		require.NoError(t, err)
	}
	p, ok := AttemptFormation(q.Snapshot(), q.Config())
	require.True(t, ok)

	require.NoError(t, q.Consume(p))
	err := q.Consume(p)
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
	require.NoError(t, q.CheckIntegrity())
}

func TestQueue_ConsumePartialMissingTouchesNothing(t *testing.T) {
	q, _ := newTestQueue(cfg2x2())
	for i := 0; i < 4; i++ {
		_, err := q.Join(domain.NewSolo(member(fmt.Sprint("p", i), float64(i))))
		require.NoError(t, err)
	}
	p, ok := AttemptFormation(q.Snapshot(), q.Config())
	require.True(t, ok)

	_, _ = q.Leave("p0")
	require.ErrorIs(t, q.Consume(p), domain.ErrConsistencyViolation)

	entries, _ := q.Len()
	assert.Equal(t, 3, entries)
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q, clk := newTestQueue(cfg2x2())
	old, err := q.Join(domain.NewSolo(member("old", 1)))
	require.NoError(t, err)
	_, _ = q.Leave("old")

	clk.Advance(time.Minute)
	_, err = q.Join(domain.NewSolo(member("new", 1)))
	require.NoError(t, err)

	n, dropped := q.Requeue([]domain.QueueEntry{old})
	assert.Equal(t, 1, n)
	assert.Empty(t, dropped)
	snap := q.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "old", snap.Entries[0].ID)

	// ya está en cola: no se duplica
	n, dropped = q.Requeue([]domain.QueueEntry{old})
	assert.Equal(t, 0, n)
	assert.Empty(t, dropped)
}

func TestQueue_RequeueChecksConfigAndCapacity(t *testing.T) {
	cfg := cfg2x2()
	cfg.Capacity = 3
	q, clk := newTestQueue(cfg)

	group := domain.NewGroup("g", []domain.Member{member("a", 1), member("b", 1)})
	group.JoinedAt = t0
	clk.Advance(time.Minute)
	_, err := q.Join(domain.NewSolo(member("c", 1)))
	require.NoError(t, err)
	_, err = q.Join(domain.NewSolo(member("d", 1)))
	require.NoError(t, err)

	// el grupo vuelve pero ya no hay lugar: 2 + 2 > 3
	n, dropped := q.Requeue([]domain.QueueEntry{group})
	assert.Equal(t, 0, n)
	require.Len(t, dropped, 1)
	assert.Equal(t, "g", dropped[0].ID)
	assert.False(t, q.Contains("a"))

	// con la cola libre pero equipos de 1, el grupo ya no encaja
	q.Leave("c")
	q.Leave("d")
	small := cfg
	small.TeamSize = 1
	q.SetConfig(small)
	n, dropped = q.Requeue([]domain.QueueEntry{group})
	assert.Equal(t, 0, n)
	require.Len(t, dropped, 1)
	require.NoError(t, q.CheckIntegrity())
	_, players := q.Len()
	assert.Equal(t, 0, players)
}

func TestQueue_SetConfigDropsMisfits(t *testing.T) {
	q, _ := newTestQueue(cfg2x2())
	_, err := q.Join(domain.NewGroup("g", []domain.Member{member("a", 1), member("b", 1)}))
	require.NoError(t, err)

	cfg := cfg2x2()
	cfg.TeamSize = 1
	dropped := q.SetConfig(cfg)
	require.Len(t, dropped, 1)
	assert.False(t, q.Contains("a"))
}

func TestQueue_ConcurrentJoinLeaveNoDuplicates(t *testing.T) {
	cfg := cfg2x2()
	cfg.TeamSize = 5
	q := NewQueue(cfg)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprint("p", (w*7+i)%20)
				if i%3 == 0 {
					q.Leave(id)
					continue
				}
				_, _ = q.Join(domain.NewSolo(member(id, float64(i))))
				if i%10 == 0 {
					_, _, err := q.Form()
					assert.NoError(t, err)
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, q.CheckIntegrity())
}

func TestCheckEntryAndValidateConfig(t *testing.T) {
	cfg := cfg2x2()
	assert.NoError(t, ValidateConfig(cfg))

	bad := cfg
	bad.RoleCombos = []domain.RoleCombo{{"tank": 3}}
	assert.ErrorIs(t, ValidateConfig(bad), domain.ErrValidation)

	bad = cfg
	bad.TeamCount = 1
	assert.Error(t, ValidateConfig(bad))

	bad = cfg
	bad.RegionMode = "galaxy"
	assert.Error(t, ValidateConfig(bad))

	assert.Error(t, CheckEntry(domain.QueueEntry{}, cfg))
}

func TestAssignRoles(t *testing.T) {
	combo := domain.RoleCombo{"tank": 1, "dps": 2, "support": 2}

	roles, ok := assignRoles([]domain.Member{
		member("a", 0, "dps", "tank"),
		member("b", 0, "tank"),
		member("c", 0),
	}, combo)
	require.True(t, ok)
	assert.Equal(t, domain.Role("dps"), roles[0])
	assert.Equal(t, domain.Role("tank"), roles[1])

	_, ok = assignRoles([]domain.Member{member("a", 0, "tank"), member("b", 0, "tank")}, combo)
	assert.False(t, ok)
}
