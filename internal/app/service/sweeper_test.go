package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func TestSweeper_FormsAfterMinWaitAndExpiresLobbies(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	cfg := cfg2x2()
	cfg.MinWait = time.Minute
	r := newQueueRig(t, cfg, WithClock(clock))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := r.queues.Join(ctx, "q", id, "")
		require.NoError(t, err)
	}
	assert.False(t, r.lobbies.InLobby("a"), "todavía no pasó MinWait")

	sw, err := NewSweeper(SweeperConfig{StaleAge: time.Hour}, r.queues, r.lobbies, r.parties, r.store)
	require.NoError(t, err)
	sw.now = clock

	sw.FormAll(ctx)
	assert.Empty(t, r.lobbies.Active())

	now = t0.Add(2 * time.Minute)
	sw.FormAll(ctx)
	require.Len(t, r.lobbies.Active(), 1)
	assert.True(t, r.lobbies.InLobby("a"))
	snap, _, err := r.queues.Snapshot(ctx, "q")
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)

	sw.ExpireLobbies(ctx)
	assert.Len(t, r.lobbies.Active(), 1, "recién creado")

	now = now.Add(2 * time.Hour)
	sw.ExpireLobbies(ctx)
	assert.Empty(t, r.lobbies.Active())
	assert.False(t, r.lobbies.InLobby("a"))
	cancelled := r.events.of(domain.EventLobbyCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "expirado", cancelled[0].Message)
}

func TestSweeper_DefaultsWhenEmpty(t *testing.T) {
	r := newQueueRig(t, cfg2x2())
	sw, err := NewSweeper(SweeperConfig{}, r.queues, r.lobbies, r.parties, r.store)
	require.NoError(t, err)
	assert.Equal(t, DefaultSweeperConfig(), sw.cfg)
}
