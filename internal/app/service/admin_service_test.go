package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func TestAdminService_BanKicksFromQueues(t *testing.T) {
	r := newQueueRig(t, cfg2x2())
	ctx := context.Background()
	matches := &memMatches{}
	admin := NewAdminService(r.store, matches, r.queues, r.lobbies, r.events, WithClock(func() time.Time { return t0 }))

	_, err := r.queues.Join(ctx, "q", "b", "")
	require.NoError(t, err)

	_, err = admin.Ban(ctx, "mod", "b", "", 0, "spam")
	assert.ErrorIs(t, err, domain.ErrValidation)

	msg, err := admin.Ban(ctx, "mod", "b", "", 2*time.Hour, "spam")
	require.NoError(t, err)
	assert.Contains(t, msg, "todas las colas")

	snap, _, _ := r.queues.Snapshot(ctx, "q")
	assert.Empty(t, snap.Entries)
	require.Len(t, r.events.of(domain.EventPlayerBanned), 1)

	_, err = r.queues.Join(ctx, "q", "b", "")
	assert.ErrorIs(t, err, domain.ErrBanned)

	list, err := admin.Bans(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, "<@b> (global)")

	msg, err = admin.Unban(ctx, "b", "")
	require.NoError(t, err)
	assert.Contains(t, msg, "desbaneado")
	msg, err = admin.Unban(ctx, "b", "")
	require.NoError(t, err)
	assert.Contains(t, msg, "No había")

	_, err = r.queues.Join(ctx, "q", "b", "")
	assert.NoError(t, err)
}

func TestConfigService_Update(t *testing.T) {
	r := newQueueRig(t, cfg2x2())
	ctx := context.Background()
	svc := NewConfigService(r.configs, r.queues)

	combos := "tank:1,dps:1"
	pool := "dust, inferno ,,mirage"
	msg, err := svc.Update(ctx, "q", ConfigPatch{RoleCombos: &combos, MapPool: &pool})
	require.NoError(t, err)
	assert.Contains(t, msg, "dps:1,tank:1")

	cfg, err := svc.Get(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"dust", "inferno", "mirage"}, cfg.MapPool)
	assert.Equal(t, []domain.RoleCombo{{"tank": 1, "dps": 1}}, cfg.RoleCombos)

	zero := 0
	_, err = svc.Update(ctx, "q", ConfigPatch{TeamSize: &zero})
	assert.ErrorIs(t, err, domain.ErrValidation)

	three := 3
	_, err = svc.Update(ctx, "q", ConfigPatch{TeamSize: &three})
	assert.ErrorIs(t, err, domain.ErrValidation, "el combo de roles tiene 2 lugares")

	bad := "weird"
	_, err = svc.Update(ctx, "q", ConfigPatch{HostMode: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseRoleCombos(t *testing.T) {
	got, err := ParseRoleCombos(" Tank:1, dps:2 ; dps:3 ")
	require.NoError(t, err)
	assert.Equal(t, []domain.RoleCombo{{"tank": 1, "dps": 2}, {"dps": 3}}, got)

	got, err = ParseRoleCombos("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseRoleCombos("tank")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = ParseRoleCombos("tank:x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProfileService_RegisterAndStats(t *testing.T) {
	store := newMemStore()
	svc := NewProfileService(store, rating.NewElo(rating.DefaultK), WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	_, err := svc.Stats(ctx, "z")
	assert.ErrorIs(t, err, domain.ErrNotRegistered)

	msg, err := svc.Register(ctx, "z", "Zoe", " SA ", []domain.Role{"DPS", "dps", "tank"})
	require.NoError(t, err)
	assert.Contains(t, msg, "sa")

	p := store.profile("z")
	assert.Equal(t, []domain.Role{"dps", "tank"}, p.Roles)
	assert.Equal(t, float64(rating.DefaultElo), p.Rating.Mu)

	msg, err = svc.Stats(ctx, "z")
	require.NoError(t, err)
	assert.Contains(t, msg, "Zoe")
	assert.Contains(t, msg, "0W / 0L / 0D")
}

func TestPartyService_InviteRules(t *testing.T) {
	now := t0
	svc := NewPartyService(2, time.Minute, WithClock(func() time.Time { return now }), WithIDs(idSeq("party")))
	ctx := context.Background()

	_, err := svc.Invite(ctx, "a", "a")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Invite(ctx, "a", "b")
	require.NoError(t, err)
	_, err = svc.Invite(ctx, "a", "c")
	assert.ErrorIs(t, err, domain.ErrEntryTooLarge, "tamaño máximo 2")

	_, err = svc.Decline(ctx, "c")
	assert.ErrorIs(t, err, domain.ErrNoInvitePending)

	now = now.Add(2 * time.Minute)
	_, err = svc.Accept(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNoInvitePending, "la invitación venció")

	assert.Equal(t, 1, svc.Expire(now))
	assert.Empty(t, svc.List())
}

func TestPartyService_LeaderSuccession(t *testing.T) {
	svc := NewPartyService(5, time.Minute, WithClock(func() time.Time { return t0 }), WithIDs(idSeq("party")))
	ctx := context.Background()
	for _, p := range []string{"b", "c"} {
		_, err := svc.Invite(ctx, "a", p)
		require.NoError(t, err)
		_, err = svc.Accept(ctx, p)
		require.NoError(t, err)
	}
	var changed []string
	svc.OnChange(func(_ context.Context, player string) { changed = append(changed, player) })

	_, err := svc.Leave(ctx, "a")
	require.NoError(t, err)
	p, ok := svc.Of("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.Leader)
	assert.Equal(t, []string{"b", "c"}, p.Members)
	assert.Equal(t, []string{"a"}, changed)

	_, err = svc.Invite(ctx, "c", "d")
	assert.ErrorIs(t, err, domain.ErrNotPartyLeader)
}
