package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type lobbyRig struct {
	svc     *LobbyService
	store   *memStore
	matches *memMatches
	rooms   *memRooms
	prov    *fakeProvider
	events  *recorder
}

func newLobbyRig(t *testing.T, opts ...Option) *lobbyRig {
	t.Helper()
	r := &lobbyRig{
		store:   newMemStore(profile("p0", 1300), profile("p1", 1100), profile("p2", 1250), profile("p3", 1150)),
		matches: &memMatches{},
		rooms:   newMemRooms(),
		prov:    newFakeProvider(),
		events:  &recorder{},
	}
	base := []Option{
		WithClock(func() time.Time { return t0 }),
		WithSpawn(inline),
		WithIDs(idSeq("lobby")),
		WithBackoff(time.Millisecond),
		WithDisconnectGrace(0),
	}
	r.svc = NewLobbyService(r.store, r.store, r.matches, r.rooms, r.prov, r.events, rating.NewElo(rating.DefaultK), append(base, opts...)...)
	return r
}

func (r *lobbyRig) create(t *testing.T, cfg domain.QueueConfig) *lobby.Lobby {
	t.Helper()
	l, err := r.svc.Create(context.Background(), proposal2x2(1300, 1100, 1250, 1150), cfg)
	require.NoError(t, err)
	return l
}

func TestLobbyService_ProviderFailsTwiceThenSucceeds(t *testing.T) {
	r := newLobbyRig(t)
	r.prov.failCreate = 2
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 2
	cfg.VoteTime = time.Hour

	l := r.create(t, cfg)

	assert.Equal(t, lobby.Voting, l.State())
	assert.Equal(t, 3, r.prov.calls)
	assert.Equal(t, 1, r.prov.categories, "la categoría no se duplica")
	assert.Equal(t, 2, r.prov.voices, "un canal de voz por equipo")
	assert.Equal(t, domain.ChannelHandles{GuildID: "g", CategoryID: "cat-1", TeamVoice: []string{"voice-1", "voice-2"}}, r.rooms.rooms[l.ID()])
	assert.ElementsMatch(t, []string{"p0", "p1"}, r.prov.moves["voice-1"])
	assert.ElementsMatch(t, []string{"p2", "p3"}, r.prov.moves["voice-2"])

	opened := r.events.of(domain.EventVoteOpened)
	require.Len(t, opened, 1)
	assert.Len(t, opened[0].Maps, 2)
	assert.Empty(t, r.events.of(domain.EventLobbyAlert))
}

func TestLobbyService_ProviderExhaustedKeepsLobbyForming(t *testing.T) {
	r := newLobbyRig(t)
	r.prov.setFailAlways(true)
	cfg := cfg2x2()
	cfg.ProviderAttempts = 2

	l := r.create(t, cfg)

	assert.Equal(t, lobby.Forming, l.State())
	assert.Equal(t, 2, r.prov.calls)
	assert.Equal(t, []lobby.ChannelStatus{lobby.ChannelReady, lobby.ChannelFailed}, l.View().ChannelStatus)
	require.Len(t, r.events.of(domain.EventLobbyAlert), 1)
	assert.True(t, r.svc.InLobby("p0"))

	r.prov.setFailAlways(false)
	_, err := r.svc.RetryProvisioning(context.Background(), l.ID())
	require.NoError(t, err)
	assert.Equal(t, lobby.InProgress, l.State(), "sin mapas no hay votación")
	assert.Equal(t, 1, r.prov.categories)
	assert.Equal(t, 2, r.prov.voices)
	assert.Len(t, r.events.of(domain.EventMapChosen), 1)
}

func TestLobbyService_ChannelTimeoutCancels(t *testing.T) {
	r := newLobbyRig(t, WithBackoff(5*time.Millisecond))
	r.prov.setFailAlways(true)
	cfg := cfg2x2()
	cfg.ProviderAttempts = 1000
	cfg.ChannelTimeout = 30 * time.Millisecond

	l := r.create(t, cfg)

	assert.Equal(t, lobby.Cancelled, l.State())
	assert.False(t, r.svc.InLobby("p0"))
	cancelled := r.events.of(domain.EventLobbyCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "timeout creando canales", cancelled[0].Message)
	require.Len(t, r.prov.torndown, 1, "lo creado a medias se borra")
	assert.Equal(t, "cat-1", r.prov.torndown[0].CategoryID)
	assert.Len(t, r.matches.archived, 1)
}

func TestLobbyService_LeaverGetsStrikeAndNoRatingChange(t *testing.T) {
	r := newLobbyRig(t)
	l := r.create(t, cfg2x2())
	require.Equal(t, lobby.InProgress, l.State())
	require.Equal(t, []string{"p0"}, l.Hosts())
	ctx := context.Background()

	_, err := r.svc.ReportLeaver(ctx, "p3", "p1", false)
	assert.ErrorIs(t, err, domain.ErrNotHost)

	_, err = r.svc.ReportLeaver(ctx, "p0", "p1", false)
	require.NoError(t, err)

	_, err = r.svc.ReportResult(ctx, "p2", domain.Win(0), false)
	assert.ErrorIs(t, err, domain.ErrNotHost)

	msg, err := r.svc.ReportResult(ctx, "p0", domain.Win(0), false)
	require.NoError(t, err)
	assert.Contains(t, msg, "gana Equipo 1")
	assert.Equal(t, lobby.Completed, l.State())

	leaver := r.store.profile("p1")
	assert.Equal(t, 1100.0, leaver.Rating.Mu)
	assert.Equal(t, 1, leaver.Strikes)
	assert.Empty(t, r.store.results["p1"])

	assert.Greater(t, r.store.profile("p0").Rating.Mu, 1300.0)
	assert.Less(t, r.store.profile("p2").Rating.Mu, 1250.0)
	assert.Less(t, r.store.profile("p3").Rating.Mu, 1150.0)
	assert.Equal(t, []domain.PlayerResult{domain.ResultWin}, r.store.results["p0"])

	require.Len(t, r.matches.leavers, 1)
	assert.Equal(t, domain.KindLeaver, r.matches.leavers[0].Kind)
	require.Len(t, r.matches.archived, 1)
	assert.Equal(t, []string{"p1"}, r.matches.archived[0].Leavers)

	resolved := r.events.of(domain.EventMatchResolved)
	require.Len(t, resolved, 1)
	assert.NotContains(t, resolved[0].Deltas, "p1")
	assert.Contains(t, resolved[0].Deltas, "p0")
	assert.Empty(t, r.events.of(domain.EventPlayerBanned), "un strike no alcanza para ban")

	assert.False(t, r.svc.InLobby("p0"))
	assert.Len(t, r.prov.torndown, 1)
	_, saved := r.rooms.rooms[l.ID()]
	assert.False(t, saved)
}

func TestLobbyService_TooManyNoShowsCancelsAndBans(t *testing.T) {
	r := newLobbyRig(t, WithBanPolicy(lobby.BanPolicyFunc(func(int) time.Duration { return time.Hour })))
	r.prov.setFailAlways(true)
	cfg := cfg2x2()
	cfg.ProviderAttempts = 1
	l := r.create(t, cfg)
	require.Equal(t, lobby.Forming, l.State())
	ctx := context.Background()

	_, err := r.svc.ReportLeaver(ctx, "p0", "p1", false)
	require.NoError(t, err)
	assert.Equal(t, lobby.Forming, l.State())

	msg, err := r.svc.ReportLeaver(ctx, "admin", "p2", true)
	require.NoError(t, err)
	assert.Contains(t, msg, "cancelado")
	assert.Equal(t, lobby.Cancelled, l.State())

	assert.Equal(t, 1, r.store.profile("p1").Strikes)
	assert.Equal(t, 1, r.store.profile("p2").Strikes)
	assert.Equal(t, 1300.0, r.store.profile("p0").Rating.Mu, "cancelado no toca ratings")

	bans, _ := r.store.ListBans(ctx, t0)
	require.Len(t, bans, 2)
	for _, b := range bans {
		assert.Equal(t, "q", b.QueueID)
		assert.Equal(t, t0.Add(time.Hour), b.Until)
		assert.Equal(t, lobby.SystemReporter, b.IssuedBy)
	}
	assert.Len(t, r.events.of(domain.EventPlayerBanned), 2)
	for _, rec := range r.matches.leavers {
		assert.Equal(t, domain.KindNoShow, rec.Kind)
	}
}

func TestLobbyService_ResultVoteQuorum(t *testing.T) {
	r := newLobbyRig(t)
	l := r.create(t, cfg2x2())
	ctx := context.Background()

	_, err := r.svc.SubmitResultVote(ctx, "p0", domain.Outcome{Kind: domain.OutcomeCancel})
	assert.ErrorIs(t, err, domain.ErrValidation)

	msg, err := r.svc.SubmitResultVote(ctx, "p0", domain.Win(1))
	require.NoError(t, err)
	assert.Contains(t, msg, "(1/3)")
	_, err = r.svc.SubmitResultVote(ctx, "p1", domain.Win(1))
	require.NoError(t, err)
	assert.Equal(t, lobby.InProgress, l.State())

	_, err = r.svc.SubmitResultVote(ctx, "p2", domain.Win(1))
	require.NoError(t, err)
	assert.Equal(t, lobby.Completed, l.State())
	require.Len(t, r.matches.archived, 1)
	assert.Equal(t, domain.Win(1), r.matches.archived[0].Outcome)

	_, err = r.svc.SubmitResultVote(ctx, "p3", domain.Win(1))
	assert.ErrorIs(t, err, domain.ErrNotInLobby)
}

func TestLobbyService_MapVoteClosesWhenEveryoneVoted(t *testing.T) {
	r := newLobbyRig(t)
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 3
	cfg.VoteTime = time.Hour
	l := r.create(t, cfg)
	require.Equal(t, lobby.Voting, l.State())
	ctx := context.Background()

	_, err := r.svc.Vote(ctx, "p0", "nuke")
	assert.ErrorIs(t, err, domain.ErrUnknownMap)

	for _, p := range []string{"p0", "p1", "p2", "p3"} {
		_, err := r.svc.Vote(ctx, p, "inferno")
		require.NoError(t, err)
	}
	assert.Equal(t, lobby.InProgress, l.State())
	assert.Equal(t, "inferno", l.Map())
	chosen := r.events.of(domain.EventMapChosen)
	require.Len(t, chosen, 1)
	assert.Equal(t, "inferno", chosen[0].Map)

	_, err = r.svc.Vote(ctx, "p0", "dust")
	assert.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestLobbyService_DisconnectGrace(t *testing.T) {
	r := newLobbyRig(t, WithDisconnectGrace(10*time.Millisecond))
	l := r.create(t, cfg2x2())
	require.Equal(t, lobby.InProgress, l.State())

	r.svc.PlayerDisconnected("p2")
	r.svc.PlayerReconnected("p2")
	r.svc.PlayerDisconnected("p3")

	assert.Eventually(t, func() bool {
		_, gone := l.Leavers()["p3"]
		return gone
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, gone := l.Leavers()["p2"]
	assert.False(t, gone, "volvió dentro de la gracia")
}

func TestLobbyService_CancelAndOrphans(t *testing.T) {
	r := newLobbyRig(t)
	l := r.create(t, cfg2x2())
	ctx := context.Background()

	_, err := r.svc.CancelLobby(ctx, "p1", "", "me voy", false)
	assert.ErrorIs(t, err, domain.ErrNotHost)
	_, err = r.svc.CancelLobby(ctx, "p0", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, lobby.Cancelled, l.State())

	_, err = r.svc.ForceOutcome(ctx, l.ID(), domain.Win(0))
	assert.ErrorIs(t, err, domain.ErrLobbyNotFound)

	// fila de un lobby que ya no existe (p. ej. tras un reinicio)
	require.NoError(t, r.rooms.Save(ctx, "old", domain.ChannelHandles{CategoryID: "stale"}))
	n, err := r.svc.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, r.rooms.rooms)
}

func TestLobbyService_RejectsPlayerInTwoLobbies(t *testing.T) {
	r := newLobbyRig(t)
	r.create(t, cfg2x2())
	_, err := r.svc.Create(context.Background(), proposal2x2(1, 2, 3, 4), cfg2x2())
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
}

func TestLobbyService_RetryWhileProvisioningIsRejected(t *testing.T) {
	d := &deferredSpawn{}
	r := newLobbyRig(t, WithSpawn(d.spawn))
	l := r.create(t, cfg2x2())
	require.Equal(t, lobby.Forming, l.State())

	msg, err := r.svc.RetryProvisioning(context.Background(), l.ID())
	require.NoError(t, err)
	assert.Contains(t, msg, "Ya se están creando")

	d.drain()
	assert.Equal(t, lobby.InProgress, l.State())
	assert.Equal(t, 1, r.prov.calls)
	assert.Equal(t, 1, r.prov.categories)
}

func TestLobbyService_RetryDuringSlowProviderCreatesOnce(t *testing.T) {
	r := newLobbyRig(t, WithSpawn(func(f func()) { go f() }))
	r.prov.entered = make(chan struct{}, 4)
	r.prov.release = make(chan struct{})
	l := r.create(t, cfg2x2())

	select {
	case <-r.prov.entered:
	case <-time.After(time.Second):
		t.Fatal("el proveedor nunca fue llamado")
	}
	msg, err := r.svc.RetryProvisioning(context.Background(), l.ID())
	require.NoError(t, err)
	assert.Contains(t, msg, "Ya se están creando")
	close(r.prov.release)

	assert.Eventually(t, func() bool { return l.State() == lobby.InProgress }, time.Second, 5*time.Millisecond)
	calls, categories := r.prov.stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, categories)
}

func TestLobbyService_VoteDeadlineClosesWithPartialVotes(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 3
	cfg.VoteTime = time.Minute
	l := r.create(t, cfg)
	require.Equal(t, lobby.Voting, l.State())
	ctx := context.Background()

	timers := ft.pending()
	require.Len(t, timers, 1)
	assert.Equal(t, time.Minute, timers[0].d)

	for _, p := range []string{"p0", "p1"} {
		_, err := r.svc.Vote(ctx, p, "mirage")
		require.NoError(t, err)
	}
	assert.Equal(t, lobby.Voting, l.State(), "faltan votos y no venció")

	ft.fire(timers[0])
	assert.Equal(t, lobby.InProgress, l.State())
	assert.Equal(t, "mirage", l.Map())
	chosen := r.events.of(domain.EventMapChosen)
	require.Len(t, chosen, 1)
	assert.Equal(t, "mirage", chosen[0].Map)
}

func TestLobbyService_VoteDeadlineOpensNextRound(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 3
	cfg.VoteRounds = []int{2}
	cfg.VoteTime = time.Minute
	l := r.create(t, cfg)
	ctx := context.Background()

	_, err := r.svc.Vote(ctx, "p0", "dust")
	require.NoError(t, err)
	first := ft.pending()
	require.Len(t, first, 1)
	ft.fire(first[0])

	assert.Equal(t, lobby.Voting, l.State())
	assert.Equal(t, 1, l.VoteRound())
	rounds := r.events.of(domain.EventVoteRound)
	require.Len(t, rounds, 1)
	assert.Len(t, rounds[0].Maps, 2)
	assert.Contains(t, rounds[0].Maps, "dust")

	second := ft.pending()
	require.Len(t, second, 1, "la ronda nueva tiene su propio deadline")
	assert.Equal(t, time.Minute, second[0].d)

	ft.fire(second[0])
	assert.Equal(t, lobby.InProgress, l.State())
	assert.Contains(t, rounds[0].Maps, l.Map())
	assert.Len(t, r.events.of(domain.EventMapChosen), 1)
}

func TestLobbyService_StaleVoteTimerDoesNotCloseNextRound(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 3
	cfg.VoteRounds = []int{2}
	cfg.VoteTime = time.Minute
	l := r.create(t, cfg)
	ctx := context.Background()

	stale := ft.pending()
	require.Len(t, stale, 1)

	// el quórum cierra la ronda 0 antes del deadline
	for _, p := range []string{"p0", "p1", "p2", "p3"} {
		_, err := r.svc.Vote(ctx, p, "inferno")
		require.NoError(t, err)
	}
	require.Equal(t, 1, l.VoteRound())

	// el AfterFunc de la ronda 0 ya había disparado cuando llegó el Stop
	ft.fire(stale[0])
	assert.Equal(t, lobby.Voting, l.State())
	assert.Equal(t, 1, l.VoteRound())
	assert.Len(t, r.events.of(domain.EventVoteRound), 1)
	assert.Empty(t, r.events.of(domain.EventMapChosen))
}

func TestLobbyService_LeaverDisputeWindow(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.LeaverVerification = 30 * time.Second
	l := r.create(t, cfg)
	require.Equal(t, []string{"p0"}, l.Hosts())
	ctx := context.Background()

	msg, err := r.svc.ReportLeaver(ctx, "p0", "p1", false)
	require.NoError(t, err)
	assert.Contains(t, msg, "<@p1>")
	assert.Empty(t, l.Leavers())
	pending := r.events.of(domain.EventLeaverPending)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"p1"}, pending[0].Players)
	assert.Equal(t, fmt.Sprintf("<t:%d:R>", t0.Add(30*time.Second).Unix()), pending[0].Message)
	first := ft.pending()
	require.Len(t, first, 1)
	assert.Equal(t, 30*time.Second, first[0].d)

	_, err = r.svc.ReportLeaver(ctx, "p0", "p1", false)
	assert.ErrorIs(t, err, domain.ErrAlreadyMarked)
	_, err = r.svc.DisputeLeaver(ctx, "p2")
	assert.ErrorIs(t, err, domain.ErrNoPendingMark)

	_, err = r.svc.DisputeLeaver(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, ft.pending())
	require.Len(t, r.events.of(domain.EventLeaverDisputed), 1)

	// lo vuelven a reportar y esta vez no contesta
	_, err = r.svc.ReportLeaver(ctx, "p0", "p1", false)
	require.NoError(t, err)
	second := ft.pending()
	require.Len(t, second, 1)

	ft.fire(first[0])
	assert.Empty(t, l.Leavers(), "el timer de la primera marca no confirma la segunda")

	ft.fire(second[0])
	assert.Equal(t, domain.KindLeaver, l.Leavers()["p1"])
	require.Len(t, r.events.of(domain.EventLeaverMarked), 1)

	_, err = r.svc.ReportResult(ctx, "p0", domain.Win(0), false)
	require.NoError(t, err)
	assert.Equal(t, 1, r.store.profile("p1").Strikes)
	assert.Zero(t, r.store.profile("p2").Strikes)
}

func TestLobbyService_AdminMarkSkipsDispute(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.LeaverVerification = 30 * time.Second
	l := r.create(t, cfg)

	_, err := r.svc.ReportLeaver(context.Background(), "admin", "p3", true)
	require.NoError(t, err)
	assert.Equal(t, domain.KindLeaver, l.Leavers()["p3"])
	assert.Empty(t, ft.pending())
	assert.Empty(t, r.events.of(domain.EventLeaverPending))
}

func TestLobbyService_PingNonVoters(t *testing.T) {
	ft := &fakeTimers{}
	r := newLobbyRig(t, WithAfterFunc(ft.afterFunc))
	cfg := cfg2x2()
	cfg.MapPool = []string{"dust", "inferno", "mirage"}
	cfg.VoteSize = 3
	cfg.VoteTime = time.Minute
	r.create(t, cfg)
	ctx := context.Background()

	_, err := r.svc.PingNonVoters(ctx, "stranger")
	assert.ErrorIs(t, err, domain.ErrNotInLobby)

	_, err = r.svc.Vote(ctx, "p1", "dust")
	require.NoError(t, err)
	msg, err := r.svc.PingNonVoters(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, msg, "3")
	reminders := r.events.of(domain.EventVoteReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, []string{"p0", "p2", "p3"}, reminders[0].Players)

	for _, p := range []string{"p0", "p2", "p3"} {
		_, err := r.svc.Vote(ctx, p, "dust")
		require.NoError(t, err)
	}
	// ya en juego: ahora faltan los votos de resultado
	_, err = r.svc.SubmitResultVote(ctx, "p0", domain.Win(0))
	require.NoError(t, err)
	_, err = r.svc.PingNonVoters(ctx, "p0")
	require.NoError(t, err)
	reminders = r.events.of(domain.EventVoteReminder)
	require.Len(t, reminders, 2)
	assert.Equal(t, []string{"p1", "p2", "p3"}, reminders[1].Players)
}

func TestLobbyService_LogChat(t *testing.T) {
	chat := &memChat{}
	r := newLobbyRig(t, WithChatLog(chat))
	cfg := cfg2x2()
	cfg.LogChats = true
	l := r.create(t, cfg)
	text := "txt"
	l.SetChannels(domain.ChannelHandles{TextID: text})
	ctx := context.Background()

	assert.True(t, r.svc.LogChat(ctx, text, "p0", "gg"))
	assert.False(t, r.svc.LogChat(ctx, text, "p0", ""), "vacío no se guarda")
	assert.False(t, r.svc.LogChat(ctx, "otro-canal", "p0", "hola"))
	assert.False(t, r.svc.LogChat(ctx, l.Channels().TeamVoice[0], "p0", "hola"), "sólo el canal de texto")

	lines, err := chat.ChatLog(ctx, l.ID(), 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.ChatLine{LobbyID: l.ID(), QueueID: "q", AuthorID: "p0", Content: "gg", At: t0}, lines[0])

	admin := NewAdminService(r.store, r.matches, nil, r.svc, r.events, WithChatLog(chat))
	out, err := admin.ChatLog(ctx, l.ID(), 0)
	require.NoError(t, err)
	assert.Contains(t, out, "<@p0>: gg")
	out, err = admin.ChatLog(ctx, "nada", 0)
	require.NoError(t, err)
	assert.Contains(t, out, "No hay chat")
}

func TestLobbyService_LogChatOffForQueue(t *testing.T) {
	chat := &memChat{}
	r := newLobbyRig(t, WithChatLog(chat))
	cfg := cfg2x2()
	cfg.LogChats = false
	l := r.create(t, cfg)
	l.SetChannels(domain.ChannelHandles{TextID: "txt"})

	assert.False(t, r.svc.LogChat(context.Background(), "txt", "p0", "gg"))
	assert.Empty(t, chat.lines)
}
