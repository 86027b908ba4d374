package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

const defaultChannelTimeout = 45 * time.Second

// LobbyService maneja el I/O de los lobbies: canales, votación con deadline,
// ratings, strikes y limpieza. La máquina de estados vive en lobby.Lobby;
// acá nunca se llama al proveedor ni al store con un lock tomado.
type LobbyService struct {
	profiles ProfileStore
	bans     BanStore
	matches  MatchStore
	rooms    RoomsStore
	provider ChannelProvider
	notifier Notifier
	rating   rating.Function
	opts     options

	mu       sync.RWMutex
	lobbies  map[string]*lobby.Lobby
	byPlayer map[string]string
	timers   map[string]Timer
	gone     map[string]Timer
	disputes map[string]pendingDispute
	// lobbies con un provision corriendo
	provisioning map[string]bool
	disputeSeq   uint64
}

// pendingDispute es el timer de una marca de leaver en disputa. seq distingue
// el timer vigente de uno viejo para el mismo jugador.
type pendingDispute struct {
	timer Timer
	seq   uint64
}

func NewLobbyService(
	profiles ProfileStore,
	bans BanStore,
	matches MatchStore,
	rooms RoomsStore,
	provider ChannelProvider,
	notifier Notifier,
	rf rating.Function,
	opts ...Option,
) *LobbyService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LobbyService{
		profiles: profiles,
		bans:     bans,
		matches:  matches,
		rooms:    rooms,
		provider: provider,
		notifier: notifier,
		rating:   rf,
		opts:     buildOptions(opts),
		lobbies:  map[string]*lobby.Lobby{},
		byPlayer: map[string]string{},
		timers:   map[string]Timer{},
		gone:     map[string]Timer{},
		disputes: map[string]pendingDispute{},

		provisioning: map[string]bool{},
	}
}

// ---------- registro ----------

// Create registra el lobby y lanza el aprovisionamiento de canales aparte.
// La propuesta ya salió de la cola.
func (s *LobbyService) Create(ctx context.Context, p domain.MatchProposal, cfg domain.QueueConfig) (*lobby.Lobby, error) {
	var recent []string
	if cfg.PreventRecentMaps > 0 {
		r, err := s.matches.RecentMaps(ctx, cfg.ID, cfg.PreventRecentMaps)
		if err != nil {
			log.Printf("[lobby] mapas recientes %s: %v", cfg.ID, err)
		}
		recent = r
	}
	l := lobby.New(s.opts.newID(), p, cfg, recent, s.opts.now)

	s.mu.Lock()
	for _, pid := range l.PlayerIDs() {
		if other, busy := s.byPlayer[pid]; busy {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s already in lobby %s", domain.ErrConsistencyViolation, pid, other)
		}
	}
	s.lobbies[l.ID()] = l
	for _, pid := range l.PlayerIDs() {
		s.byPlayer[pid] = l.ID()
	}
	s.mu.Unlock()

	log.Printf("[lobby] %s formado en %s (balance %.2f)", l.ID(), cfg.ID, p.Score)
	s.opts.metrics.LobbyTransition(cfg.ID, lobby.Forming.String())
	s.notifier.Notify(ctx, s.event(l, domain.EventLobbyFormed))
	s.startProvision(l)
	return l, nil
}

func (s *LobbyService) Get(id string) (*lobby.Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lobbies[id]
	return l, ok
}

func (s *LobbyService) LobbyOf(player string) (*lobby.Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lobbies[s.byPlayer[player]]
	return l, ok
}

func (s *LobbyService) InLobby(player string) bool {
	_, ok := s.LobbyOf(player)
	return ok
}

// ByChannel busca el lobby dueño de un canal (texto, voz o categoría).
func (s *LobbyService) ByChannel(channelID string) (*lobby.Lobby, bool) {
	if channelID == "" {
		return nil, false
	}
	for _, l := range s.all() {
		h := l.Channels()
		if h.TextID == channelID || h.CategoryID == channelID {
			return l, true
		}
		for _, v := range h.TeamVoice {
			if v == channelID {
				return l, true
			}
		}
	}
	return nil, false
}

// Active devuelve una vista de los lobbies vivos, más viejos primero.
func (s *LobbyService) Active() []lobby.View {
	ls := s.all()
	out := make([]lobby.View, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *LobbyService) all() []*lobby.Lobby {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*lobby.Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	return out
}

func (s *LobbyService) lobbyOf(player string) (*lobby.Lobby, error) {
	l, ok := s.LobbyOf(player)
	if !ok {
		return nil, domain.ErrNotInLobby
	}
	return l, nil
}

// unregister libera a los jugadores: desde acá pueden volver a la cola.
func (s *LobbyService) unregister(l *lobby.Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, l.ID())
	for _, pid := range l.PlayerIDs() {
		if s.byPlayer[pid] == l.ID() {
			delete(s.byPlayer, pid)
		}
		if t := s.gone[pid]; t != nil {
			t.Stop()
			delete(s.gone, pid)
		}
		if d, ok := s.disputes[disputeKey(l.ID(), pid)]; ok {
			d.timer.Stop()
			delete(s.disputes, disputeKey(l.ID(), pid))
		}
	}
	if t := s.timers[l.ID()]; t != nil {
		t.Stop()
		delete(s.timers, l.ID())
	}
}

// ---------- canales ----------

func channelTimeout(cfg domain.QueueConfig) time.Duration {
	if cfg.ChannelTimeout > 0 {
		return cfg.ChannelTimeout
	}
	return defaultChannelTimeout
}

func (s *LobbyService) backoff(cfg domain.QueueConfig) retry.Backoff {
	attempts := cfg.ProviderAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := s.opts.backoff
	if base <= 0 {
		base = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

func (s *LobbyService) channelRequest(l *lobby.Lobby) ChannelRequest {
	cfg := l.Config()
	names := make([]string, len(l.Teams()))
	for i := range names {
		names[i] = fmt.Sprintf("Equipo %d", i+1)
	}
	return ChannelRequest{
		LobbyID:   l.ID(),
		GuildID:   cfg.GuildID,
		ParentID:  cfg.CategoryID,
		TeamNames: names,
		Existing:  l.Channels(),
	}
}

// startProvision lanza provision salvo que ya haya uno en curso para el lobby.
func (s *LobbyService) startProvision(l *lobby.Lobby) bool {
	id := l.ID()
	s.mu.Lock()
	if s.provisioning[id] {
		s.mu.Unlock()
		return false
	}
	s.provisioning[id] = true
	s.mu.Unlock()

	s.opts.spawn(func() {
		defer s.endProvision(id)
		s.provision(l)
	})
	return true
}

func (s *LobbyService) endProvision(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.provisioning, id)
}

// provision crea los canales con reintentos. Cada intento manda lo ya creado,
// así el proveedor completa en vez de duplicar. Agotados los intentos el lobby
// queda en Forming con alerta; vencido ChannelTimeout se cancela.
func (s *LobbyService) provision(l *lobby.Lobby) {
	cfg := l.Config()
	ctx, cancel := context.WithTimeout(context.Background(), channelTimeout(cfg))
	defer cancel()

	err := retry.Do(ctx, s.backoff(cfg), func(ctx context.Context) error {
		if l.State() != lobby.Forming {
			return nil
		}
		h, err := s.provider.CreateGameChannels(ctx, s.channelRequest(l))
		l.SetChannels(h)
		if serr := s.rooms.Save(ctx, l.ID(), l.Channels()); serr != nil {
			log.Printf("[lobby] %s guardar canales: %v", l.ID(), serr)
		}
		if err != nil {
			s.opts.metrics.ProviderRetry("create_channels")
			log.Printf("[lobby] %s crear canales: %v", l.ID(), err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if l.State().Terminal() {
		// lo cancelaron mientras se creaban: lo creado tarde también se borra
		s.opts.spawn(func() { s.teardown(l) })
		return
	}
	switch {
	case err == nil:
		s.channelsReady(l)
	case ctx.Err() != nil:
		log.Printf("[lobby] %s timeout creando canales: %v", l.ID(), err)
		_ = s.cancel(context.Background(), l, "timeout creando canales")
	default:
		l.MarkChannelsFailed()
		s.alert(context.Background(), l, fmt.Sprintf("no se pudieron crear los canales: %v", err))
	}
}

func (s *LobbyService) channelsReady(l *lobby.Lobby) {
	st, err := l.ChannelsReady()
	if err != nil {
		log.Printf("[lobby] %s canales listos: %v", l.ID(), err)
		return
	}
	s.opts.metrics.LobbyTransition(l.QueueID(), st.String())

	ctx, cancel := context.WithTimeout(context.Background(), channelTimeout(l.Config()))
	defer cancel()
	h := l.Channels()
	for i, t := range l.Teams() {
		if i < len(h.TeamVoice) {
			s.move(ctx, l, t.PlayerIDs(), h.TeamVoice[i])
		}
	}

	if st == lobby.Voting {
		s.scheduleVote(l)
		e := s.event(l, domain.EventVoteOpened)
		e.Maps = l.View().Candidates
		s.notifier.Notify(ctx, e)
		return
	}
	s.started(ctx, l)
}

func (s *LobbyService) move(ctx context.Context, l *lobby.Lobby, players []string, channelID string) {
	if channelID == "" || len(players) == 0 {
		return
	}
	err := retry.Do(ctx, s.backoff(l.Config()), func(ctx context.Context) error {
		if err := s.provider.MovePlayersToVoice(ctx, l.Config().GuildID, players, channelID); err != nil {
			s.opts.metrics.ProviderRetry("move_players")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.alert(ctx, l, fmt.Sprintf("no se pudo mover jugadores a <#%s>: %v", channelID, err))
	}
}

// RetryProvisioning reintenta los canales de un lobby degradado.
func (s *LobbyService) RetryProvisioning(ctx context.Context, lobbyID string) (string, error) {
	l, ok := s.Get(lobbyID)
	if !ok {
		return "", domain.ErrLobbyNotFound
	}
	if st := l.State(); st != lobby.Forming {
		return "", fmt.Errorf("%w: lobby is %s", domain.ErrInvalidTransition, st)
	}
	if !s.startProvision(l) {
		return "⏳ Ya se están creando los canales de este lobby.", nil
	}
	return "🔁 Reintentando crear los canales del lobby.", nil
}

// teardown devuelve a los jugadores al canal de espera y borra los canales.
// Si el borrado falla la fila de rooms queda para que el sweeper reintente.
func (s *LobbyService) teardown(l *lobby.Lobby) {
	cfg := l.Config()
	ctx, cancel := context.WithTimeout(context.Background(), channelTimeout(cfg))
	defer cancel()

	h := l.Channels()
	if h.Empty() {
		_ = s.rooms.Delete(ctx, l.ID())
		return
	}
	if cfg.LobbyVoiceID != "" {
		s.move(ctx, l, l.PlayerIDs(), cfg.LobbyVoiceID)
	}
	err := retry.Do(ctx, s.backoff(cfg), func(ctx context.Context) error {
		if err := s.provider.TeardownChannels(ctx, h); err != nil {
			s.opts.metrics.ProviderRetry("teardown")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[lobby] %s borrar canales: %v", l.ID(), err)
		return
	}
	if err := s.rooms.Delete(ctx, l.ID()); err != nil {
		log.Printf("[lobby] %s borrar rooms: %v", l.ID(), err)
	}
}

// CleanupOrphans borra canales de lobbies que ya no existen (ej. tras un reinicio).
func (s *LobbyService) CleanupOrphans(ctx context.Context) (int, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, h := range rooms {
		if _, alive := s.Get(id); alive {
			continue
		}
		if err := s.provider.TeardownChannels(ctx, h); err != nil {
			log.Printf("[lobby] huérfano %s: %v", id, err)
			continue
		}
		if err := s.rooms.Delete(ctx, id); err != nil {
			log.Printf("[lobby] huérfano %s rooms: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}

// ---------- votación ----------

func (s *LobbyService) scheduleVote(l *lobby.Lobby) {
	d := l.VoteDeadline().Sub(s.opts.now())
	if d < 0 {
		d = 0
	}
	id, round := l.ID(), l.VoteRound()
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.timers[id]; t != nil {
		t.Stop()
	}
	s.timers[id] = s.opts.afterFunc(d, func() { s.closeVoteRound(context.Background(), id, round) })
}

func (s *LobbyService) stopTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.timers[id]; t != nil {
		t.Stop()
		delete(s.timers, id)
	}
}

// closeVoteRound cierra la ronda round, por deadline o por quórum. Con
// round < 0 cierra la que esté abierta.
func (s *LobbyService) closeVoteRound(ctx context.Context, id string, round int) {
	l, ok := s.Get(id)
	if !ok {
		return
	}
	_, final, err := l.CloseVoteRound(round)
	if err != nil {
		// ya la cerró el otro camino (timer vs quórum) o es un timer viejo
		return
	}
	if !final {
		s.scheduleVote(l)
		e := s.event(l, domain.EventVoteRound)
		e.Maps = l.View().Candidates
		s.notifier.Notify(ctx, e)
		return
	}
	s.stopTimer(id)
	s.opts.metrics.LobbyTransition(l.QueueID(), lobby.InProgress.String())
	s.started(ctx, l)
}

func (s *LobbyService) started(ctx context.Context, l *lobby.Lobby) {
	log.Printf("[lobby] %s en juego, mapa %s", l.ID(), l.Map())
	s.notifier.Notify(ctx, s.event(l, domain.EventMapChosen))
}

func (s *LobbyService) Vote(ctx context.Context, player, mapName string) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	round := l.VoteRound()
	allVoted, err := l.Vote(player, mapName)
	if err != nil {
		return "", err
	}
	if allVoted {
		s.closeVoteRound(ctx, l.ID(), round)
	}
	return fmt.Sprintf("🗳️ Votaste **%s**.", mapName), nil
}

// CloseVoteNow lo usa un admin para no esperar el deadline.
func (s *LobbyService) CloseVoteNow(ctx context.Context, lobbyID string) error {
	l, ok := s.Get(lobbyID)
	if !ok {
		return domain.ErrLobbyNotFound
	}
	if l.State() != lobby.Voting {
		return domain.ErrVotingClosed
	}
	s.closeVoteRound(ctx, lobbyID, -1)
	return nil
}

// PingNonVoters menciona en el lobby a los que todavía no votaron, mapa o
// resultado según el estado.
func (s *LobbyService) PingNonVoters(ctx context.Context, player string) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	missing, err := l.NonVoters()
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return "✅ Ya votaron todos.", nil
	}
	e := s.event(l, domain.EventVoteReminder)
	e.Players = missing
	s.notifier.Notify(ctx, e)
	return fmt.Sprintf("🔔 Avisé a %d jugador(es) que falta su voto.", len(missing)), nil
}

// ---------- hosts / leavers ----------

func (s *LobbyService) VolunteerHost(ctx context.Context, player string) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	before := l.Hosts()
	if err := l.VolunteerHost(player); err != nil {
		return "", err
	}
	if !equalStrings(before, l.Hosts()) {
		s.notifier.Notify(ctx, s.event(l, domain.EventHostChanged))
	}
	return "🎮 Quedaste como host del lobby.", nil
}

// ReportLeaver marca a player como leaver/no-show. reporter tiene que ser
// host, admin o el sistema (desconexión). Con LeaverVerification, la marca
// de un host queda en disputa hasta el deadline.
func (s *LobbyService) ReportLeaver(ctx context.Context, reporter, player string, admin bool) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	if wait := l.Config().LeaverVerification; wait > 0 && !admin && reporter != lobby.SystemReporter {
		return s.proposeLeaver(ctx, l, reporter, player, wait)
	}
	hosts := l.Hosts()
	tooMany, err := l.MarkLeaver(reporter, player, "", admin)
	if err != nil {
		return "", err
	}
	s.stopDispute(l.ID(), player)
	return s.afterMark(ctx, l, reporter, player, hosts, tooMany)
}

func (s *LobbyService) proposeLeaver(ctx context.Context, l *lobby.Lobby, reporter, player string, wait time.Duration) (string, error) {
	deadline := s.opts.now().Add(wait)
	if err := l.ProposeLeaver(reporter, player, false, deadline); err != nil {
		return "", err
	}
	id := l.ID()
	s.mu.Lock()
	s.disputeSeq++
	seq := s.disputeSeq
	s.disputes[disputeKey(id, player)] = pendingDispute{seq: seq, timer: s.opts.afterFunc(wait, func() {
		s.confirmLeaver(context.Background(), id, reporter, player, seq)
	})}
	s.mu.Unlock()
	log.Printf("[lobby] %s %s reportado por %s, esperando %s", id, player, reporter, wait)

	e := s.event(l, domain.EventLeaverPending)
	e.Players = []string{player}
	e.Message = fmt.Sprintf("<t:%d:R>", deadline.Unix())
	s.notifier.Notify(ctx, e)
	return fmt.Sprintf("⏳ <@%s> tiene %s para avisar que sigue; si no, queda marcado.", player, wait), nil
}

// confirmLeaver corre al vencer la disputa. Un timer que ya no es el
// vigente (disputada o re-reportada) no hace nada.
func (s *LobbyService) confirmLeaver(ctx context.Context, id, reporter, player string, seq uint64) {
	key := disputeKey(id, player)
	s.mu.Lock()
	if d, ok := s.disputes[key]; !ok || d.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.disputes, key)
	s.mu.Unlock()

	l, ok := s.Get(id)
	if !ok {
		return
	}
	hosts := l.Hosts()
	tooMany, ok := l.ConfirmLeaver(player)
	if !ok {
		return
	}
	if _, err := s.afterMark(ctx, l, reporter, player, hosts, tooMany); err != nil {
		log.Printf("[lobby] %s confirmar leaver %s: %v", id, player, err)
	}
}

func (s *LobbyService) afterMark(ctx context.Context, l *lobby.Lobby, reporter, player string, hosts []string, tooMany bool) (string, error) {
	kind := l.Leavers()[player]
	log.Printf("[lobby] %s %s marcado %s por %s", l.ID(), player, kind, reporter)

	e := s.event(l, domain.EventLeaverMarked)
	e.Players = []string{player}
	e.Message = string(kind)
	s.notifier.Notify(ctx, e)
	if !equalStrings(hosts, l.Hosts()) {
		s.notifier.Notify(ctx, s.event(l, domain.EventHostChanged))
	}

	if tooMany {
		if err := s.cancel(ctx, l, "demasiados no-shows"); err != nil {
			return "", err
		}
		return fmt.Sprintf("🚩 <@%s> marcado como %s. Lobby cancelado por no-shows.", player, kind), nil
	}
	return fmt.Sprintf("🚩 <@%s> marcado como %s.", player, kind), nil
}

// DisputeLeaver lo usa el jugador reportado para avisar que sigue en el lobby.
func (s *LobbyService) DisputeLeaver(ctx context.Context, player string) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	if err := l.DisputeLeaver(player); err != nil {
		return "", err
	}
	s.stopDispute(l.ID(), player)
	log.Printf("[lobby] %s %s disputó la marca de leaver", l.ID(), player)

	e := s.event(l, domain.EventLeaverDisputed)
	e.Players = []string{player}
	s.notifier.Notify(ctx, e)
	return "✅ Listo, la marca quedó sin efecto.", nil
}

func (s *LobbyService) stopDispute(id, player string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.disputes[disputeKey(id, player)]; ok {
		d.timer.Stop()
		delete(s.disputes, disputeKey(id, player))
	}
}

func disputeKey(lobbyID, player string) string { return lobbyID + "/" + player }

// PlayerDisconnected arranca la gracia de desconexión; si no vuelve a
// tiempo se lo marca como leaver desde el sistema.
func (s *LobbyService) PlayerDisconnected(player string) {
	grace := s.opts.disconnectGrace
	if grace <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[player]
	if !ok {
		return
	}
	if _, pending := s.gone[player]; pending {
		return
	}
	s.gone[player] = s.opts.afterFunc(grace, func() {
		s.mu.Lock()
		delete(s.gone, player)
		s.mu.Unlock()

		l, ok := s.Get(id)
		if !ok || l.State() == lobby.Forming {
			return
		}
		if _, err := s.ReportLeaver(context.Background(), lobby.SystemReporter, player, false); err != nil {
			log.Printf("[lobby] %s desconexión %s: %v", id, player, err)
		}
	})
}

func (s *LobbyService) PlayerReconnected(player string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.gone[player]; t != nil {
		t.Stop()
		delete(s.gone, player)
	}
}

// ---------- resultado ----------

// ReportResult: sólo un host o un admin.
func (s *LobbyService) ReportResult(ctx context.Context, reporter string, o domain.Outcome, admin bool) (string, error) {
	l, err := s.lobbyOf(reporter)
	if err != nil {
		return "", err
	}
	if !admin && !l.IsHost(reporter) {
		return "", domain.ErrNotHost
	}
	return s.finish(ctx, l, o, "cancelado por el host")
}

// SubmitResultVote: cualquier participante vota; al llegar al quórum se
// reporta solo.
func (s *LobbyService) SubmitResultVote(ctx context.Context, player string, o domain.Outcome) (string, error) {
	l, err := s.lobbyOf(player)
	if err != nil {
		return "", err
	}
	if o.Kind == domain.OutcomeCancel {
		return "", fmt.Errorf("%w: cancel is not votable", domain.ErrValidation)
	}
	got, err := l.SubmitResultVote(player, o)
	if err != nil {
		return "", err
	}
	if got != nil {
		return s.finish(ctx, l, *got, "")
	}
	n := 0
	for _, v := range l.ResultVotes() {
		if v == o {
			n++
		}
	}
	return fmt.Sprintf("🗳️ Voto de resultado registrado (%d/%d).", n, l.Config().ResultVotesNeeded()), nil
}

// ForceOutcome es el override de admin por id de lobby.
func (s *LobbyService) ForceOutcome(ctx context.Context, lobbyID string, o domain.Outcome) (string, error) {
	l, ok := s.Get(lobbyID)
	if !ok {
		return "", domain.ErrLobbyNotFound
	}
	return s.finish(ctx, l, o, "cancelado por un admin")
}

// CancelLobby: host o admin, desde cualquier estado no terminal.
func (s *LobbyService) CancelLobby(ctx context.Context, reporter, lobbyID, reason string, admin bool) (string, error) {
	var l *lobby.Lobby
	if lobbyID != "" {
		var ok bool
		if l, ok = s.Get(lobbyID); !ok {
			return "", domain.ErrLobbyNotFound
		}
	} else {
		var err error
		if l, err = s.lobbyOf(reporter); err != nil {
			return "", err
		}
	}
	if !admin && !l.IsHost(reporter) {
		return "", domain.ErrNotHost
	}
	if reason == "" {
		reason = "cancelado"
	}
	if err := s.cancel(ctx, l, reason); err != nil {
		return "", err
	}
	return "🛑 Lobby cancelado: " + reason, nil
}

func (s *LobbyService) finish(ctx context.Context, l *lobby.Lobby, o domain.Outcome, cancelReason string) (string, error) {
	if o.Kind == domain.OutcomeCancel {
		if cancelReason == "" {
			cancelReason = "cancelado"
		}
		if err := s.cancel(ctx, l, cancelReason); err != nil {
			return "", err
		}
		return "🛑 Lobby cancelado.", nil
	}
	return s.resolve(ctx, l, o)
}

func (s *LobbyService) resolve(ctx context.Context, l *lobby.Lobby, o domain.Outcome) (string, error) {
	res, err := l.BeginResolve(o)
	if err != nil {
		return "", err
	}
	s.stopTimer(l.ID())
	s.opts.metrics.LobbyTransition(l.QueueID(), lobby.Resolving.String())

	deltas := s.applyRatings(ctx, res)
	s.penalize(ctx, l, res.Leavers)

	if err := l.Complete(); err != nil {
		return "", err
	}
	s.opts.metrics.LobbyTransition(l.QueueID(), lobby.Completed.String())
	s.opts.metrics.LobbyResolved(l.QueueID(), o.String())
	s.archive(ctx, l)
	s.unregister(l)

	e := s.event(l, domain.EventMatchResolved)
	e.Outcome = o.String()
	e.Deltas = deltas
	s.notifier.Notify(ctx, e)
	log.Printf("[lobby] %s resuelto: %s", l.ID(), o)

	s.opts.spawn(func() { s.teardown(l) })
	return fmt.Sprintf("🏁 Resultado registrado: **%s**.", OutcomeLabel(o)), nil
}

// applyRatings relee el rating autoritativo del store, aplica la función de
// rating sólo a los que no abandonaron y escribe el resultado.
func (s *LobbyService) applyRatings(ctx context.Context, res lobby.Resolution) map[string]float64 {
	teams := make([][]rating.Participant, len(res.Participants))
	for i, ms := range res.Participants {
		for _, m := range ms {
			r := m.Rating
			if p, err := s.profiles.GetProfile(ctx, m.PlayerID); err == nil {
				r = p.Rating
			} else {
				log.Printf("[lobby] perfil %s: %v", m.PlayerID, err)
			}
			if r == (domain.Rating{}) {
				r = s.rating.Default()
			}
			teams[i] = append(teams[i], rating.Participant{PlayerID: m.PlayerID, Rating: r})
		}
	}

	updated := s.rating.Apply(teams, res.Outcome)
	if len(updated) == 0 {
		log.Printf("[lobby] %s sin cambios de rating", res.LobbyID)
		return nil
	}
	for i, team := range teams {
		for _, p := range team {
			if err := s.profiles.UpdateRating(ctx, p.PlayerID, updated[p.PlayerID]); err != nil {
				log.Printf("[lobby] rating %s: %v", p.PlayerID, err)
			}
			if err := s.profiles.RecordResult(ctx, p.PlayerID, res.Outcome.ResultFor(i)); err != nil {
				log.Printf("[lobby] resultado %s: %v", p.PlayerID, err)
			}
		}
	}
	return rating.Deltas(teams, updated)
}

// penalize suma un strike a cada leaver y aplica la política de bans.
func (s *LobbyService) penalize(ctx context.Context, l *lobby.Lobby, leavers map[string]domain.LeaverKind) {
	ids := make([]string, 0, len(leavers))
	for id := range leavers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		now := s.opts.now()
		if err := s.matches.RecordLeaver(ctx, domain.LeaverRecord{PlayerID: id, LobbyID: l.ID(), Kind: leavers[id], At: now}); err != nil {
			log.Printf("[lobby] registrar leaver %s: %v", id, err)
		}
		n, err := s.profiles.IncrementStrike(ctx, id)
		if err != nil {
			log.Printf("[lobby] strike %s: %v", id, err)
			continue
		}
		d := s.opts.banPolicy.BanDuration(n)
		if d <= 0 {
			continue
		}
		ban := domain.Ban{
			PlayerID:  id,
			QueueID:   l.QueueID(),
			Until:     now.Add(d),
			Reason:    fmt.Sprintf("%d strikes", n),
			IssuedBy:  lobby.SystemReporter,
			CreatedAt: now,
		}
		if err := s.bans.SetBan(ctx, ban); err != nil {
			log.Printf("[lobby] ban %s: %v", id, err)
			continue
		}
		log.Printf("[lobby] ban automático %s por %s (%d strikes)", id, d, n)
		e := s.event(l, domain.EventPlayerBanned)
		e.Players = []string{id}
		e.Message = fmt.Sprintf("ban hasta <t:%d:R> (%d strikes)", ban.Until.Unix(), n)
		s.notifier.Notify(ctx, e)
	}
}

func (s *LobbyService) cancel(ctx context.Context, l *lobby.Lobby, reason string) error {
	if err := l.Cancel(reason); err != nil {
		return err
	}
	s.stopTimer(l.ID())
	s.opts.metrics.LobbyTransition(l.QueueID(), lobby.Cancelled.String())
	s.opts.metrics.LobbyResolved(l.QueueID(), string(domain.OutcomeCancel))

	s.penalize(ctx, l, l.Leavers())
	s.archive(ctx, l)
	s.unregister(l)

	e := s.event(l, domain.EventLobbyCancelled)
	e.Message = reason
	s.notifier.Notify(ctx, e)
	log.Printf("[lobby] %s cancelado: %s", l.ID(), reason)

	s.opts.spawn(func() { s.teardown(l) })
	return nil
}

// ---------- chat ----------

// LogChat guarda un mensaje escrito en el canal de texto de un lobby cuya
// cola tiene LogChats. Devuelve si lo guardó.
func (s *LobbyService) LogChat(ctx context.Context, channelID, author, content string) bool {
	if s.opts.chatLog == nil || content == "" {
		return false
	}
	l, ok := s.ByChannel(channelID)
	if !ok || l.Channels().TextID != channelID || !l.Config().LogChats {
		return false
	}
	line := domain.ChatLine{
		LobbyID:  l.ID(),
		QueueID:  l.QueueID(),
		AuthorID: author,
		Content:  content,
		At:       s.opts.now(),
	}
	if err := s.opts.chatLog.Append(ctx, line); err != nil {
		log.Printf("[lobby] %s chat: %v", l.ID(), err)
		return false
	}
	return true
}

// ExpireStale cancela lobbies que quedaron abiertos más de maxAge.
func (s *LobbyService) ExpireStale(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	n := 0
	cutoff := s.opts.now().Add(-maxAge)
	for _, l := range s.all() {
		if l.View().CreatedAt.Before(cutoff) {
			if err := s.cancel(ctx, l, "expirado"); err == nil {
				n++
			}
		}
	}
	return n
}

func (s *LobbyService) archive(ctx context.Context, l *lobby.Lobby) {
	if err := s.matches.Archive(ctx, l.Record()); err != nil {
		log.Printf("[lobby] archivar %s: %v", l.ID(), err)
	}
}

func (s *LobbyService) alert(ctx context.Context, l *lobby.Lobby, msg string) {
	l.AddAlert(msg)
	log.Printf("[lobby] ⚠️ %s: %s", l.ID(), msg)
	e := s.event(l, domain.EventLobbyAlert)
	e.Message = msg
	s.notifier.Notify(ctx, e)
}

func (s *LobbyService) event(l *lobby.Lobby, kind domain.EventKind) domain.Event {
	v := l.View()
	e := domain.Event{
		Kind:      kind,
		QueueID:   v.QueueID,
		GuildID:   l.Config().GuildID,
		LobbyID:   v.ID,
		At:        s.opts.now(),
		Hosts:     v.Hosts,
		Map:       v.Map,
		ChannelID: v.Channels.TextID,

		ResultsChannel: l.Config().ResultsChannel,
	}
	for _, t := range v.Teams {
		e.Teams = append(e.Teams, t.PlayerIDs())
	}
	return e
}

// OutcomeLabel es el texto que ve el usuario.
func OutcomeLabel(o domain.Outcome) string {
	switch o.Kind {
	case domain.OutcomeWin:
		return fmt.Sprintf("gana Equipo %d", o.Winner+1)
	case domain.OutcomeDraw:
		return "empate"
	default:
		return "cancelado"
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
