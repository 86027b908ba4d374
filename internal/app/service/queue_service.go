package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

// Lo implementa LobbyService.
type LobbyStarter interface {
	InLobby(player string) bool
	Create(ctx context.Context, p domain.MatchProposal, cfg domain.QueueConfig) (*lobby.Lobby, error)
}

// QueueService es el registro de colas. Cada matchmaking.Queue serializa sus
// propias operaciones; las lecturas de perfiles y la creación del lobby
// ocurren afuera de ese lock.
type QueueService struct {
	profiles ProfileStore
	configs  QueueConfigRepo
	rating   rating.Function
	lobbies  LobbyStarter
	parties  *PartyService
	notifier Notifier
	opts     options

	mu     sync.RWMutex
	queues map[string]*matchmaking.Queue

	// handoff cubre el paso cola -> lobby: los jugadores de una propuesta ya
	// consumida quedan en pending hasta que start termina.
	handoff sync.Mutex
	pending map[string]bool
}

func NewQueueService(
	profiles ProfileStore,
	configs QueueConfigRepo,
	rf rating.Function,
	lobbies LobbyStarter,
	parties *PartyService,
	notifier Notifier,
	opts ...Option,
) *QueueService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &QueueService{
		profiles: profiles,
		configs:  configs,
		rating:   rf,
		lobbies:  lobbies,
		parties:  parties,
		notifier: notifier,
		opts:     buildOptions(opts),
		queues:   map[string]*matchmaking.Queue{},
		pending:  map[string]bool{},
	}
	if parties != nil {
		parties.OnChange(s.DropEntry)
	}
	return s
}

// Queue devuelve la cola, creándola con la config guardada (o la default).
func (s *QueueService) Queue(ctx context.Context, queueID string) (*matchmaking.Queue, error) {
	s.mu.RLock()
	q := s.queues[queueID]
	s.mu.RUnlock()
	if q != nil {
		return q, nil
	}

	cfg, err := s.configs.Get(ctx, queueID)
	if errors.Is(err, storage.ErrNotFound) {
		cfg, err = s.opts.defaults(queueID), nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.queues[queueID]; q != nil {
		return q, nil
	}
	q = matchmaking.NewQueue(cfg,
		matchmaking.WithClock(s.opts.now),
		matchmaking.WithEngine(matchmaking.Engine{Balance: s.opts.balance}))
	s.queues[queueID] = q
	return q, nil
}

func (s *QueueService) lookup(queueID string) *matchmaking.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queues[queueID]
}

// QueueIDs lista las colas cargadas, ordenadas.
func (s *QueueService) QueueIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.queues))
	for id := range s.queues {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Join encola al jugador (o a su grupo si es el líder) y dispara un intento
// de formación.
func (s *QueueService) Join(ctx context.Context, queueID, playerID, name string) (string, error) {
	q, err := s.Queue(ctx, queueID)
	if err != nil {
		return "", err
	}
	if s.busy(playerID) {
		return "", domain.ErrAlreadyInLobby
	}
	entry, err := s.buildEntry(ctx, q.Config(), playerID, name)
	if err != nil {
		return "", err
	}
	e, err := s.join(q, entry)
	if err != nil {
		return "", err
	}
	log.Printf("[queue] %s join %s (%s, %d)", queueID, e.ID, e.Kind, e.Slots())
	s.changed(ctx, q)
	s.TryForm(ctx, queueID)

	if e.Kind == domain.GroupEntry {
		return fmt.Sprintf("✅ Tu grupo (%d) entró a la cola.", e.Slots()), nil
	}
	return fmt.Sprintf("✅ %s te uniste a la cola.", e.Members[0].Name), nil
}

// join re-chequea pending con handoff tomado: buildEntry hace I/O y una
// formación pudo consumir a alguien del grupo mientras tanto.
func (s *QueueService) join(q *matchmaking.Queue, entry domain.QueueEntry) (domain.QueueEntry, error) {
	s.handoff.Lock()
	defer s.handoff.Unlock()
	for _, id := range entry.PlayerIDs() {
		if s.pending[id] {
			return domain.QueueEntry{}, fmt.Errorf("%w: <@%s>", domain.ErrAlreadyInLobby, id)
		}
	}
	return q.Join(entry)
}

// busy: el jugador está en un lobby o en una propuesta que todavía no llegó a serlo.
func (s *QueueService) busy(playerID string) bool {
	s.handoff.Lock()
	pending := s.pending[playerID]
	s.handoff.Unlock()
	return pending || s.lobbies.InLobby(playerID)
}

func (s *QueueService) form(q *matchmaking.Queue) (domain.MatchProposal, bool, error) {
	s.handoff.Lock()
	defer s.handoff.Unlock()
	p, ok, err := q.Form()
	if ok {
		for _, e := range p.Entries {
			for _, id := range e.PlayerIDs() {
				s.pending[id] = true
			}
		}
	}
	return p, ok, err
}

func (s *QueueService) release(p domain.MatchProposal) {
	s.handoff.Lock()
	defer s.handoff.Unlock()
	for _, e := range p.Entries {
		for _, id := range e.PlayerIDs() {
			delete(s.pending, id)
		}
	}
}

func (s *QueueService) buildEntry(ctx context.Context, cfg domain.QueueConfig, playerID, name string) (domain.QueueEntry, error) {
	ids := []string{playerID}
	groupID := ""
	if s.parties != nil {
		if pt, ok := s.parties.Of(playerID); ok {
			if pt.Leader != playerID {
				return domain.QueueEntry{}, domain.ErrNotPartyLeader
			}
			if pt.PendingInvites(s.opts.now()) > 0 {
				return domain.QueueEntry{}, domain.ErrPendingInvites
			}
			ids, groupID = pt.Members, pt.ID
		}
	}

	now := s.opts.now()
	members := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		if id != playerID && s.busy(id) {
			return domain.QueueEntry{}, fmt.Errorf("%w: <@%s>", domain.ErrAlreadyInLobby, id)
		}
		var (
			p   domain.Profile
			err error
		)
		if id == playerID {
			p, err = ensureProfile(ctx, s.profiles, s.rating, id, name, now)
		} else {
			p, err = s.profiles.GetProfile(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				err = fmt.Errorf("%w: <@%s>", domain.ErrNotRegistered, id)
			}
		}
		if err != nil {
			return domain.QueueEntry{}, err
		}
		members = append(members, p.MemberFor(cfg.ID, s.skill(p), now))
	}

	if groupID == "" || len(members) == 1 {
		return domain.NewSolo(members[0]), nil
	}
	return domain.NewGroup(groupID, members), nil
}

func (s *QueueService) skill(p domain.Profile) float64 {
	r := p.Rating
	if r == (domain.Rating{}) {
		r = s.rating.Default()
	}
	return s.rating.Skill(r)
}

// TryForm forma todos los matches posibles en la cola. Cada propuesta sale de
// la cola de forma atómica y el resto (re-chequeo de bans, lobby) corre aparte.
func (s *QueueService) TryForm(ctx context.Context, queueID string) int {
	q := s.lookup(queueID)
	if q == nil {
		return 0
	}
	formed := 0
	for {
		start := time.Now()
		p, ok, err := s.form(q)
		s.opts.metrics.Formation(queueID, ok, time.Since(start))
		if err != nil {
			log.Printf("[queue] %s formación descartada: %v", queueID, err)
			if ierr := q.CheckIntegrity(); ierr != nil {
				log.Printf("[queue] %s integridad: %v", queueID, ierr)
			}
			return formed
		}
		if !ok {
			return formed
		}
		formed++
		s.changed(ctx, q)
		s.opts.spawn(func() { s.start(q, p) })
	}
}

// FormAll reintenta en todas las colas (MinWait, umbral de balance).
func (s *QueueService) FormAll(ctx context.Context) int {
	n := 0
	for _, id := range s.QueueIDs() {
		n += s.TryForm(ctx, id)
	}
	return n
}

// start re-chequea bans contra el store antes de crear el lobby. Si alguien
// quedó baneado mientras tanto la propuesta se descarta y el resto vuelve a
// la cola con su hora original.
func (s *QueueService) start(q *matchmaking.Queue, p domain.MatchProposal) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cfg := q.Config()
	released := false
	release := func() {
		if !released {
			released = true
			s.release(p)
		}
	}
	defer release()

	banned := s.bannedEntries(ctx, cfg.ID, p.Entries)
	if len(banned) > 0 {
		var keep []domain.QueueEntry
		for _, e := range p.Entries {
			if !banned[e.ID] {
				keep = append(keep, e)
				continue
			}
			s.notifier.Notify(ctx, domain.Event{
				Kind: domain.EventEntryDropped, QueueID: cfg.ID, GuildID: cfg.GuildID,
				At: s.opts.now(), Players: e.PlayerIDs(), Message: "ban",
			})
		}
		n := s.requeue(ctx, q, keep)
		release()
		log.Printf("[queue] %s propuesta descartada: %d entradas baneadas, %d reencoladas", cfg.ID, len(banned), n)
		s.changed(ctx, q)
		s.TryForm(ctx, cfg.ID)
		return
	}

	if _, err := s.lobbies.Create(ctx, p, cfg); err != nil {
		log.Printf("[queue] %s crear lobby: %v", cfg.ID, err)
		var keep []domain.QueueEntry
		for _, e := range p.Entries {
			free := true
			for _, id := range e.PlayerIDs() {
				if s.lobbies.InLobby(id) {
					free = false
				}
			}
			if free {
				keep = append(keep, e)
			}
		}
		s.requeue(ctx, q, keep)
		s.changed(ctx, q)
	}
}

// requeue devuelve entradas a la cola y avisa a las que ya no entran.
func (s *QueueService) requeue(ctx context.Context, q *matchmaking.Queue, entries []domain.QueueEntry) int {
	n, dropped := q.Requeue(entries)
	cfg := q.Config()
	for _, e := range dropped {
		s.notifier.Notify(ctx, domain.Event{
			Kind: domain.EventEntryDropped, QueueID: cfg.ID, GuildID: cfg.GuildID,
			At: s.opts.now(), Players: e.PlayerIDs(), Message: "ya no entra en la cola",
		})
	}
	return n
}

func (s *QueueService) bannedEntries(ctx context.Context, queueID string, entries []domain.QueueEntry) map[string]bool {
	out := map[string]bool{}
	now := s.opts.now()
	for _, e := range entries {
		for _, m := range e.Members {
			p, err := s.profiles.GetProfile(ctx, m.PlayerID)
			if err != nil {
				log.Printf("[queue] re-chequeo %s: %v", m.PlayerID, err)
				continue
			}
			if _, ok := p.BanFor(queueID, now); ok {
				out[e.ID] = true
			}
		}
	}
	return out
}

func (s *QueueService) Leave(ctx context.Context, queueID, playerID string) (string, error) {
	q := s.lookup(queueID)
	if q == nil {
		return "ℹ️ No estabas en la cola.", nil
	}
	e, ok := q.Leave(playerID)
	if !ok {
		return "ℹ️ No estabas en la cola.", nil
	}
	log.Printf("[queue] %s leave %s", queueID, e.ID)
	s.changed(ctx, q)
	if e.Kind == domain.GroupEntry {
		return fmt.Sprintf("✅ Saliste de la cola con tu grupo (%d).", e.Slots()), nil
	}
	return "✅ Saliste de la cola.", nil
}

// Kick saca a un jugador de todas las colas (ban, desconexión). Devuelve las
// colas de las que salió.
func (s *QueueService) Kick(ctx context.Context, playerID string) []string {
	var out []string
	for _, id := range s.QueueIDs() {
		q := s.lookup(id)
		if _, ok := q.Leave(playerID); ok {
			out = append(out, id)
			s.changed(ctx, q)
		}
	}
	return out
}

// DropEntry saca una entrada por id (ej. un grupo que cambió de composición).
func (s *QueueService) DropEntry(ctx context.Context, entryID string) {
	for _, id := range s.QueueIDs() {
		q := s.lookup(id)
		if e, ok := q.Leave(entryID); ok {
			s.changed(ctx, q)
			s.notifier.Notify(ctx, domain.Event{
				Kind: domain.EventEntryDropped, QueueID: id, GuildID: q.Config().GuildID,
				At: s.opts.now(), Players: e.PlayerIDs(), Message: "grupo modificado",
			})
		}
	}
}

// ApplyConfig cambia la config en caliente; las entradas que ya no entran se
// sacan y se avisa.
func (s *QueueService) ApplyConfig(ctx context.Context, cfg domain.QueueConfig) int {
	q, err := s.Queue(ctx, cfg.ID)
	if err != nil {
		log.Printf("[queue] %s aplicar config: %v", cfg.ID, err)
		return 0
	}
	dropped := q.SetConfig(cfg)
	for _, e := range dropped {
		s.notifier.Notify(ctx, domain.Event{
			Kind: domain.EventEntryDropped, QueueID: cfg.ID, GuildID: cfg.GuildID,
			At: s.opts.now(), Players: e.PlayerIDs(), Message: "ya no cumple la config de la cola",
		})
	}
	s.changed(ctx, q)
	s.TryForm(ctx, cfg.ID)
	return len(dropped)
}

func (s *QueueService) Snapshot(ctx context.Context, queueID string) (matchmaking.Snapshot, domain.QueueConfig, error) {
	q, err := s.Queue(ctx, queueID)
	if err != nil {
		return matchmaking.Snapshot{}, domain.QueueConfig{}, err
	}
	return q.Snapshot(), q.Config(), nil
}

func (s *QueueService) Status(ctx context.Context, queueID string) (string, error) {
	snap, cfg, err := s.Snapshot(ctx, queueID)
	if err != nil {
		return "", err
	}
	if len(snap.Entries) == 0 {
		return "ℹ️ La cola está vacía.", nil
	}
	return FormatQueue(snap, cfg), nil
}

// FormatQueue arma el listado de la cola (lo reusa el mensaje fijo de Discord).
func FormatQueue(snap matchmaking.Snapshot, cfg domain.QueueConfig) string {
	players := 0
	for _, e := range snap.Entries {
		players += e.Slots()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Cola actual** (%d/%d)\n", players, cfg.PlayersPerMatch())
	for i, e := range snap.Entries {
		wait := snap.At.Sub(e.JoinedAt).Truncate(time.Second)
		if e.Kind == domain.GroupEntry {
			mentions := make([]string, len(e.Members))
			for k, m := range e.Members {
				mentions[k] = "<@" + m.PlayerID + ">"
			}
			fmt.Fprintf(&b, "%d) 👥 %s · %s\n", i+1, strings.Join(mentions, ", "), wait)
			continue
		}
		m := e.Members[0]
		fmt.Fprintf(&b, "%d) <@%s> — **%s** (%.0f) · %s\n", i+1, m.PlayerID, m.Name, m.Skill, wait)
	}
	return b.String()
}

func (s *QueueService) changed(ctx context.Context, q *matchmaking.Queue) {
	entries, players := q.Len()
	s.opts.metrics.QueueSize(q.ID(), entries, players)
	if s.opts.mirror != nil {
		if err := s.opts.mirror.Publish(ctx, q.ID(), q.Snapshot().Entries); err != nil {
			log.Printf("[queue] mirror %s: %v", q.ID(), err)
		}
	}
	cfg := q.Config()
	s.notifier.Notify(ctx, domain.Event{Kind: domain.EventQueueChanged, QueueID: cfg.ID, GuildID: cfg.GuildID, At: s.opts.now()})
}
