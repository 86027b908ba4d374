package matchmaking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Queue es el dueño único de una cola: join/leave/formación se serializan
// con mu. Nunca se hace I/O con el lock tomado.
type Queue struct {
	mu      sync.Mutex
	cfg     domain.QueueConfig
	entries []domain.QueueEntry
	// player id -> entry id
	index  map[string]string
	now    func() time.Time
	engine Engine
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithEngine(e Engine) Option {
	return func(q *Queue) { q.engine = e }
}

func NewQueue(cfg domain.QueueConfig, opts ...Option) *Queue {
	q := &Queue{cfg: cfg, index: map[string]string{}, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) ID() string { return q.cfg.ID }

func (q *Queue) Config() domain.QueueConfig {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// SetConfig reemplaza la config; las entradas que ya no encajan quedan
// afuera y se devuelven para poder avisarles.
func (q *Queue) SetConfig(cfg domain.QueueConfig) []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg = cfg
	var dropped []domain.QueueEntry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if CheckEntry(e, cfg) != nil {
			dropped = append(dropped, e)
			q.unindex(e)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return dropped
}

// Join agrega la entrada con el timestamp actual.
func (q *Queue) Join(e domain.QueueEntry) (domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, m := range e.Members {
		if _, ok := q.index[m.PlayerID]; ok {
			return domain.QueueEntry{}, domain.ErrAlreadyQueued
		}
		if m.BannedAt(now) {
			return domain.QueueEntry{}, domain.ErrBanned
		}
	}
	if err := CheckEntry(e, q.cfg); err != nil {
		return domain.QueueEntry{}, err
	}
	if q.cfg.Capacity > 0 && q.playersLocked()+e.Slots() > q.cfg.Capacity {
		return domain.QueueEntry{}, domain.ErrQueueFull
	}

	e.JoinedAt = now
	q.entries = append(q.entries, e)
	for _, m := range e.Members {
		q.index[m.PlayerID] = e.ID
	}
	return e, nil
}

// Leave acepta el id de la entrada o de cualquiera de sus jugadores; salir
// saca al grupo entero. Si no está, devuelve false sin error.
func (q *Queue) Leave(id string) (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entryID := id
	if eid, ok := q.index[id]; ok {
		entryID = eid
	}
	for i, e := range q.entries {
		if e.ID == entryID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.unindex(e)
			return e, true
		}
	}
	return domain.QueueEntry{}, false
}

func (q *Queue) Contains(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[playerID]
	return ok
}

// Snapshot copia las entradas en orden FIFO bajo el lock.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() Snapshot {
	out := make([]domain.QueueEntry, len(q.entries))
	for i, e := range q.entries {
		e.Members = append([]domain.Member(nil), e.Members...)
		out[i] = e
	}
	return Snapshot{QueueID: q.cfg.ID, At: q.now(), Entries: out}
}

// Consume saca atómicamente las entradas de la propuesta. Si alguna ya no
// está (doble consumo) no se toca nada.
func (q *Queue) Consume(p domain.MatchProposal) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumeLocked(p)
}

func (q *Queue) consumeLocked(p domain.MatchProposal) error {
	want := make(map[string]bool, len(p.Entries))
	for _, id := range p.EntryIDs() {
		want[id] = true
	}
	found := 0
	for _, e := range q.entries {
		if want[e.ID] {
			found++
		}
	}
	if found != len(want) {
		return fmt.Errorf("%w: proposal references %d entries, queue has %d of them",
			domain.ErrConsistencyViolation, len(want), found)
	}

	kept := q.entries[:0]
	for _, e := range q.entries {
		if want[e.ID] {
			q.unindex(e)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return nil
}

// Form intenta armar un match y, si lo logra, consume las entradas en la
// misma sección crítica.
func (q *Queue) Form() (domain.MatchProposal, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.engine.Attempt(q.snapshotLocked(), q.cfg)
	if !ok {
		return domain.MatchProposal{}, false, nil
	}
	if err := q.consumeLocked(p); err != nil {
		return domain.MatchProposal{}, false, err
	}
	return p, true, nil
}

// Requeue devuelve entradas conservando su JoinedAt original. Las que tienen
// algún jugador que ya volvió a entrar se ignoran; las que ya no cumplen la
// config o no entran por capacidad se devuelven en dropped.
func (q *Queue) Requeue(entries []domain.QueueEntry) (n int, dropped []domain.QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries = append([]domain.QueueEntry(nil), entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
outer:
	for _, e := range entries {
		for _, m := range e.Members {
			if _, ok := q.index[m.PlayerID]; ok {
				continue outer
			}
		}
		if CheckEntry(e, q.cfg) != nil {
			dropped = append(dropped, e)
			continue
		}
		if q.cfg.Capacity > 0 && q.playersLocked()+e.Slots() > q.cfg.Capacity {
			dropped = append(dropped, e)
			continue
		}
		q.entries = append(q.entries, e)
		for _, m := range e.Members {
			q.index[m.PlayerID] = e.ID
		}
		n++
	}
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].JoinedAt.Before(q.entries[j].JoinedAt)
	})
	return n, dropped
}

// Len devuelve (entradas, jugadores).
func (q *Queue) Len() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), q.playersLocked()
}

// CheckIntegrity verifica que el índice y las entradas coincidan y que
// ningún jugador aparezca dos veces.
func (q *Queue) CheckIntegrity() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := map[string]string{}
	for _, e := range q.entries {
		for _, m := range e.Members {
			if prev, dup := seen[m.PlayerID]; dup {
				return fmt.Errorf("%w: player %s in entries %s and %s",
					domain.ErrConsistencyViolation, m.PlayerID, prev, e.ID)
			}
			seen[m.PlayerID] = e.ID
			if q.index[m.PlayerID] != e.ID {
				return fmt.Errorf("%w: index out of sync for %s", domain.ErrConsistencyViolation, m.PlayerID)
			}
		}
	}
	if len(seen) != len(q.index) {
		return fmt.Errorf("%w: index has %d players, entries %d",
			domain.ErrConsistencyViolation, len(q.index), len(seen))
	}
	return nil
}

func (q *Queue) playersLocked() int { return countPlayers(q.entries) }

func (q *Queue) unindex(e domain.QueueEntry) {
	for _, m := range e.Members {
		if q.index[m.PlayerID] == e.ID {
			delete(q.index, m.PlayerID)
		}
	}
}
