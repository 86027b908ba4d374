package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// QueueMirror deja la foto de cada cola en redis para que otros procesos
// (dashboards, el endpoint HTTP de otra réplica) la lean sin hablar con el bot.
// La cola autoritativa sigue en memoria del bot.
type QueueMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQueueMirror(rdb *redis.Client, ttl time.Duration) *QueueMirror {
	return &QueueMirror{rdb: rdb, ttl: ttl}
}

type MirrorEntry struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Players  []string  `json:"players"`
	JoinedAt time.Time `json:"joined_at"`
}

type MirrorSnapshot struct {
	QueueID string        `json:"queue_id"`
	At      time.Time     `json:"at"`
	Players int           `json:"players"`
	Entries []MirrorEntry `json:"entries"`
}

func SnapshotKey(queueID string) string { return "queue:snapshot:" + queueID }
func ChangesChannel(queueID string) string { return "queue:changed:" + queueID }

// SnapshotOf arma la foto serializable de una cola.
func SnapshotOf(queueID string, at time.Time, entries []domain.QueueEntry) MirrorSnapshot {
	snap := MirrorSnapshot{QueueID: queueID, At: at.UTC(), Entries: make([]MirrorEntry, 0, len(entries))}
	for _, e := range entries {
		snap.Players += e.Slots()
		snap.Entries = append(snap.Entries, MirrorEntry{
			ID:       e.ID,
			Kind:     e.Kind.String(),
			Players:  e.PlayerIDs(),
			JoinedAt: e.JoinedAt,
		})
	}
	return snap
}

func (m *QueueMirror) Publish(ctx context.Context, queueID string, entries []domain.QueueEntry) error {
	snap := SnapshotOf(queueID, time.Now(), entries)
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := m.rdb.Set(ctx, SnapshotKey(queueID), string(raw), m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := m.rdb.Publish(ctx, ChangesChannel(queueID), snap.Players).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Read devuelve la última foto publicada; ok=false si no hay (o venció).
func (m *QueueMirror) Read(ctx context.Context, queueID string) (MirrorSnapshot, bool, error) {
	raw, err := m.rdb.Get(ctx, SnapshotKey(queueID)).Bytes()
	if err == redis.Nil {
		return MirrorSnapshot{}, false, nil
	}
	if err != nil {
		return MirrorSnapshot{}, false, err
	}
	var snap MirrorSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return MirrorSnapshot{}, false, err
	}
	return snap, true, nil
}
