package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaSink_WritesKeyedByLobby(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaSink(w, 8)
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	k.Notify(context.Background(), domain.Event{Kind: domain.EventLobbyFormed, QueueID: "eu", LobbyID: "l-1", At: at})
	k.Notify(context.Background(), domain.Event{Kind: domain.EventQueueChanged, QueueID: "eu", At: at})
	require.NoError(t, k.Close())

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "l-1", string(w.msgs[0].Key))
	assert.Equal(t, "queue:eu", string(w.msgs[1].Key))
	assert.True(t, w.closed)

	var e domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &e))
	assert.Equal(t, domain.EventLobbyFormed, e.Kind)
	assert.Equal(t, "lobby_formed", string(w.msgs[0].Headers[0].Value))
}

func TestKafkaSink_WriteErrorsAreSwallowed(t *testing.T) {
	w := &fakeWriter{fail: true}
	k := NewKafkaSink(w, 1)
	k.Notify(context.Background(), domain.Event{Kind: domain.EventLobbyAlert, LobbyID: "l"})
	assert.NoError(t, k.Close())
	assert.Empty(t, w.msgs)
	// Close es idempotente
	assert.NoError(t, k.Close())
}

type recSink struct{ got []domain.EventKind }

func (r *recSink) Notify(_ context.Context, e domain.Event) { r.got = append(r.got, e.Kind) }

func TestMulti(t *testing.T) {
	a, b := &recSink{}, &recSink{}
	m := Multi{a, nil, b}
	m.Notify(context.Background(), domain.Event{Kind: domain.EventMapChosen})
	assert.Equal(t, []domain.EventKind{domain.EventMapChosen}, a.got)
	assert.Equal(t, []domain.EventKind{domain.EventMapChosen}, b.got)
}
