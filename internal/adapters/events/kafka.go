// Package events publica los eventos del core hacia afuera (Kafka) y
// reparte cada evento entre varios sinks.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// messageWriter es lo que usamos de *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink encola los eventos y los escribe en background; Notify nunca
// bloquea al core. Si el buffer se llena el evento se descarta y se loguea.
type KafkaSink struct {
	w       messageWriter
	ch      chan kafka.Message
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaSink(w messageWriter, buffer int) *KafkaSink {
	if buffer <= 0 {
		buffer = 256
	}
	k := &KafkaSink{w: w, ch: make(chan kafka.Message, buffer), timeout: 5 * time.Second}
	k.wg.Add(1)
	go k.loop()
	return k
}

func (k *KafkaSink) Notify(_ context.Context, e domain.Event) {
	msg, err := encode(e)
	if err != nil {
		log.Printf("[events] encode %s: %v", e.Kind, err)
		return
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return
	}
	select {
	case k.ch <- msg:
	default:
		log.Printf("[events] ⚠️ buffer lleno, descarto %s (%s)", e.Kind, string(msg.Key))
	}
}

func (k *KafkaSink) loop() {
	defer k.wg.Done()
	for msg := range k.ch {
		ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
		if err := k.w.WriteMessages(ctx, msg); err != nil {
			log.Printf("[events] write %s: %v", string(msg.Key), err)
		}
		cancel()
	}
}

// Close vacía el buffer y cierra el writer.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.ch)
	k.mu.Unlock()

	k.wg.Wait()
	return k.w.Close()
}

// encode: la key es el lobby (o la cola) para que los eventos de un mismo
// lobby queden en la misma partición y en orden.
func encode(e domain.Event) (kafka.Message, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	key := e.LobbyID
	if key == "" {
		key = "queue:" + e.QueueID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: raw,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}, nil
}
