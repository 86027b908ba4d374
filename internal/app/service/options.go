package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type options struct {
	now             func() time.Time
	spawn           func(func())
	newID           func() string
	metrics         Metrics
	mirror          QueueMirror
	defaults        func(queueID string) domain.QueueConfig
	backoff         time.Duration
	disconnectGrace time.Duration
	banPolicy       lobby.BanPolicy
	balance         matchmaking.BalanceFunc
	afterFunc       func(time.Duration, func()) Timer
	chatLog         ChatLogStore
}

// Timer es lo que los servicios usan de *time.Timer.
type Timer interface {
	Stop() bool
}

// Option configura los servicios. Cada servicio usa sólo lo que le aplica.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		now:             time.Now,
		spawn:           func(f func()) { go f() },
		newID:           uuid.NewString,
		metrics:         nopMetrics{},
		defaults:        domain.DefaultQueueConfig,
		backoff:         500 * time.Millisecond,
		disconnectGrace: 2 * time.Minute,
		banPolicy:       lobby.DefaultBanPolicy(),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithSpawn cambia cómo se lanza el trabajo en segundo plano (los tests lo
// corren en línea).
func WithSpawn(spawn func(func())) Option { return func(o *options) { o.spawn = spawn } }

func WithIDs(newID func() string) Option { return func(o *options) { o.newID = newID } }

func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithMirror(m QueueMirror) Option { return func(o *options) { o.mirror = m } }

// WithDefaults define la config de una cola que todavía no tiene fila en la DB.
func WithDefaults(f func(queueID string) domain.QueueConfig) Option {
	return func(o *options) { o.defaults = f }
}

// WithBackoff es la espera base del backoff exponencial contra el proveedor.
func WithBackoff(d time.Duration) Option { return func(o *options) { o.backoff = d } }

// WithDisconnectGrace: cuánto puede estar desconectado un jugador de un lobby
// antes de marcarlo leaver. 0 desactiva la detección.
func WithDisconnectGrace(d time.Duration) Option {
	return func(o *options) { o.disconnectGrace = d }
}

func WithBanPolicy(p lobby.BanPolicy) Option { return func(o *options) { o.banPolicy = p } }

// WithBalance cambia cómo se puntúa el balance de los equipos (por defecto Spread).
func WithBalance(b matchmaking.BalanceFunc) Option { return func(o *options) { o.balance = b } }

// WithAfterFunc reemplaza time.AfterFunc para deadlines de votación, gracia
// de desconexión y disputas de leaver.
func WithAfterFunc(f func(time.Duration, func()) Timer) Option {
	return func(o *options) { o.afterFunc = f }
}

// WithChatLog guarda el chat de los lobbies de colas con LogChats.
func WithChatLog(c ChatLogStore) Option { return func(o *options) { o.chatLog = c } }
