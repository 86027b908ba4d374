package events

import (
	"context"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type Sink interface {
	Notify(ctx context.Context, e domain.Event)
}

// Multi reparte cada evento a todos los sinks, en orden.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, e domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, e)
		}
	}
}
