package discord

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{domain.ErrAlreadyQueued, "⚠️ Ya estás en la cola."},
		{fmt.Errorf("join: %w", domain.ErrBanned), "⚠️ Estás baneado de esta cola."},
		{&domain.ProviderError{Op: "move", Team: -1, Err: errors.New("x")}, "⚠️ Discord no respondió, reintentá en unos segundos."},
		{fmt.Errorf("%w: team_size must be > 0", domain.ErrValidation), "⚠️ Datos inválidos: validation error: team_size must be > 0"},
		{errors.New("db down"), "❌ Ocurrió un error inesperado. Contacta con un administrador."},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, userMessage(c.err))
	}
}
