package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionFromEnv(t *testing.T) {
	t.Setenv("JANITOR_MATCHES_KEEP", "48h")
	t.Setenv("JANITOR_REPORTS_KEEP", "basura")
	ret := retentionFromEnv()
	assert.Equal(t, 48*time.Hour, ret.Matches)
	assert.Equal(t, 7*24*time.Hour, ret.Reports)
	assert.Equal(t, 30*24*time.Hour, ret.Strikes)
	assert.Equal(t, 30*24*time.Hour, ret.Chat)

	t.Setenv("JANITOR_CHAT_KEEP", "72h")
	assert.Equal(t, 72*time.Hour, retentionFromEnv().Chat)
}

func TestHandlerWithoutDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	out, err := handler(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no DATABASE_URL", out)
}
