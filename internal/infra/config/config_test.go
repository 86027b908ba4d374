package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":      "postgres://x",
		"DISCORD_BOT_TOKEN": "tok",
		"DISCORD_GUILD_ID":  "g1",
		"ADMIN_ROLE_IDS":    "r1, r2,,",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
	}
	cfg, missing := load(func(k string) string { return env[k] })
	require.Empty(t, missing)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "g1", cfg.DefaultQueue)
	assert.Equal(t, []string{"r1", "r2"}, cfg.AdminRoleIDs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "lobby-events", cfg.KafkaTopic)
	assert.Empty(t, cfg.RedisAddr)

	delete(env, "DISCORD_BOT_TOKEN")
	_, missing = load(func(k string) string { return env[k] })
	assert.Equal(t, "DISCORD_BOT_TOKEN", missing)
}

func TestLoadTuningDefaults(t *testing.T) {
	tn, err := LoadTuning("")
	require.NoError(t, err)
	assert.Equal(t, "openskill", tn.Rating.Model)
	assert.Equal(t, 2, tn.Strikes.Threshold)
	assert.Equal(t, 30*time.Minute, tn.Strikes.Base)
	assert.Equal(t, 5*time.Minute, tn.Party.InviteTTL)
	assert.Equal(t, 5, tn.Queue.TeamSize)
}

func TestLoadTuningFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rating:
  model: elo
  elo_k: 24
queue:
  team_size: 3
  map_pool: [dust, mirage, inferno]
sweeper:
  form_every: 2s
`), 0o600))
	t.Setenv("MM_PARTY_MAX_SIZE", "3")

	tn, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, "elo", tn.Rating.Model)
	assert.Equal(t, 24.0, tn.Rating.EloK)
	assert.Equal(t, 3, tn.Queue.TeamSize)
	assert.Equal(t, []string{"dust", "mirage", "inferno"}, tn.Queue.MapPool)
	assert.Equal(t, 2*time.Second, tn.Sweeper.FormEvery)
	assert.Equal(t, 3, tn.Party.MaxSize)
}

func TestLoadTuningRejectsUnknownModel(t *testing.T) {
	t.Setenv("MM_RATING_MODEL", "glicko")
	_, err := LoadTuning("")
	assert.Error(t, err)
}

func TestLoadTuningRejectsUnknownBalance(t *testing.T) {
	t.Setenv("MM_QUEUE_BALANCE", "random")
	_, err := LoadTuning("")
	assert.Error(t, err)
}

func TestQueueDefaultsConfig(t *testing.T) {
	q := QueueDefaults{TeamCount: 3, TeamSize: 2, MapPool: []string{"a"}, MinWait: 30 * time.Second}
	c := q.Config("eu")
	assert.Equal(t, "eu", c.ID)
	assert.Equal(t, 3, c.TeamCount)
	assert.Equal(t, 2, c.TeamSize)
	assert.Equal(t, []string{"a"}, c.MapPool)
	assert.Equal(t, 30*time.Second, c.MinWait)
	// lo que no se toca queda en el default
	assert.Equal(t, 3, c.VoteSize)
	assert.Equal(t, 45*time.Second, c.ChannelTimeout)
}
