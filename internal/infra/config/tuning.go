package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Tuning son los knobs del matchmaking que no cambian por guild. Se leen de
// un YAML opcional (TUNING_FILE) y se pueden pisar con MM_<SECCION>_<CLAVE>.
type Tuning struct {
	Rating  RatingTuning  `mapstructure:"rating"`
	Strikes StrikeTuning  `mapstructure:"strikes"`
	Lobby   LobbyTuning   `mapstructure:"lobby"`
	Party   PartyTuning   `mapstructure:"party"`
	Sweeper SweeperTuning `mapstructure:"sweeper"`
	Mirror  MirrorTuning  `mapstructure:"mirror"`
	Queue   QueueDefaults `mapstructure:"queue"`
}

type RatingTuning struct {
	// "openskill" o "elo"
	Model string  `mapstructure:"model"`
	EloK  float64 `mapstructure:"elo_k"`
}

type StrikeTuning struct {
	Threshold int           `mapstructure:"threshold"`
	Base      time.Duration `mapstructure:"base"`
	Max       time.Duration `mapstructure:"max"`
}

type LobbyTuning struct {
	ProviderBackoff time.Duration `mapstructure:"provider_backoff"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
}

type PartyTuning struct {
	MaxSize   int           `mapstructure:"max_size"`
	InviteTTL time.Duration `mapstructure:"invite_ttl"`
}

type SweeperTuning struct {
	FormEvery    time.Duration `mapstructure:"form_every"`
	PurgeEvery   time.Duration `mapstructure:"purge_every"`
	StaleEvery   time.Duration `mapstructure:"stale_every"`
	StaleAge     time.Duration `mapstructure:"stale_age"`
	OrphansEvery time.Duration `mapstructure:"orphans_every"`
}

type MirrorTuning struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// QueueDefaults: config de una cola que todavía no pasó por /configure.
type QueueDefaults struct {
	TeamCount      int           `mapstructure:"team_count"`
	TeamSize       int           `mapstructure:"team_size"`
	MapPool        []string      `mapstructure:"map_pool"`
	VoteSize       int           `mapstructure:"vote_size"`
	VoteTime       time.Duration `mapstructure:"vote_time"`
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
	MinWait        time.Duration `mapstructure:"min_wait"`
	// "spread" o "variance"
	Balance string `mapstructure:"balance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rating.model", "openskill")
	v.SetDefault("rating.elo_k", 32.0)
	v.SetDefault("strikes.threshold", 2)
	v.SetDefault("strikes.base", "30m")
	v.SetDefault("strikes.max", "168h")
	v.SetDefault("lobby.provider_backoff", "500ms")
	v.SetDefault("lobby.disconnect_grace", "2m")
	v.SetDefault("party.max_size", 5)
	v.SetDefault("party.invite_ttl", "5m")
	v.SetDefault("sweeper.form_every", "5s")
	v.SetDefault("sweeper.purge_every", "10m")
	v.SetDefault("sweeper.stale_every", "5m")
	v.SetDefault("sweeper.stale_age", "4h")
	v.SetDefault("sweeper.orphans_every", "30m")
	v.SetDefault("mirror.ttl", "10m")
	v.SetDefault("queue.team_count", 2)
	v.SetDefault("queue.team_size", 5)
	v.SetDefault("queue.map_pool", []string{})
	v.SetDefault("queue.vote_size", 3)
	v.SetDefault("queue.vote_time", "2m")
	v.SetDefault("queue.channel_timeout", "45s")
	v.SetDefault("queue.min_wait", "0s")
	v.SetDefault("queue.balance", "spread")
}

// LoadTuning lee path (si no es vacío) sobre los defaults.
func LoadTuning(path string) (Tuning, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Tuning{}, fmt.Errorf("tuning %s: %w", path, err)
		}
	}

	var t Tuning
	if err := v.Unmarshal(&t); err != nil {
		return Tuning{}, fmt.Errorf("tuning unmarshal: %w", err)
	}
	switch t.Rating.Model {
	case "openskill", "elo":
	default:
		return Tuning{}, fmt.Errorf("tuning: rating.model %q desconocido", t.Rating.Model)
	}
	if _, ok := matchmaking.BalanceByName(t.Queue.Balance); !ok {
		return Tuning{}, fmt.Errorf("tuning: queue.balance %q desconocido", t.Queue.Balance)
	}
	return t, nil
}

// Config arma la config por defecto de una cola nueva con estos knobs.
func (q QueueDefaults) Config(queueID string) domain.QueueConfig {
	c := domain.DefaultQueueConfig(queueID)
	if q.TeamCount > 0 {
		c.TeamCount = q.TeamCount
	}
	if q.TeamSize > 0 {
		c.TeamSize = q.TeamSize
	}
	if len(q.MapPool) > 0 {
		c.MapPool = append([]string(nil), q.MapPool...)
	}
	if q.VoteSize > 0 {
		c.VoteSize = q.VoteSize
	}
	if q.VoteTime > 0 {
		c.VoteTime = q.VoteTime
	}
	if q.ChannelTimeout > 0 {
		c.ChannelTimeout = q.ChannelTimeout
	}
	c.MinWait = q.MinWait
	return c
}

func (s SweeperTuning) Service() service.SweeperConfig {
	return service.SweeperConfig{
		FormEvery:    s.FormEvery,
		PurgeEvery:   s.PurgeEvery,
		StaleEvery:   s.StaleEvery,
		StaleAge:     s.StaleAge,
		OrphansEvery: s.OrphansEvery,
	}
}

func (q QueueDefaults) BalanceFunc() matchmaking.BalanceFunc {
	b, _ := matchmaking.BalanceByName(q.Balance)
	return b
}
