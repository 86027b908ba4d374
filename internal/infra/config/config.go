package config

import (
	"log"
	"os"
	"strings"
)

type Config struct {
	DatabaseURL  string
	DiscordToken string
	DiscordGuild string
	HTTPAddr     string // opcional, default :8080

	// cola por defecto cuando el comando no trae una
	DefaultQueue string
	AdminRoleIDs []string
	AFKChannelID string

	// opcionales: si vienen vacíos el componente queda apagado
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	KafkaTopic    string

	TuningFile string
}

func Load() Config {
	cfg, missing := load(os.Getenv)
	if missing != "" {
		log.Fatalf("faltante env %s", missing)
	}
	return cfg
}

// load devuelve la primera variable requerida que falte.
func load(getenv func(string) string) (Config, string) {
	missing := ""
	get := func(k string, req bool) string {
		v := strings.TrimSpace(getenv(k))
		if v == "" && req && missing == "" {
			missing = k
		}
		return v
	}

	cfg := Config{
		DatabaseURL:   get("DATABASE_URL", true),
		DiscordToken:  get("DISCORD_BOT_TOKEN", true),
		DiscordGuild:  get("DISCORD_GUILD_ID", true),
		HTTPAddr:      get("HTTP_ADDR", false),
		DefaultQueue:  get("DEFAULT_QUEUE", false),
		AdminRoleIDs:  splitCSV(get("ADMIN_ROLE_IDS", false)),
		AFKChannelID:  get("AFK_CHANNEL_ID", false),
		RedisAddr:     get("REDIS_ADDR", false),
		RedisPassword: get("REDIS_PASSWORD", false),
		KafkaBrokers:  splitCSV(get("KAFKA_BROKERS", false)),
		KafkaTopic:    get("KAFKA_TOPIC", false),
		TuningFile:    get("TUNING_FILE", false),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.DefaultQueue == "" {
		cfg.DefaultQueue = cfg.DiscordGuild
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "lobby-events"
	}
	return cfg, missing
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
