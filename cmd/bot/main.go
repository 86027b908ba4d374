package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	discordrouter "github.com/jose-valero/lobby-queue-bot/internal/adapters/discord"
	"github.com/jose-valero/lobby-queue-bot/internal/adapters/events"
	"github.com/jose-valero/lobby-queue-bot/internal/adapters/httpapi"
	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/rating"
	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/cache"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/config"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/metrics"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Load()
	tun, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal("migrate:", err)
	}
	pool, err := storage.OpenPool(ctx, cfg.DatabaseURL, 4)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	log.Println("✅ DB lista y migrada")

	// Repos
	profilesRepo := storage.NewProfileRepo(db)
	bansRepo := storage.NewBanRepo(db)
	matchesRepo := storage.NewMatchRepo(db)
	roomsRepo := storage.NewRoomsRepo(db)
	configsRepo := storage.NewQueueConfigRepo(db)
	uiRepo := storage.NewUIRepo(db)
	reportsRepo := storage.NewReportRepo(db)
	chatRepo := storage.NewChatLogRepo(db)

	rf, err := ratingFunction(tun.Rating)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("rating: %s", rf.Name())

	// Discord session
	auth := cfg.DiscordToken
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(auth)), "bot ") {
		auth = "Bot " + strings.TrimSpace(auth)
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal(err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	if err := s.Open(); err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	log.Printf("✅ Conectado como %s (%s)", s.State.User.Username, s.State.User.ID)

	rec := metrics.NewRecorder()

	// Sinks: Discord siempre, Kafka si hay brokers
	var (
		router    atomic.Pointer[discordrouter.Router]
		configSvc *service.ConfigService
	)
	discordSink := discordrouter.NewNotifier(s,
		func(ctx context.Context, queueID string) string {
			if configSvc == nil {
				return ""
			}
			qc, err := configSvc.Get(ctx, queueID)
			if err != nil {
				return ""
			}
			return qc.AuditChannel
		},
		func(queueID string) {
			if r := router.Load(); r != nil {
				r.RefreshQueue(queueID)
			}
		},
	)
	sinks := events.Multi{discordSink}
	if len(cfg.KafkaBrokers) > 0 {
		ks := events.NewKafkaSink(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), 512)
		defer ks.Close()
		sinks = append(sinks, ks)
		log.Printf("✅ Kafka %v topic=%s", cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	opts := []service.Option{
		service.WithMetrics(rec),
		service.WithDefaults(tun.Queue.Config),
		service.WithBalance(tun.Queue.BalanceFunc()),
		service.WithBackoff(tun.Lobby.ProviderBackoff),
		service.WithDisconnectGrace(tun.Lobby.DisconnectGrace),
		service.WithChatLog(chatRepo),
		service.WithBanPolicy(lobby.EscalatingBans{
			Threshold: tun.Strikes.Threshold,
			Base:      tun.Strikes.Base,
			Max:       tun.Strikes.Max,
		}),
	}

	// Redis (opcional): foto de las colas para dashboards
	var mirror *cache.QueueMirror
	queueOpts := opts
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Printf("⚠️ redis %s: %v (sigo sin mirror)", cfg.RedisAddr, err)
		} else {
			mirror = cache.NewQueueMirror(rdb, tun.Mirror.TTL)
			queueOpts = append(append([]service.Option(nil), opts...), service.WithMirror(mirror))
			log.Printf("✅ Redis mirror en %s", cfg.RedisAddr)
		}
		cancel()
	}

	// Services
	rooms := discordrouter.NewRooms(s, "Lobby")
	lobbySvc := service.NewLobbyService(profilesRepo, bansRepo, matchesRepo, roomsRepo, rooms, sinks, rf, opts...)
	partySvc := service.NewPartyService(tun.Party.MaxSize, tun.Party.InviteTTL, opts...)
	queueSvc := service.NewQueueService(profilesRepo, configsRepo, rf, lobbySvc, partySvc, sinks, queueOpts...)
	configSvc = service.NewConfigService(configsRepo, queueSvc, opts...)
	adminSvc := service.NewAdminService(bansRepo, matchesRepo, queueSvc, lobbySvc, sinks, opts...)
	profileSvc := service.NewProfileService(profilesRepo, rf, opts...)
	reportSvc := service.NewReportService(reportsRepo, lobbySvc)

	// Router
	r := discordrouter.NewRouter(s, cfg.DiscordGuild, cfg.DefaultQueue, cfg.AdminRoleIDs,
		discordrouter.VoiceCfg{AFKChannelID: cfg.AFKChannelID},
		discordrouter.Deps{
			Queue:    queueSvc,
			Lobbies:  lobbySvc,
			Parties:  partySvc,
			Profiles: profileSvc,
			Config:   configSvc,
			Admin:    adminSvc,
			UI:       uiRepo,
		},
	)
	router.Store(r)
	if err := r.Register(); err != nil {
		log.Fatalf("registrando comandos: %v", err)
	}
	r.Handlers()
	log.Printf("✅ comandos registrados en guild %s", cfg.DiscordGuild)

	// Reportes externos: lo pendiente y después en vivo
	if n := reportSvc.Drain(ctx); n > 0 {
		log.Printf("📥 %d reportes pendientes aplicados", n)
	}
	go storage.Listen(ctx, pool, reportSvc.Handle)

	// Trabajos periódicos
	sweeper, err := service.NewSweeper(tun.Sweeper.Service(), queueSvc, lobbySvc, partySvc, bansRepo)
	if err != nil {
		log.Fatal(err)
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal(err)
	}

	// HTTP
	httpOpts := []httpapi.Option{
		httpapi.WithMetrics(rec.Handler()),
		httpapi.WithPing(db.PingContext),
	}
	if mirror != nil {
		httpOpts = append(httpOpts, httpapi.WithMirror(mirror))
	}
	web := httpapi.New(queueSvc, lobbySvc, httpOpts...)
	go func() {
		if err := web.Start(cfg.HTTPAddr); err != nil {
			log.Printf("http server: %v", err)
		}
	}()

	// Esperar señal
	<-ctx.Done()
	log.Println("👋 apagando")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = web.Shutdown(sctx)
	if err := sweeper.Shutdown(); err != nil {
		log.Printf("sweeper: %v", err)
	}
}

func ratingFunction(t config.RatingTuning) (rating.Function, error) {
	if strings.EqualFold(t.Model, "elo") && t.EloK > 0 {
		return rating.NewElo(t.EloK), nil
	}
	return rating.New(t.Model)
}
