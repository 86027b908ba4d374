package service

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type SweeperConfig struct {
	FormEvery    time.Duration
	PurgeEvery   time.Duration
	StaleEvery   time.Duration
	StaleAge     time.Duration
	OrphansEvery time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		FormEvery:    5 * time.Second,
		PurgeEvery:   10 * time.Minute,
		StaleEvery:   5 * time.Minute,
		StaleAge:     4 * time.Hour,
		OrphansEvery: 30 * time.Minute,
	}
}

// Sweeper corre los trabajos periódicos del bot: reintentos de formación (por
// MinWait y el umbral de balance), bans vencidos, lobbies colgados, canales
// huérfanos e invitaciones vencidas.
type Sweeper struct {
	sched   gocron.Scheduler
	queues  *QueueService
	lobbies *LobbyService
	parties *PartyService
	bans    BanStore
	cfg     SweeperConfig
	now     func() time.Time
}

func NewSweeper(cfg SweeperConfig, queues *QueueService, lobbies *LobbyService, parties *PartyService, bans BanStore) (*Sweeper, error) {
	if cfg == (SweeperConfig{}) {
		cfg = DefaultSweeperConfig()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{sched: sched, queues: queues, lobbies: lobbies, parties: parties, bans: bans, cfg: cfg, now: time.Now}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	jobs := []struct {
		name  string
		every time.Duration
		fn    func(context.Context)
	}{
		{"form", s.cfg.FormEvery, s.FormAll},
		{"purge-bans", s.cfg.PurgeEvery, s.PurgeBans},
		{"stale-lobbies", s.cfg.StaleEvery, s.ExpireLobbies},
		{"orphan-rooms", s.cfg.OrphansEvery, s.Orphans},
	}
	for _, j := range jobs {
		if j.every <= 0 {
			continue
		}
		if _, err := s.sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.fn, ctx),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}
	}
	// tras un reinicio no hay lobbies vivos: todo lo guardado es huérfano
	s.Orphans(ctx)
	s.sched.Start()
	log.Printf("[sweeper] ✅ %d jobs", len(s.sched.Jobs()))
	return nil
}

func (s *Sweeper) Shutdown() error { return s.sched.Shutdown() }

func (s *Sweeper) FormAll(ctx context.Context) {
	if n := s.queues.FormAll(ctx); n > 0 {
		log.Printf("[sweeper] %d matches formados", n)
	}
	if s.parties != nil {
		s.parties.Expire(s.now())
	}
}

func (s *Sweeper) PurgeBans(ctx context.Context) {
	n, err := s.bans.PurgeExpired(ctx, s.now())
	if err != nil {
		log.Printf("[sweeper] purge bans: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[sweeper] 🧹 %d bans vencidos", n)
	}
}

func (s *Sweeper) ExpireLobbies(ctx context.Context) {
	if n := s.lobbies.ExpireStale(ctx, s.cfg.StaleAge); n > 0 {
		log.Printf("[sweeper] %d lobbies expirados", n)
	}
}

func (s *Sweeper) Orphans(ctx context.Context) {
	n, err := s.lobbies.CleanupOrphans(ctx)
	if err != nil {
		log.Printf("[sweeper] huérfanos: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[sweeper] 🧹 %d canales huérfanos", n)
	}
}
