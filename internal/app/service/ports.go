package service

import (
	"context"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Lo implementa internal/infra/storage.ProfileRepo
type ProfileStore interface {
	GetProfile(ctx context.Context, playerID string) (domain.Profile, error)
	UpsertProfile(ctx context.Context, p domain.Profile) error
	UpdateRating(ctx context.Context, playerID string, r domain.Rating) error
	RecordResult(ctx context.Context, playerID string, res domain.PlayerResult) error
	// IncrementStrike devuelve la cantidad de strikes resultante.
	IncrementStrike(ctx context.Context, playerID string) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Profile, error)
}

// Lo implementa internal/infra/storage.BanRepo
type BanStore interface {
	SetBan(ctx context.Context, b domain.Ban) error
	ClearBan(ctx context.Context, playerID, queueID string) (bool, error)
	ListBans(ctx context.Context, now time.Time) ([]domain.Ban, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Lo implementa internal/infra/storage.MatchRepo
type MatchStore interface {
	Archive(ctx context.Context, rec domain.MatchRecord) error
	RecentMaps(ctx context.Context, queueID string, n int) ([]string, error)
	RecordLeaver(ctx context.Context, r domain.LeaverRecord) error
	ListLeavers(ctx context.Context, limit int) ([]domain.LeaverRecord, error)
}

// Lo implementa internal/infra/storage.ChatLogRepo
type ChatLogStore interface {
	Append(ctx context.Context, line domain.ChatLine) error
	ChatLog(ctx context.Context, lobbyID string, limit int) ([]domain.ChatLine, error)
}

// Lo implementa internal/infra/storage.RoomsRepo. Guarda los canales creados
// para poder limpiarlos si el bot se cae a mitad de un lobby.
type RoomsStore interface {
	Save(ctx context.Context, lobbyID string, h domain.ChannelHandles) error
	Delete(ctx context.Context, lobbyID string) error
	List(ctx context.Context) (map[string]domain.ChannelHandles, error)
}

// Lo implementa internal/infra/storage.QueueConfigRepo
type QueueConfigRepo interface {
	Get(ctx context.Context, queueID string) (domain.QueueConfig, error)
	Upsert(ctx context.Context, cfg domain.QueueConfig) error
	List(ctx context.Context) ([]domain.QueueConfig, error)
}

// ChannelRequest lleva lo ya creado en intentos anteriores: el proveedor sólo
// crea lo que falta, así un reintento nunca duplica canales.
type ChannelRequest struct {
	LobbyID   string
	GuildID   string
	ParentID  string
	TeamNames []string
	Existing  domain.ChannelHandles
}

// Lo implementa internal/adapters/discord.Rooms. Ante un error devuelve igual
// lo que alcanzó a crear.
type ChannelProvider interface {
	CreateGameChannels(ctx context.Context, req ChannelRequest) (domain.ChannelHandles, error)
	MovePlayersToVoice(ctx context.Context, guildID string, players []string, channelID string) error
	TeardownChannels(ctx context.Context, h domain.ChannelHandles) error
}

// Notifier es fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, e domain.Event)
}

// QueueMirror publica la foto de la cola hacia afuera (redis).
type QueueMirror interface {
	Publish(ctx context.Context, queueID string, entries []domain.QueueEntry) error
}

// Lo implementa internal/infra/metrics.Recorder
type Metrics interface {
	QueueSize(queueID string, entries, players int)
	Formation(queueID string, formed bool, took time.Duration)
	LobbyTransition(queueID, to string)
	ProviderRetry(op string)
	LobbyResolved(queueID, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) QueueSize(string, int, int) {}
func (nopMetrics) Formation(string, bool, time.Duration) {}
func (nopMetrics) LobbyTransition(string, string) {}
func (nopMetrics) ProviderRetry(string) {}
func (nopMetrics) LobbyResolved(string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Event) {}
