package discord

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

// VoiceCfg: cuál es el canal AFK del servidor.
type VoiceCfg struct {
	AFKChannelID string
}

// UIStore guarda dónde está publicado el mensaje de cada cola.
type UIStore interface {
	Get(ctx context.Context, queueID string) (storage.QueueUI, error)
	Upsert(ctx context.Context, queueID, channelID, messageID string) error
}

type Deps struct {
	Queue    *service.QueueService
	Lobbies  *service.LobbyService
	Parties  *service.PartyService
	Profiles *service.ProfileService
	Config   *service.ConfigService
	Admin    *service.AdminService
	UI       UIStore
}

type Router struct {
	s            *discordgo.Session
	guildID      string
	defaultQueue string
	adminRoleIDs []string
	voice        VoiceCfg
	log          *slog.Logger

	queue    *service.QueueService
	lobbies  *service.LobbyService
	parties  *service.PartyService
	profiles *service.ProfileService
	config   *service.ConfigService
	admin    *service.AdminService
	ui       UIStore

	commands     map[string]Command
	components   map[string]ComponentHandler
	clickLimiter *userLimiter

	refreshMu     sync.Mutex
	refreshTimers map[string]*time.Timer
}

func NewRouter(s *discordgo.Session, guildID, defaultQueue string, adminRoleIDs []string, voice VoiceCfg, d Deps) *Router {
	r := &Router{
		s:             s,
		guildID:       guildID,
		defaultQueue:  defaultQueue,
		adminRoleIDs:  adminRoleIDs,
		voice:         voice,
		log:           slog.Default().With("component", "discord"),
		queue:         d.Queue,
		lobbies:       d.Lobbies,
		parties:       d.Parties,
		profiles:      d.Profiles,
		config:        d.Config,
		admin:         d.Admin,
		ui:            d.UI,
		clickLimiter:  newUserLimiter(time.Second),
		refreshTimers: map[string]*time.Timer{},
	}
	r.commands = r.commandTable()
	r.components = r.componentTable()
	return r
}

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleSlashCommand(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleMessageComponent(s, ic)
		}
	})
	r.s.AddHandler(r.onVoiceStateUpdate)
	r.s.AddHandler(r.onMessageCreate)
}

// newCtx arma el Ctx común a slash commands y componentes.
func (r *Router) newCtx(s *discordgo.Session, ic *discordgo.InteractionCreate) *Ctx {
	c := &Ctx{
		Session: s,
		Event:   ic,
		GuildID: ic.GuildID,
		Args:    map[string]string{},
	}
	if ic.Member != nil && ic.Member.User != nil {
		c.UserID = ic.Member.User.ID
		c.Name = ic.Member.DisplayName()
	} else if ic.User != nil {
		c.UserID = ic.User.ID
		c.Name = ic.User.Username
	}
	c.Admin = r.isAdmin(s, ic)
	c.Log = r.log.With("user", c.UserID, "guild", c.GuildID)
	return c
}

func (r *Router) queueArg(c *Ctx) string {
	if q, ok := c.Arg("cola"); ok {
		return q
	}
	if r.defaultQueue != "" {
		return r.defaultQueue
	}
	return c.GuildID
}

func (r *Router) run(s *discordgo.Session, ic *discordgo.InteractionCreate, label string, timeout time.Duration, c *Ctx, h func(context.Context, *Ctx) (string, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in %s: %v", label, rec)
			ReplyEphemeral(s, ic, "❌ Ocurrió un error inesperado procesando el comando. Contacta con un administrador.")
		}
	}()
	defer step(label)()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	msg, err := h(ctx, c)
	if err != nil {
		c.Log.Info("comando rechazado", "cmd", label, "err", err)
		msg = userMessage(err)
	}
	if msg != "" {
		ReplyEphemeral(s, ic, msg)
	}
}
