package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/lobby-queue-bot/internal/app/service"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// 40032: Target user is not connected to voice.
const codeNotInVoice = 40032

// channelAPI es el pedazo de *discordgo.Session que usa Rooms.
type channelAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// Rooms crea una categoría por lobby con un canal de texto y un canal de voz
// por equipo, mueve a los jugadores y borra todo al cerrar.
type Rooms struct {
	api    channelAPI
	prefix string
}

var _ service.ChannelProvider = (*Rooms)(nil)

func NewRooms(api channelAPI, categoryPrefix string) *Rooms {
	if categoryPrefix == "" {
		categoryPrefix = "Lobby"
	}
	return &Rooms{api: api, prefix: categoryPrefix}
}

// CreateGameChannels sólo crea lo que falta en req.Existing. Ante un error
// devuelve lo que alcanzó a crear junto con el error.
func (r *Rooms) CreateGameChannels(ctx context.Context, req service.ChannelRequest) (domain.ChannelHandles, error) {
	h := req.Existing.Merge(domain.ChannelHandles{GuildID: req.GuildID, TeamVoice: make([]string, len(req.TeamNames))})

	if h.CategoryID == "" {
		data := discordgo.GuildChannelCreateData{
			Name: fmt.Sprintf("%s %s", r.prefix, shortID(req.LobbyID)),
			Type: discordgo.ChannelTypeGuildCategory,
		}
		// sin categorías anidadas en Discord: la ubicamos debajo de la configurada
		if req.ParentID != "" {
			if parent, err := r.api.Channel(req.ParentID, discordgo.WithContext(ctx)); err == nil {
				data.Position = parent.Position + 1
			}
		}
		cat, err := r.api.GuildChannelCreateComplex(h.GuildID, data, discordgo.WithContext(ctx))
		if err != nil {
			return h, &domain.ProviderError{Op: "create_category", Team: -1, Err: err}
		}
		h.CategoryID = cat.ID
		log.Printf("[rooms] %s categoría %s", req.LobbyID, cat.ID)
	}

	if h.TextID == "" {
		ch, err := r.api.GuildChannelCreateComplex(h.GuildID, discordgo.GuildChannelCreateData{
			Name:     "lobby-" + shortID(req.LobbyID),
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: h.CategoryID,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return h, &domain.ProviderError{Op: "create_text", Team: -1, Err: err}
		}
		h.TextID = ch.ID
	}

	for i, name := range req.TeamNames {
		if h.TeamVoice[i] != "" {
			continue
		}
		ch, err := r.api.GuildChannelCreateComplex(h.GuildID, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     discordgo.ChannelTypeGuildVoice,
			ParentID: h.CategoryID,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return h, &domain.ProviderError{Op: "create_voice", Team: i, Err: err}
		}
		h.TeamVoice[i] = ch.ID
	}
	return h, nil
}

// MovePlayersToVoice mueve a quienes estén conectados; el que no está en voz
// se saltea (Discord no deja moverlo).
func (r *Rooms) MovePlayersToVoice(ctx context.Context, guildID string, players []string, channelID string) error {
	var errs []error
	for _, uid := range players {
		err := r.api.GuildMemberMove(guildID, uid, &channelID, discordgo.WithContext(ctx))
		switch {
		case err == nil:
		case isRESTCode(err, codeNotInVoice):
			log.Printf("[rooms] %s no está en voz, no se mueve", uid)
		default:
			errs = append(errs, fmt.Errorf("move %s: %w", uid, err))
		}
	}
	if len(errs) > 0 {
		return &domain.ProviderError{Op: "move", Team: -1, Err: errors.Join(errs...)}
	}
	return nil
}

// TeardownChannels borra voz, texto y por último la categoría. Lo que ya no
// existe cuenta como borrado, así se puede reintentar sin drama.
func (r *Rooms) TeardownChannels(ctx context.Context, h domain.ChannelHandles) error {
	ids := append([]string(nil), h.TeamVoice...)
	ids = append(ids, h.TextID, h.CategoryID)

	var errs []error
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := r.api.ChannelDelete(id, discordgo.WithContext(ctx)); err != nil && !isNotFound(err) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return &domain.ProviderError{Op: "teardown", Team: -1, Err: errors.Join(errs...)}
	}
	return nil
}

func isNotFound(err error) bool {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound {
		return true
	}
	return isRESTCode(err, discordgo.ErrCodeUnknownChannel)
}

func isRESTCode(err error, code int) bool {
	var re *discordgo.RESTError
	return errors.As(err, &re) && re.Message != nil && re.Message.Code == code
}

func shortID(s string) string {
	if len(s) <= 6 {
		return s
	}
	return s[len(s)-6:]
}
