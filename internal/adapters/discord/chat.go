package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// onMessageCreate manda al log de chat lo que se escribe en los canales de
// texto de los lobbies. El filtro por lobby y por cola lo hace el servicio.
func (r *Router) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID != r.guildID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r.lobbies.LogChat(ctx, m.ChannelID, m.Author.ID, m.Content)
}
