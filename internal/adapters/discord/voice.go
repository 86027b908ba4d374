package discord

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

// onVoiceStateUpdate sigue la presencia en voz: en un lobby activo, salir de
// voz (o ir a AFK) abre la gracia de desconexión; en cola, ir a AFK saca al
// jugador de todas las colas.
func (r *Router) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || v.GuildID != r.guildID {
		return
	}
	if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
		return
	}
	uid := v.UserID
	away := v.ChannelID == "" || (r.voice.AFKChannelID != "" && v.ChannelID == r.voice.AFKChannelID)

	if r.lobbies.InLobby(uid) {
		if away {
			r.lobbies.PlayerDisconnected(uid)
		} else {
			r.lobbies.PlayerReconnected(uid)
		}
		return
	}

	if v.ChannelID != "" && v.ChannelID == r.voice.AFKChannelID {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if kicked := r.queue.Kick(ctx, uid); len(kicked) > 0 {
			log.Printf("[voice] %s a AFK, fuera de %v", uid, kicked)
		}
	}
}
