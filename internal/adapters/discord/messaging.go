package discord

import (
	"errors"
	"log"

	"github.com/bwmarrin/discordgo"
)

const codeUnknownWebhook = 10015

// Defer efímero (para trabajos >3s)
func DeferEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Printf("DeferEphemeral error: %v", err)
	}
	return err
}

// ReplyEphemeral contesta con un followup; si todavía no hubo defer responde
// directo.
func ReplyEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) {
	if err := reply(s, ic, &discordgo.WebhookParams{Content: content, Embeds: embeds}); err != nil {
		log.Printf("ReplyEphemeral error: %v", err)
	}
}

// ReplyComponents es ReplyEphemeral con botones o selects.
func ReplyComponents(s *discordgo.Session, ic *discordgo.InteractionCreate, content string, comps []discordgo.MessageComponent) error {
	return reply(s, ic, &discordgo.WebhookParams{Content: content, Components: comps})
}

func reply(s *discordgo.Session, ic *discordgo.InteractionCreate, p *discordgo.WebhookParams) error {
	p.Flags = discordgo.MessageFlagsEphemeral
	_, err := s.FollowupMessageCreate(ic.Interaction, true, p)
	if err == nil {
		return nil
	}
	var reqErr *discordgo.RESTError
	if errors.As(err, &reqErr) && reqErr.Message != nil && reqErr.Message.Code == codeUnknownWebhook {
		return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    p.Content,
				Embeds:     p.Embeds,
				Components: p.Components,
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		})
	}
	return err
}
