package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

func sendPrivateMessage(ctx context.Context, s *discordgo.Session, userID string, message string) error {
	channel, err := s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}

	_, err = s.ChannelMessageSend(channel.ID, message, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}

	return nil
}
