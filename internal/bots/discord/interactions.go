package discord

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/assignment"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/provision"
	"github.com/Formula-SAE/taskbot/internal/tasks"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

type interactionHandler func(ctx context.Context, in *platform.Interaction, r platform.Responder) error

// route picks the handler of a component or modal custom id.
func (b *DiscordBot) route(kind discordgo.InteractionType, customID string) (string, interactionHandler) {
	if kind == discordgo.InteractionModalSubmit {
		if strings.HasPrefix(customID, assignment.ModalPrefix) {
			return "assign-submit", b.assignment.Submit
		}
		return "", nil
	}

	switch {
	case customID == provision.CreateChannelID:
		return "create-channel", b.provisioner.CreatePersonalChannel
	case customID == assignment.SelectID:
		return "assign-select", b.assignment.Select
	case strings.HasPrefix(customID, assignment.OpenPrefix):
		return "assign-open", b.assignment.OpenForm
	case tasks.IsStartButton(customID):
		return "task-start", b.lifecycle.Start
	case tasks.IsUploadButton(customID):
		return "task-upload", b.lifecycle.Upload
	}
	return "", nil
}

func (b *DiscordBot) componentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent && i.Type != discordgo.InteractionModalSubmit {
		return
	}
	if !b.handlesGuild(i.GuildID) {
		return
	}

	var customID string
	if i.Type == discordgo.InteractionModalSubmit {
		customID = i.ModalSubmitData().CustomID
	} else {
		customID = i.MessageComponentData().CustomID
	}

	name, handler := b.route(i.Type, customID)
	if handler == nil {
		return
	}
	if !b.begin() {
		return
	}
	defer b.inflight.Done()

	log := logger.WithEvent(name)
	ctx := log.WithContext(b.ctx)
	r := newResponder(s, i.Interaction)

	in, err := b.interaction(ctx, i, customID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read interaction")
		_ = r.Reply(ctx, utils.Status("❌", "Something went wrong", "Please try again."))
		return
	}
	log.Debug().Str("user", in.User.UserID).Str("custom_id", customID).Msg("interaction received")

	err = handler(ctx, in, r)
	switch {
	case err == nil:
	case errors.Is(err, platform.ErrUnauthorized), errors.Is(err, platform.ErrValidation):
		log.Info().Err(err).Str("user", in.User.UserID).Msg("interaction rejected")
	default:
		log.Error().Err(err).Str("user", in.User.UserID).Msg("interaction failed")
		if !r.Acknowledged() {
			_ = r.Reply(ctx, utils.Status("❌", "Something went wrong", "An error occurred. Please try again or contact an administrator."))
		}
	}
}

// interaction converts the event and resolves the category of its channel.
func (b *DiscordBot) interaction(ctx context.Context, i *discordgo.InteractionCreate, customID string) (*platform.Interaction, error) {
	in := &platform.Interaction{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		CustomID:  customID,
	}
	switch {
	case i.Member != nil:
		in.User = toMember(i.Member)
	case i.User != nil:
		in.User = platform.Member{UserID: i.User.ID, Username: i.User.Username, Bot: i.User.Bot}
	}

	if i.Type == discordgo.InteractionModalSubmit {
		in.Fields = modalFields(i.ModalSubmitData())
	} else {
		in.Values = i.MessageComponentData().Values
	}
	if i.Message != nil {
		msg := toMessage(i.Message)
		if msg.GuildID == "" {
			msg.GuildID = i.GuildID
		}
		in.Message = &msg
	}

	ch, err := b.platform.GetChannel(ctx, i.ChannelID)
	if err != nil {
		return nil, err
	}
	in.CategoryID = ch.ParentID
	return in, nil
}
