package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

// responder answers one interaction. Replies after the first acknowledgement
// turn into ephemeral follow-ups.
type responder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu           sync.Mutex
	acknowledged bool
}

func newResponder(s *discordgo.Session, i *discordgo.Interaction) *responder {
	return &responder{session: s, interaction: i}
}

func (r *responder) acknowledge() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := !r.acknowledged
	r.acknowledged = true
	return first
}

func (r *responder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acknowledged
}

func (r *responder) Reply(ctx context.Context, content string) error {
	if !r.acknowledge() {
		return r.FollowUp(ctx, content)
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
}

// Update edits the message of the control. Parts left nil keep their current value.
func (r *responder) Update(ctx context.Context, edit platform.MessageEdit) error {
	r.acknowledge()
	data := &discordgo.InteractionResponseData{}
	if msg := r.interaction.Message; msg != nil {
		data.Content = msg.Content
		data.Embeds = msg.Embeds
		data.Components = msg.Components
	}
	if edit.Content != nil {
		data.Content = *edit.Content
	}
	if edit.Embeds != nil {
		data.Embeds = fromEmbeds(*edit.Embeds)
	}
	if edit.Components != nil {
		data.Components = fromRows(*edit.Components)
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (r *responder) ShowModal(ctx context.Context, modal platform.Modal) error {
	r.acknowledge()
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: fromModal(modal),
	}, discordgo.WithContext(ctx))
}

func (r *responder) FollowUp(ctx context.Context, content string) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, false, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return err
}

var _ platform.Responder = (*responder)(nil)
