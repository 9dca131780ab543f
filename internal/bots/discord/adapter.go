package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

const (
	membersPageSize  = 1000
	messagesPageSize = 100
)

// Adapter implements platform.ChatPlatform over a discordgo session.
type Adapter struct {
	session *discordgo.Session
	client  *http.Client
}

func NewAdapter(s *discordgo.Session) *Adapter {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{session: s, client: client}
}

func (a *Adapter) FetchMember(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to fetch member %s", userID)
	}
	member := toMember(m)
	return &member, nil
}

func (a *Adapter) ListMembers(ctx context.Context, guildID string) ([]platform.Member, error) {
	var (
		out   []platform.Member
		after string
	)
	for {
		page, err := a.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapError(err, "failed to list members of guild %s", guildID)
		}
		for _, m := range page {
			out = append(out, toMember(m))
		}
		if len(page) < membersPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (a *Adapter) GetChannel(ctx context.Context, channelID string) (*platform.Channel, error) {
	if ch, err := a.session.State.Channel(channelID); err == nil {
		out := toChannel(ch)
		return &out, nil
	}
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to get channel %s", channelID)
	}
	out := toChannel(ch)
	return &out, nil
}

func (a *Adapter) guildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to list channels of guild %s", guildID)
	}
	return channels, nil
}

func (a *Adapter) ListChildChannels(ctx context.Context, guildID, categoryID string) ([]platform.Channel, error) {
	channels, err := a.guildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var (
		out   []platform.Channel
		found bool
	)
	for _, ch := range channels {
		if ch.ID == categoryID {
			found = true
		}
		if ch.ParentID == categoryID {
			out = append(out, toChannel(ch))
		}
	}
	if !found {
		return nil, fmt.Errorf("category %s: %w", categoryID, platform.ErrNotFound)
	}
	return out, nil
}

func (a *Adapter) ListCategories(ctx context.Context, guildID string) ([]platform.Channel, error) {
	channels, err := a.guildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var out []platform.Channel
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			out = append(out, toChannel(ch))
		}
	}
	return out, nil
}

func (a *Adapter) CreateChannel(ctx context.Context, guildID string, spec platform.ChannelSpec) (*platform.Channel, error) {
	ch, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             spec.ParentID,
		PermissionOverwrites: fromOverwrites(spec.Overwrites),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to create channel %s", spec.Name)
	}
	out := toChannel(ch)
	return &out, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := a.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return wrapError(err, "failed to delete channel %s", channelID)
}

func (a *Adapter) SetChannelPermission(ctx context.Context, channelID, subjectID string, kind platform.OverwriteKind, perms platform.Permissions) error {
	allow, deny := fromPermissions(perms)
	err := a.session.ChannelPermissionSet(channelID, subjectID, toOverwriteType(kind), allow, deny, discordgo.WithContext(ctx))
	return wrapError(err, "failed to set permissions of %s on %s", subjectID, channelID)
}

func (a *Adapter) SendMessage(ctx context.Context, channelID string, msg platform.MessageSend) (*platform.Message, error) {
	data := &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     fromEmbeds(msg.Embeds),
		Components: fromRows(msg.Components),
	}
	for _, f := range msg.Files {
		data.Files = append(data.Files, &discordgo.File{Name: f.Name, ContentType: f.ContentType, Reader: f.Reader})
	}
	m, err := a.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to send message to %s", channelID)
	}
	out := toMessage(m)
	return &out, nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID string, edit platform.MessageEdit) (*platform.Message, error) {
	data := &discordgo.MessageEdit{
		ID:      messageID,
		Channel: channelID,
		Content: edit.Content,
	}
	if edit.Embeds != nil {
		embeds := fromEmbeds(*edit.Embeds)
		data.Embeds = &embeds
	}
	if edit.Components != nil {
		components := fromRows(*edit.Components)
		data.Components = &components
	}
	m, err := a.session.ChannelMessageEditComplex(data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapError(err, "failed to edit message %s", messageID)
	}
	out := toMessage(m)
	return &out, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return wrapError(err, "failed to delete message %s", messageID)
}

func (a *Adapter) ListMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	var (
		out    []platform.Message
		before string
	)
	for len(out) < limit {
		page := min(limit-len(out), messagesPageSize)
		msgs, err := a.session.ChannelMessages(channelID, page, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapError(err, "failed to list messages of %s", channelID)
		}
		for _, m := range msgs {
			out = append(out, toMessage(m))
		}
		if len(msgs) < page {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (a *Adapter) SendDirectMessage(ctx context.Context, userID, content string) error {
	return wrapError(sendPrivateMessage(ctx, a.session, userID, content), "failed to DM %s", userID)
}

// AwaitNextMessage listens on the gateway for the first matching message. Each
// call registers its own handler so concurrent waits in different channels do
// not interfere.
func (a *Adapter) AwaitNextMessage(ctx context.Context, channelID string, match func(platform.Message) bool, timeout time.Duration) (*platform.Message, error) {
	found := make(chan platform.Message, 1)
	remove := a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ChannelID != channelID {
			return
		}
		msg := toMessage(m.Message)
		if !match(msg) {
			return
		}
		select {
		case found <- msg:
		default:
		}
	})
	defer remove()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-found:
		return &msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("no message in %s after %s: %w", channelID, timeout, platform.ErrTimedOut)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenAttachment downloads an attachment from the CDN.
func (a *Adapter) OpenAttachment(ctx context.Context, att platform.Attachment) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w: %w", att.Filename, platform.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download %s: status %d", att.Filename, resp.StatusCode)
	}
	return resp.Body, nil
}

func (a *Adapter) BotUserID() string {
	if a.session.State == nil || a.session.State.User == nil {
		return ""
	}
	return a.session.State.User.ID
}

var _ platform.ChatPlatform = (*Adapter)(nil)
