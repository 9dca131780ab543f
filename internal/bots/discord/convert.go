package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

var permissionBits = []struct {
	bit  int64
	flag func(*platform.Permissions) **bool
}{
	{discordgo.PermissionViewChannel, func(p *platform.Permissions) **bool { return &p.View }},
	{discordgo.PermissionSendMessages, func(p *platform.Permissions) **bool { return &p.Send }},
	{discordgo.PermissionReadMessageHistory, func(p *platform.Permissions) **bool { return &p.ReadHistory }},
	{discordgo.PermissionAttachFiles, func(p *platform.Permissions) **bool { return &p.AttachFiles }},
	{discordgo.PermissionManageMessages, func(p *platform.Permissions) **bool { return &p.ManageMessages }},
	{discordgo.PermissionManageChannels, func(p *platform.Permissions) **bool { return &p.ManageChannels }},
}

func toPermissions(allow, deny int64) platform.Permissions {
	var p platform.Permissions
	for _, b := range permissionBits {
		switch {
		case allow&b.bit != 0:
			*b.flag(&p) = platform.Allow()
		case deny&b.bit != 0:
			*b.flag(&p) = platform.Deny()
		}
	}
	return p
}

// fromPermissions splits p into allow and deny masks; unset flags inherit.
func fromPermissions(p platform.Permissions) (allow, deny int64) {
	for _, b := range permissionBits {
		v := *b.flag(&p)
		switch {
		case v == nil:
		case *v:
			allow |= b.bit
		default:
			deny |= b.bit
		}
	}
	return allow, deny
}

func toOverwriteType(kind platform.OverwriteKind) discordgo.PermissionOverwriteType {
	if kind == platform.SubjectRole {
		return discordgo.PermissionOverwriteTypeRole
	}
	return discordgo.PermissionOverwriteTypeMember
}

func toMember(m *discordgo.Member) platform.Member {
	out := platform.Member{Roles: append([]string(nil), m.Roles...)}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Username = m.User.Username
		out.Bot = m.User.Bot
	}
	return out
}

func toChannel(c *discordgo.Channel) platform.Channel {
	out := platform.Channel{
		ID:         c.ID,
		GuildID:    c.GuildID,
		Name:       c.Name,
		ParentID:   c.ParentID,
		Overwrites: make(map[string]platform.Permissions, len(c.PermissionOverwrites)),
	}
	switch c.Type {
	case discordgo.ChannelTypeGuildText:
		out.Type = platform.ChannelTypeText
	case discordgo.ChannelTypeGuildCategory:
		out.Type = platform.ChannelTypeCategory
	default:
		out.Type = platform.ChannelTypeOther
	}
	for _, ow := range c.PermissionOverwrites {
		out.Overwrites[ow.ID] = toPermissions(ow.Allow, ow.Deny)
	}
	return out
}

func fromOverwrites(ows []platform.Overwrite) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(ows))
	for _, ow := range ows {
		allow, deny := fromPermissions(ow.Permissions)
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    ow.SubjectID,
			Type:  toOverwriteType(ow.Kind),
			Allow: allow,
			Deny:  deny,
		})
	}
	return out
}

func toMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		Content:    m.Content,
		Components: toRows(m.Components),
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorBot = m.Author.Bot
	}
	for _, e := range m.Embeds {
		out.Embeds = append(out.Embeds, toEmbed(e))
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, platform.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}

func toEmbed(e *discordgo.MessageEmbed) platform.Embed {
	out := platform.Embed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, platform.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		out.Timestamp = ts
	}
	return out
}

func fromEmbed(e platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return out
}

func fromEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		out = append(out, fromEmbed(e))
	}
	return out
}

// wrapError maps REST failures onto the platform error kinds.
func wrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch code := restErr.Response.StatusCode; {
		case code == http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", what, platform.ErrNotFound, err)
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %w: %w", what, platform.ErrTransient, err)
		}
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: %w: %w", what, platform.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
