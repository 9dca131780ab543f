// Package platform describes the chat platform the bot runs on as a small set of
// interfaces, so the permission, task and assignment logic never touches the SDK.
package platform

import (
	"context"
	"io"
	"time"
)

// ChatPlatform is the set of platform reads and writes the core relies on.
// Implementations return errors wrapping ErrNotFound for missing entities.
type ChatPlatform interface {
	FetchMember(ctx context.Context, guildID, userID string) (*Member, error)
	ListMembers(ctx context.Context, guildID string) ([]Member, error)

	GetChannel(ctx context.Context, channelID string) (*Channel, error)
	ListChildChannels(ctx context.Context, guildID, categoryID string) ([]Channel, error)
	ListCategories(ctx context.Context, guildID string) ([]Channel, error)
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	SetChannelPermission(ctx context.Context, channelID, subjectID string, kind OverwriteKind, perms Permissions) error

	SendMessage(ctx context.Context, channelID string, msg MessageSend) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit MessageEdit) (*Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	SendDirectMessage(ctx context.Context, userID, content string) error

	// AwaitNextMessage blocks until a message in channelID satisfies match or the
	// timeout elapses, in which case the error wraps ErrTimedOut.
	AwaitNextMessage(ctx context.Context, channelID string, match func(Message) bool, timeout time.Duration) (*Message, error)
	// OpenAttachment streams the content of an attachment.
	OpenAttachment(ctx context.Context, att Attachment) (io.ReadCloser, error)

	// BotUserID is the platform user id of the bot itself.
	BotUserID() string
}

// Interaction is a button click, select change or modal submit.
type Interaction struct {
	GuildID    string
	ChannelID  string
	CategoryID string
	User       Member
	CustomID   string
	// Values holds the selected option values of a select menu.
	Values []string
	// Fields holds modal text inputs keyed by custom id.
	Fields map[string]string
	// Message is the message the control belongs to, nil for modal submits
	// not attached to a message.
	Message *Message
}

// Responder answers an interaction. The first call to Reply, Update or ShowModal
// acknowledges it; FollowUp may be called any number of times afterwards.
type Responder interface {
	// Reply sends a message only the acting user can see.
	Reply(ctx context.Context, content string) error
	// Update edits the message the control belongs to as the acknowledgement.
	Update(ctx context.Context, edit MessageEdit) error
	ShowModal(ctx context.Context, modal Modal) error
	FollowUp(ctx context.Context, content string) error
}
