package platform

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

type Member struct {
	UserID   string
	Username string
	Roles    []string
	Bot      bool
}

func (m Member) HasRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	return slices.Contains(m.Roles, roleID)
}

func (m Member) Mention() string {
	return fmt.Sprintf("<@%s>", m.UserID)
}

type ChannelType int

const (
	ChannelTypeText ChannelType = iota
	ChannelTypeCategory
	ChannelTypeOther
)

type Channel struct {
	ID       string
	GuildID  string
	Name     string
	ParentID string
	Type     ChannelType
	// Overwrites holds the current member and role overwrites keyed by subject id.
	Overwrites map[string]Permissions
}

func (c Channel) Mention() string {
	return fmt.Sprintf("<#%s>", c.ID)
}

// OverwriteKind tells whether a permission subject is a role or a member.
type OverwriteKind int

const (
	SubjectMember OverwriteKind = iota
	SubjectRole
)

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	Name       string
	ParentID   string
	Overwrites []Overwrite
}

// Overwrite is one permission overwrite applied when a channel is created or reset.
type Overwrite struct {
	SubjectID   string
	Kind        OverwriteKind
	Permissions Permissions
}

type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int
}

type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorBot   bool
	Content     string
	Embeds      []Embed
	Components  []ActionRow
	Attachments []Attachment
}

// Link returns the permalink of the message.
func (m Message) Link() string {
	return MessageLink(m.GuildID, m.ChannelID, m.ID)
}

func MessageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// Field returns the value of the first field called name.
func (e Embed) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
	Disabled bool
}

type SelectOption struct {
	Label       string
	Description string
	Value       string
	Default     bool
}

type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
	Disabled    bool
}

// ActionRow is a row of controls: either a single select menu or up to five buttons.
type ActionRow struct {
	Select  *SelectMenu
	Buttons []Button
}

// FindButton returns the first button whose custom id starts with prefix.
func FindButton(rows []ActionRow, prefix string) (Button, bool) {
	for _, row := range rows {
		for _, b := range row.Buttons {
			if strings.HasPrefix(b.CustomID, prefix) {
				return b, true
			}
		}
	}
	return Button{}, false
}

// FindSelect returns the select menu with the given custom id.
func FindSelect(rows []ActionRow, customID string) (*SelectMenu, bool) {
	for _, row := range rows {
		if row.Select != nil && row.Select.CustomID == customID {
			return row.Select, true
		}
	}
	return nil, false
}

type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

type MessageSend struct {
	Content    string
	Embeds     []Embed
	Components []ActionRow
	Files      []File
}

// MessageEdit replaces only the non-nil parts of a message.
type MessageEdit struct {
	Content    *string
	Embeds     *[]Embed
	Components *[]ActionRow
}

type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Paragraph   bool
	Required    bool
	MaxLength   int
}

type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}
