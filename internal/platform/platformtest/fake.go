// Package platformtest provides an in-memory ChatPlatform for tests.
package platformtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

const BotID = "bot"

// SentFile is a file received by SendMessage, read into memory.
type SentFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fake keeps guild state in memory. Failures can be injected per channel.
type Fake struct {
	mu sync.Mutex

	nextID   int
	members  map[string]map[string]platform.Member
	channels map[string]*platform.Channel
	messages map[string][]platform.Message
	incoming map[string][]platform.Message
	files    map[string][]SentFile

	// PermissionEdits counts successful SetChannelPermission calls.
	PermissionEdits int
	// DMs maps user ids to direct messages received.
	DMs map[string][]string
	// Deleted lists "channelID/messageID" of deleted messages.
	Deleted []string

	FailPermission map[string]error
	FailSend       map[string]error
	FailEdit       map[string]error
	FailMembers    error
	Attachments    map[string][]byte
}

func New() *Fake {
	return &Fake{
		nextID:         1000,
		members:        map[string]map[string]platform.Member{},
		channels:       map[string]*platform.Channel{},
		messages:       map[string][]platform.Message{},
		incoming:       map[string][]platform.Message{},
		files:          map[string][]SentFile{},
		DMs:            map[string][]string{},
		FailPermission: map[string]error{},
		FailSend:       map[string]error{},
		FailEdit:       map[string]error{},
		Attachments:    map[string][]byte{},
	}
}

func (f *Fake) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

// AddMember registers or replaces a guild member.
func (f *Fake) AddMember(guildID string, m platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[guildID] == nil {
		f.members[guildID] = map[string]platform.Member{}
	}
	f.members[guildID][m.UserID] = m
}

// AddChannel registers a channel and returns its id.
func (f *Fake) AddChannel(guildID, parentID, name string, typ platform.ChannelType) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.channels[id] = &platform.Channel{
		ID:         id,
		GuildID:    guildID,
		Name:       name,
		ParentID:   parentID,
		Type:       typ,
		Overwrites: map[string]platform.Permissions{},
	}
	return id
}

// RemoveChannel drops a channel without going through DeleteChannel.
func (f *Fake) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

// ChannelByName finds a channel under parentID.
func (f *Fake) ChannelByName(parentID, name string) (platform.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c.ParentID == parentID && c.Name == name {
			return copyChannel(c), true
		}
	}
	return platform.Channel{}, false
}

// OverwriteFor returns the overwrite subjectID currently has on channelID.
func (f *Fake) OverwriteFor(channelID, subjectID string) (platform.Permissions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[channelID]
	if !ok {
		return platform.Permissions{}, false
	}
	p, ok := c.Overwrites[subjectID]
	return p, ok
}

// Snapshot copies every overwrite, keyed by channel then subject.
func (f *Fake) Snapshot() map[string]map[string]platform.Permissions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]map[string]platform.Permissions{}
	for id, c := range f.channels {
		ows := map[string]platform.Permissions{}
		for k, v := range c.Overwrites {
			ows[k] = v
		}
		out[id] = ows
	}
	return out
}

// Messages returns the messages currently in a channel, oldest first.
func (f *Fake) Messages(channelID string) []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Message(nil), f.messages[channelID]...)
}

// Message returns one message by id.
func (f *Fake) Message(channelID, messageID string) (platform.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[channelID] {
		if m.ID == messageID {
			return m, true
		}
	}
	return platform.Message{}, false
}

// Files returns the files uploaded to a channel.
func (f *Fake) Files(channelID string) []SentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentFile(nil), f.files[channelID]...)
}

// Deliver queues a message that a user will post in channelID; it is handed out
// by AwaitNextMessage in order.
func (f *Fake) Deliver(channelID, authorID string, attachments ...platform.Attachment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incoming[channelID] = append(f.incoming[channelID], platform.Message{
		ID:          f.id(),
		ChannelID:   channelID,
		AuthorID:    authorID,
		Attachments: attachments,
	})
}

func (f *Fake) FetchMember(_ context.Context, guildID, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[guildID][userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	return &m, nil
}

func (f *Fake) ListMembers(_ context.Context, guildID string) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailMembers != nil {
		return nil, f.FailMembers
	}
	out := make([]platform.Member, 0, len(f.members[guildID]))
	for _, m := range f.members[guildID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *Fake) GetChannel(_ context.Context, channelID string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	cp := copyChannel(c)
	return &cp, nil
}

func (f *Fake) ListChildChannels(_ context.Context, guildID, categoryID string) ([]platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[categoryID]; !ok {
		return nil, fmt.Errorf("category %s: %w", categoryID, platform.ErrNotFound)
	}
	var out []platform.Channel
	for _, c := range f.channels {
		if c.GuildID == guildID && c.ParentID == categoryID {
			out = append(out, copyChannel(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ListCategories(_ context.Context, guildID string) ([]platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.Channel
	for _, c := range f.channels {
		if c.GuildID == guildID && c.Type == platform.ChannelTypeCategory {
			out = append(out, copyChannel(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) CreateChannel(_ context.Context, guildID string, spec platform.ChannelSpec) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	c := &platform.Channel{
		ID:         id,
		GuildID:    guildID,
		Name:       spec.Name,
		ParentID:   spec.ParentID,
		Type:       platform.ChannelTypeText,
		Overwrites: map[string]platform.Permissions{},
	}
	for _, ow := range spec.Overwrites {
		c.Overwrites[ow.SubjectID] = ow.Permissions
	}
	f.channels[id] = c
	cp := copyChannel(c)
	return &cp, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	delete(f.channels, channelID)
	return nil
}

func (f *Fake) SetChannelPermission(_ context.Context, channelID, subjectID string, _ platform.OverwriteKind, perms platform.Permissions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailPermission[channelID]; err != nil {
		return err
	}
	c, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	c.Overwrites[subjectID] = perms
	f.PermissionEdits++
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.MessageSend) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailSend[channelID]; err != nil {
		return nil, err
	}
	c, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	for _, file := range msg.Files {
		data, err := io.ReadAll(file.Reader)
		if err != nil {
			return nil, err
		}
		f.files[channelID] = append(f.files[channelID], SentFile{Name: file.Name, ContentType: file.ContentType, Data: data})
	}
	m := platform.Message{
		ID:         f.id(),
		ChannelID:  channelID,
		GuildID:    c.GuildID,
		AuthorID:   BotID,
		AuthorBot:  true,
		Content:    msg.Content,
		Embeds:     msg.Embeds,
		Components: msg.Components,
	}
	f.messages[channelID] = append(f.messages[channelID], m)
	return &m, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, edit platform.MessageEdit) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailEdit[channelID]; err != nil {
		return nil, err
	}
	for i, m := range f.messages[channelID] {
		if m.ID != messageID {
			continue
		}
		if edit.Content != nil {
			m.Content = *edit.Content
		}
		if edit.Embeds != nil {
			m.Embeds = *edit.Embeds
		}
		if edit.Components != nil {
			m.Components = *edit.Components
		}
		f.messages[channelID][i] = m
		return &m, nil
	}
	return nil, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			f.messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			f.Deleted = append(f.Deleted, channelID+"/"+messageID)
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
}

// ListMessages returns the newest messages first, like the platform does.
func (f *Fake) ListMessages(_ context.Context, channelID string, limit int) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[channelID]
	out := make([]platform.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (f *Fake) SendDirectMessage(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DMs[userID] = append(f.DMs[userID], content)
	return nil
}

// AwaitNextMessage hands out queued messages; non-matching ones are posted and
// skipped. An empty queue behaves like an elapsed timeout.
func (f *Fake) AwaitNextMessage(ctx context.Context, channelID string, match func(platform.Message) bool, _ time.Duration) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.incoming[channelID]) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := f.incoming[channelID][0]
		f.incoming[channelID] = f.incoming[channelID][1:]
		if c, ok := f.channels[channelID]; ok {
			m.GuildID = c.GuildID
		}
		f.messages[channelID] = append(f.messages[channelID], m)
		if match(m) {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrTimedOut)
}

func (f *Fake) OpenAttachment(_ context.Context, att platform.Attachment) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Attachments[att.URL]
	if !ok {
		data = []byte("video-bytes")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *Fake) BotUserID() string {
	return BotID
}

func copyChannel(c *platform.Channel) platform.Channel {
	cp := *c
	cp.Overwrites = make(map[string]platform.Permissions, len(c.Overwrites))
	for k, v := range c.Overwrites {
		cp.Overwrites[k] = v
	}
	return cp
}

var _ platform.ChatPlatform = (*Fake)(nil)
