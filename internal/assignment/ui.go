// Package assignment maintains the member selector of each assignment channel
// and turns the assign form into tasks.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/policy"
	"github.com/Formula-SAE/taskbot/internal/tasks"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

const (
	// SelectID locates the composite message of an assignment channel.
	SelectID = "assign:select"
	// OpenPrefix is followed by ":<userId>" once a member is selected.
	OpenPrefix = "assign:open"
	// ModalPrefix is followed by the id of the member the task is for.
	ModalPrefix = "assign:modal:"

	FieldTitle       = "title"
	FieldDescription = "description"

	noMembersValue = "none"
	maxOptions     = 25
	scanLimit      = 50
	prompt         = "Select a member to assign a task to:"
)

// TaskCreator posts new tasks.
type TaskCreator interface {
	Create(ctx context.Context, req tasks.CreateRequest) (*tasks.Task, error)
}

type UI struct {
	platform platform.ChatPlatform
	cfg      *config.Config
	tasks    TaskCreator
	log      zerolog.Logger
}

func New(p platform.ChatPlatform, cfg *config.Config, creator TaskCreator) *UI {
	return &UI{
		platform: p,
		cfg:      cfg,
		tasks:    creator,
		log:      logger.Component("assignment"),
	}
}

// Candidates are the members a task can be assigned to in cat, sorted by name.
func (u *UI) Candidates(members []platform.Member, cat config.Category) []platform.Member {
	var out []platform.Member
	for _, m := range members {
		if m.Bot || !m.HasRole(cat.RoleID) {
			continue
		}
		if u.cfg.Tasks.HideAdminsInSelector && m.HasRole(cat.AdminRoleID) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

// Render builds the selector rows. The assign button carries the selection and
// is disabled while nobody is selected.
func (u *UI) Render(members []platform.Member, cat config.Category, selected string) []platform.ActionRow {
	candidates := u.Candidates(members, cat)
	if len(candidates) > maxOptions {
		u.log.Warn().Str("category", cat.Name).Int("members", len(candidates)).Msg("selector truncated to the first 25 members")
		candidates = candidates[:maxOptions]
	}

	found := false
	options := make([]platform.SelectOption, 0, len(candidates))
	for _, m := range candidates {
		isSelected := m.UserID == selected
		found = found || isSelected
		options = append(options, platform.SelectOption{
			Label:       m.Username,
			Description: "ID: " + m.UserID,
			Value:       m.UserID,
			Default:     isSelected,
		})
	}
	if len(options) == 0 {
		options = append(options, platform.SelectOption{
			Label:       "No members available",
			Description: "Nobody holds the role of this category",
			Value:       noMembersValue,
			Default:     true,
		})
	}

	open := platform.Button{CustomID: OpenPrefix, Label: "Assign task", Style: platform.ButtonPrimary, Disabled: true}
	if found {
		open.CustomID = OpenPrefix + ":" + selected
		open.Disabled = false
	}

	return []platform.ActionRow{
		{Select: &platform.SelectMenu{
			CustomID:    SelectID,
			Placeholder: "Select a member",
			Options:     options,
			Disabled:    len(candidates) == 0,
		}},
		{Buttons: []platform.Button{open}},
	}
}

// Ensure keeps exactly one composite message in the assignment channel, edited
// in place when it exists. The current selection survives a re-render as long as
// the member is still a candidate.
func (u *UI) Ensure(ctx context.Context, guildID string, cat config.Category, channelID string) error {
	members, err := u.platform.ListMembers(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to list members of guild %s: %w", guildID, err)
	}

	history, err := u.platform.ListMessages(ctx, channelID, scanLimit)
	if err != nil {
		return fmt.Errorf("failed to read assignment channel %s: %w", channelID, err)
	}

	var current *platform.Message
	for i := range history {
		msg := history[i]
		if msg.AuthorID != u.platform.BotUserID() {
			continue
		}
		if _, ok := platform.FindSelect(msg.Components, SelectID); !ok {
			continue
		}
		if current == nil {
			current = &msg
			continue
		}
		u.log.Info().Str("category", cat.Name).Str("message", msg.ID).Msg("removing duplicate selector")
		if err := u.platform.DeleteMessage(ctx, channelID, msg.ID); err != nil {
			u.log.Warn().Err(err).Str("message", msg.ID).Msg("failed to remove duplicate selector")
		}
	}

	selected := ""
	if current != nil {
		selected = selection(current.Components)
	}
	rows := u.Render(members, cat, selected)
	content := prompt

	if current == nil {
		if _, err := u.platform.SendMessage(ctx, channelID, platform.MessageSend{Content: content, Components: rows}); err != nil {
			return fmt.Errorf("failed to post selector in %s: %w", channelID, err)
		}
		return nil
	}
	if _, err := u.platform.EditMessage(ctx, channelID, current.ID, platform.MessageEdit{Content: &content, Components: &rows}); err != nil {
		return fmt.Errorf("failed to refresh selector in %s: %w", channelID, err)
	}
	return nil
}

// Refresh re-renders the selector of cat after its membership changed.
func (u *UI) Refresh(ctx context.Context, guildID string, cat config.Category) error {
	if cat.CategoryID == "" {
		return nil
	}
	children, err := u.platform.ListChildChannels(ctx, guildID, cat.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to list category %s: %w", cat.Name, err)
	}
	ch, ok := policy.LayoutOf(children, u.cfg.Channels).Channel(policy.Assignment)
	if !ok {
		return fmt.Errorf("assignment channel of %s: %w", cat.Name, platform.ErrNotFound)
	}
	return u.Ensure(ctx, guildID, cat, ch.ID)
}

// Select marks the chosen member and enables the assign button.
func (u *UI) Select(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	cat, err := u.category(ctx, in, r)
	if err != nil {
		return err
	}

	selected := ""
	if len(in.Values) > 0 && in.Values[0] != noMembersValue {
		selected = in.Values[0]
	}

	members, err := u.platform.ListMembers(ctx, in.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list members of guild %s: %w", in.GuildID, err)
	}
	rows := u.Render(members, *cat, selected)
	content := prompt
	return r.Update(ctx, platform.MessageEdit{Content: &content, Components: &rows})
}

// OpenForm shows the task form for the member carried by the assign button.
func (u *UI) OpenForm(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	cat, err := u.category(ctx, in, r)
	if err != nil {
		return err
	}
	if err := u.authorize(ctx, in, *cat, r); err != nil {
		return err
	}

	userID, ok := strings.CutPrefix(in.CustomID, OpenPrefix+":")
	if !ok || userID == "" {
		return r.Reply(ctx, utils.Status("⚠️", "No member selected", "Select a member first."))
	}

	return r.ShowModal(ctx, platform.Modal{
		CustomID: ModalPrefix + userID,
		Title:    "Assign task",
		Inputs: []platform.TextInput{
			{CustomID: FieldTitle, Label: "Task", Placeholder: "What needs to be done", Required: true, MaxLength: 100},
			{CustomID: FieldDescription, Label: "Description", Placeholder: "Details (optional)", Paragraph: true, MaxLength: 1000},
		},
	})
}

// Submit creates the task in the member's personal channel. Nothing is created
// when the member has no personal channel in this category yet.
func (u *UI) Submit(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	cat, err := u.category(ctx, in, r)
	if err != nil {
		return err
	}
	if err := u.authorize(ctx, in, *cat, r); err != nil {
		return err
	}

	userID := strings.TrimPrefix(in.CustomID, ModalPrefix)
	title := strings.TrimSpace(in.Fields[FieldTitle])
	if userID == "" || title == "" {
		_ = r.Reply(ctx, utils.Status("⚠️", "Missing task", "The task title is required."))
		return fmt.Errorf("assign form without title or member: %w", platform.ErrValidation)
	}

	member, err := u.platform.FetchMember(ctx, in.GuildID, userID)
	if errors.Is(err, platform.ErrNotFound) {
		return r.Reply(ctx, utils.Status("❌", "Member not found", "The selected member is no longer in the server."))
	}
	if err != nil {
		return fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}

	children, err := u.platform.ListChildChannels(ctx, in.GuildID, cat.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to list category %s: %w", cat.Name, err)
	}
	personal, ok := policy.LayoutOf(children, u.cfg.Channels).PersonalChannel(member.UserID)
	if !ok {
		u.log.Info().Str("user", member.UserID).Str("category", cat.Name).Msg("assignee has no personal channel")
		return r.Reply(ctx, utils.Status("❌", "No task channel",
			fmt.Sprintf("%s has no task channel in %s yet. Ask them to create it from %s first.",
				utils.Bold(member.Username), cat.Name, utils.InlineCode(u.cfg.Channels.Starter))))
	}

	task, err := u.tasks.Create(ctx, tasks.CreateRequest{
		GuildID:     in.GuildID,
		ChannelID:   personal.ID,
		Category:    cat.Name,
		Assignee:    *member,
		AssignerID:  in.User.UserID,
		Title:       title,
		Description: in.Fields[FieldDescription],
	})
	if err != nil {
		_ = r.Reply(ctx, utils.Status("❌", "Could not assign the task", "Please try again."))
		return err
	}

	u.log.Info().Str("task", task.ID).Str("assigner", in.User.UserID).Str("assignee", member.UserID).Msg("task assigned from form")
	return r.Reply(ctx, utils.Status("✅", "Task assigned",
		fmt.Sprintf("Task assigned to %s in %s.", utils.Bold(member.Username), utils.ChannelMention(personal.ID))))
}

func (u *UI) category(ctx context.Context, in *platform.Interaction, r platform.Responder) (*config.Category, error) {
	cat, ok := u.cfg.CategoryByChannelID(in.CategoryID)
	if !ok {
		_ = r.Reply(ctx, utils.Status("❌", "Unknown category", "This channel does not belong to a configured category."))
		return nil, fmt.Errorf("category %q: %w", in.CategoryID, platform.ErrNotFound)
	}
	return cat, nil
}

// authorize requires the admin role of the category when one is configured.
func (u *UI) authorize(ctx context.Context, in *platform.Interaction, cat config.Category, r platform.Responder) error {
	if cat.AdminRoleID == "" || in.User.HasRole(cat.AdminRoleID) {
		return nil
	}
	_ = r.Reply(ctx, utils.Status("🚫", "Not allowed", "Only the category admins can assign tasks."))
	return fmt.Errorf("user %s is not an admin of %s: %w", in.User.UserID, cat.Name, platform.ErrUnauthorized)
}

// selection recovers the selected member from the assign button id.
func selection(rows []platform.ActionRow) string {
	b, ok := platform.FindButton(rows, OpenPrefix+":")
	if !ok {
		return ""
	}
	return strings.TrimPrefix(b.CustomID, OpenPrefix+":")
}
