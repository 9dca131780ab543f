// Package provision creates the managed channels of every category, resets their
// overwrites at startup and creates personal channels on request.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Formula-SAE/taskbot/internal/assignment"
	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/naming"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/policy"
	"github.com/Formula-SAE/taskbot/internal/reconcile"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

// CreateChannelID is the custom id of the starter button.
const CreateChannelID = "channel:create"

const historyLimit = 100

var (
	starterText  = utils.Status("👋", "Welcome!", "Press the button to create your personal task channel.")
	registryText = utils.Status("📒", "Task registry", "Started and completed tasks of this category are logged here.")
	videosText   = utils.Status("🎬", "Task videos", "Videos of completed tasks are archived here.")
)

// TaskRecoverer reopens the tasks of a channel that a previous run left waiting
// for a video.
type TaskRecoverer interface {
	Recover(ctx context.Context, channelID string, limit int) (int, error)
}

type Provisioner struct {
	platform   platform.ChatPlatform
	cfg        *config.Config
	reconciler *reconcile.Reconciler
	selectors  *assignment.UI
	tasks      TaskRecoverer
	log        zerolog.Logger
}

func New(p platform.ChatPlatform, cfg *config.Config, rec *reconcile.Reconciler, ui *assignment.UI, tasks TaskRecoverer) *Provisioner {
	return &Provisioner{
		platform:   p,
		cfg:        cfg,
		reconciler: rec,
		selectors:  ui,
		tasks:      tasks,
		log:        logger.Component("provision"),
	}
}

// InitializeGuild provisions every configured category. A category that fails is
// logged and skipped; the guild is reconciled at the end either way.
func (p *Provisioner) InitializeGuild(ctx context.Context, guildID string) error {
	if err := p.resolveCategories(ctx, guildID); err != nil {
		p.log.Warn().Err(err).Str("guild", guildID).Msg("failed to resolve category channels")
	}

	var errs []error
	for _, cat := range p.cfg.Categories {
		if err := p.InitializeCategory(ctx, guildID, cat); err != nil {
			err = fmt.Errorf("category %s: %w: %w", cat.Name, platform.ErrStartup, err)
			p.log.Error().Err(err).Str("guild", guildID).Msg("failed to initialize category")
			errs = append(errs, err)
			continue
		}
		p.log.Info().Str("guild", guildID).Str("category", cat.Name).Msg("category initialized")
	}

	if _, err := p.reconciler.ReconcileAll(ctx, guildID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// resolveCategories fills in missing category ids by matching the guild's
// category channels by normalized name. It runs before any handler is wired.
func (p *Provisioner) resolveCategories(ctx context.Context, guildID string) error {
	missing := false
	for _, cat := range p.cfg.Categories {
		if cat.CategoryID == "" {
			missing = true
		}
	}
	if !missing {
		return nil
	}

	channels, err := p.platform.ListCategories(ctx, guildID)
	if err != nil {
		return err
	}
	for i := range p.cfg.Categories {
		cat := &p.cfg.Categories[i]
		if cat.CategoryID != "" {
			continue
		}
		for _, ch := range channels {
			if naming.Normalize(ch.Name) == naming.Normalize(cat.Name) {
				cat.CategoryID = ch.ID
				p.log.Info().Str("category", cat.Name).Str("channel", ch.ID).Msg("category resolved by name")
				break
			}
		}
		if cat.CategoryID == "" {
			p.log.Warn().Str("category", cat.Name).Msg("no category channel matches this category")
		}
	}
	return nil
}

// InitializeCategory creates the missing managed channels, resets the overwrites
// of the existing ones and of every personal channel, reopens interrupted uploads
// and posts the fixed messages.
func (p *Provisioner) InitializeCategory(ctx context.Context, guildID string, cat config.Category) error {
	if cat.CategoryID == "" {
		return fmt.Errorf("category channel of %s: %w", cat.Name, platform.ErrNotFound)
	}
	children, err := p.platform.ListChildChannels(ctx, guildID, cat.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to list category channels: %w", err)
	}
	layout := policy.LayoutOf(children, p.cfg.Channels)
	botID := p.platform.BotUserID()

	channels := make(map[policy.Kind]platform.Channel, len(policy.ManagedKinds))
	for _, k := range policy.ManagedKinds {
		base := policy.BaseOverwrites(k, cat, guildID, botID)
		if ch, ok := layout.Channel(k); ok {
			p.reset(ctx, ch, base)
			channels[k] = ch
			continue
		}

		name := policy.ChannelName(p.cfg.Channels, k)
		ch, err := p.platform.CreateChannel(ctx, guildID, platform.ChannelSpec{
			Name:       name,
			ParentID:   cat.CategoryID,
			Overwrites: base,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s channel %s: %w", k, name, err)
		}
		p.log.Info().Str("category", cat.Name).Str("channel", name).Msg("managed channel created")
		channels[k] = *ch
	}

	for userID, ch := range layout.Personal {
		p.reset(ctx, ch, policy.PersonalOverwrites(cat, guildID, botID, userID))
		n, err := p.tasks.Recover(ctx, ch.ID, historyLimit)
		if err != nil {
			p.log.Warn().Err(err).Str("channel", ch.Name).Msg("failed to recover interrupted uploads")
			continue
		}
		if n > 0 {
			p.log.Info().Str("channel", ch.Name).Int("tasks", n).Msg("interrupted uploads reopened")
		}
	}

	if err := p.EnsureStarterMessage(ctx, channels[policy.Starter].ID); err != nil {
		return err
	}
	if err := p.EnsureInfoMessage(ctx, channels[policy.Registry].ID, registryText); err != nil {
		return err
	}
	if err := p.EnsureInfoMessage(ctx, channels[policy.Videos].ID, videosText); err != nil {
		return err
	}
	return p.selectors.Ensure(ctx, guildID, cat, channels[policy.Assignment].ID)
}

// reset applies the base overwrites that differ from the channel's current ones.
// Member overwrites other than the ones listed are left to the reconciler.
func (p *Provisioner) reset(ctx context.Context, ch platform.Channel, base []platform.Overwrite) {
	for _, ow := range base {
		if have, ok := ch.Overwrites[ow.SubjectID]; ok && have.Equal(ow.Permissions) {
			continue
		}
		if err := p.platform.SetChannelPermission(ctx, ch.ID, ow.SubjectID, ow.Kind, ow.Permissions); err != nil {
			p.log.Warn().Err(err).Str("channel", ch.Name).Str("subject", ow.SubjectID).Msg("failed to reset overwrite")
		}
	}
}

// EnsureStarterMessage keeps exactly one bot message in the starter channel: the
// one carrying the create channel button.
func (p *Provisioner) EnsureStarterMessage(ctx context.Context, channelID string) error {
	history, err := p.platform.ListMessages(ctx, channelID, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read starter channel: %w", err)
	}

	botID := p.platform.BotUserID()
	kept := false
	for _, msg := range history {
		if msg.AuthorID != botID {
			continue
		}
		if _, ok := platform.FindButton(msg.Components, CreateChannelID); ok && !kept {
			kept = true
			continue
		}
		if err := p.platform.DeleteMessage(ctx, channelID, msg.ID); err != nil {
			p.log.Warn().Err(err).Str("message", msg.ID).Msg("failed to delete stray starter message")
		}
	}
	if kept {
		return nil
	}

	_, err = p.platform.SendMessage(ctx, channelID, platform.MessageSend{
		Content: starterText,
		Components: []platform.ActionRow{{Buttons: []platform.Button{{
			CustomID: CreateChannelID,
			Label:    "Create channel",
			Style:    platform.ButtonPrimary,
		}}}},
	})
	if err != nil {
		return fmt.Errorf("failed to post starter message: %w", err)
	}
	return nil
}

// EnsureInfoMessage posts content once in a channel that otherwise only holds
// bot log entries.
func (p *Provisioner) EnsureInfoMessage(ctx context.Context, channelID, content string) error {
	history, err := p.platform.ListMessages(ctx, channelID, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read channel %s: %w", channelID, err)
	}
	for _, msg := range history {
		if msg.AuthorID == p.platform.BotUserID() && msg.Content == content {
			return nil
		}
	}
	if _, err := p.platform.SendMessage(ctx, channelID, platform.MessageSend{Content: content}); err != nil {
		return fmt.Errorf("failed to post info message in %s: %w", channelID, err)
	}
	return nil
}

// CreatePersonalChannel handles the starter button.
func (p *Provisioner) CreatePersonalChannel(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	cat, ok := p.cfg.CategoryByChannelID(in.CategoryID)
	if !ok {
		_ = r.Reply(ctx, utils.Status("❌", "Unknown category", "This channel does not belong to a configured category."))
		return fmt.Errorf("category %q: %w", in.CategoryID, platform.ErrNotFound)
	}

	user := in.User
	if !user.HasRole(cat.RoleID) && !user.HasRole(cat.AdminRoleID) {
		_ = r.Reply(ctx, utils.Status("🚫", "Not allowed", fmt.Sprintf("You need the %s role to create a task channel here.", cat.Name)))
		return fmt.Errorf("user %s lacks the role of %s: %w", user.UserID, cat.Name, platform.ErrUnauthorized)
	}

	children, err := p.platform.ListChildChannels(ctx, in.GuildID, cat.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to list category %s: %w", cat.Name, err)
	}
	if existing, ok := policy.LayoutOf(children, p.cfg.Channels).PersonalChannel(user.UserID); ok {
		return r.Reply(ctx, utils.Status("ℹ️", "You already have a task channel",
			fmt.Sprintf("Go to %s to see your tasks.", utils.ChannelMention(existing.ID))))
	}

	name := naming.ChannelName(user.Username, user.UserID, cat.Name)
	ch, err := p.platform.CreateChannel(ctx, in.GuildID, platform.ChannelSpec{
		Name:       name,
		ParentID:   cat.CategoryID,
		Overwrites: policy.PersonalOverwrites(*cat, in.GuildID, p.platform.BotUserID(), user.UserID),
	})
	if err != nil {
		_ = r.Reply(ctx, utils.Status("❌", "Could not create your channel", "Please try again later."))
		return fmt.Errorf("failed to create personal channel %s: %w", name, err)
	}
	p.log.Info().Str("user", user.UserID).Str("channel", name).Msg("personal channel created")

	if _, err := p.reconciler.ReconcileMember(ctx, in.GuildID, user.UserID); err != nil {
		p.log.Warn().Err(err).Str("user", user.UserID).Msg("failed to reconcile after channel creation")
	}

	return r.Reply(ctx, utils.Status("✅", "Channel created!",
		fmt.Sprintf("Go to %s to see your tasks.", utils.ChannelMention(ch.ID))))
}
