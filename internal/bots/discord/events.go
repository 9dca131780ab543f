package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/platform"
)

func (b *DiscordBot) handlesGuild(guildID string) bool {
	return guildID != "" && (b.cfg.Discord.GuildID == "" || b.cfg.Discord.GuildID == guildID)
}

// guildCreate provisions a guild when it becomes available, at startup and after
// the bot joins it.
func (b *DiscordBot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable || !b.handlesGuild(g.ID) {
		return
	}
	b.trackGuild(g.ID)

	log := logger.WithEvent("guild-create")
	log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("initializing guild")
	if err := b.provisioner.InitializeGuild(log.WithContext(b.ctx), g.ID); err != nil {
		log.Error().Err(err).Str("guild", g.ID).Msg("guild initialized with errors")
		return
	}
	log.Info().Str("guild", g.ID).Msg("guild initialized")
}

func (b *DiscordBot) guildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if !b.handlesGuild(m.GuildID) || m.Member == nil {
		return
	}
	log := logger.WithEvent("member-add")
	if err := b.reconciler.OnMemberJoin(b.ctx, m.GuildID, toMember(m.Member)); err != nil {
		log.Error().Err(err).Msg("failed to reconcile new member")
	}
}

func (b *DiscordBot) guildMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if !b.handlesGuild(m.GuildID) || m.Member == nil {
		return
	}
	var before *platform.Member
	if m.BeforeUpdate != nil {
		prev := toMember(m.BeforeUpdate)
		before = &prev
	}

	log := logger.WithEvent("member-update")
	if err := b.reconciler.OnRoleChange(b.ctx, m.GuildID, before, toMember(m.Member)); err != nil {
		log.Error().Err(err).Msg("failed to apply role change")
	}
}

// guildMemberRemove drops the member from the selectors it appeared in.
func (b *DiscordBot) guildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if !b.handlesGuild(m.GuildID) || m.Member == nil {
		return
	}
	gone := toMember(m.Member)

	log := logger.WithEvent("member-remove")
	for _, cat := range b.cfg.Categories {
		if len(gone.Roles) > 0 && !gone.HasRole(cat.RoleID) {
			continue
		}
		if err := b.assignment.Refresh(b.ctx, m.GuildID, cat); err != nil {
			log.Warn().Err(err).Str("category", cat.Name).Msg("failed to refresh member selector")
		}
	}
}

func (b *DiscordBot) channelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if c.Channel == nil || !b.handlesGuild(c.GuildID) || c.Type != discordgo.ChannelTypeGuildText {
		return
	}
	log := logger.WithEvent("channel-create")
	if err := b.reconciler.OnPersonalChannelCreated(b.ctx, toChannel(c.Channel)); err != nil {
		log.Error().Err(err).Str("channel", c.Name).Msg("failed to reconcile channel owner")
	}
}

func (b *DiscordBot) channelDelete(s *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.Channel == nil || !b.handlesGuild(c.GuildID) || c.Type != discordgo.ChannelTypeGuildText {
		return
	}
	log := logger.WithEvent("channel-delete")
	if err := b.reconciler.OnPersonalChannelDeleted(b.ctx, toChannel(c.Channel)); err != nil {
		log.Error().Err(err).Str("channel", c.Name).Msg("failed to reconcile channel owner")
	}
}

// sweep reconciles every known guild; it backs the periodic job.
func (b *DiscordBot) sweep() {
	log := logger.WithEvent("sweep")
	for _, guildID := range b.knownGuilds() {
		res, err := b.reconciler.ReconcileAll(b.ctx, guildID)
		if err != nil {
			log.Error().Err(err).Str("guild", guildID).Msg("periodic reconciliation failed")
			continue
		}
		log.Info().Str("guild", guildID).Int("applied", res.Applied).Int("failed", res.Failed).Msg("periodic reconciliation done")
	}
}

func (b *DiscordBot) trackGuild(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.guilds[guildID] = struct{}{}
}

func (b *DiscordBot) knownGuilds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.guilds))
	for id := range b.guilds {
		out = append(out, id)
	}
	return out
}
