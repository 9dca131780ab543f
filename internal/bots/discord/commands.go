package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"github.com/Formula-SAE/taskbot/internal/db"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

func (b *DiscordBot) commands() []*discordgo.ApplicationCommand {
	manageRoles := int64(discordgo.PermissionManageRoles)
	commands := []*discordgo.ApplicationCommand{
		{
			Name:                     "reconcile",
			Description:              "Re-apply channel visibility to every member",
			DefaultMemberPermissions: &manageRoles,
		},
	}
	if b.db != nil {
		commands = append(commands, &discordgo.ApplicationCommand{
			Name:        "assigned-tasks",
			Description: "Get all tasks assigned to the current user",
		})
	}
	return commands
}

func (b *DiscordBot) reconcileCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	if i.ApplicationCommandData().Name != "reconcile" {
		return
	}

	log := logger.WithEvent("reconcile")
	if i.Member == nil || i.Member.User == nil || !b.handlesGuild(i.GuildID) {
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "🚫 **Access denied**\n\nThis command must be used inside the server.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}
	log.Info().Str("user", i.Member.User.Username).Msg("command executed")

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to defer response")
		return
	}

	res, err := b.reconciler.ReconcileAll(b.ctx, i.GuildID)
	content := utils.Status("✅", "Reconciliation finished", fmt.Sprintf(
		"*Members*: %d\n*Permissions updated*: %d\n*Already correct*: %d\n*Failed*: %d",
		res.Members, res.Applied, res.Skipped, res.Failed))
	if err != nil {
		log.Error().Err(err).Msg("reconciliation failed")
		content = utils.Status("❌", "Reconciliation failed", "An error occurred while reconciling the members. Please try again or contact an administrator.")
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		log.Error().Err(err).Msg("failed to send result")
	}
}

func (b *DiscordBot) assignedTasksCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	if i.ApplicationCommandData().Name != "assigned-tasks" || b.db == nil {
		return
	}

	log := logger.WithEvent("assigned-tasks")
	if i.Member == nil || i.Member.User == nil {
		log.Info().Msg("user is not a member of the server")
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "You must be a member of a server to use this command",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}

	log.Info().Str("user", i.Member.User.Username).Msg("command executed")
	userDiscordID := i.Member.User.ID
	respContent, err := b.assignedTasks(b.ctx, userDiscordID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get assigned tasks")
		respContent = "❌ **Failed to retrieve tasks**\n\nAn error occurred while fetching your assigned tasks. Please try again or contact an administrator."
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: respContent,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *DiscordBot) assignedTasks(ctx context.Context, userDiscordID string) (string, error) {
	tasks, err := b.db.GetAssignedTasksByUserDiscordID(ctx, userDiscordID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tasks, err = nil, nil
	}
	if err != nil {
		return "", err
	}
	return formatAssignedTasks(tasks), nil
}

func formatAssignedTasks(tasks []db.Task) string {
	if len(tasks) == 0 {
		return "🎉 You have no tasks assigned to you at the moment."
	}

	respContent := utils.H3("📋 Your assigned tasks") + "\n"
	for _, task := range tasks {
		respContent += fmt.Sprintf("\n%s: %s", utils.Italic("Title"), task.Title)
		if task.Description != "" {
			respContent += fmt.Sprintf("\n%s: %s", utils.Italic("Description"), task.Description)
		}
		if task.Category != "" {
			respContent += fmt.Sprintf("\n%s: %s", utils.Italic("Category"), task.Category)
		}
		respContent += fmt.Sprintf("\n%s: %s", utils.Italic("Author"), utils.UserMention(task.Author.DiscordID))
		respContent += fmt.Sprintf("\n%s: %s %s", utils.Italic("Status"), getStatusIcon(task.Status), task.Status)
		if task.Status == db.TASK_COMPLETED {
			respContent += fmt.Sprintf("\n%s: %s", utils.Italic("Duration"), utils.Duration(time.Duration(task.DurationSeconds)*time.Second))
		}
		respContent += fmt.Sprintf("\n%s\n", utils.Link("View task", platform.MessageLink(task.GuildID, task.ChannelID, task.MessageID)))
	}
	return respContent
}

func getStatusIcon(status string) string {
	switch status {
	case db.TASK_ASSIGNED:
		return "⏳"
	case db.TASK_IN_PROGRESS:
		return "🔄"
	case db.TASK_COMPLETED:
		return "✅"
	default:
		return "❓"
	}
}
