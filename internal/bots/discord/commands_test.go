package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Formula-SAE/taskbot/internal/db"
)

func TestFormatAssignedTasks(t *testing.T) {
	t.Run("no tasks", func(t *testing.T) {
		assert.Contains(t, formatAssignedTasks(nil), "no tasks assigned")
	})

	t.Run("lists every task", func(t *testing.T) {
		out := formatAssignedTasks([]db.Task{
			{
				MessageID: "m1", GuildID: "g", ChannelID: "c",
				Title: "Design wing", Category: "Calpe", Status: db.TASK_ASSIGNED,
				Author: db.User{DiscordID: "42"},
			},
			{
				MessageID: "m2", GuildID: "g", ChannelID: "c",
				Title: "Fit seat", Status: db.TASK_COMPLETED, DurationSeconds: 45,
				Author: db.User{DiscordID: "42"},
			},
		})

		assert.Contains(t, out, "### 📋 Your assigned tasks")
		assert.Contains(t, out, "_Title_: Design wing")
		assert.Contains(t, out, "_Category_: Calpe")
		assert.Contains(t, out, "_Author_: <@42>")
		assert.Contains(t, out, "_Status_: ⏳ "+db.TASK_ASSIGNED)
		assert.Contains(t, out, "_Duration_: 0h 0m 45s")
		assert.Contains(t, out, "https://discord.com/channels/g/c/m2")
		assert.NotContains(t, out, "_Description_")
	})
}
