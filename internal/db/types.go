package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	TASK_ASSIGNED    = "Assigned"
	TASK_IN_PROGRESS = "In Progress"
	TASK_COMPLETED   = "Completed"
)

type User struct {
	gorm.Model

	Username  string
	DiscordID string `gorm:"unique"`

	AssignedTasks []Task `gorm:"foreignKey:AssignedUserID"`
	CreatedTasks  []Task `gorm:"foreignKey:AuthorID"`
}

// Task mirrors a task announcement message; MessageID is the task id.
type Task struct {
	gorm.Model

	MessageID   string `gorm:"uniqueIndex"`
	GuildID     string
	ChannelID   string
	Category    string
	Title       string
	Description string
	Status      string `gorm:"default:Assigned"`

	AuthorID uint
	Author   User

	AssignedUserID uint
	AssignedUser   User

	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds int64
}
