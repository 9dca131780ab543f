package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Formula-SAE/taskbot/internal/tasks"
)

// DB journals task transitions. It is write-only for the task flow: the task
// message decides every transition.
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Task{})
}

// EnsureUser returns the user with discordID, creating it when missing. A
// non-empty username replaces the stored one.
func (d *DB) EnsureUser(ctx context.Context, discordID, username string) (*User, error) {
	if discordID == "" {
		return nil, fmt.Errorf("empty discord id: %w", gorm.ErrInvalidValue)
	}
	user := &User{}
	if err := d.db.WithContext(ctx).Where(User{DiscordID: discordID}).FirstOrCreate(user).Error; err != nil {
		return nil, err
	}

	if username != "" && user.Username != username {
		user.Username = username
		if err := d.db.WithContext(ctx).Model(user).Update("username", username).Error; err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (d *DB) GetUserByDiscordID(ctx context.Context, discordID string) (*User, error) {
	user := &User{}

	if err := d.db.WithContext(ctx).Where("discord_id = ?", discordID).First(user).Error; err != nil {
		return nil, err
	}

	return user, nil
}

func (d *DB) TaskAssigned(ctx context.Context, t tasks.Task, req tasks.CreateRequest) error {
	author, err := d.EnsureUser(ctx, req.AssignerID, "")
	if err != nil {
		return fmt.Errorf("failed to record assigner %s: %w", req.AssignerID, err)
	}
	assignee, err := d.EnsureUser(ctx, t.AssigneeID, req.Assignee.Username)
	if err != nil {
		return fmt.Errorf("failed to record assignee %s: %w", t.AssigneeID, err)
	}

	return d.db.WithContext(ctx).Create(&Task{
		MessageID:      t.ID,
		GuildID:        t.GuildID,
		ChannelID:      t.ChannelID,
		Category:       req.Category,
		Title:          t.Title,
		Description:    t.Description,
		Status:         TASK_ASSIGNED,
		AuthorID:       author.ID,
		AssignedUserID: assignee.ID,
	}).Error
}

func (d *DB) TaskStarted(ctx context.Context, t tasks.Task) error {
	startedAt := t.StartedAt
	return d.update(ctx, t.ID, map[string]any{
		"status":     TASK_IN_PROGRESS,
		"started_at": &startedAt,
	})
}

func (d *DB) TaskCompleted(ctx context.Context, t tasks.Task, completedAt int64) error {
	at := time.Unix(completedAt, 0)
	return d.update(ctx, t.ID, map[string]any{
		"status":           TASK_COMPLETED,
		"completed_at":     &at,
		"duration_seconds": int64(t.Duration / time.Second),
	})
}

func (d *DB) update(ctx context.Context, messageID string, values map[string]any) error {
	res := d.db.WithContext(ctx).Model(&Task{}).Where("message_id = ?", messageID).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s is not journalled: %w", messageID, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetAssignedTasksByUserDiscordID lists the tasks of a user, newest first.
func (d *DB) GetAssignedTasksByUserDiscordID(ctx context.Context, userID string) ([]Task, error) {
	records := make([]Task, 0)

	user, err := d.GetUserByDiscordID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := d.db.WithContext(ctx).Preload("Author").Preload("AssignedUser").
		Where("assigned_user_id = ?", user.ID).
		Order("created_at desc").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

var _ tasks.Journal = (*DB)(nil)
