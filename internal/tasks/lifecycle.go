// Package tasks implements the task state machine:
//
//	Assigned -> Started -> AwaitingVideo -> Completed
//	                ^             |
//	                +-- timeout --+
//
// Transitions are driven only by the assignee through the announcement message's
// controls; the triggering control is disabled before any asynchronous wait.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/policy"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

type Lifecycle struct {
	platform platform.ChatPlatform
	cfg      *config.Config
	journal  Journal
	log      zerolog.Logger

	// Now is the clock used for start times and durations.
	Now func() time.Time

	mu         sync.Mutex
	collecting map[string]struct{}
}

func NewLifecycle(p platform.ChatPlatform, cfg *config.Config, journal Journal) *Lifecycle {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Lifecycle{
		platform: p,
		cfg:      cfg,
		journal:  journal,
		log:        logger.Component("tasks"),
		Now:        time.Now,
		collecting: map[string]struct{}{},
	}
}

// CreateRequest describes a task an admin assigns from the assignment channel.
type CreateRequest struct {
	GuildID     string
	ChannelID   string
	Category    string
	Assignee    platform.Member
	AssignerID  string
	Title       string
	Description string
}

// Create posts the announcement of a new task in the assignee's personal channel.
// Nothing is written to the registry until the assignee starts it.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("task title is required: %w", platform.ErrValidation)
	}

	t := Task{
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		AssigneeID:  req.Assignee.UserID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		State:       Assigned,
	}
	embeds, rows := Render(t)
	msg, err := l.platform.SendMessage(ctx, req.ChannelID, platform.MessageSend{
		Content:    utils.UserMention(t.AssigneeID),
		Embeds:     embeds,
		Components: rows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post task in channel %s: %w", req.ChannelID, err)
	}
	t.ID = msg.ID

	l.log.Info().Str("task", t.ID).Str("assignee", t.AssigneeID).Str("title", t.Title).Msg("task assigned")
	if err := l.journal.TaskAssigned(ctx, t, req); err != nil {
		l.log.Warn().Err(err).Str("task", t.ID).Msg("failed to journal assigned task")
	}

	link := platform.MessageLink(req.GuildID, req.ChannelID, t.ID)
	dm := utils.Status("📋", "New task assigned", fmt.Sprintf("%s\n%s", utils.Bold(t.Title), utils.Link("View task", link)))
	if err := l.platform.SendDirectMessage(ctx, t.AssigneeID, dm); err != nil {
		l.log.Debug().Err(err).Str("user", t.AssigneeID).Msg("could not DM assignee")
	}
	return &t, nil
}

// Start moves an Assigned task to Started and logs it in the registry.
func (l *Lifecycle) Start(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	t, err := l.authorize(ctx, in, r)
	if err != nil {
		return err
	}
	if t.State != Assigned {
		return r.Reply(ctx, utils.Status("ℹ️", "Task already started", "Use the upload button once you have finished."))
	}

	t.State = Started
	t.StartedAt = l.Now()
	if err := l.update(ctx, r, *t); err != nil {
		return fmt.Errorf("failed to mark task %s as started: %w", t.ID, err)
	}

	link := platform.MessageLink(t.GuildID, t.ChannelID, t.ID)
	l.postRegistry(ctx, in, platform.Embed{
		Title:       "Task started",
		Description: fmt.Sprintf("%s started the task:", utils.UserMention(t.AssigneeID)),
		Color:       colorActive,
		Fields: []platform.EmbedField{
			{Name: fieldTask, Value: t.Title},
			{Name: fieldDescription, Value: describe(t.Description)},
			{Name: "Link", Value: utils.Link("View task", link), Inline: true},
		},
		Timestamp: t.StartedAt,
	})

	if err := l.journal.TaskStarted(ctx, *t); err != nil {
		l.log.Warn().Err(err).Str("task", t.ID).Msg("failed to journal started task")
	}
	return r.FollowUp(ctx, utils.Status("✅", "Task started!", "Upload the video when you complete it."))
}

// Upload moves a Started task to AwaitingVideo and collects the video. It blocks
// until a video arrives, the upload window closes or ctx is cancelled.
func (l *Lifecycle) Upload(ctx context.Context, in *platform.Interaction, r platform.Responder) error {
	t, err := l.authorize(ctx, in, r)
	if err != nil {
		return err
	}
	switch t.State {
	case Assigned:
		return r.Reply(ctx, utils.Status("⚠️", "Task not started", "Start the task before uploading its video."))
	case AwaitingVideo:
		return r.Reply(ctx, utils.Status("ℹ️", "Upload already in progress", "Send the video in this channel."))
	case Completed:
		return r.Reply(ctx, utils.Status("ℹ️", "Task already completed", ""))
	}

	// Disabling the control is the acknowledgement itself, so a second click
	// can never enter the wait.
	t.State = AwaitingVideo
	if err := l.update(ctx, r, *t); err != nil {
		return fmt.Errorf("failed to disable upload for task %s: %w", t.ID, err)
	}

	timeout := l.cfg.Tasks.UploadTimeout
	if err := r.FollowUp(ctx, utils.Status("🎥", "Upload your video",
		fmt.Sprintf("Send the video of your task in this channel. You have %s.", humanize(timeout)))); err != nil {
		l.log.Warn().Err(err).Str("task", t.ID).Msg("failed to send upload instructions")
	}

	return l.collect(ctx, in, r, t, timeout)
}

func (l *Lifecycle) collect(ctx context.Context, in *platform.Interaction, r platform.Responder, t *Task, timeout time.Duration) error {
	l.track(t.ID, true)
	defer l.track(t.ID, false)

	deadline := time.Now().Add(timeout)
	fromAssignee := func(m platform.Message) bool {
		return m.AuthorID == t.AssigneeID && len(m.Attachments) > 0
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return l.expire(ctx, r, t)
		}

		msg, err := l.platform.AwaitNextMessage(ctx, t.ChannelID, fromAssignee, remaining)
		if errors.Is(err, platform.ErrTimedOut) {
			return l.expire(ctx, r, t)
		}
		if err != nil {
			// ctx may be cancelled here; the control must come back regardless.
			l.reopen(context.WithoutCancel(ctx), t)
			_ = r.FollowUp(ctx, utils.Status("❌", "Video upload failed", "Something went wrong while waiting for the video. Please try again."))
			return fmt.Errorf("failed waiting for video of task %s: %w", t.ID, err)
		}

		att := msg.Attachments[0]
		if !IsVideo(att) {
			l.log.Info().Str("task", t.ID).Str("content_type", att.ContentType).Msg("rejected non-video attachment")
			if err := l.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
				l.log.Warn().Err(err).Str("message", msg.ID).Msg("failed to delete rejected attachment")
			}
			_ = r.FollowUp(ctx, utils.Status("⚠️", "That is not a video", "Only video files are accepted. Send the video again before the time runs out."))
			continue
		}

		return l.complete(ctx, in, r, t, *msg, att)
	}
}

// complete archives the video first: if that fails the task returns to Started
// with its upload control enabled, so it is never left stuck.
func (l *Lifecycle) complete(ctx context.Context, in *platform.Interaction, r platform.Responder, t *Task, video platform.Message, att platform.Attachment) error {
	now := l.Now()
	if !t.StartedAt.IsZero() {
		t.Duration = now.Sub(t.StartedAt)
	}

	if err := l.archive(ctx, in, t, att, now); err != nil {
		l.log.Error().Err(err).Str("task", t.ID).Msg("failed to archive task video")
		l.reopen(ctx, t)
		_ = r.FollowUp(ctx, utils.Status("❌", "Video upload failed", "There was an error processing the video. Please press upload and try again."))
		return err
	}

	t.State = Completed
	if err := l.finalize(ctx, t); err != nil {
		l.log.Error().Err(err).Str("task", t.ID).Msg("failed to mark task message as completed")
		l.reopen(context.WithoutCancel(ctx), t)
		_ = r.FollowUp(ctx, utils.Status("❌", "Task not finalized",
			"Your video was archived but the task could not be marked as completed. Press upload and try again, or contact an administrator."))
		return fmt.Errorf("failed to finalize task %s: %w", t.ID, err)
	}

	l.postRegistry(ctx, in, platform.Embed{
		Title:       completedTitle,
		Description: fmt.Sprintf("%s completed a task", utils.UserMention(t.AssigneeID)),
		Color:       colorCompleted,
		Fields: []platform.EmbedField{
			{Name: fieldTask, Value: t.Title},
			{Name: fieldDescription, Value: describe(t.Description)},
			{Name: fieldDuration, Value: utils.Duration(t.Duration), Inline: true},
			{Name: "Channel", Value: utils.ChannelMention(t.ChannelID), Inline: true},
		},
		Timestamp: now,
	})

	if err := l.platform.DeleteMessage(ctx, video.ChannelID, video.ID); err != nil {
		l.log.Warn().Err(err).Str("message", video.ID).Msg("failed to delete uploaded video message")
	}

	if err := l.journal.TaskCompleted(ctx, *t, now.Unix()); err != nil {
		l.log.Warn().Err(err).Str("task", t.ID).Msg("failed to journal completed task")
	}

	l.log.Info().Str("task", t.ID).Dur("duration", t.Duration).Msg("task completed")
	return r.FollowUp(ctx, utils.Status("✅", "Video uploaded!",
		fmt.Sprintf("You completed the task in %s.", utils.Duration(t.Duration))))
}

// finalize edits the announcement into its terminal form. When the message
// cannot be edited, the terminal form is posted as a new message and the stale
// announcement is removed, so no disabled controls are left behind.
func (l *Lifecycle) finalize(ctx context.Context, t *Task) error {
	embeds, rows := Render(*t)
	edit := platform.MessageEdit{Embeds: &embeds, Components: &rows}
	_, err := l.platform.EditMessage(ctx, t.ChannelID, t.ID, edit)
	if err == nil {
		return nil
	}
	l.log.Warn().Err(err).Str("task", t.ID).Msg("retrying completed edit")
	if _, err = l.platform.EditMessage(context.WithoutCancel(ctx), t.ChannelID, t.ID, edit); err == nil {
		return nil
	}

	msg, sendErr := l.platform.SendMessage(context.WithoutCancel(ctx), t.ChannelID, platform.MessageSend{
		Content:    utils.UserMention(t.AssigneeID),
		Embeds:     embeds,
		Components: rows,
	})
	if sendErr != nil {
		return errors.Join(err, sendErr)
	}
	l.log.Info().Str("task", t.ID).Str("message", msg.ID).Msg("completed task reposted")
	if err := l.platform.DeleteMessage(context.WithoutCancel(ctx), t.ChannelID, t.ID); err != nil {
		l.log.Warn().Err(err).Str("task", t.ID).Msg("failed to delete stale task message")
	}
	return nil
}

// archive re-uploads the video into the videos channel; attachment URLs expire.
func (l *Lifecycle) archive(ctx context.Context, in *platform.Interaction, t *Task, att platform.Attachment, now time.Time) error {
	videos, err := l.managedChannel(ctx, in, policy.Videos)
	if err != nil {
		return err
	}

	body, err := l.platform.OpenAttachment(ctx, att)
	if err != nil {
		return fmt.Errorf("failed to download video %s: %w", att.Filename, err)
	}
	defer body.Close()

	link := platform.MessageLink(t.GuildID, t.ChannelID, t.ID)
	_, err = l.platform.SendMessage(ctx, videos.ID, platform.MessageSend{
		Embeds: []platform.Embed{{
			Title:       "Completed task video",
			Description: utils.Bold("Task:") + " " + t.Title,
			Color:       colorActive,
			Fields: []platform.EmbedField{
				{Name: "User", Value: utils.UserMention(t.AssigneeID), Inline: true},
				{Name: fieldDuration, Value: utils.Duration(t.Duration), Inline: true},
				{Name: "Original task", Value: utils.Link("View task", link), Inline: true},
			},
			Timestamp: now,
		}},
		Files: []platform.File{{
			Name:        videoFileName(in.User.Username, att, now),
			ContentType: att.ContentType,
			Reader:      body,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to post video to %s: %w", videos.Name, err)
	}
	return nil
}

// expire puts the task back to Started after the upload window closed.
func (l *Lifecycle) expire(ctx context.Context, r platform.Responder, t *Task) error {
	l.log.Info().Str("task", t.ID).Msg("video upload window expired")
	l.reopen(ctx, t)
	return r.FollowUp(ctx, utils.Status("⌛", "Time is up",
		"You ran out of time to upload the video. Press \"Upload video\" again to retry."))
}

// Recover re-enables the upload control of every task in channelID left waiting
// for a video that no collection in this process is serving, which happens when
// the bot stopped during an upload window. It returns the number of tasks reopened.
func (l *Lifecycle) Recover(ctx context.Context, channelID string, limit int) (int, error) {
	history, err := l.platform.ListMessages(ctx, channelID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to read channel %s: %w", channelID, err)
	}

	botID := l.platform.BotUserID()
	reopened := 0
	for _, msg := range history {
		if msg.AuthorID != botID {
			continue
		}
		t, err := Decode(msg)
		if err != nil || t.State != AwaitingVideo || l.isCollecting(t.ID) {
			continue
		}
		if t.ChannelID == "" {
			t.ChannelID = channelID
		}
		l.reopen(ctx, t)
		l.log.Info().Str("task", t.ID).Msg("task left awaiting video reopened")
		reopened++
	}
	return reopened, nil
}

func (l *Lifecycle) track(taskID string, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if on {
		l.collecting[taskID] = struct{}{}
	} else {
		delete(l.collecting, taskID)
	}
}

func (l *Lifecycle) isCollecting(taskID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.collecting[taskID]
	return ok
}

// reopen re-enables the upload control.
func (l *Lifecycle) reopen(ctx context.Context, t *Task) {
	t.State = Started
	embeds, rows := Render(*t)
	if _, err := l.platform.EditMessage(ctx, t.ChannelID, t.ID, platform.MessageEdit{Embeds: &embeds, Components: &rows}); err != nil {
		l.log.Error().Err(err).Str("task", t.ID).Msg("failed to re-enable upload control")
	}
}

func (l *Lifecycle) authorize(ctx context.Context, in *platform.Interaction, r platform.Responder) (*Task, error) {
	if in.Message == nil {
		_ = r.Reply(ctx, utils.Status("❌", "Unknown task", "This task message could not be read."))
		return nil, fmt.Errorf("interaction %s carries no message: %w", in.CustomID, platform.ErrValidation)
	}
	t, err := Decode(*in.Message)
	if err != nil {
		_ = r.Reply(ctx, utils.Status("❌", "Unknown task", "This task message could not be read."))
		return nil, err
	}
	if t.GuildID == "" {
		t.GuildID = in.GuildID
	}
	if t.ChannelID == "" {
		t.ChannelID = in.ChannelID
	}
	if in.User.UserID != t.AssigneeID {
		if err := r.Reply(ctx, utils.Status("🚫", "Not your task", "Only the assigned user can work on this task.")); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("user %s acted on task %s of %s: %w", in.User.UserID, t.ID, t.AssigneeID, platform.ErrUnauthorized)
	}
	return t, nil
}

func (l *Lifecycle) update(ctx context.Context, r platform.Responder, t Task) error {
	embeds, rows := Render(t)
	return r.Update(ctx, platform.MessageEdit{Embeds: &embeds, Components: &rows})
}

func (l *Lifecycle) postRegistry(ctx context.Context, in *platform.Interaction, embed platform.Embed) {
	registry, err := l.managedChannel(ctx, in, policy.Registry)
	if err != nil {
		l.log.Warn().Err(err).Msg("registry channel unavailable")
		return
	}
	if _, err := l.platform.SendMessage(ctx, registry.ID, platform.MessageSend{Embeds: []platform.Embed{embed}}); err != nil {
		l.log.Warn().Err(err).Str("channel", registry.Name).Msg("failed to post registry entry")
	}
}

func (l *Lifecycle) managedChannel(ctx context.Context, in *platform.Interaction, k policy.Kind) (*platform.Channel, error) {
	children, err := l.platform.ListChildChannels(ctx, in.GuildID, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category %s: %w", in.CategoryID, err)
	}
	ch, ok := policy.LayoutOf(children, l.cfg.Channels).Channel(k)
	if !ok {
		return nil, fmt.Errorf("%s channel %q: %w", k, policy.ChannelName(l.cfg.Channels, k), platform.ErrNotFound)
	}
	return &ch, nil
}

// IsVideo checks the declared content type of an attachment.
func IsVideo(att platform.Attachment) bool {
	return strings.HasPrefix(strings.ToLower(att.ContentType), "video/")
}

func videoFileName(username string, att platform.Attachment, now time.Time) string {
	ext := filepath.Ext(att.Filename)
	if ext == "" {
		if _, sub, ok := strings.Cut(att.ContentType, "/"); ok {
			ext = "." + sub
		}
	}
	return fmt.Sprintf("tarea-%s-%d%s", username, now.Unix(), ext)
}

func humanize(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
