package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/platform/platformtest"
)

const guild = "guild"

type recordingJournal struct {
	assigned, started, completed []Task
}

func (j *recordingJournal) TaskAssigned(_ context.Context, t Task, _ CreateRequest) error {
	j.assigned = append(j.assigned, t)
	return nil
}

func (j *recordingJournal) TaskStarted(_ context.Context, t Task) error {
	j.started = append(j.started, t)
	return nil
}

func (j *recordingJournal) TaskCompleted(_ context.Context, t Task, _ int64) error {
	j.completed = append(j.completed, t)
	return nil
}

type fixture struct {
	fake    *platformtest.Fake
	cfg     *config.Config
	life    *Lifecycle
	journal *recordingJournal
	clock   time.Time

	category, registry, videos, personal string
	ana                                  platform.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fake: platformtest.New(), journal: &recordingJournal{}, clock: time.Unix(1_700_000_000, 0)}
	f.cfg = config.DefaultConfig()

	f.category = f.fake.AddChannel(guild, "", "Calpe", platform.ChannelTypeCategory)
	f.fake.AddChannel(guild, f.category, f.cfg.Channels.Starter, platform.ChannelTypeText)
	f.fake.AddChannel(guild, f.category, f.cfg.Channels.Assignment, platform.ChannelTypeText)
	f.registry = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Registry, platform.ChannelTypeText)
	f.videos = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Videos, platform.ChannelTypeText)
	f.personal = f.fake.AddChannel(guild, f.category, "tareas-ana-calpe-1", platform.ChannelTypeText)
	f.cfg.Categories = []config.Category{{Name: "Calpe", CategoryID: f.category, RoleID: "role", AdminRoleID: "admin"}}

	f.ana = platform.Member{UserID: "1", Username: "ana", Roles: []string{"role"}}
	f.fake.AddMember(guild, f.ana)

	f.life = NewLifecycle(f.fake, f.cfg, f.journal)
	f.life.Now = func() time.Time { return f.clock }
	return f
}

// brokenEdits fails the first fail message edits made through the platform.
// Responder updates go to the fake directly and are not affected.
type brokenEdits struct {
	*platformtest.Fake
	fail int
}

func (b *brokenEdits) EditMessage(ctx context.Context, channelID, messageID string, edit platform.MessageEdit) (*platform.Message, error) {
	if b.fail != 0 {
		if b.fail > 0 {
			b.fail--
		}
		return nil, errors.New("edit rejected")
	}
	return b.Fake.EditMessage(ctx, channelID, messageID, edit)
}

// breakEdits rebuilds the lifecycle over a platform whose edits fail; a negative
// count fails every edit.
func (f *fixture) breakEdits(fail int) {
	f.life = NewLifecycle(&brokenEdits{Fake: f.fake, fail: fail}, f.cfg, f.journal)
	f.life.Now = func() time.Time { return f.clock }
}

func (f *fixture) create(t *testing.T) *Task {
	t.Helper()
	task, err := f.life.Create(context.Background(), CreateRequest{
		GuildID:     guild,
		ChannelID:   f.personal,
		Category:    "Calpe",
		Assignee:    f.ana,
		AssignerID:  "boss",
		Title:       "Design wing",
		Description: "Front wing endplates",
	})
	require.NoError(t, err)
	return task
}

// click builds an interaction on the current version of the task message.
func (f *fixture) click(t *testing.T, task *Task, user platform.Member, button func(platform.Button) bool) (*platform.Interaction, *platformtest.Responder) {
	t.Helper()
	msg, ok := f.fake.Message(f.personal, task.ID)
	require.True(t, ok)
	var customID string
	for _, row := range msg.Components {
		for _, b := range row.Buttons {
			if button(b) {
				customID = b.CustomID
			}
		}
	}
	in := &platform.Interaction{
		GuildID:    guild,
		ChannelID:  f.personal,
		CategoryID: f.category,
		User:       user,
		CustomID:   customID,
		Message:    &msg,
	}
	return in, platformtest.NewResponder(f.fake, in)
}

func startButton(b platform.Button) bool  { return IsStartButton(b.CustomID) || strings.HasPrefix(b.CustomID, startedPrefix) }
func uploadButton(b platform.Button) bool { return IsUploadButton(b.CustomID) }

func (f *fixture) state(t *testing.T, task *Task) State {
	t.Helper()
	msg, ok := f.fake.Message(f.personal, task.ID)
	require.True(t, ok)
	got, err := Decode(msg)
	require.NoError(t, err)
	return got.State
}

func (f *fixture) start(t *testing.T, task *Task) {
	t.Helper()
	in, r := f.click(t, task, f.ana, startButton)
	require.NoError(t, f.life.Start(context.Background(), in, r))
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	task := f.create(t)

	assert.Equal(t, Assigned, f.state(t, task))
	assert.Empty(t, f.fake.Messages(f.registry), "nothing is registered before the task starts")
	assert.Len(t, f.journal.assigned, 1)
	assert.Len(t, f.fake.DMs["1"], 1)

	t.Run("blank title", func(t *testing.T) {
		_, err := f.life.Create(context.Background(), CreateRequest{GuildID: guild, ChannelID: f.personal, Assignee: f.ana, Title: "  "})
		assert.ErrorIs(t, err, platform.ErrValidation)
	})
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("assignee starts the task", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)

		in, r := f.click(t, task, f.ana, startButton)
		require.NoError(t, f.life.Start(ctx, in, r))

		assert.Equal(t, Started, f.state(t, task))
		require.Len(t, r.Updates, 1, "the start control is disabled by the acknowledgement itself")
		registry := f.fake.Messages(f.registry)
		require.Len(t, registry, 1)
		assert.Equal(t, "Task started", registry[0].Embeds[0].Title)
		require.Len(t, f.journal.started, 1)
		assert.True(t, f.clock.Equal(f.journal.started[0].StartedAt))
		assert.Len(t, r.FollowUps, 1)
	})

	t.Run("somebody else is rejected without changes", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)

		in, r := f.click(t, task, platform.Member{UserID: "2", Username: "bob"}, startButton)
		err := f.life.Start(ctx, in, r)

		assert.ErrorIs(t, err, platform.ErrUnauthorized)
		assert.Len(t, r.Replies, 1)
		assert.Empty(t, r.Updates)
		assert.Equal(t, Assigned, f.state(t, task))
		assert.Empty(t, f.fake.Messages(f.registry))
	})

	t.Run("second start is informational", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		in, r := f.click(t, task, f.ana, startButton)
		require.NoError(t, f.life.Start(ctx, in, r))
		assert.Empty(t, r.Updates)
		assert.Len(t, r.Replies, 1)
		assert.Len(t, f.fake.Messages(f.registry), 1)
	})
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	video := platform.Attachment{ID: "a1", Filename: "run.mp4", URL: "https://cdn/run.mp4", ContentType: "video/mp4"}

	t.Run("video completes the task", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		f.clock = f.clock.Add(45 * time.Second)
		f.fake.Attachments[video.URL] = []byte("mp4")
		f.fake.Deliver(f.personal, "1", video)

		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))

		msg, ok := f.fake.Message(f.personal, task.ID)
		require.True(t, ok)
		assert.Empty(t, msg.Components)
		got, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, Completed, got.State)
		duration, _ := msg.Embeds[0].Field(fieldDuration)
		assert.Equal(t, "0h 0m 45s", duration)

		files := f.fake.Files(f.videos)
		require.Len(t, files, 1)
		assert.Equal(t, []byte("mp4"), files[0].Data)
		assert.True(t, strings.HasSuffix(files[0].Name, ".mp4"))

		registry := f.fake.Messages(f.registry)
		require.Len(t, registry, 2)
		assert.Equal(t, completedTitle, registry[1].Embeds[0].Title)

		assert.Len(t, f.fake.Deleted, 1, "the raw upload is removed")
		require.Len(t, f.journal.completed, 1)
		assert.Equal(t, 45*time.Second, f.journal.completed[0].Duration)
		assert.Contains(t, r.FollowUps[len(r.FollowUps)-1], "0h 0m 45s")
	})

	t.Run("non-video is deleted and collection continues", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		f.fake.Deliver(f.personal, "1", platform.Attachment{ID: "p", Filename: "shot.png", ContentType: "image/png"})
		f.fake.Deliver(f.personal, "1", video)

		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))

		assert.Equal(t, Completed, f.state(t, task))
		assert.Len(t, f.fake.Deleted, 2)
		assert.Len(t, f.fake.Files(f.videos), 1)
	})

	t.Run("timeout re-enables upload", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))

		assert.Equal(t, Started, f.state(t, task))
		assert.Empty(t, f.fake.Files(f.videos))
		assert.Contains(t, r.FollowUps[len(r.FollowUps)-1], "Time is up")
	})

	t.Run("messages from others are ignored", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		f.fake.Deliver(f.personal, "2", video)

		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))
		assert.Equal(t, Started, f.state(t, task))
		assert.Empty(t, f.fake.Files(f.videos))
	})

	t.Run("upload before start is rejected", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)

		msg, _ := f.fake.Message(f.personal, task.ID)
		in := &platform.Interaction{GuildID: guild, ChannelID: f.personal, CategoryID: f.category, User: f.ana, Message: &msg}
		r := platformtest.NewResponder(f.fake, in)
		require.NoError(t, f.life.Upload(ctx, in, r))
		assert.Empty(t, r.Updates)
		assert.Equal(t, Assigned, f.state(t, task))
	})

	t.Run("videos channel failure returns the task to started", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)

		f.fake.FailSend[f.videos] = errors.New("boom")
		f.fake.Deliver(f.personal, "1", video)

		in, r := f.click(t, task, f.ana, uploadButton)
		assert.Error(t, f.life.Upload(ctx, in, r))

		assert.Equal(t, Started, f.state(t, task))
		assert.Len(t, f.fake.Messages(f.registry), 1, "no completion entry")
		assert.Empty(t, f.journal.completed)
		assert.Contains(t, r.FollowUps[len(r.FollowUps)-1], "Video upload failed")
	})

	t.Run("uneditable task message is reposted as completed", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)
		f.breakEdits(-1)

		f.fake.Deliver(f.personal, "1", platform.Attachment{ID: "m", Filename: "run.mov", ContentType: "video/quicktime"})
		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))

		_, ok := f.fake.Message(f.personal, task.ID)
		assert.False(t, ok, "the stale announcement is removed")
		var completed int
		for _, msg := range f.fake.Messages(f.personal) {
			got, err := Decode(msg)
			if err != nil {
				continue
			}
			assert.NotEqual(t, AwaitingVideo, got.State)
			if got.State == Completed {
				completed++
				assert.Empty(t, msg.Components)
			}
		}
		assert.Equal(t, 1, completed)
		assert.Len(t, f.fake.Files(f.videos), 1)
		assert.Len(t, f.fake.Messages(f.registry), 2)
		assert.Contains(t, r.FollowUps[len(r.FollowUps)-1], "Video uploaded!")
	})

	t.Run("task that cannot be finalized returns to started", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)
		f.breakEdits(2)
		f.fake.FailSend[f.personal] = errors.New("boom")

		f.fake.Deliver(f.personal, "1", video)
		in, r := f.click(t, task, f.ana, uploadButton)
		assert.Error(t, f.life.Upload(ctx, in, r))

		assert.Equal(t, Started, f.state(t, task))
		assert.Len(t, f.fake.Messages(f.registry), 1, "no completion entry")
		assert.Empty(t, f.journal.completed)
		for _, msg := range r.FollowUps {
			assert.NotContains(t, msg, "Video uploaded!")
		}
		assert.Contains(t, r.FollowUps[len(r.FollowUps)-1], "Task not finalized")
	})

	t.Run("somebody else cannot upload", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)
		f.fake.Deliver(f.personal, "2", video)

		in, r := f.click(t, task, platform.Member{UserID: "2", Username: "bob"}, uploadButton)
		err := f.life.Upload(ctx, in, r)

		assert.ErrorIs(t, err, platform.ErrUnauthorized)
		assert.Len(t, r.Replies, 1)
		assert.Empty(t, r.Updates)
		assert.Empty(t, r.FollowUps, "no upload window is opened")
		assert.Equal(t, Started, f.state(t, task))
		assert.Empty(t, f.fake.Files(f.videos))
		assert.Len(t, f.fake.Messages(f.registry), 1)
	})

	t.Run("completed is absorbing", func(t *testing.T) {
		f := newFixture(t)
		task := f.create(t)
		f.start(t, task)
		f.fake.Deliver(f.personal, "1", video)
		in, r := f.click(t, task, f.ana, uploadButton)
		require.NoError(t, f.life.Upload(ctx, in, r))

		msg, _ := f.fake.Message(f.personal, task.ID)
		in = &platform.Interaction{GuildID: guild, ChannelID: f.personal, CategoryID: f.category, User: f.ana, Message: &msg}
		r = platformtest.NewResponder(f.fake, in)

		require.NoError(t, f.life.Start(ctx, in, r))
		require.NoError(t, f.life.Upload(ctx, in, r))
		assert.Empty(t, r.Updates)
		assert.Equal(t, Completed, f.state(t, task))
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	// awaiting leaves the task the way a stop during the upload window does.
	awaiting := func(t *testing.T, f *fixture) *Task {
		t.Helper()
		task := f.create(t)
		f.start(t, task)
		in, r := f.click(t, task, f.ana, uploadButton)
		current, err := Decode(*in.Message)
		require.NoError(t, err)
		current.State = AwaitingVideo
		require.NoError(t, f.life.update(ctx, r, *current))
		require.Equal(t, AwaitingVideo, f.state(t, task))
		return task
	}

	t.Run("reopens tasks left awaiting a video", func(t *testing.T) {
		f := newFixture(t)
		task := awaiting(t, f)
		done := f.create(t)

		n, err := f.life.Recover(ctx, f.personal, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, Started, f.state(t, task))
		assert.Equal(t, Assigned, f.state(t, done))

		msg, _ := f.fake.Message(f.personal, task.ID)
		upload, ok := platform.FindButton(msg.Components, uploadPrefix)
		require.True(t, ok)
		assert.False(t, upload.Disabled)
	})

	t.Run("tasks being collected are left alone", func(t *testing.T) {
		f := newFixture(t)
		task := awaiting(t, f)
		f.life.track(task.ID, true)

		n, err := f.life.Recover(ctx, f.personal, 50)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, AwaitingVideo, f.state(t, task))
	})
}
