package tasks

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/utils"
)

type State int

const (
	Assigned State = iota
	Started
	AwaitingVideo
	Completed
)

func (s State) String() string {
	switch s {
	case Assigned:
		return "Assigned"
	case Started:
		return "Started"
	case AwaitingVideo:
		return "Awaiting video"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

const (
	startPrefix   = "task:start:"
	startedPrefix = "task:started:"
	uploadPrefix  = "task:upload:"

	// ButtonPrefix matches every task control.
	ButtonPrefix = "task:"

	activeTitle    = "New task"
	completedTitle = "Task completed"
	noDescription  = "No description"

	fieldTask        = "Task"
	fieldDescription = "Description"
	fieldAssignee    = "Assignee"
	fieldStatus      = "Status"
	fieldStarted     = "Started"
	fieldDuration    = "Duration"
	fieldCompletedBy = "Completed by"

	colorActive    = 0x0099ff
	colorCompleted = 0x00ff00
)

// IsStartButton and IsUploadButton classify task control ids for routing.
func IsStartButton(customID string) bool  { return strings.HasPrefix(customID, startPrefix) }
func IsUploadButton(customID string) bool { return strings.HasPrefix(customID, uploadPrefix) }

// Task is read back from its announcement message; the message id is the task id.
type Task struct {
	ID          string
	GuildID     string
	ChannelID   string
	AssigneeID  string
	Title       string
	Description string
	State       State
	StartedAt   time.Time
	Duration    time.Duration
}

// Render produces the embed and controls of the announcement message for the
// task's current state. Completed tasks carry no controls.
func Render(t Task) ([]platform.Embed, []platform.ActionRow) {
	if t.State == Completed {
		return []platform.Embed{{
			Title: completedTitle,
			Color: colorCompleted,
			Fields: []platform.EmbedField{
				{Name: fieldTask, Value: t.Title},
				{Name: fieldDescription, Value: describe(t.Description)},
				{Name: fieldDuration, Value: utils.Duration(t.Duration), Inline: true},
				{Name: fieldCompletedBy, Value: utils.UserMention(t.AssigneeID), Inline: true},
			},
			Footer: "Video sent to the review channel",
		}}, []platform.ActionRow{}
	}

	fields := []platform.EmbedField{
		{Name: fieldTask, Value: t.Title},
		{Name: fieldDescription, Value: describe(t.Description)},
		{Name: fieldAssignee, Value: utils.UserMention(t.AssigneeID), Inline: true},
		{Name: fieldStatus, Value: t.State.String(), Inline: true},
	}
	if !t.StartedAt.IsZero() {
		fields = append(fields, platform.EmbedField{Name: fieldStarted, Value: utils.Timestamp(t.StartedAt), Inline: true})
	}

	start := platform.Button{
		CustomID: startPrefix + t.AssigneeID,
		Label:    "Start task",
		Style:    platform.ButtonSuccess,
	}
	if t.State != Assigned {
		start = platform.Button{
			CustomID: startedPrefix + t.AssigneeID,
			Label:    "Task started",
			Style:    platform.ButtonSuccess,
			Disabled: true,
		}
	}

	var startedAt int64
	if !t.StartedAt.IsZero() {
		startedAt = t.StartedAt.Unix()
	}
	upload := platform.Button{
		CustomID: fmt.Sprintf("%s%s:%d", uploadPrefix, t.AssigneeID, startedAt),
		Label:    "Upload video",
		Style:    platform.ButtonPrimary,
		Disabled: t.State != Started,
	}

	return []platform.Embed{{
		Title:  activeTitle,
		Color:  colorActive,
		Fields: fields,
	}}, []platform.ActionRow{{Buttons: []platform.Button{start, upload}}}
}

// Decode reads a task back from its announcement message.
func Decode(m platform.Message) (*Task, error) {
	if len(m.Embeds) == 0 {
		return nil, fmt.Errorf("message %s has no task embed: %w", m.ID, platform.ErrValidation)
	}
	embed := m.Embeds[0]

	t := &Task{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
	}
	t.Title, _ = embed.Field(fieldTask)
	t.Description, _ = embed.Field(fieldDescription)
	if t.Description == noDescription {
		t.Description = ""
	}

	start, hasStart := platform.FindButton(m.Components, "task:start")
	if !hasStart {
		if embed.Title != completedTitle {
			return nil, fmt.Errorf("message %s is not a task: %w", m.ID, platform.ErrValidation)
		}
		t.State = Completed
		if by, ok := embed.Field(fieldCompletedBy); ok {
			t.AssigneeID = strings.TrimSuffix(strings.TrimPrefix(by, "<@"), ">")
		}
		return t, nil
	}

	upload, hasUpload := platform.FindButton(m.Components, uploadPrefix)
	if !hasUpload {
		return nil, fmt.Errorf("task %s has no upload control: %w", m.ID, platform.ErrValidation)
	}

	rest := strings.TrimPrefix(upload.CustomID, uploadPrefix)
	assignee, unix, ok := strings.Cut(rest, ":")
	if !ok || assignee == "" {
		return nil, fmt.Errorf("task %s has a malformed upload control %q: %w", m.ID, upload.CustomID, platform.ErrValidation)
	}
	t.AssigneeID = assignee
	if secs, err := strconv.ParseInt(unix, 10, 64); err == nil && secs > 0 {
		t.StartedAt = time.Unix(secs, 0)
	}

	switch {
	case !start.Disabled:
		t.State = Assigned
	case !upload.Disabled:
		t.State = Started
	default:
		t.State = AwaitingVideo
	}
	return t, nil
}

func describe(description string) string {
	if strings.TrimSpace(description) == "" {
		return noDescription
	}
	return description
}
