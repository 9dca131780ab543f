package utils

import (
	"fmt"
	"time"
)

func H3(text string) string {
	return "### " + text
}

func Bold(text string) string {
	return "**" + text + "**"
}

func Italic(text string) string {
	return "_" + text + "_"
}

func InlineCode(text string) string {
	return "`" + text + "`"
}

func Link(text, url string) string {
	return "[" + text + "](" + url + ")"
}

func UserMention(userID string) string {
	return "<@" + userID + ">"
}

func ChannelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// Timestamp renders a platform timestamp that each client shows in its own time zone.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

// Duration renders d as "1h 2m 3s", truncated to whole seconds.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

// Status formats a titled status line, e.g. "✅ **Task started!**\n\nbody".
func Status(icon, title, body string) string {
	if body == "" {
		return icon + " " + Bold(title)
	}
	return icon + " " + Bold(title) + "\n\n" + body
}
