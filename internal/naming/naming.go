// Package naming holds the deterministic personal channel name convention.
package naming

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const PersonalChannelPrefix = "tareas-"

var personalChannelPattern = regexp.MustCompile(`^tareas-.+-(\d+)$`)

// ChannelName builds the personal channel name of a user in a category:
// tareas-<username-no-dots>-<category-lowercase>-<userId>.
func ChannelName(username, userID, categoryName string) string {
	return fmt.Sprintf("%s%s-%s-%s",
		PersonalChannelPrefix,
		slug(strings.ReplaceAll(username, ".", "")),
		slug(categoryName),
		userID,
	)
}

// ExtractUserID recovers the user id from a personal channel name.
func ExtractUserID(channelName string) (string, bool) {
	m := personalChannelPattern.FindStringSubmatch(channelName)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Normalize lower-cases s and strips diacritics, so "Málaga" and "malaga" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// slug mirrors how the platform stores text channel names: lower case, no spaces.
func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
