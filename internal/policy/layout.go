package policy

import (
	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/naming"
	"github.com/Formula-SAE/taskbot/internal/platform"
)

// Layout indexes the children of one category channel.
type Layout struct {
	Managed  map[Kind]platform.Channel
	Personal map[string]platform.Channel
}

// LayoutOf sorts children into managed channels (matched by configured name) and
// personal channels (matched by the personal name convention, keyed by user id).
// When a user somehow owns several personal channels the first one wins.
func LayoutOf(children []platform.Channel, names config.ChannelNames) Layout {
	l := Layout{
		Managed:  map[Kind]platform.Channel{},
		Personal: map[string]platform.Channel{},
	}
	for _, ch := range children {
		if ch.Type != platform.ChannelTypeText {
			continue
		}
		matched := false
		for _, k := range ManagedKinds {
			if ch.Name == ChannelName(names, k) {
				if _, dup := l.Managed[k]; !dup {
					l.Managed[k] = ch
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if userID, ok := naming.ExtractUserID(ch.Name); ok {
			if _, dup := l.Personal[userID]; !dup {
				l.Personal[userID] = ch
			}
		}
	}
	return l
}

func (l Layout) Channel(k Kind) (platform.Channel, bool) {
	ch, ok := l.Managed[k]
	return ch, ok
}

func (l Layout) PersonalChannel(userID string) (platform.Channel, bool) {
	ch, ok := l.Personal[userID]
	return ch, ok
}
