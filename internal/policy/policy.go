// Package policy decides which managed channels a member may see. Everything here
// is a pure function of role membership and personal channel existence.
package policy

import (
	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/platform"
)

type Kind int

const (
	Starter Kind = iota
	Assignment
	Registry
	Videos
	Personal
)

var ManagedKinds = []Kind{Starter, Assignment, Registry, Videos}

func (k Kind) String() string {
	switch k {
	case Starter:
		return "starter"
	case Assignment:
		return "assignment"
	case Registry:
		return "registry"
	case Videos:
		return "videos"
	case Personal:
		return "personal"
	default:
		return "unknown"
	}
}

// ChannelName returns the configured channel name of a managed kind.
func ChannelName(names config.ChannelNames, k Kind) string {
	switch k {
	case Starter:
		return names.Starter
	case Assignment:
		return names.Assignment
	case Registry:
		return names.Registry
	case Videos:
		return names.Videos
	default:
		return ""
	}
}

// Visibility is the desired view state of one member over one category.
type Visibility struct {
	Admin      bool
	Starter    bool
	Assignment bool
	Registry   bool
	Videos     bool
	Personal   bool
}

func (v Visibility) Visible(k Kind) bool {
	switch k {
	case Starter:
		return v.Starter
	case Assignment:
		return v.Assignment
	case Registry:
		return v.Registry
	case Videos:
		return v.Videos
	case Personal:
		return v.Personal
	default:
		return false
	}
}

// VisibilityFor evaluates one category independently of every other one.
// Admin status dominates role absence, role absence dominates personal channel existence.
func VisibilityFor(m platform.Member, cat config.Category, hasPersonal bool) Visibility {
	if m.HasRole(cat.AdminRoleID) {
		return Visibility{
			Admin:      true,
			Starter:    true,
			Assignment: true,
			Registry:   true,
			Videos:     true,
			Personal:   hasPersonal,
		}
	}

	if !m.HasRole(cat.RoleID) {
		return Visibility{}
	}

	if hasPersonal {
		return Visibility{Personal: true}
	}
	return Visibility{Starter: true}
}

// Tracked reports whether the member holds the role or admin role of any category.
func Tracked(m platform.Member, cats []config.Category) bool {
	for _, cat := range cats {
		if m.HasRole(cat.RoleID) || m.HasRole(cat.AdminRoleID) {
			return true
		}
	}
	return false
}

// Overwrite converts the decision for one channel kind into the member level
// permission overwrite to apply.
func Overwrite(k Kind, v Visibility) platform.Permissions {
	if !v.Visible(k) {
		return platform.Permissions{View: platform.Deny()}
	}

	if v.Admin {
		p := staffPermissions()
		if k == Personal {
			p.AttachFiles = platform.Allow()
		}
		return p
	}

	switch k {
	case Personal:
		return ownerPermissions()
	case Starter:
		return platform.Permissions{
			View:        platform.Allow(),
			ReadHistory: platform.Allow(),
			Send:        platform.Deny(),
		}
	default:
		return platform.Permissions{View: platform.Allow()}
	}
}

func staffPermissions() platform.Permissions {
	return platform.Permissions{
		View:           platform.Allow(),
		ReadHistory:    platform.Allow(),
		Send:           platform.Allow(),
		ManageMessages: platform.Allow(),
	}
}

func ownerPermissions() platform.Permissions {
	return platform.Permissions{
		View:        platform.Allow(),
		Send:        platform.Allow(),
		ReadHistory: platform.Allow(),
		AttachFiles: platform.Allow(),
	}
}

func botPermissions() platform.Permissions {
	return platform.Permissions{
		View:           platform.Allow(),
		Send:           platform.Allow(),
		ReadHistory:    platform.Allow(),
		AttachFiles:    platform.Allow(),
		ManageMessages: platform.Allow(),
		ManageChannels: platform.Allow(),
	}
}

// BaseOverwrites are the role level overwrites a managed channel is created or
// reset with. The everyone role is the guild id on the platform.
func BaseOverwrites(k Kind, cat config.Category, guildID, botID string) []platform.Overwrite {
	ows := []platform.Overwrite{
		{SubjectID: guildID, Kind: platform.SubjectRole, Permissions: platform.Permissions{View: platform.Deny()}},
	}

	switch k {
	case Starter:
		ows = append(ows, platform.Overwrite{
			SubjectID: cat.RoleID,
			Kind:      platform.SubjectRole,
			Permissions: platform.Permissions{
				View:        platform.Allow(),
				ReadHistory: platform.Allow(),
			},
		})
	case Assignment, Registry, Videos:
		ows = append(ows, platform.Overwrite{
			SubjectID:   cat.RoleID,
			Kind:        platform.SubjectRole,
			Permissions: platform.Permissions{View: platform.Deny()},
		})
	}

	if cat.AdminRoleID != "" {
		ows = append(ows, platform.Overwrite{SubjectID: cat.AdminRoleID, Kind: platform.SubjectRole, Permissions: staffPermissions()})
	}
	if botID != "" {
		ows = append(ows, platform.Overwrite{SubjectID: botID, Kind: platform.SubjectMember, Permissions: botPermissions()})
	}
	return ows
}

// PersonalOverwrites are the overwrites a personal channel is created or reset with.
func PersonalOverwrites(cat config.Category, guildID, botID, ownerID string) []platform.Overwrite {
	ows := []platform.Overwrite{
		{SubjectID: guildID, Kind: platform.SubjectRole, Permissions: platform.Permissions{View: platform.Deny()}},
		{SubjectID: ownerID, Kind: platform.SubjectMember, Permissions: ownerPermissions()},
	}
	if cat.AdminRoleID != "" {
		ows = append(ows, platform.Overwrite{SubjectID: cat.AdminRoleID, Kind: platform.SubjectRole, Permissions: staffPermissions()})
	}
	if botID != "" {
		ows = append(ows, platform.Overwrite{SubjectID: botID, Kind: platform.SubjectMember, Permissions: botPermissions()})
	}
	return ows
}
