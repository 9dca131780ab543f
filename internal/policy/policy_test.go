package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/platform"
)

var (
	calpe   = config.Category{Name: "Calpe", CategoryID: "c1", RoleID: "r1", AdminRoleID: "a1"}
	granada = config.Category{Name: "Granada", CategoryID: "c2", RoleID: "r2", AdminRoleID: "a2"}
)

func member(roles ...string) platform.Member {
	return platform.Member{UserID: "u1", Username: "user", Roles: roles}
}

func TestVisibilityFor(t *testing.T) {
	t.Run("role without personal channel sees only the starter", func(t *testing.T) {
		v := VisibilityFor(member("r1"), calpe, false)
		assert.Equal(t, Visibility{Starter: true}, v)
	})

	t.Run("role with personal channel sees only the personal channel", func(t *testing.T) {
		v := VisibilityFor(member("r1"), calpe, true)
		assert.Equal(t, Visibility{Personal: true}, v)
	})

	t.Run("no role hides everything even with a personal channel", func(t *testing.T) {
		assert.Equal(t, Visibility{}, VisibilityFor(member(), calpe, false))
		assert.Equal(t, Visibility{}, VisibilityFor(member("r2"), calpe, true))
	})

	t.Run("admin sees every managed channel", func(t *testing.T) {
		v := VisibilityFor(member("a1"), calpe, false)
		assert.True(t, v.Admin)
		assert.True(t, v.Starter)
		assert.True(t, v.Assignment)
		assert.True(t, v.Registry)
		assert.True(t, v.Videos)
		assert.False(t, v.Personal)

		v = VisibilityFor(member("a1", "r1"), calpe, true)
		assert.True(t, v.Personal)
		assert.True(t, v.Starter)
	})

	t.Run("categories are independent", func(t *testing.T) {
		m := member("r1", "a2")
		assert.Equal(t, Visibility{Personal: true}, VisibilityFor(m, calpe, true))
		assert.True(t, VisibilityFor(m, granada, false).Admin)
	})

	t.Run("empty admin role never matches", func(t *testing.T) {
		noAdmin := config.Category{Name: "Sevilla", RoleID: "r3"}
		v := VisibilityFor(platform.Member{UserID: "u", Roles: []string{""}}, noAdmin, false)
		assert.False(t, v.Admin)
	})
}

func TestExclusivity(t *testing.T) {
	roleSets := [][]string{nil, {"r1"}, {"a1"}, {"r1", "a1"}, {"r2"}, {"r1", "r2"}}
	for _, roles := range roleSets {
		for _, hasPersonal := range []bool{false, true} {
			v := VisibilityFor(member(roles...), calpe, hasPersonal)
			if v.Admin {
				continue
			}
			visible := 0
			if v.Starter {
				visible++
			}
			if v.Personal {
				visible++
			}
			assert.LessOrEqual(t, visible, 1, "roles=%v personal=%v", roles, hasPersonal)
			assert.False(t, v.Assignment || v.Registry || v.Videos, "staff channels leaked: roles=%v", roles)
		}
	}
}

func TestOverwrite(t *testing.T) {
	t.Run("hidden channels only deny view", func(t *testing.T) {
		p := Overwrite(Registry, Visibility{Starter: true})
		assert.True(t, p.Equal(platform.Permissions{View: platform.Deny()}))
	})

	t.Run("starter grants view and history without send", func(t *testing.T) {
		p := Overwrite(Starter, Visibility{Starter: true})
		assert.True(t, p.CanView())
		assert.True(t, *p.ReadHistory)
		assert.False(t, *p.Send)
		assert.Nil(t, p.AttachFiles)
	})

	t.Run("personal grants send and attach", func(t *testing.T) {
		p := Overwrite(Personal, Visibility{Personal: true})
		assert.True(t, p.CanView())
		assert.True(t, *p.Send)
		assert.True(t, *p.ReadHistory)
		assert.True(t, *p.AttachFiles)
	})

	t.Run("admin gets staff permissions", func(t *testing.T) {
		v := VisibilityFor(member("a1"), calpe, true)
		p := Overwrite(Assignment, v)
		assert.True(t, *p.ManageMessages)
		assert.True(t, *Overwrite(Personal, v).AttachFiles)
	})
}

func TestBaseOverwrites(t *testing.T) {
	t.Run("starter lets the category role in", func(t *testing.T) {
		ows := BaseOverwrites(Starter, calpe, "guild", "bot")
		assert.Len(t, ows, 4)
		assert.Equal(t, "guild", ows[0].SubjectID)
		assert.False(t, ows[0].Permissions.CanView())
		assert.Equal(t, "r1", ows[1].SubjectID)
		assert.True(t, ows[1].Permissions.CanView())
	})

	t.Run("staff channels keep the category role out", func(t *testing.T) {
		for _, k := range []Kind{Assignment, Registry, Videos} {
			ows := BaseOverwrites(k, calpe, "guild", "bot")
			assert.Equal(t, "r1", ows[1].SubjectID)
			assert.False(t, ows[1].Permissions.CanView(), k.String())
			assert.Equal(t, "a1", ows[2].SubjectID)
			assert.True(t, ows[2].Permissions.CanView())
		}
	})

	t.Run("no admin role configured", func(t *testing.T) {
		ows := BaseOverwrites(Videos, config.Category{RoleID: "r"}, "guild", "")
		assert.Len(t, ows, 2)
	})

	t.Run("personal channel", func(t *testing.T) {
		ows := PersonalOverwrites(calpe, "guild", "bot", "u1")
		assert.Len(t, ows, 4)
		assert.Equal(t, platform.SubjectMember, ows[1].Kind)
		assert.True(t, *ows[1].Permissions.AttachFiles)
	})
}

func TestTracked(t *testing.T) {
	cats := []config.Category{calpe, granada}
	assert.True(t, Tracked(member("r2"), cats))
	assert.True(t, Tracked(member("a1"), cats))
	assert.False(t, Tracked(member("other"), cats))
}
