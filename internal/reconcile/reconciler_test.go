package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/naming"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/platform/platformtest"
)

const guild = "guild"

type fixture struct {
	fake *platformtest.Fake
	cfg  *config.Config
	rec  *Reconciler
	sel  *recordingSelectors

	starter, assignment, registry, videos string
	category                              string
}

type recordingSelectors struct {
	refreshed []string
}

func (s *recordingSelectors) Refresh(_ context.Context, _ string, cat config.Category) error {
	s.refreshed = append(s.refreshed, cat.Name)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fake: platformtest.New(), sel: &recordingSelectors{}}
	f.cfg = config.DefaultConfig()
	f.cfg.Reconcile.EditsPerSecond = 0

	f.category = f.fake.AddChannel(guild, "", "Calpe", platform.ChannelTypeCategory)
	f.starter = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Starter, platform.ChannelTypeText)
	f.assignment = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Assignment, platform.ChannelTypeText)
	f.registry = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Registry, platform.ChannelTypeText)
	f.videos = f.fake.AddChannel(guild, f.category, f.cfg.Channels.Videos, platform.ChannelTypeText)

	f.cfg.Categories = []config.Category{{Name: "Calpe", CategoryID: f.category, RoleID: "role", AdminRoleID: "admin"}}
	f.rec = New(f.fake, f.cfg, f.sel)
	return f
}

func (f *fixture) view(t *testing.T, channelID, userID string) bool {
	t.Helper()
	p, ok := f.fake.OverwriteFor(channelID, userID)
	require.True(t, ok, "no overwrite for %s on %s", userID, channelID)
	return p.CanView()
}

func TestReconcileMember(t *testing.T) {
	ctx := context.Background()

	t.Run("role holder without personal channel sees the starter only", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1", Username: "ana", Roles: []string{"role"}})

		_, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		assert.True(t, f.view(t, f.starter, "1"))
		assert.False(t, f.view(t, f.assignment, "1"))
		assert.False(t, f.view(t, f.registry, "1"))
		assert.False(t, f.view(t, f.videos, "1"))
	})

	t.Run("personal channel hides the starter", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1", Username: "ana", Roles: []string{"role"}})
		_, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		personal := f.fake.AddChannel(guild, f.category, naming.ChannelName("ana", "1", "Calpe"), platform.ChannelTypeText)
		_, err = f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		assert.False(t, f.view(t, f.starter, "1"))
		assert.True(t, f.view(t, personal, "1"))
		p, _ := f.fake.OverwriteFor(personal, "1")
		assert.True(t, *p.AttachFiles)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1", Username: "ana", Roles: []string{"role"}})
		f.fake.AddChannel(guild, f.category, naming.ChannelName("ana", "1", "Calpe"), platform.ChannelTypeText)

		first, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)
		snapshot := f.fake.Snapshot()
		edits := f.fake.PermissionEdits

		second, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		assert.Equal(t, snapshot, f.fake.Snapshot())
		assert.Equal(t, edits, f.fake.PermissionEdits)
		assert.Equal(t, 5, first.Applied)
		assert.Equal(t, 0, second.Applied)
		assert.Equal(t, 5, second.Skipped)
	})

	t.Run("one failing channel does not stop the others", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1", Roles: []string{"role"}})
		f.fake.FailPermission[f.assignment] = errors.New("rate limited")

		res, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, 3, res.Applied)
		assert.True(t, f.view(t, f.starter, "1"))
		assert.False(t, f.view(t, f.videos, "1"))
	})

	t.Run("unknown member", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.ReconcileMember(ctx, guild, "nobody")
		assert.ErrorIs(t, err, platform.ErrNotFound)
	})

	t.Run("member without tracked roles is skipped by default", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1"})

		res, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)
		assert.Equal(t, 0, res.Members)
		assert.Equal(t, 0, f.fake.PermissionEdits)
	})

	t.Run("member without tracked roles is stripped when configured", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Reconcile.StripUnaffiliated = true
		f.fake.AddMember(guild, platform.Member{UserID: "1"})

		_, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)
		assert.False(t, f.view(t, f.starter, "1"))
		assert.False(t, f.view(t, f.assignment, "1"))
	})

	t.Run("admin sees everything", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "9", Roles: []string{"admin"}})

		_, err := f.rec.ReconcileMember(ctx, guild, "9")
		require.NoError(t, err)
		for _, id := range []string{f.starter, f.assignment, f.registry, f.videos} {
			assert.True(t, f.view(t, id, "9"))
		}
	})
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cfg.Reconcile.Concurrency = 2
	f.fake.AddMember(guild, platform.Member{UserID: "1", Roles: []string{"role"}})
	f.fake.AddMember(guild, platform.Member{UserID: "2", Roles: []string{"role"}})
	f.fake.AddMember(guild, platform.Member{UserID: "3", Roles: []string{"admin"}})
	f.fake.AddMember(guild, platform.Member{UserID: "b", Roles: []string{"role"}, Bot: true})

	res, err := f.rec.ReconcileAll(ctx, guild)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Members)
	_, ok := f.fake.OverwriteFor(f.starter, "b")
	assert.False(t, ok, "bots are never touched")
	assert.True(t, f.view(t, f.starter, "1"))
	assert.True(t, f.view(t, f.starter, "2"))
	assert.True(t, f.view(t, f.registry, "3"))

	t.Run("list failure", func(t *testing.T) {
		f.fake.FailMembers = errors.New("boom")
		_, err := f.rec.ReconcileAll(ctx, guild)
		assert.Error(t, err)
	})
}

func TestOnRoleChange(t *testing.T) {
	ctx := context.Background()

	t.Run("untracked role change is a no-op", func(t *testing.T) {
		f := newFixture(t)
		before := platform.Member{UserID: "1", Roles: []string{"role"}}
		after := platform.Member{UserID: "1", Roles: []string{"role", "other"}}
		f.fake.AddMember(guild, after)

		require.NoError(t, f.rec.OnRoleChange(ctx, guild, &before, after))
		assert.Equal(t, 0, f.fake.PermissionEdits)
		assert.Empty(t, f.sel.refreshed)
	})

	t.Run("gaining the category role reconciles and refreshes", func(t *testing.T) {
		f := newFixture(t)
		before := platform.Member{UserID: "1"}
		after := platform.Member{UserID: "1", Roles: []string{"role"}}
		f.fake.AddMember(guild, after)

		require.NoError(t, f.rec.OnRoleChange(ctx, guild, &before, after))
		assert.True(t, f.view(t, f.starter, "1"))
		assert.Equal(t, []string{"Calpe"}, f.sel.refreshed)
	})

	t.Run("losing the role hides the starter again", func(t *testing.T) {
		f := newFixture(t)
		member := platform.Member{UserID: "1", Roles: []string{"role"}}
		f.fake.AddMember(guild, member)
		_, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)

		after := platform.Member{UserID: "1", Roles: []string{"unrelated"}}
		require.NoError(t, f.rec.OnRoleChange(ctx, guild, &member, after))
		assert.False(t, f.view(t, f.starter, "1"))
	})

	t.Run("unknown previous state counts as changed", func(t *testing.T) {
		f := newFixture(t)
		after := platform.Member{UserID: "1", Roles: []string{"role"}}
		require.NoError(t, f.rec.OnRoleChange(ctx, guild, nil, after))
		assert.True(t, f.view(t, f.starter, "1"))
		assert.Equal(t, []string{"Calpe"}, f.sel.refreshed)
	})
}

func TestOnPersonalChannelDeleted(t *testing.T) {
	ctx := context.Background()

	t.Run("starter becomes visible again", func(t *testing.T) {
		f := newFixture(t)
		f.fake.AddMember(guild, platform.Member{UserID: "1", Username: "ana", Roles: []string{"role"}})
		personalID := f.fake.AddChannel(guild, f.category, naming.ChannelName("ana", "1", "Calpe"), platform.ChannelTypeText)
		_, err := f.rec.ReconcileMember(ctx, guild, "1")
		require.NoError(t, err)
		require.False(t, f.view(t, f.starter, "1"))

		ch, err := f.fake.GetChannel(ctx, personalID)
		require.NoError(t, err)
		f.fake.RemoveChannel(personalID)

		require.NoError(t, f.rec.OnPersonalChannelDeleted(ctx, *ch))
		assert.True(t, f.view(t, f.starter, "1"))
	})

	t.Run("names outside the pattern are ignored", func(t *testing.T) {
		f := newFixture(t)
		ch := platform.Channel{GuildID: guild, ParentID: f.category, Name: "random-channel"}
		assert.NoError(t, f.rec.OnPersonalChannelDeleted(ctx, ch))
		assert.Equal(t, 0, f.fake.PermissionEdits)
	})

	t.Run("channels outside tracked categories are ignored", func(t *testing.T) {
		f := newFixture(t)
		ch := platform.Channel{GuildID: guild, ParentID: "elsewhere", Name: naming.ChannelName("ana", "1", "Calpe")}
		assert.NoError(t, f.rec.OnPersonalChannelDeleted(ctx, ch))
		assert.Equal(t, 0, f.fake.PermissionEdits)
	})

	t.Run("owner already gone", func(t *testing.T) {
		f := newFixture(t)
		ch := platform.Channel{GuildID: guild, ParentID: f.category, Name: naming.ChannelName("ana", "77", "Calpe")}
		assert.NoError(t, f.rec.OnPersonalChannelDeleted(ctx, ch))
	})
}

func TestOnMemberJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("no tracked role is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Reconcile.StripUnaffiliated = true
		require.NoError(t, f.rec.OnMemberJoin(ctx, guild, platform.Member{UserID: "1"}))
		assert.Equal(t, 0, f.fake.PermissionEdits)
	})

	t.Run("tracked role is reconciled", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.rec.OnMemberJoin(ctx, guild, platform.Member{UserID: "1", Roles: []string{"role"}}))
		assert.True(t, f.view(t, f.starter, "1"))
	})
}
