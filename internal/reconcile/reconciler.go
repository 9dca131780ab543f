// Package reconcile keeps every member's channel overwrites in line with the
// visibility policy. All facts are re-read from the platform on each call.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/naming"
	"github.com/Formula-SAE/taskbot/internal/platform"
	"github.com/Formula-SAE/taskbot/internal/policy"
)

// SelectorRefresher re-renders the member selector of a category.
type SelectorRefresher interface {
	Refresh(ctx context.Context, guildID string, cat config.Category) error
}

// Result counts the overwrite edits of one reconciliation.
type Result struct {
	Members int
	Applied int
	Skipped int
	Failed  int
}

func (r *Result) add(o Result) {
	r.Members += o.Members
	r.Applied += o.Applied
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

type Reconciler struct {
	platform  platform.ChatPlatform
	cfg       *config.Config
	limiter   *rate.Limiter
	selectors SelectorRefresher
	log       zerolog.Logger
}

func New(p platform.ChatPlatform, cfg *config.Config, selectors SelectorRefresher) *Reconciler {
	limit := rate.Inf
	if cfg.Reconcile.EditsPerSecond > 0 {
		limit = rate.Limit(cfg.Reconcile.EditsPerSecond)
	}
	burst := cfg.Reconcile.Burst
	if burst < 1 {
		burst = 1
	}
	return &Reconciler{
		platform:  p,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		selectors: selectors,
		log:       logger.Component("reconcile"),
	}
}

// SetSelectors wires the selector refresher after construction, the assignment
// UI and the reconciler depend on each other.
func (r *Reconciler) SetSelectors(s SelectorRefresher) {
	r.selectors = s
}

// ReconcileMember applies the policy of every category to a single member.
// Channel edits are independent: a failing edit is logged and the rest proceed.
func (r *Reconciler) ReconcileMember(ctx context.Context, guildID, userID string) (Result, error) {
	m, err := r.platform.FetchMember(ctx, guildID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}

	layouts := r.layouts(ctx, guildID)
	return r.reconcile(ctx, *m, layouts, false), nil
}

// ReconcileAll reconciles every non-bot member of the guild.
func (r *Reconciler) ReconcileAll(ctx context.Context, guildID string) (Result, error) {
	members, err := r.platform.ListMembers(ctx, guildID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list members of guild %s: %w", guildID, err)
	}

	layouts := r.layouts(ctx, guildID)

	var (
		mu    sync.Mutex
		total Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Reconcile.Concurrency, 1))
	for _, m := range members {
		if m.Bot {
			continue
		}
		m := m
		g.Go(func() error {
			res := r.reconcile(gctx, m, layouts, false)
			mu.Lock()
			total.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info().
		Str("guild", guildID).
		Int("members", total.Members).
		Int("applied", total.Applied).
		Int("skipped", total.Skipped).
		Int("failed", total.Failed).
		Msg("guild reconciled")
	return total, ctx.Err()
}

// OnRoleChange reconciles the member only when a tracked role flipped, and
// refreshes the selectors of the categories whose membership changed. A nil
// before means the previous state is unknown and every category counts as changed.
func (r *Reconciler) OnRoleChange(ctx context.Context, guildID string, before *platform.Member, after platform.Member) error {
	if after.Bot {
		return nil
	}

	var changed []config.Category
	for _, cat := range r.cfg.Categories {
		if before == nil ||
			before.HasRole(cat.RoleID) != after.HasRole(cat.RoleID) ||
			before.HasRole(cat.AdminRoleID) != after.HasRole(cat.AdminRoleID) {
			changed = append(changed, cat)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	r.log.Info().Str("user", after.UserID).Int("categories", len(changed)).Msg("tracked roles changed")
	// The member held a tracked role a moment ago, so stale grants must go even
	// when unaffiliated members are normally skipped.
	res := r.reconcile(ctx, after, r.layouts(ctx, guildID), true)
	r.log.Debug().Int("applied", res.Applied).Int("failed", res.Failed).Msg("role change reconciled")

	if r.selectors == nil {
		return nil
	}
	var errs []error
	for _, cat := range changed {
		if err := r.selectors.Refresh(ctx, guildID, cat); err != nil {
			r.log.Warn().Err(err).Str("category", cat.Name).Msg("failed to refresh member selector")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnPersonalChannelDeleted re-derives the owner's visibility once the channel is
// gone, which brings the starter channel back.
func (r *Reconciler) OnPersonalChannelDeleted(ctx context.Context, ch platform.Channel) error {
	return r.onPersonalChannelChange(ctx, ch, "deleted")
}

// OnPersonalChannelCreated covers personal channels created outside the starter button.
func (r *Reconciler) OnPersonalChannelCreated(ctx context.Context, ch platform.Channel) error {
	return r.onPersonalChannelChange(ctx, ch, "created")
}

func (r *Reconciler) onPersonalChannelChange(ctx context.Context, ch platform.Channel, what string) error {
	cat, ok := r.cfg.CategoryByChannelID(ch.ParentID)
	if !ok {
		return nil
	}
	if _, managed := r.managedKind(ch.Name); managed {
		return nil
	}
	userID, ok := naming.ExtractUserID(ch.Name)
	if !ok {
		r.log.Warn().Str("channel", ch.Name).Str("category", cat.Name).Msgf("%s channel does not follow the personal channel pattern", what)
		return nil
	}

	_, err := r.ReconcileMember(ctx, ch.GuildID, userID)
	if errors.Is(err, platform.ErrNotFound) {
		r.log.Info().Str("user", userID).Msgf("owner of %s personal channel left the guild", what)
		return nil
	}
	return err
}

// OnMemberJoin reconciles a new member. Members without a tracked role are left alone.
func (r *Reconciler) OnMemberJoin(ctx context.Context, guildID string, m platform.Member) error {
	if m.Bot || !policy.Tracked(m, r.cfg.Categories) {
		return nil
	}
	r.reconcile(ctx, m, r.layouts(ctx, guildID), false)
	return nil
}

func (r *Reconciler) managedKind(name string) (policy.Kind, bool) {
	for _, k := range policy.ManagedKinds {
		if policy.ChannelName(r.cfg.Channels, k) == name {
			return k, true
		}
	}
	return 0, false
}

// layouts lists the children of every configured category. Categories that
// cannot be listed are logged and left out.
func (r *Reconciler) layouts(ctx context.Context, guildID string) map[string]policy.Layout {
	out := make(map[string]policy.Layout, len(r.cfg.Categories))
	for _, cat := range r.cfg.Categories {
		if cat.CategoryID == "" {
			continue
		}
		children, err := r.platform.ListChildChannels(ctx, guildID, cat.CategoryID)
		if err != nil {
			r.log.Warn().Err(err).Str("category", cat.Name).Msg("failed to list category channels")
			continue
		}
		out[cat.CategoryID] = policy.LayoutOf(children, r.cfg.Channels)
	}
	return out
}

func (r *Reconciler) reconcile(ctx context.Context, m platform.Member, layouts map[string]policy.Layout, force bool) Result {
	res := Result{}
	if m.Bot {
		return res
	}
	if !force && !r.cfg.Reconcile.StripUnaffiliated && !policy.Tracked(m, r.cfg.Categories) {
		r.log.Debug().Str("user", m.UserID).Msg("member holds no tracked role, skipping")
		return res
	}
	res.Members = 1

	for _, cat := range r.cfg.Categories {
		layout, ok := layouts[cat.CategoryID]
		if !ok {
			continue
		}
		personal, hasPersonal := layout.PersonalChannel(m.UserID)
		v := policy.VisibilityFor(m, cat, hasPersonal)

		for _, k := range policy.ManagedKinds {
			if ch, ok := layout.Channel(k); ok {
				r.apply(ctx, ch, m.UserID, policy.Overwrite(k, v), &res)
			}
		}
		if hasPersonal {
			r.apply(ctx, personal, m.UserID, policy.Overwrite(policy.Personal, v), &res)
		}
	}
	return res
}

func (r *Reconciler) apply(ctx context.Context, ch platform.Channel, userID string, want platform.Permissions, res *Result) {
	if have, ok := ch.Overwrites[userID]; ok && have.Equal(want) {
		res.Skipped++
		return
	}
	if err := r.limiter.Wait(ctx); err != nil {
		res.Failed++
		return
	}
	if err := r.platform.SetChannelPermission(ctx, ch.ID, userID, platform.SubjectMember, want); err != nil {
		r.log.Warn().Err(err).Str("channel", ch.Name).Str("user", userID).Msg("failed to set channel permission")
		res.Failed++
		return
	}
	res.Applied++
}
