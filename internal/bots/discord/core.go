package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"

	"github.com/Formula-SAE/taskbot/internal/assignment"
	"github.com/Formula-SAE/taskbot/internal/config"
	"github.com/Formula-SAE/taskbot/internal/db"
	"github.com/Formula-SAE/taskbot/internal/logger"
	"github.com/Formula-SAE/taskbot/internal/provision"
	"github.com/Formula-SAE/taskbot/internal/reconcile"
	"github.com/Formula-SAE/taskbot/internal/tasks"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent

// shutdownTimeout bounds how long stop waits for in-flight interactions, which
// need the time to hand their controls back.
const shutdownTimeout = 15 * time.Second

type DiscordBot struct {
	session *discordgo.Session
	cfg     *config.Config
	db      *db.DB

	platform    *Adapter
	reconciler  *reconcile.Reconciler
	lifecycle   *tasks.Lifecycle
	assignment  *assignment.UI
	provisioner *provision.Provisioner
	cron        *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	guilds   map[string]struct{}
	stopping bool
	inflight sync.WaitGroup
}

// NewDiscordBot wires the core components over the session. database may be nil,
// which disables the task journal and the commands reading it.
func NewDiscordBot(s *discordgo.Session, cfg *config.Config, database *db.DB) *DiscordBot {
	s.Identify.Intents = intents
	s.StateEnabled = true
	s.State.TrackMembers = true

	adapter := NewAdapter(s)

	var journal tasks.Journal = tasks.NopJournal{}
	if database != nil {
		journal = database
	}

	lifecycle := tasks.NewLifecycle(adapter, cfg, journal)
	ui := assignment.New(adapter, cfg, lifecycle)
	reconciler := reconcile.New(adapter, cfg, ui)

	ctx, cancel := context.WithCancel(context.Background())
	return &DiscordBot{
		session:     s,
		cfg:         cfg,
		db:          database,
		platform:    adapter,
		reconciler:  reconciler,
		lifecycle:   lifecycle,
		assignment:  ui,
		provisioner: provision.New(adapter, cfg, reconciler, ui, lifecycle),
		ctx:         ctx,
		cancel:      cancel,
		guilds:      map[string]struct{}{},
	}
}

func (b *DiscordBot) Start() (func() error, error) {
	b.session.AddHandler(b.guildCreate)
	b.session.AddHandler(b.guildMemberAdd)
	b.session.AddHandler(b.guildMemberUpdate)
	b.session.AddHandler(b.guildMemberRemove)
	b.session.AddHandler(b.channelCreate)
	b.session.AddHandler(b.channelDelete)
	b.session.AddHandler(b.componentInteraction)
	b.session.AddHandler(b.reconcileCommand)
	b.session.AddHandler(b.assignedTasksCommand)

	err := b.session.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}

	appID := b.cfg.Discord.ApplicationID
	if appID == "" {
		appID = b.session.State.User.ID
	}
	for _, command := range b.commands() {
		_, err = b.session.ApplicationCommandCreate(appID, b.cfg.Discord.GuildID, command)
		if err != nil {
			b.session.Close()
			return nil, fmt.Errorf("failed to create application command: %w", err)
		}
	}

	if b.cfg.Reconcile.Schedule != "" {
		b.cron = cron.New()
		if _, err := b.cron.AddFunc(b.cfg.Reconcile.Schedule, b.sweep); err != nil {
			b.session.Close()
			return nil, fmt.Errorf("invalid reconcile schedule %q: %w", b.cfg.Reconcile.Schedule, err)
		}
		b.cron.Start()
		logger.Info().Str("schedule", b.cfg.Reconcile.Schedule).Msg("periodic reconciliation scheduled")
	}

	return b.stop, nil
}

func (b *DiscordBot) stop() error {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}
	if !b.drain(shutdownTimeout) {
		logger.Warn().Dur("timeout", shutdownTimeout).Msg("in-flight interactions did not finish before shutdown")
	}
	return b.session.Close()
}

// begin registers an in-flight handler. It refuses once the bot is stopping.
func (b *DiscordBot) begin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		return false
	}
	b.inflight.Add(1)
	return true
}

// drain cancels the running handlers and waits for them to return, reporting
// whether they all did within timeout.
func (b *DiscordBot) drain(timeout time.Duration) bool {
	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
