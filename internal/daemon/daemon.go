package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/banter/internal/config"
	"github.com/harun/banter/internal/logger"
	"github.com/harun/banter/internal/observability"
	"github.com/harun/banter/internal/persona"
	"github.com/harun/banter/internal/telegram"
	"github.com/harun/banter/pkg/banter"
	"github.com/harun/banter/pkg/events"
	"github.com/harun/banter/pkg/generator"
	"github.com/harun/banter/pkg/health"
)

// chatAPI is the slice of the Telegram bot the daemon's handlers use
type chatAPI interface {
	banter.Messenger
	SendMessage(chatID int64, text string) error
	SendMessageWithReply(chatID int64, text string, replyToMessageID int) (int, error)
	IsChatAdmin(chatID, userID int64) (bool, error)
	SelfID() int64
}

// textGenerator produces banter and reply text
type textGenerator interface {
	banter.Generator
	Reply(ctx context.Context, replierName, message string) (string, error)
	SetPersona(p persona.Persona)
	Persona() persona.Persona
}

// Daemon represents the banter daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	registry   *banter.Registry
	scheduler  *banter.Scheduler
	correlator *banter.Correlator
	janitor    *banter.Janitor
	generator  textGenerator

	personaWatcher *persona.Watcher

	// Telegram
	bot      *telegram.Bot
	commands *telegram.Commands
	handler  *telegram.Handler
	chat     chatAPI

	// Services
	hub          *events.Hub
	healthServer *health.Server

	lifecycle *LifecycleManager
	location  *time.Location

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes the daemon's runtime state
type Status struct {
	Running        bool
	StartTime      time.Time
	Uptime         time.Duration
	ActiveSessions int
	Subscribers    int
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initializeCoreModules() error {
	zl := d.logger.GetZerolog()

	d.location = d.config.Location()

	pers, err := persona.Load(d.config.Banter.PersonaPath)
	if err != nil {
		return fmt.Errorf("failed to load persona: %w", err)
	}

	profiles := make([]generator.Profile, 0, len(d.config.AI.Profiles))
	for _, p := range d.config.AI.Profiles {
		profiles = append(profiles, generator.Profile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Model:    p.Model,
			Priority: p.Priority,
		})
	}
	gen, err := generator.New(generator.Config{
		Profiles: profiles,
		Persona:  pers,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	d.generator = gen
	d.logger.Info().Msg("Generator initialized")

	d.registry = banter.NewRegistry(zl)
	d.correlator = banter.NewCorrelator(zl)

	janitor, err := banter.NewJanitor(d.correlator, d.config.Banter.JanitorSchedule, zl)
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}
	d.janitor = janitor

	d.hub = events.NewHub(zl)

	return nil
}

func (d *Daemon) initializeServices() error {
	zl := d.logger.GetZerolog()

	bot, err := telegram.New(&d.config.Telegram, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.bot = bot
	d.chat = bot

	scheduler, err := banter.NewScheduler(banter.SchedulerConfig{
		Registry:    d.registry,
		Correlator:  d.correlator,
		Messenger:   d.chat,
		Generator:   d.generator,
		Observer:    &sessionObserver{hub: d.hub, registry: d.registry},
		Logger:      zl,
		MinMessages: d.config.Banter.MinMessages,
		MaxMessages: d.config.Banter.MaxMessages,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = scheduler

	watcher, err := persona.NewWatcher(d.config.Banter.PersonaPath, func(p persona.Persona) {
		d.generator.SetPersona(p)
		d.hub.Broadcast("persona.reloaded", nil)
	}, zl)
	if err != nil {
		return fmt.Errorf("failed to create persona watcher: %w", err)
	}
	d.personaWatcher = watcher

	if d.config.Health.Enabled {
		server, err := health.NewServer(health.ServerOptions{
			Host: d.config.Health.Host,
			Port: d.config.Health.Port,
		}, d.hub, d.registry.Len, zl)
		if err != nil {
			return fmt.Errorf("failed to create keep-alive server: %w", err)
		}
		d.healthServer = server
	}

	d.commands = telegram.NewCommands(bot)
	d.handler = telegram.NewHandler(bot)
	d.registerCommands()
	d.handler.SetOnMessage(d.handleIncoming)
	bot.SetCommandHandler(d.commands)
	bot.SetMessageHandler(d.handler)

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting banter daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.personaWatcher.Start(); err != nil {
		d.logger.Warn().Err(err).Msg("Persona hot reload unavailable")
	}

	if d.healthServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.healthServer.Start(); err != nil {
				d.logger.Error().Err(err).Msg("Keep-alive server error")
			}
		}()
	}

	d.janitor.Start(d.ctx)

	if err := d.bot.Start(); err != nil {
		return fmt.Errorf("failed to start telegram bot: %w", err)
	}

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon gracefully. Active sessions are cancelled and
// in-flight deliveries get a bounded grace period to finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping banter daemon")

	// New sessions are refused from this point on.
	d.registry.Close()

	if err := d.bot.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop telegram bot")
	}

	cancelled := d.registry.CancelAll()
	d.logger.Info().Int("cancelled", cancelled).Msg("Active sessions cancelled")

	grace := time.Duration(d.config.Banter.ShutdownGraceSeconds) * time.Second
	if !d.scheduler.Wait(grace) {
		d.logger.Warn().Dur("grace", grace).Msg("Session tasks did not drain within grace period")
	}

	if err := d.personaWatcher.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop persona watcher")
	}

	d.hub.Close()

	if d.healthServer != nil {
		if err := d.healthServer.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop keep-alive server")
		}
	}

	d.cancel()
	d.janitor.Wait()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		d.logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:        d.running,
		ActiveSessions: d.registry.Len(),
		Subscribers:    d.hub.Subscribers(),
	}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Wait blocks until the daemon receives a termination signal, then stops it
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetRegistry returns the session registry
func (d *Daemon) GetRegistry() *banter.Registry {
	return d.registry
}

// deadline returns the session deadline: the last second of the current
// day in the configured timezone.
func (d *Daemon) deadline(now time.Time) time.Time {
	local := now.In(d.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, d.location)
}

func (d *Daemon) zerolog() zerolog.Logger {
	return d.logger.GetZerolog().With().Str("component", "daemon").Logger()
}
