// Package app assembles and runs the Sayuri bot: the SQLite store, the
// Matrix transport, the login state machine, the batch job subsystem, and
// the conversational command layer.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Sayuri/internal/sayuri/auth"
	"github.com/bdobrica/Sayuri/internal/sayuri/commands"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
	"github.com/bdobrica/Sayuri/internal/sayuri/jobs"
	"github.com/bdobrica/Sayuri/internal/sayuri/matrix"
	"github.com/bdobrica/Sayuri/internal/sayuri/notify"
	"github.com/bdobrica/Sayuri/internal/sayuri/pacer"
	"github.com/bdobrica/Sayuri/internal/sayuri/store"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	Pacer        pacer.Config

	// AccountFactory creates Instagram account sessions. Defaults to the
	// real web-API client; tests substitute a fake.
	AccountFactory insta.Factory
}

// App is the assembled Sayuri application
type App struct {
	config   *Config
	store    *store.Store
	matrix   *matrix.Client
	sessions *auth.Store
	registry *jobs.Registry
	runner   *jobs.Runner
	machine  *auth.Machine
	handlers *commands.Handlers
}

// New creates the application and wires all components
func New(config *Config) (*App, error) {
	// Initialize database
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// Initialize Matrix client, sharing the store's connection for the sync
	// token so restarts do not replay password messages.
	matrixConfig := config.Matrix
	matrixConfig.DB = st.DB()
	slog.Info("creating Matrix client", "homeserver", matrixConfig.Homeserver, "user", matrixConfig.UserID)
	matrixClient, err := matrix.New(&matrixConfig)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	factory := config.AccountFactory
	if factory == nil {
		factory = insta.NewClient
	}

	sessions := auth.NewStore()
	registry := jobs.NewRegistry()
	notifier := notify.NewMatrixNotifier(matrixClient, sessions.RoomFor)
	runner := jobs.NewRunner(registry, pacer.New(config.Pacer), notifier, st)
	machine := auth.NewMachine(sessions, factory, registry)
	handlers := commands.NewHandlers(sessions, machine, registry, runner, st, matrixClient)

	slog.Info("application components wired")

	return &App{
		config:   config,
		store:    st,
		matrix:   matrixClient,
		sessions: sessions,
		registry: registry,
		runner:   runner,
		machine:  machine,
		handlers: handlers,
	}, nil
}

// Run starts the application and blocks until interrupted
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	// Announce readiness in preconfigured rooms; invite-driven rooms get
	// greeted when the user first speaks.
	for _, roomID := range a.config.Matrix.Rooms {
		if err := a.matrix.SendNotice(roomID, "✅ Sayuri is up. Send /start to log in to Instagram."); err != nil {
			slog.Warn("could not send startup notice", "room", roomID, "err", err)
		}
	}

	slog.Info("Sayuri is running; press Ctrl+C to stop",
		"sessions", a.sessions.Count(), "active_jobs", a.registry.ActiveCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop shuts the application down
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage routes one incoming Matrix message through the command layer
// and sends the reply.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	reply := a.handlers.HandleMessage(ctx,
		evt.Sender.String(), evt.RoomID.String(), evt.ID.String(), msgContent.Body)
	if reply == "" {
		return
	}

	if _, err := a.matrix.SendMarkdown(evt.RoomID.String(), reply); err != nil {
		slog.Error("failed to send reply", "room", evt.RoomID.String(), "err", err)
	}
}
