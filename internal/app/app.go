package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/partyhub-server/internal/config"
	"github.com/vovakirdan/partyhub-server/internal/core"
	"github.com/vovakirdan/partyhub-server/internal/game"
	"github.com/vovakirdan/partyhub-server/internal/game/buzzer"
	"github.com/vovakirdan/partyhub-server/internal/game/luagame"
	"github.com/vovakirdan/partyhub-server/internal/hub"
	"github.com/vovakirdan/partyhub-server/internal/store"
	"github.com/vovakirdan/partyhub-server/internal/store/sqlite"
	"github.com/vovakirdan/partyhub-server/internal/telemetry"
	transporthttp "github.com/vovakirdan/partyhub-server/internal/transport/http"
	"github.com/vovakirdan/partyhub-server/internal/utils"
)

// Version is reported by the MCP endpoint. Overridden at build time.
var Version = "dev"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *hub.Hub
	store           store.Store
	mirror          *store.Mirror
	log             *zerolog.Logger
}

// LoadGames builds the game registry: built-in modules first, then every Lua
// module found in dir. A missing directory is not an error.
func LoadGames(dir string, logger *zerolog.Logger) (*game.Registry, error) {
	reg := game.NewRegistry()
	if err := reg.Register(buzzer.New()); err != nil {
		return nil, fmt.Errorf("register buzzer: %w", err)
	}
	if dir == "" {
		return reg, nil
	}

	n, err := reg.LoadDir(dir, luagame.Ext, luagame.Loader(logger))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn().Str("games_dir", dir).Msg("games directory not found, only built-in games available")
	case err != nil:
		// Broken scripts are skipped; the rest of the library still loads.
		logger.Warn().Err(err).Str("games_dir", dir).Int("loaded", n).Msg("some game modules failed to load")
	default:
		logger.Info().Str("games_dir", dir).Int("loaded", n).Msg("game modules loaded")
	}
	return reg, nil
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	games, err := LoadGames(cfg.GamesDir, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	var hubOpts []hub.Option
	deps := transporthttp.Deps{Catalog: games, Version: Version}

	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		if err := prepareStore(st, games); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

		a.store = st
		a.mirror = store.NewMirror(st, logger, 0)
		hubOpts = append(hubOpts, hub.WithRecorder(a.mirror))
		deps.Matches = st
	}

	registry := transporthttp.NewRegistry(logger)
	router := core.NewRouter(
		core.WithRoomIDs(utils.NewRoomIDs(cfg.RoomIDMin, cfg.RoomIDMax, nil)),
		core.WithCatalog(games.Has),
		core.WithPlayerLimits(games.Limits),
	)
	exec := core.NewExecutor(registry, logger)
	bridge := game.NewBridge(games, exec, logger)
	a.hub = hub.New(router, exec, bridge, logger, hubOpts...)

	deps.Hub = a.hub
	deps.Registry = registry
	a.server = transporthttp.NewServer(deps, cfg, logger)

	return a, nil
}

// prepareStore clears live state left by a previous process and refreshes
// the game catalog.
func prepareStore(st store.Store, games *game.Registry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	now := time.Now().UTC()
	for _, info := range games.List() {
		g := &store.Game{
			Name:        info.Name,
			Description: info.Description,
			MinPlayers:  info.MinPlayers,
			MaxPlayers:  info.MaxPlayers,
			UpdatedAt:   now,
		}
		if err := st.UpsertGame(ctx, g); err != nil {
			return fmt.Errorf("upsert game %s: %w", info.Name, err)
		}
	}
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing := func(context.Context) error { return nil }
	if tcfg, err := telemetry.LoadConfig(); err != nil {
		a.log.Warn().Err(err).Msg("invalid telemetry settings, tracing disabled")
	} else if shutdown, err := telemetry.Setup(ctx, tcfg); err != nil {
		a.log.Warn().Err(err).Msg("tracing disabled")
	} else {
		shutdownTracing = shutdown
		if tcfg.Active() {
			a.log.Info().Str("endpoint", tcfg.Endpoint).Msg("tracing enabled")
		}
	}

	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})
	if a.mirror != nil {
		go func() {
			defer close(mirrorDone)
			a.mirror.Run(mirrorCtx)
		}()
	} else {
		close(mirrorDone)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	// Hub first so its last snapshots reach the mirror before it flushes.
	stopHub()
	<-hubDone
	stopMirror()
	<-mirrorDone

	a.cleanup(shutdownTracing)
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup(shutdownTracing func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to flush traces")
	}

	if a.mirror != nil && a.mirror.Dropped() > 0 {
		a.log.Warn().Int64("dropped", a.mirror.Dropped()).Msg("persistence writes dropped")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
