package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/partyhub-server/internal/app"
	"github.com/vovakirdan/partyhub-server/internal/auth"
	"github.com/vovakirdan/partyhub-server/internal/config"
	applog "github.com/vovakirdan/partyhub-server/internal/log"
)

type flags struct {
	configPath string
	addr       string
	logLevel   string
	gamesDir   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "partyhub",
		Short:        "Realtime party game server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.gamesDir, "games-dir", "", "directory with Lua game modules")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the server (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), f)
			},
		},
		newGamesCmd(f),
		newTokenCmd(f),
	)
	return root
}

// loadConfig resolves the config file, env vars and command line overrides.
func loadConfig(f *flags) (config.Config, error) {
	bootLog := applog.New("info")

	cfg, path, err := config.Load(bootLog, f.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(config.Config{
		Addr:     f.addr,
		LogLevel: f.logLevel,
		GamesDir: f.gamesDir,
	})
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func serve(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := applog.New(cfg.LogLevel)

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting partyhub server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newGamesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List installed game modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			games, err := app.LoadGames(cfg.GamesDir, applog.New(cfg.LogLevel))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPLAYERS\tDESCRIPTION")
			for _, info := range games.List() {
				fmt.Fprintf(w, "%s\t%d-%d\t%s\n", info.Name, info.MinPlayers, info.MaxPlayers, info.Description)
			}
			return w.Flush()
		},
	}
}

func newTokenCmd(f *flags) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a websocket handshake token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
