// Package cli defines the signalhub command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/signalhub/internal/app"
	"github.com/alanyoungcy/signalhub/internal/config"
	"github.com/alanyoungcy/signalhub/internal/store/postgres"
)

// NewRootCmd creates the root command. Running it without a subcommand is the
// same as "serve".
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "signalhub",
		Short: "signalhub - trading signal hub and position monitor",
		Long: `signalhub tracks open positions against their stop-loss and take-profit
thresholds and fans trading signals out to live dashboards, chat channels
and polling clients.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, "")
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newMigrateCmd(&configPath))
	rootCmd.AddCommand(newConfigCmd(&configPath))

	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run signalhub in the configured mode",
		Long: `Run signalhub. --mode overrides the configured mode:
  full     HTTP API plus every background loop
  server   HTTP API and housekeeping only
  monitor  background loops without the HTTP API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "override the configured mode (full, server, monitor)")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPathOrEmpty(*configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return showConfig(cmd.OutOrStdout(), cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(*configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	return configCmd
}

// loadConfig loads and validates the configuration. A missing file at the
// default path falls back to defaults plus environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(configPathOrEmpty(path))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, configPath, mode string) error {
	cfg, err := config.Load(configPathOrEmpty(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("signalhub starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("signalhub stopped")
	return nil
}

func configPathOrEmpty(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return path
}

func runMigrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate: storage driver is %q, not postgres", cfg.Storage.Driver)
	}
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: 1,
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer pg.Close()

	applied, err := pg.RunMigrations(ctx)
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
	}
	return nil
}

// showConfig writes cfg as TOML with secrets redacted.
func showConfig(w io.Writer, cfg *config.Config) error {
	redacted := config.RedactedConfig(cfg)
	return toml.NewEncoder(w).Encode(redacted)
}

// NewLogger builds the JSON logger at the configured level. Unknown levels
// fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
