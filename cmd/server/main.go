package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hrassist/internal/app/server"
	"hrassist/internal/platform/config"
	"hrassist/internal/platform/db"
	"hrassist/internal/platform/logging"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "hrassist",
		Short:         "Conversational HR assistant API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
		RunE: runServe,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file; environment variables override it")

	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Start the HTTP API", RunE: runServe},
		&cobra.Command{Use: "migrate", Short: "Apply database migrations and exit", RunE: runMigrate},
		&cobra.Command{Use: "reindex", Short: "Re-chunk and re-embed every policy document", RunE: runReindex},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hrassist: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, func() { _ = logger.Sync() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, cfg); err != nil {
		zap.L().Error("server stopped", zap.Error(err))
		return err
	}
	zap.L().Info("server stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=%s", config.StorePostgres)
	}

	ctx := cmd.Context()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	zap.L().Info("migrations applied")
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()
	cfg.PolicyInboxDir = ""

	ctx := cmd.Context()
	app, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	chunks, err := app.Policy.ReindexAll(ctx, "cli")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d chunks\n", chunks)
	return nil
}
