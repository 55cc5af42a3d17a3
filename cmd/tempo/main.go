package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/avermeer/tempo/internal/config"
	"github.com/avermeer/tempo/internal/db"
	"github.com/avermeer/tempo/internal/engine"
	"github.com/avermeer/tempo/internal/resource"
	"github.com/avermeer/tempo/internal/scheduler"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	restoreFile := flag.String("restore", "", "Restore job definitions from a backup file before starting")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger per config
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting tempo job scheduler",
		"config_file", *configFile,
		"timezone", cfg.Engine.Timezone)

	// Open the job store and ensure the schema exists
	logger.Info("opening job store", "driver", cfg.Database.Driver, "dsn", cfg.Database.DSN)
	database, err := db.OpenWithConfig(cfg.Database)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Init(); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	logger.Info("job store ready", "driver", database.Driver())

	// Resource gate and job kind registry
	gate := resource.NewGate(cfg.Resource, logger)
	registry := engine.NewRegistry()
	registerBuiltinKinds(registry, logger)

	facade, err := scheduler.New(cfg.Scheduler, cfg.Engine, database, gate, registry, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Optional restore replaces the persisted job set before the loop starts
	if *restoreFile != "" {
		restored, err := facade.Restore(*restoreFile)
		if err != nil {
			logger.Error("failed to restore backup", "path", *restoreFile, "error", err)
			os.Exit(1)
		}
		logger.Info("backup restored", "path", *restoreFile, "jobs", restored)
	}

	// Register the config's initial job list
	if registered := facade.RegisterJobs(cfg.JobDefinitions()); registered > 0 {
		logger.Info("registered jobs from config", "count", registered)
	}

	// Run blocks until SIGINT/SIGTERM, then stops gracefully
	if err := facade.Run(context.Background()); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}

	logger.Info("tempo stopped")
}
