package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storydesk/internal/shared"
)

// Before loads the configuration, opens the database and wires the backend services.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if err := r.config.ApplyEnv(cmd.String("env-file")); err != nil {
		return ctx, err
	}

	if r.db == nil {
		r.logger.Debug("opening database", "path", r.config.Database.Path)
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return ctx, fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
	}

	return ctx, r.Wire(ctx)
}

// Setup writes the default configuration file when missing and runs database migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if _, err := os.Stat(path); err == nil {
		r.logger.Info("config file already exists", "path", path)
	} else {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	if r.db == nil {
		return fmt.Errorf("%w: database not opened", shared.ErrMissingConfig)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(ctx, r.db); err != nil {
		return err
	}

	r.writePlain("✓ Config file: %s\n", path)
	r.writePlain("✓ Database ready: %s\n", r.config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set api.base_url in %s or export %s\n", path, shared.EnvBaseURL)
	r.writePlain("2. Run 'storydesk auth login' to sign in\n")
	return nil
}
