package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AiMakers-co/smartinvoice-recon/internal/common"
	"github.com/AiMakers-co/smartinvoice-recon/internal/config"
	"github.com/AiMakers-co/smartinvoice-recon/internal/matcher"
	"github.com/AiMakers-co/smartinvoice-recon/internal/progress"
	"github.com/AiMakers-co/smartinvoice-recon/internal/service"
	"github.com/AiMakers-co/smartinvoice-recon/internal/storage"
	"github.com/spf13/viper"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/recon/recon.db"
	}

	// Expand tilde and environment variables
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initMatcher builds the remote matcher client from config.
func initMatcher() (service.Matcher, error) {
	client, err := matcher.New(matcher.Config{
		BaseURL: viper.GetString("matcher.url"),
		APIKey:  viper.GetString("matcher.api_key"),
		Timeout: viper.GetDuration("matcher.timeout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher client: %w", err)
	}
	return client, nil
}

// initProgressSource builds the progress poller against the matcher service.
func initProgressSource() (service.ProgressSource, error) {
	interval := viper.GetDuration("matcher.progress_interval")
	if interval == 0 {
		interval = 2 * time.Second
	}

	poller, err := progress.NewPoller(progress.PollerConfig{
		BaseURL:  viper.GetString("matcher.url"),
		APIKey:   viper.GetString("matcher.api_key"),
		Interval: interval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create progress poller: %w", err)
	}
	return poller, nil
}

// requireUser returns the configured user ID or a friendly error.
func requireUser() (string, error) {
	userID := viper.GetString("user")
	if userID == "" {
		return "", common.NewUserError("no user configured; pass --user or set RECON_USER", common.ErrMissingConfig)
	}
	return userID, nil
}
