package main

import (
	"context"
	"testing"

	"monositi/internal/api"
	"monositi/internal/config"
	"monositi/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedulerConfig() *config.Config {
	return &config.Config{
		Backup: config.BackupConfig{Enabled: true, Schedule: "@daily", StoragePath: "backups"},
		API: config.APIConfig{RateLimit: config.APIRateLimitConfig{
			RPS:           5,
			Burst:         10,
			SweepSchedule: "@every 5m",
		}},
	}
}

func TestInitScheduler(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := schedulerConfig()
	httpServer := api.NewHTTPServer(cfg.API, api.Services{}, &logger)

	scheduler, err := initScheduler(context.Background(), cfg, db, nil, httpServer, &logger)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduler.Jobs())
}

func TestInitSchedulerRejectsBadSchedule(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := schedulerConfig()
	cfg.Backup.Schedule = "every night"
	_, err = initScheduler(context.Background(), cfg, db, nil, nil, &logger)
	assert.ErrorContains(t, err, "sqlite backup")

	cfg = schedulerConfig()
	cfg.API.RateLimit.SweepSchedule = "sometimes"
	httpServer := api.NewHTTPServer(cfg.API, api.Services{}, &logger)
	_, err = initScheduler(context.Background(), cfg, db, nil, httpServer, &logger)
	assert.ErrorContains(t, err, "rate limiter sweep")
}
