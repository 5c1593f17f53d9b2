package main

import (
	"fmt"

	"HodlFarm/internal/config"
	"HodlFarm/internal/farm"
	"HodlFarm/internal/recorder"

	"github.com/rs/zerolog"
)

// openRecorder falls back to the noop recorder when SQLite is unavailable.
func openRecorder(cfg *config.Config, logger zerolog.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// openFarm restores the farm from its state file and provisions it on the
// first run.
func openFarm(cfg *config.Config, logger zerolog.Logger, rec recorder.Recorder, opts ...farm.Option) (*farm.Farm, error) {
	opts = append([]farm.Option{farm.WithLogger(logger), farm.WithRecorder(rec)}, opts...)
	f, err := farm.Open(cfg.Farm.StateFile, cfg.Farm.Address, cfg.Farm.RewardRate, opts...)
	if err != nil {
		return nil, fmt.Errorf("open farm: %w", err)
	}
	if f.Initialized() {
		return f, nil
	}
	err = f.Initialize(farm.Genesis{
		RewardPool:     cfg.Farm.RewardPool,
		Treasury:       cfg.Farm.Treasury,
		TreasuryReward: cfg.Farm.TreasuryReward,
		Collateral:     cfg.Farm.Genesis,
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("initialize farm: %w", err)
	}
	logger.Info().
		Str("address", cfg.Farm.Address.String()).
		Str("reward_pool", cfg.Farm.RewardPool.String()).
		Int("genesis_accounts", len(cfg.Farm.Genesis)).
		Msg("farm initialized")
	return f, nil
}
