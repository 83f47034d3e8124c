package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the global ~/.tgd/config.toml, with TGD_* environment
// variables taking precedence over file values.
type Config struct {
	DefaultAccount string `toml:"default_account" env:"TGD_ACCOUNT"`

	Sync   Sync   `toml:"sync"`
	Daemon Daemon `toml:"daemon"`
}

// Sync holds settings consumed by the sync orchestrator and listener.
type Sync struct {
	// BootstrapLimit bounds how many recent messages are fetched per chat
	// on first sync of that chat.
	BootstrapLimit int `toml:"bootstrap_limit" env:"TGD_BOOTSTRAP_LIMIT"`
	// Concurrency bounds how many chats are fetched at once.
	Concurrency    int     `toml:"concurrency" env:"TGD_SYNC_CONCURRENCY"`
	IgnoreChats    []int64 `toml:"ignore_chats"`
	IgnoreChannels bool    `toml:"ignore_channels" env:"TGD_IGNORE_CHANNELS"`
}

// Daemon holds daemon-only settings.
type Daemon struct {
	// BackfillOnStart runs an incremental sync pass when the daemon starts,
	// before and alongside live listening.
	BackfillOnStart bool `toml:"backfill_on_start" env:"TGD_BACKFILL_ON_START"`
	// BackfillInterval is the period of the background catch-up loop,
	// in minutes. Zero disables periodic backfill.
	BackfillIntervalMin int `toml:"backfill_interval_min" env:"TGD_BACKFILL_INTERVAL_MIN"`
	// TombstoneRetentionDays controls garbage collection of delete
	// tombstones. Zero retains them indefinitely.
	TombstoneRetentionDays int `toml:"tombstone_retention_days" env:"TGD_TOMBSTONE_RETENTION_DAYS"`
	// MarkRead marks chats as read as live messages arrive.
	MarkRead bool `toml:"mark_read" env:"TGD_MARK_READ"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sync: Sync{
			BootstrapLimit: 100,
			Concurrency:    4,
		},
		Daemon: Daemon{
			BackfillOnStart:     true,
			BackfillIntervalMin: 15,
		},
	}
}

// Load reads config from the given path and applies environment overrides.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
