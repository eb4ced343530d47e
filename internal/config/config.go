package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	LibraryFolder string `koanf:"library_folder"` // where local books live
	LogFile       string `koanf:"log_file"`       // structured log destination

	// Server holds the remote progress-sync endpoint (optional).
	Server ServerConfig `koanf:"server"`

	// Playback tunables; zero values fall back to defaults.
	Playback PlaybackConfig `koanf:"playback"`
}

// ServerConfig holds the remote sync endpoint configuration.
type ServerConfig struct {
	URL   string `koanf:"url"`   // e.g., "https://audiobooks.example.org"
	Token string `koanf:"token"` // bearer token
}

// PlaybackConfig holds playback and seeking tunables (seconds unless noted).
type PlaybackConfig struct {
	SkipForwardSec      int `koanf:"skip_forward_sec"`      // tap skip forward (default: 30)
	SkipBackSec         int `koanf:"skip_back_sec"`         // tap skip back (default: 15)
	RewindStepSec       int `koanf:"rewind_step_sec"`       // continuous rewind per tick (default: 5)
	FastForwardStepSec  int `koanf:"fast_forward_step_sec"` // continuous ff per tick (default: 10)
	SaveIntervalSec     int `koanf:"save_interval_sec"`     // throttled progress saves (default: 30)
	SnapshotCadenceMsec int `koanf:"snapshot_cadence_msec"` // engine snapshot cadence (default: 500)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.LibraryFolder = expandPath(cfg.LibraryFolder)
	cfg.LogFile = expandPath(cfg.LogFile)
	cfg.Server.URL = strings.TrimSuffix(cfg.Server.URL, "/")

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/fable/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "fable", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasServer returns true if remote progress sync is configured.
func (c *Config) HasServer() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}

// GetPlayback returns the playback configuration with defaults applied.
func (c *Config) GetPlayback() PlaybackConfig {
	cfg := c.Playback

	if cfg.SkipForwardSec <= 0 {
		cfg.SkipForwardSec = 30
	}
	if cfg.SkipBackSec <= 0 {
		cfg.SkipBackSec = 15
	}
	if cfg.RewindStepSec <= 0 {
		cfg.RewindStepSec = 5
	}
	if cfg.FastForwardStepSec <= 0 {
		cfg.FastForwardStepSec = 10
	}
	if cfg.SaveIntervalSec <= 0 {
		cfg.SaveIntervalSec = 30
	}
	if cfg.SnapshotCadenceMsec <= 0 {
		cfg.SnapshotCadenceMsec = 500
	}

	return cfg
}

// SnapshotCadence returns the engine snapshot cadence as a duration.
func (p PlaybackConfig) SnapshotCadence() time.Duration {
	return time.Duration(p.SnapshotCadenceMsec) * time.Millisecond
}
