// Package config handles Muninn engine configuration.
//
// Configuration loads from an optional YAML file and is then overridden by
// MUNINN_* environment variables, so containerized deployments can tune the
// engine without editing files. Validate() should run before the config is
// handed to the engine.
//
// Example YAML:
//
//	logging:
//	  level: info
//	persistence:
//	  snapshotPath: ./data/graph.json
//	  backupsToKeep: 5
//	experience:
//	  maxConcurrentPaths: 10
//	  autoCompleteTimeout: 5m
//	archive:
//	  enabled: true
//	  dir: ./data/archive
//
// Environment overrides:
//
//	MUNINN_LOG_LEVEL=debug
//	MUNINN_SNAPSHOT_PATH=/var/lib/muninn/graph.json
//	MUNINN_MAX_CONCURRENT_PATHS=25
//	MUNINN_ARCHIVE_DIR=/var/lib/muninn/archive
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5m" or "300s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all engine configuration, organized by concern.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Experience  ExperienceConfig  `yaml:"experience"`
	Events      EventConfig       `yaml:"events"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// LoggingConfig controls the zap logger the facade builds.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// PersistenceConfig controls snapshot saving.
type PersistenceConfig struct {
	// SnapshotPath is the default snapshot location for Save/Load.
	SnapshotPath string `yaml:"snapshotPath"`
	// BackupsToKeep bounds timestamped backups during cleanup.
	BackupsToKeep int `yaml:"backupsToKeep"`
}

// AnalysisConfig seeds and tunes the analysis engines.
type AnalysisConfig struct {
	// CommunitySeed seeds Louvain's shuffle; 0 means wall clock.
	CommunitySeed int64 `yaml:"communitySeed"`
	// CommunityResolution is the Louvain resolution parameter.
	CommunityResolution float64 `yaml:"communityResolution"`
	// SimilarityThreshold is the clustering merge threshold.
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	// MinCommunitySize drops smaller communities.
	MinCommunitySize int `yaml:"minCommunitySize"`
}

// ExperienceConfig tunes path tracking and learning.
type ExperienceConfig struct {
	// MaxConcurrentPaths bounds simultaneously active traversals.
	MaxConcurrentPaths int `yaml:"maxConcurrentPaths"`
	// AutoCompleteTimeout force-completes idle paths.
	AutoCompleteTimeout Duration `yaml:"autoCompleteTimeout"`
	// ValidateNodes rejects unknown initial nodes on StartPath.
	ValidateNodes bool `yaml:"validateNodes"`
	// SimilarityThreshold gates reinforcement propagation.
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	// DecayPeriodDays is the age at which reinforcement decay starts.
	DecayPeriodDays int `yaml:"decayPeriodDays"`
	// DecayRate scales each decay sweep.
	DecayRate float64 `yaml:"decayRate"`
	// MinReinforcement floors decayed reinforcement.
	MinReinforcement float64 `yaml:"minReinforcement"`
}

// EventConfig tunes the event bus.
type EventConfig struct {
	// MaxListeners caps registrations per event name.
	MaxListeners int `yaml:"maxListeners"`
}

// ArchiveConfig controls the forgotten-experience archive.
type ArchiveConfig struct {
	// Enabled turns archiving on.
	Enabled bool `yaml:"enabled"`
	// Dir is the badger directory for archived experiences.
	Dir string `yaml:"dir"`
	// ArchiveAfterDays is the minimum age before a floored experience is
	// archived.
	ArchiveAfterDays int `yaml:"archiveAfterDays"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Persistence: PersistenceConfig{
			SnapshotPath:  "./data/graph.json",
			BackupsToKeep: 5,
		},
		Analysis: AnalysisConfig{
			CommunityResolution: 1.0,
			SimilarityThreshold: 0.3,
			MinCommunitySize:    1,
		},
		Experience: ExperienceConfig{
			MaxConcurrentPaths:  10,
			AutoCompleteTimeout: Duration(300 * time.Second),
			SimilarityThreshold: 0.3,
			DecayPeriodDays:     30,
			DecayRate:           0.1,
			MinReinforcement:    0.1,
		},
		Events: EventConfig{MaxListeners: 100},
		Archive: ArchiveConfig{
			Dir:              "./data/archive",
			ArchiveAfterDays: 30,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; env-only
// configuration is normal in containers.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays MUNINN_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MUNINN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MUNINN_LOG_DEVELOPMENT"); v != "" {
		c.Logging.Development = parseBool(v, c.Logging.Development)
	}
	if v := os.Getenv("MUNINN_SNAPSHOT_PATH"); v != "" {
		c.Persistence.SnapshotPath = v
	}
	if v := os.Getenv("MUNINN_BACKUPS_TO_KEEP"); v != "" {
		c.Persistence.BackupsToKeep = parseInt(v, c.Persistence.BackupsToKeep)
	}
	if v := os.Getenv("MUNINN_COMMUNITY_SEED"); v != "" {
		c.Analysis.CommunitySeed = int64(parseInt(v, int(c.Analysis.CommunitySeed)))
	}
	if v := os.Getenv("MUNINN_MAX_CONCURRENT_PATHS"); v != "" {
		c.Experience.MaxConcurrentPaths = parseInt(v, c.Experience.MaxConcurrentPaths)
	}
	if v := os.Getenv("MUNINN_AUTO_COMPLETE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Experience.AutoCompleteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("MUNINN_MAX_LISTENERS"); v != "" {
		c.Events.MaxListeners = parseInt(v, c.Events.MaxListeners)
	}
	if v := os.Getenv("MUNINN_ARCHIVE_ENABLED"); v != "" {
		c.Archive.Enabled = parseBool(v, c.Archive.Enabled)
	}
	if v := os.Getenv("MUNINN_ARCHIVE_DIR"); v != "" {
		c.Archive.Dir = v
	}
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	if c.Experience.MaxConcurrentPaths <= 0 {
		return fmt.Errorf("config: maxConcurrentPaths must be positive, got %d", c.Experience.MaxConcurrentPaths)
	}
	if c.Experience.AutoCompleteTimeout <= 0 {
		return fmt.Errorf("config: autoCompleteTimeout must be positive")
	}
	if t := c.Analysis.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: analysis similarityThreshold %v outside [0,1]", t)
	}
	if t := c.Experience.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: experience similarityThreshold %v outside [0,1]", t)
	}
	if r := c.Experience.MinReinforcement; r < 0 || r > 1 {
		return fmt.Errorf("config: minReinforcement %v outside [0,1]", r)
	}
	if c.Events.MaxListeners == 0 {
		return fmt.Errorf("config: maxListeners must be non-zero (negative disables the cap)")
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		return fmt.Errorf("config: archive enabled without a directory")
	}
	return nil
}

func parseInt(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func parseBool(s string, fallback bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}
