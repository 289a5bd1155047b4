// Package config manages the mesh simulator configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete meshsim configuration.
type Config struct {
	Swarm   SwarmConfig   `koanf:"swarm"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// SwarmConfig describes the simulated mesh: how many nodes, where they
// live, how they move, and the per-node engine defaults every simulated
// node is constructed with (spec.md §6 configuration surface, lifted up
// from a single node to a swarm).
type SwarmConfig struct {
	// NodeCount is the number of simulated mesh.Engine instances.
	NodeCount int `koanf:"node_count"`
	// AreaWidthM and AreaHeightM bound the 2-D placement area in meters.
	AreaWidthM  float64 `koanf:"area_width_m"`
	AreaHeightM float64 `koanf:"area_height_m"`
	// Mobility configures the bounded random-walk mobility model.
	Mobility MobilityConfig `koanf:"mobility"`
	// DurationMs is the total simulated time to run, in milliseconds.
	DurationMs int64 `koanf:"duration_ms"`
	// SlotDurationMs is the discovery-cycle slot duration every node's
	// engine is configured with (mesh.Config.SlotDurationMs).
	SlotDurationMs uint32 `koanf:"slot_duration_ms"`
	// InitialTTL is the TTL stamped on originated frames
	// (mesh.Config.InitialTTL).
	InitialTTL uint8 `koanf:"initial_ttl"`
	// ProximityThresholdM gates GPS-proximity forwarding admission
	// (mesh.Config.ProximityThresholdM).
	ProximityThresholdM float64 `koanf:"proximity_threshold_m"`
	// Seed seeds the swarm's own topology/mobility RNG. It is also combined
	// with each node id to seed that node's engine RNG
	// (mesh.Engine.SeedRandom).
	Seed uint64 `koanf:"seed"`
}

// MobilityConfig configures the bounded random-walk mobility model in
// internal/sim/radio.go.
type MobilityConfig struct {
	// Enabled turns on per-tick GPS movement. When false, node positions
	// are fixed at their initial placement for the whole run.
	Enabled bool `koanf:"enabled"`
	// MaxStepM bounds the per-tick displacement magnitude in meters.
	MaxStepM float64 `koanf:"max_step_m"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults for a
// moderate-size demonstration swarm.
func DefaultConfig() *Config {
	return &Config{
		Swarm: SwarmConfig{
			NodeCount:   50,
			AreaWidthM:  1000,
			AreaHeightM: 1000,
			Mobility: MobilityConfig{
				Enabled:  false,
				MaxStepM: 5.0,
			},
			DurationMs:           60_000,
			SlotDurationMs:       100,
			InitialTTL:           10,
			ProximityThresholdM:  10.0,
			Seed:                 1,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for meshsim configuration.
// Variables are named GOMESH_<section>_<key>, e.g., GOMESH_SWARM_NODE_COUNT.
const envPrefix = "GOMESH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOMESH_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOMESH_SWARM_NODE_COUNT          -> swarm.node_count
//	GOMESH_SWARM_SEED                -> swarm.seed
//	GOMESH_METRICS_ADDR              -> metrics.addr
//	GOMESH_LOG_LEVEL                 -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyAliases maps the prefix-stripped env var name to its koanf key.
// An explicit table, rather than a blanket "_" -> "." replace, is required
// here because several leaf keys are themselves snake_case (e.g.
// "node_count", "max_step_m") alongside genuine section nesting
// ("swarm.mobility.*"): a naive replace cannot distinguish the two.
var envKeyAliases = map[string]string{
	"SWARM_NODE_COUNT":            "swarm.node_count",
	"SWARM_AREA_WIDTH_M":          "swarm.area_width_m",
	"SWARM_AREA_HEIGHT_M":         "swarm.area_height_m",
	"SWARM_MOBILITY_ENABLED":      "swarm.mobility.enabled",
	"SWARM_MOBILITY_MAX_STEP_M":   "swarm.mobility.max_step_m",
	"SWARM_DURATION_MS":           "swarm.duration_ms",
	"SWARM_SLOT_DURATION_MS":      "swarm.slot_duration_ms",
	"SWARM_INITIAL_TTL":           "swarm.initial_ttl",
	"SWARM_PROXIMITY_THRESHOLD_M": "swarm.proximity_threshold_m",
	"SWARM_SEED":                  "swarm.seed",
	"METRICS_ADDR":                "metrics.addr",
	"METRICS_PATH":                "metrics.path",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
}

// envKeyMapper transforms a prefix-stripped env var name (e.g.
// SWARM_NODE_COUNT) into its koanf key (swarm.node_count) via
// envKeyAliases. Unrecognized names fall back to a lowercased,
// underscore-to-dot transform for forward compatibility.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	if mapped, ok := envKeyAliases[s]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"swarm.node_count":            defaults.Swarm.NodeCount,
		"swarm.area_width_m":          defaults.Swarm.AreaWidthM,
		"swarm.area_height_m":         defaults.Swarm.AreaHeightM,
		"swarm.mobility.enabled":      defaults.Swarm.Mobility.Enabled,
		"swarm.mobility.max_step_m":   defaults.Swarm.Mobility.MaxStepM,
		"swarm.duration_ms":           defaults.Swarm.DurationMs,
		"swarm.slot_duration_ms":      defaults.Swarm.SlotDurationMs,
		"swarm.initial_ttl":           defaults.Swarm.InitialTTL,
		"swarm.proximity_threshold_m": defaults.Swarm.ProximityThresholdM,
		"swarm.seed":                  defaults.Swarm.Seed,
		"metrics.addr":                defaults.Metrics.Addr,
		"metrics.path":                defaults.Metrics.Path,
		"log.level":                   defaults.Log.Level,
		"log.format":                  defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidNodeCount indicates the swarm node count is not positive.
	ErrInvalidNodeCount = errors.New("swarm.node_count must be >= 1")

	// ErrInvalidAreaBounds indicates the placement area has a non-positive dimension.
	ErrInvalidAreaBounds = errors.New("swarm.area_width_m and swarm.area_height_m must be > 0")

	// ErrInvalidDuration indicates the simulation duration is not positive.
	ErrInvalidDuration = errors.New("swarm.duration_ms must be > 0")

	// ErrInvalidSlotDuration indicates the per-node slot duration is zero.
	ErrInvalidSlotDuration = errors.New("swarm.slot_duration_ms must be > 0")

	// ErrInvalidInitialTTL indicates the per-node initial TTL is zero.
	ErrInvalidInitialTTL = errors.New("swarm.initial_ttl must be >= 1")

	// ErrInvalidProximityThreshold indicates a negative proximity threshold.
	ErrInvalidProximityThreshold = errors.New("swarm.proximity_threshold_m must be >= 0")

	// ErrInvalidMobilityStep indicates mobility is enabled with a non-positive step bound.
	ErrInvalidMobilityStep = errors.New("swarm.mobility.max_step_m must be > 0 when mobility is enabled")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	s := cfg.Swarm

	if s.NodeCount < 1 {
		return ErrInvalidNodeCount
	}
	if s.AreaWidthM <= 0 || s.AreaHeightM <= 0 {
		return ErrInvalidAreaBounds
	}
	if s.DurationMs <= 0 {
		return ErrInvalidDuration
	}
	if s.SlotDurationMs == 0 {
		return ErrInvalidSlotDuration
	}
	if s.InitialTTL == 0 {
		return ErrInvalidInitialTTL
	}
	if s.ProximityThresholdM < 0 {
		return ErrInvalidProximityThreshold
	}
	if s.Mobility.Enabled && s.Mobility.MaxStepM <= 0 {
		return ErrInvalidMobilityStep
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
