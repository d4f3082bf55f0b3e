package clock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

// Config holds the tunables for building a clock.
// Values can be set via:
//  1. Code (programmatic configuration)
//  2. Environment variables (JUMPCLOCK_*)
//  3. A YAML config file
//
// Precedence: Code > Env Vars > Config File > Defaults
type Config struct {
	// Source selects the time source
	Source SourceType `yaml:"source" env:"JUMPCLOCK_SOURCE" default:"steady"`

	// DefaultThreshold is used by tools that register handlers on behalf
	// of the user (jump feed, clockwatch)
	DefaultThreshold JumpThreshold `yaml:"threshold"` // JUMPCLOCK_MIN_FORWARD, JUMPCLOCK_MIN_BACKWARD, JUMPCLOCK_ON_SOURCE_CHANGE

	// Wall clock step monitor, system sources only. Zero interval disables it.
	MonitorInterval  time.Duration `yaml:"monitor_interval" env:"JUMPCLOCK_MONITOR_INTERVAL" default:"0"`
	MonitorTolerance time.Duration `yaml:"monitor_tolerance" env:"JUMPCLOCK_MONITOR_TOLERANCE" default:"100ms"`

	// Replay playback speed for overridable sources
	ReplaySpeed float64 `yaml:"replay_speed" env:"JUMPCLOCK_REPLAY_SPEED" default:"1.0"`

	// Diagnostics
	LogJSON            bool `yaml:"log_json" env:"JUMPCLOCK_LOG_JSON" default:"false"`
	ErrorBusBufferSize int  `yaml:"error_bus_buffer" env:"JUMPCLOCK_ERROR_BUS_BUFFER" default:"32"`
}

// DefaultConfig returns a steady clock with an any-jump threshold.
func DefaultConfig() Config {
	return Config{
		Source: Steady,

		DefaultThreshold: JumpThreshold{
			MinForward:     0,
			MinBackward:    0,
			OnSourceChange: true,
		},

		MonitorInterval:  0,
		MonitorTolerance: 100 * time.Millisecond,

		ReplaySpeed: 1.0,

		LogJSON:            false,
		ErrorBusBufferSize: 32,
	}
}

// LoadFromEnv loads configuration from defaults overridden by any
// JUMPCLOCK_* env vars found.
func LoadFromEnv() (Config, error) {
	return Load("")
}

// Load reads path (if non-empty) over the defaults, then applies
// JUMPCLOCK_* env vars, then validates.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML config file over the defaults. It does not consult
// the environment.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JUMPCLOCK_SOURCE"); v != "" {
		if src, err := timesource.ParseSourceType(v); err == nil {
			cfg.Source = src
		}
	}

	// Threshold
	if v := os.Getenv("JUMPCLOCK_MIN_FORWARD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.DefaultThreshold.MinForward = d
		}
	}
	if v := os.Getenv("JUMPCLOCK_MIN_BACKWARD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.DefaultThreshold.MinBackward = d
		}
	}
	if v := os.Getenv("JUMPCLOCK_ON_SOURCE_CHANGE"); v != "" {
		cfg.DefaultThreshold.OnSourceChange = v == "true" || v == "1"
	}

	// Monitor
	if v := os.Getenv("JUMPCLOCK_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MonitorInterval = d
		}
	}
	if v := os.Getenv("JUMPCLOCK_MONITOR_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MonitorTolerance = d
		}
	}

	// Replay
	if v := os.Getenv("JUMPCLOCK_REPLAY_SPEED"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil && val > 0 {
			cfg.ReplaySpeed = val
		}
	}

	// Diagnostics
	if v := os.Getenv("JUMPCLOCK_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := os.Getenv("JUMPCLOCK_ERROR_BUS_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ErrorBusBufferSize = n
		}
	}
}

// Validate checks that configuration values are sensible.
func (c *Config) Validate() error {
	if !c.Source.Valid() {
		return fmt.Errorf("source must be steady, system, or overridable, got %s", c.Source)
	}

	if err := c.DefaultThreshold.Validate(); err != nil {
		return fmt.Errorf("default threshold: %w", err)
	}

	if c.MonitorInterval < 0 {
		return fmt.Errorf("monitor interval must be >= 0, got %s", c.MonitorInterval)
	}

	if c.MonitorInterval > 0 {
		if c.Source != System {
			return fmt.Errorf("monitor needs a system source, got %s", c.Source)
		}
		if c.MonitorTolerance <= 0 {
			return fmt.Errorf("monitor tolerance must be > 0, got %s", c.MonitorTolerance)
		}
	}

	if c.ReplaySpeed <= 0 {
		return fmt.Errorf("replay speed must be > 0, got %.2f", c.ReplaySpeed)
	}

	if c.ErrorBusBufferSize <= 0 {
		return fmt.Errorf("error bus buffer must be > 0, got %d", c.ErrorBusBufferSize)
	}

	return nil
}

// String returns a human-readable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(`Clock Configuration:
  Source: %s

  Default Threshold:
    Min Forward:      %s
    Min Backward:     %s
    On Source Change: %t

  Monitor:
    Interval:  %s
    Tolerance: %s

  Replay Speed: %.2fx
`,
		c.Source,
		c.DefaultThreshold.MinForward,
		c.DefaultThreshold.MinBackward,
		c.DefaultThreshold.OnSourceChange,
		formatInterval(c.MonitorInterval),
		c.MonitorTolerance,
		c.ReplaySpeed,
	)
}

func formatInterval(d time.Duration) string {
	if d == 0 {
		return "disabled"
	}
	return d.String()
}

// NewLogger builds a slog logger writing text or JSON to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewClockFromConfig builds a clock for cfg.Source. For system sources
// with a monitor interval it also starts the wall clock step monitor,
// which stops when ctx ends or the clock's backend is finalized.
func NewClockFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitializationError{
			Status:  timesource.StatusInvalidArgument,
			Message: err.Error(),
		}
	}

	clk, err := NewClock(cfg.Source, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.MonitorInterval > 0 {
		src, ok := clk.Backend().(*timesource.Source)
		if !ok {
			clk.Close()
			return nil, &InitializationError{
				Status:  timesource.StatusWrongType,
				Message: fmt.Sprintf("backend %T does not support the jump monitor", clk.Backend()),
			}
		}
		if err := src.StartJumpMonitor(ctx, cfg.MonitorInterval, cfg.MonitorTolerance); err != nil {
			clk.Close()
			return nil, newInitializationError("could not start jump monitor", err)
		}
	}

	return clk, nil
}
