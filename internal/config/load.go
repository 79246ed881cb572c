//
//
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultFile is read when LANDER_CONFIG is unset and the file exists.
const DefaultFile = "lander.yaml"

// Load resolves the configuration: Baseline, then the YAML file named by LANDER_CONFIG
// (or DefaultFile if present), then LANDER_* environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("LANDER_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file. An empty path skips the file layer.
func LoadFrom(path string) (*Config, error) {
	cfg := Baseline()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file on cfg. Keys absent from the file keep their value.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// envOverride binds one environment variable to a config field.
type envOverride struct {
	key   string
	apply func(cfg *Config, val string) error
}

var envOverrides = []envOverride{
	{"LANDER_CONTROL_TOGGLE_CHANNEL", intField(func(c *Config) *int { return &c.Control.ToggleChannel })},
	{"LANDER_CONTROL_TOGGLE_THRESHOLD", intField(func(c *Config) *int { return &c.Control.ToggleThreshold })},
	{"LANDER_CONTROL_RELEASE_ON_DISENGAGE", boolField(func(c *Config) *bool { return &c.Control.ReleaseOnDisengage })},
	{"LANDER_CONTROL_LOW_HANDOFF_ALTITUDE", floatField(func(c *Config) *float64 { return &c.Control.LowHandoffAltitude })},

	{"LANDER_TRANSPORT_QUEUE_SIZE", intField(func(c *Config) *int { return &c.Transport.QueueSize })},

	{"LANDER_TIMING_COMMAND_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Timing.CommandTimeout })},
	{"LANDER_TIMING_HEARTBEAT_INTERVAL", durationField(func(c *Config) *time.Duration { return &c.Timing.HeartbeatInterval })},
	{"LANDER_TIMING_HEARTBEAT_JITTER", durationField(func(c *Config) *time.Duration { return &c.Timing.HeartbeatJitter })},
	{"LANDER_TIMING_EVENT_BUFFER_SIZE", intField(func(c *Config) *int { return &c.Timing.EventBufferSize })},

	{"LANDER_SERVER_ADDR", stringField(func(c *Config) *string { return &c.Server.Addr })},

	{"LANDER_AUTH_ENABLED", boolField(func(c *Config) *bool { return &c.Auth.Enabled })},
	{"LANDER_AUTH_HMAC_SECRET", stringField(func(c *Config) *string { return &c.Auth.HMACSecret })},
	{"LANDER_AUTH_PUBLIC_KEY_FILE", stringField(func(c *Config) *string { return &c.Auth.PublicKeyFile })},
	{"LANDER_AUTH_DEV_TOKENS", boolField(func(c *Config) *bool { return &c.Auth.AllowDevTokens })},

	{"LANDER_LOG_LEVEL", stringField(func(c *Config) *string { return &c.Logging.Level })},
	{"LANDER_LOG_FORMAT", stringField(func(c *Config) *string { return &c.Logging.Format })},
	{"LANDER_LOG_FILE", stringField(func(c *Config) *string { return &c.Logging.File })},

	{"LANDER_TRACING_ENABLED", boolField(func(c *Config) *bool { return &c.Tracing.Enabled })},
	{"LANDER_TRACING_EXPORTER", stringField(func(c *Config) *string { return &c.Tracing.Exporter })},
	{"LANDER_TRACING_ENDPOINT", stringField(func(c *Config) *string { return &c.Tracing.Endpoint })},

	{"LANDER_AUDIT_PATH", stringField(func(c *Config) *string { return &c.Audit.Path })},

	{"LANDER_REPLAY_FILE", stringField(func(c *Config) *string { return &c.Replay.File })},
	{"LANDER_REPLAY_LOOP", boolField(func(c *Config) *bool { return &c.Replay.Loop })},
}

// applyEnvOverrides applies LANDER_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(o.key)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.key, err))
		}
	}
	return errors.Join(errs...)
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, val string) error {
		*field(c) = val
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatField(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
