//
//
package config

import (
	"fmt"
	"net"
	"strings"
)

const maxPWM = 2200

// Validate checks the configuration as a whole.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateControl(cfg.Control); err != nil {
		return fmt.Errorf("control validation failed: %w", err)
	}
	if err := validateGuidance(cfg.Guidance); err != nil {
		return fmt.Errorf("guidance validation failed: %w", err)
	}
	if cfg.Transport.QueueSize <= 0 {
		return fmt.Errorf("transport queue size must be positive, got %d", cfg.Transport.QueueSize)
	}
	if err := validateTiming(cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}
	if err := validateAuth(cfg.Auth, cfg.Server.Addr); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := validateLogging(cfg.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	if err := validateTracing(cfg.Tracing); err != nil {
		return fmt.Errorf("tracing validation failed: %w", err)
	}

	return nil
}

func validateControl(c ControlConfig) error {
	// The override frame is eight channels wide.
	if c.ToggleChannel < 0 || c.ToggleChannel > 7 {
		return fmt.Errorf("toggle channel must be in [0, 7], got %d", c.ToggleChannel)
	}
	if c.ToggleThreshold <= 0 || c.ToggleThreshold > maxPWM {
		return fmt.Errorf("toggle threshold must be in (0, %d], got %d", maxPWM, c.ToggleThreshold)
	}
	if c.LowHandoffAltitude < 0 {
		return fmt.Errorf("low handoff altitude must be non-negative, got %v", c.LowHandoffAltitude)
	}
	return nil
}

func validateGuidance(g GuidanceConfig) error {
	if g.MinPWM <= 0 || g.MaxPWM > maxPWM || g.MinPWM >= g.MaxPWM {
		return fmt.Errorf("pwm range [%d, %d] invalid", g.MinPWM, g.MaxPWM)
	}
	if g.NeutralPWM < g.MinPWM || g.NeutralPWM > g.MaxPWM {
		return fmt.Errorf("neutral pwm %d outside [%d, %d]", g.NeutralPWM, g.MinPWM, g.MaxPWM)
	}
	if g.HighDescentPWM < 0 || g.NeutralPWM-g.HighDescentPWM < g.MinPWM {
		return fmt.Errorf("high descent pwm %d drives throttle below minimum", g.HighDescentPWM)
	}
	if g.LateralGain < 0 || g.YawGain < 0 || g.ClimbGain < 0 {
		return fmt.Errorf("gains must be non-negative")
	}
	if g.AlignTolerance <= 0 {
		return fmt.Errorf("align tolerance must be positive, got %v", g.AlignTolerance)
	}
	if g.MinSinkRate < 0 || g.MaxSinkRate < g.MinSinkRate {
		return fmt.Errorf("sink rate range [%v, %v] invalid", g.MinSinkRate, g.MaxSinkRate)
	}
	return nil
}

func validateTiming(t TimingConfig) error {
	if t.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", t.CommandTimeout)
	}
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.HeartbeatJitter < 0 || t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v must be within 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}
	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	return nil
}

// validateAuth keeps the fixed dev tokens and anonymous access off every
// non-loopback interface. Enabled auth without credentials is accepted and refuses
// every authenticated request.
func validateAuth(a AuthConfig, addr string) error {
	if a.Enabled && !a.AllowDevTokens {
		return nil
	}
	if !isLoopback(addr) {
		if !a.Enabled {
			return fmt.Errorf("auth may only be disabled on a loopback address, got %q", addr)
		}
		return fmt.Errorf("dev tokens require a loopback address, got %q", addr)
	}
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateLogging(l LoggingConfig) error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	switch t.Exporter {
	case "stdout":
	case "otlp":
		if t.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown trace exporter %q", t.Exporter)
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be in [0, 1], got %v", t.SampleRatio)
	}
	return nil
}
