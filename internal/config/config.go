//
//
package config

import (
	"time"

	"github.com/autoland/lander/internal/lander"
)

// Config is the complete process configuration.
type Config struct {
	Control   ControlConfig   `yaml:"control"`
	Guidance  GuidanceConfig  `yaml:"guidance"`
	Transport TransportConfig `yaml:"transport"`
	Timing    TimingConfig    `yaml:"timing"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Audit     AuditConfig     `yaml:"audit"`
	Replay    ReplayConfig    `yaml:"replay"`
}

// ControlConfig holds the mode switch and sequencing settings.
type ControlConfig struct {
	ToggleChannel      int     `yaml:"toggleChannel"`
	ToggleThreshold    int     `yaml:"toggleThreshold"`
	ReleaseOnDisengage bool    `yaml:"releaseOnDisengage"`
	LowHandoffAltitude float64 `yaml:"lowHandoffAltitude"` // metres, 0 disables
}

// GuidanceConfig holds the gains of the proportional action selector.
type GuidanceConfig struct {
	NeutralPWM       int     `yaml:"neutralPwm"`
	MinPWM           int     `yaml:"minPwm"`
	MaxPWM           int     `yaml:"maxPwm"`
	LateralGain      float64 `yaml:"lateralGain"`
	YawGain          float64 `yaml:"yawGain"`
	AlignTolerance   float64 `yaml:"alignTolerance"`
	HighDescentPWM   int     `yaml:"highDescentPwm"`
	SinkRatePerMetre float64 `yaml:"sinkRatePerMetre"`
	MinSinkRate      float64 `yaml:"minSinkRate"`
	MaxSinkRate      float64 `yaml:"maxSinkRate"`
	ClimbGain        float64 `yaml:"climbGain"`
}

// TransportConfig holds event bus settings.
type TransportConfig struct {
	QueueSize int `yaml:"queueSize"`
}

// TimingConfig holds timeouts and telemetry stream cadence.
type TimingConfig struct {
	CommandTimeout       time.Duration `yaml:"commandTimeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter      time.Duration `yaml:"heartbeatJitter"`
	EventBufferSize      int           `yaml:"eventBufferSize"`
	EventBufferRetention time.Duration `yaml:"eventBufferRetention"`
}

// ServerConfig holds the operator API listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	HMACSecret    string `yaml:"hmacSecret"`
	PublicKeyFile string `yaml:"publicKeyFile"`
	Issuer        string `yaml:"issuer"`
	// AllowDevTokens accepts the fixed viewer/operator tokens. Bench use only; the
	// server must then listen on a loopback address.
	AllowDevTokens bool `yaml:"allowDevTokens"`
}

// LoggingConfig controls the application log.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	AddSource  bool   `yaml:"addSource"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// ReplayConfig points at an optional bench scenario.
type ReplayConfig struct {
	File string `yaml:"file"`
	Loop bool   `yaml:"loop"`
}

// Baseline returns the defaults for the reference quadcopter setup.
func Baseline() *Config {
	params := lander.DefaultGuidanceParams()
	return &Config{
		Control: ControlConfig{
			ToggleChannel:      lander.DefaultToggleChannel,
			ToggleThreshold:    lander.DefaultToggleThreshold,
			ReleaseOnDisengage: true,
		},
		Guidance: GuidanceConfig{
			NeutralPWM:       int(params.NeutralPWM),
			MinPWM:           int(params.MinPWM),
			MaxPWM:           int(params.MaxPWM),
			LateralGain:      params.LateralGain,
			YawGain:          params.YawGain,
			AlignTolerance:   params.AlignTolerance,
			HighDescentPWM:   int(params.HighDescentPWM),
			SinkRatePerMetre: params.SinkRatePerMetre,
			MinSinkRate:      params.MinSinkRate,
			MaxSinkRate:      params.MaxSinkRate,
			ClimbGain:        params.ClimbGain,
		},
		Transport: TransportConfig{
			QueueSize: 1000, // subscriber queue depth of the autopilot bridge
		},
		Timing: TimingConfig{
			CommandTimeout:       200 * time.Millisecond,
			HeartbeatInterval:    15 * time.Second,
			HeartbeatJitter:      2 * time.Second,
			EventBufferSize:      50,
			EventBufferRetention: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:        true,
			Issuer:         "lander",
			AllowDevTokens: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			Insecure:    true,
			ServiceName: "lander",
			SampleRatio: 1.0,
		},
		Audit: AuditConfig{
			Path:       "audit.jsonl",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// Options converts the control section for the arbiter.
func (c ControlConfig) Options() lander.Options {
	return lander.Options{
		ToggleChannel:      c.ToggleChannel,
		ToggleThreshold:    uint16(c.ToggleThreshold),
		ReleaseOnDisengage: c.ReleaseOnDisengage,
		LowHandoffAltitude: c.LowHandoffAltitude,
	}
}

// Params converts the guidance section for the action selector.
func (g GuidanceConfig) Params() lander.GuidanceParams {
	return lander.GuidanceParams{
		NeutralPWM:       uint16(g.NeutralPWM),
		MinPWM:           uint16(g.MinPWM),
		MaxPWM:           uint16(g.MaxPWM),
		LateralGain:      g.LateralGain,
		YawGain:          g.YawGain,
		AlignTolerance:   g.AlignTolerance,
		HighDescentPWM:   uint16(g.HighDescentPWM),
		SinkRatePerMetre: g.SinkRatePerMetre,
		MinSinkRate:      g.MinSinkRate,
		MaxSinkRate:      g.MaxSinkRate,
		ClimbGain:        g.ClimbGain,
	}
}
