package lander

// Default RC toggle settings. Channel 4 is the fifth channel, zero-based.
const (
	DefaultToggleChannel   = 4
	DefaultToggleThreshold = 1500
)

// Options configure a ControllerContext.
type Options struct {
	// ToggleChannel is the RC channel index read as the autonomous-mode switch.
	ToggleChannel int
	// ToggleThreshold is the PWM value at or above which the switch reads high.
	ToggleThreshold uint16
	// ReleaseOnDisengage makes the transition to FLYING emit an all-release frame.
	ReleaseOnDisengage bool
	// LowHandoffAltitude moves LAND_HIGH to LAND_LOW on a pose update once the latest
	// telemetry altitude is at or below it. Zero disables the handoff.
	LowHandoffAltitude float64
}

// DefaultOptions returns the options of the reference vehicle setup.
func DefaultOptions() Options {
	return Options{
		ToggleChannel:      DefaultToggleChannel,
		ToggleThreshold:    DefaultToggleThreshold,
		ReleaseOnDisengage: true,
	}
}

// ControllerContext is the single aggregate the arbiter owns: the state machine and
// the sensor store it reads from. Build one per process and share it by reference.
type ControllerContext struct {
	Machine *Machine
	Sensors *SensorState

	opts Options
}

// NewControllerContext creates a context in FLYING with autonomous mode off and no
// readings.
func NewControllerContext(selector ActionSelector, opts Options) *ControllerContext {
	sensors := NewSensorState()
	return &ControllerContext{
		Machine: NewMachine(sensors, selector, opts.ReleaseOnDisengage),
		Sensors: sensors,
		opts:    opts,
	}
}

// Options returns the options the context was built with.
func (c *ControllerContext) Options() Options {
	return c.opts
}

// ToggleReading interprets an RC frame as the autonomous-mode switch. ok is false when
// the frame does not carry the toggle channel.
func (c *ControllerContext) ToggleReading(rc RCChannels) (high bool, ok bool) {
	if c.opts.ToggleChannel < 0 || c.opts.ToggleChannel >= len(rc.Channels) {
		return false, false
	}
	return rc.Channels[c.opts.ToggleChannel] >= c.opts.ToggleThreshold, true
}

func (c *ControllerContext) lowHandoff() bool {
	if c.opts.LowHandoffAltitude <= 0 {
		return false
	}
	t := c.Sensors.telemetry
	return t != nil && t.Alt <= c.opts.LowHandoffAltitude
}
