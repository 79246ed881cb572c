package replay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/lander"
)

// Scenario is an ordered list of timed inbound events.
//
//	name: hover then land
//	steps:
//	  - after: 100ms
//	    topic: rc
//	    rc: [1500, 1500, 1500, 1500, 2000]
//	  - after: 50ms
//	    topic: simplePose
//	    pose: [0.4, -0.2, 3.0]
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step publishes one payload after waiting After from the previous step. Exactly the
// payload field matching Topic must be set.
type Step struct {
	After     time.Duration     `yaml:"after"`
	Topic     string            `yaml:"topic"`
	Attitude  *lander.Attitude  `yaml:"attitude,omitempty"`
	Telemetry *lander.Telemetry `yaml:"telemetry,omitempty"`
	Pose      []float64         `yaml:"pose,omitempty"`
	RC        []uint16          `yaml:"rc,omitempty"`
}

// Payload returns the bus payload the step carries.
func (s Step) Payload() (any, error) {
	set := 0
	for _, present := range []bool{s.Attitude != nil, s.Telemetry != nil, s.Pose != nil, s.RC != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("step on %q must carry exactly one payload, has %d", s.Topic, set)
	}

	switch {
	case s.Topic == bus.TopicAttitude && s.Attitude != nil:
		return *s.Attitude, nil
	case s.Topic == bus.TopicTelemetry && s.Telemetry != nil:
		return *s.Telemetry, nil
	case s.Topic == bus.TopicPose && s.Pose != nil:
		return lander.Pose{Components: append([]float64(nil), s.Pose...)}, nil
	case s.Topic == bus.TopicRC && s.RC != nil:
		return lander.RCChannels{Channels: append([]uint16(nil), s.RC...)}, nil
	case !bus.IsInbound(s.Topic):
		return nil, fmt.Errorf("%w: %q is not an inbound topic", bus.ErrUnknownTopic, s.Topic)
	default:
		return nil, fmt.Errorf("step on %q carries the wrong payload field", s.Topic)
	}
}

// Duration is the time one pass through the scenario takes.
func (sc *Scenario) Duration() time.Duration {
	var d time.Duration
	for _, s := range sc.Steps {
		d += s.After
	}
	return d
}

// Validate checks every step against the bus payload rules.
func (sc *Scenario) Validate(toggleChannel int) error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, s := range sc.Steps {
		if s.After < 0 {
			return fmt.Errorf("step %d: negative delay %v", i, s.After)
		}
		payload, err := s.Payload()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := bus.Validate(s.Topic, payload, toggleChannel); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Parse decodes a YAML scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.UnmarshalStrict(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return &sc, nil
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}
