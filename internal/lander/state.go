package lander

import "fmt"

// State is the current phase of the landing sequence.
type State int

const (
	// Flying is manual RC flight; the arbiter only observes.
	Flying State = iota
	// SeekHome holds altitude and waits for a valid pose estimate over the pad.
	SeekHome
	// LandHigh aligns over the pad from the pose estimate and descends.
	LandHigh
	// LandLow descends on altitude and climb rate once pose is no longer the limiting signal.
	LandLow
)

var stateNames = [...]string{
	Flying:   "FLYING",
	SeekHome: "SEEK_HOME",
	LandHigh: "LAND_HIGH",
	LandLow:  "LAND_LOW",
}

// States lists every state in declaration order.
func States() []State {
	return []State{Flying, SeekHome, LandHigh, LandLow}
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Autonomous reports whether the state belongs to the autonomous sequence.
func (s State) Autonomous() bool {
	return s != Flying
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown lander state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Flying, fmt.Errorf("unknown lander state %q", name)
}

// Category is the source category an inbound event was delivered on.
type Category int

const (
	CategoryAttitude Category = iota
	CategoryTelemetry
	CategoryPose
	CategoryToggle
)

var categoryNames = [...]string{
	CategoryAttitude:  "attitude",
	CategoryTelemetry: "telemetry",
	CategoryPose:      "pose",
	CategoryToggle:    "toggle",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
