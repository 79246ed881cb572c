package lander

// Attitude is the vehicle orientation as reported by the flight controller.
type Attitude struct {
	Roll       float64 `json:"roll" yaml:"roll"`
	Pitch      float64 `json:"pitch" yaml:"pitch"`
	Yaw        float64 `json:"yaw" yaml:"yaw"`
	RollSpeed  float64 `json:"rollSpeed" yaml:"rollSpeed"`
	PitchSpeed float64 `json:"pitchSpeed" yaml:"pitchSpeed"`
	YawSpeed   float64 `json:"yawSpeed" yaml:"yawSpeed"`
}

// Telemetry is the HUD summary: speeds, heading, throttle, altitude and climb rate.
type Telemetry struct {
	Airspeed    float64 `json:"airspeed" yaml:"airspeed"`
	Groundspeed float64 `json:"groundspeed" yaml:"groundspeed"`
	Heading     float64 `json:"heading" yaml:"heading"`
	Throttle    float64 `json:"throttle" yaml:"throttle"`
	Alt         float64 `json:"alt" yaml:"alt"`     // metres
	Climb       float64 `json:"climb" yaml:"climb"` // m/s, positive up
}

// Pose is the estimated position of the landing pad relative to the vehicle.
//
// Components are [x, y, z] in metres with an optional fourth yaw error in radians:
// x is the pad offset ahead of the vehicle, y to its right, z the height above the pad.
type Pose struct {
	Components []float64 `json:"components" yaml:"components"`
}

// Pose component indices.
const (
	PoseX = iota
	PoseY
	PoseZ
	PoseYaw
)

// MinPoseComponents is the shortest pose vector the arbiter can act on.
const MinPoseComponents = 3

func (p Pose) component(i int) float64 {
	if i < len(p.Components) {
		return p.Components[i]
	}
	return 0
}

// X returns the forward offset of the pad.
func (p Pose) X() float64 { return p.component(PoseX) }

// Y returns the lateral offset of the pad.
func (p Pose) Y() float64 { return p.component(PoseY) }

// Z returns the height above the pad.
func (p Pose) Z() float64 { return p.component(PoseZ) }

// Yaw returns the heading error, zero when the estimator does not provide one.
func (p Pose) Yaw() float64 { return p.component(PoseYaw) }

func (p Pose) clone() Pose {
	return Pose{Components: append([]float64(nil), p.Components...)}
}

// RCChannels is one frame of RC input, PWM microseconds per channel.
type RCChannels struct {
	Channels []uint16 `json:"channels" yaml:"channels"`
}

// SensorState holds the latest reading of each sensor stream.
//
// Fields are updated independently and may be stale relative to each other. SensorState
// does no locking of its own; the Router serializes access.
type SensorState struct {
	attitude  *Attitude
	telemetry *Telemetry
	pose      *Pose
}

// NewSensorState returns a store with every field unset.
func NewSensorState() *SensorState {
	return &SensorState{}
}

// UpdateAttitude replaces the stored attitude.
func (s *SensorState) UpdateAttitude(a Attitude) {
	s.attitude = &a
}

// UpdateTelemetry replaces the stored telemetry.
func (s *SensorState) UpdateTelemetry(t Telemetry) {
	s.telemetry = &t
}

// UpdatePose replaces the stored pose.
func (s *SensorState) UpdatePose(p Pose) {
	cp := p.clone()
	s.pose = &cp
}

// SensorSnapshot is a copy of the store. Nil fields have never been received.
type SensorSnapshot struct {
	Attitude  *Attitude  `json:"attitude,omitempty"`
	Telemetry *Telemetry `json:"telemetry,omitempty"`
	Pose      *Pose      `json:"pose,omitempty"`
}

// Snapshot copies the current readings.
func (s *SensorState) Snapshot() SensorSnapshot {
	var snap SensorSnapshot
	if s.attitude != nil {
		a := *s.attitude
		snap.Attitude = &a
	}
	if s.telemetry != nil {
		t := *s.telemetry
		snap.Telemetry = &t
	}
	if s.pose != nil {
		p := s.pose.clone()
		snap.Pose = &p
	}
	return snap
}
