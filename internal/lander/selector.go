package lander

import (
	"errors"
	"fmt"
	"math"
)

// NumChannels is the width of an RC override frame.
const NumChannels = 8

// Channel layout of an override frame. Channels not listed are never overridden, which
// keeps the pilot's mode switch live while the arbiter is flying.
const (
	ChannelRoll = iota
	ChannelPitch
	ChannelThrottle
	ChannelYaw
)

// ReleaseValue in a channel hands that channel back to the pilot's transmitter.
const ReleaseValue uint16 = 0

var (
	// ErrMissingPrecondition means a sensor field the state's action needs was never received.
	ErrMissingPrecondition = errors.New("MISSING_PRECONDITION")

	// ErrNoAction means the state has no autonomous action.
	ErrNoAction = errors.New("NO_ACTION")
)

// Command is one RC override frame sent to the vehicle.
type Command struct {
	Channels [NumChannels]uint16 `json:"channels"`
}

// ReleaseCommand returns the frame that releases every override channel.
func ReleaseCommand() Command {
	return Command{}
}

// IsRelease reports whether every channel is released.
func (c Command) IsRelease() bool {
	for _, v := range c.Channels {
		if v != ReleaseValue {
			return false
		}
	}
	return true
}

// ActionSelector turns a state and the current readings into one command.
// Implementations must not have side effects.
type ActionSelector interface {
	SelectAction(state State, sensors SensorSnapshot) (Command, error)
}

// GuidanceParams are the proportional gains and limits of ProportionalSelector.
type GuidanceParams struct {
	NeutralPWM uint16
	MinPWM     uint16
	MaxPWM     uint16

	// LateralGain is PWM microseconds per metre of horizontal pad offset.
	LateralGain float64
	// YawGain is PWM microseconds per radian of heading error.
	YawGain float64
	// AlignTolerance is the horizontal offset in metres under which LAND_HIGH descends.
	AlignTolerance float64
	// HighDescentPWM is the throttle reduction below neutral while descending in LAND_HIGH.
	HighDescentPWM uint16

	// SinkRatePerMetre scales the LAND_LOW target sink rate with altitude.
	SinkRatePerMetre float64
	MinSinkRate      float64 // m/s
	MaxSinkRate      float64 // m/s
	// ClimbGain is PWM microseconds per m/s of climb-rate error in LAND_LOW.
	ClimbGain float64
}

// DefaultGuidanceParams returns conservative gains for a mid-size quadcopter in an
// altitude-holding flight mode, where neutral throttle holds height.
func DefaultGuidanceParams() GuidanceParams {
	return GuidanceParams{
		NeutralPWM:       1500,
		MinPWM:           1100,
		MaxPWM:           1900,
		LateralGain:      80,
		YawGain:          150,
		AlignTolerance:   0.5,
		HighDescentPWM:   100,
		SinkRatePerMetre: 0.5,
		MinSinkRate:      0.2,
		MaxSinkRate:      1.0,
		ClimbGain:        200,
	}
}

// ProportionalSelector is the default ActionSelector: pad alignment from pose in
// SEEK_HOME and LAND_HIGH, altitude-governed sink in LAND_LOW.
type ProportionalSelector struct {
	params GuidanceParams
}

// NewProportionalSelector creates a selector with the given gains.
func NewProportionalSelector(params GuidanceParams) *ProportionalSelector {
	return &ProportionalSelector{params: params}
}

// SelectAction implements ActionSelector.
func (s *ProportionalSelector) SelectAction(state State, sensors SensorSnapshot) (Command, error) {
	switch state {
	case SeekHome, LandHigh:
		if sensors.Pose == nil {
			return Command{}, fmt.Errorf("%w: %s needs pose", ErrMissingPrecondition, state)
		}
		return s.alignOverPad(state, *sensors.Pose), nil
	case LandLow:
		if sensors.Telemetry == nil {
			return Command{}, fmt.Errorf("%w: %s needs telemetry", ErrMissingPrecondition, state)
		}
		return s.sinkToGround(*sensors.Telemetry), nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrNoAction, state)
	}
}

func (s *ProportionalSelector) alignOverPad(state State, pose Pose) Command {
	p := s.params
	neutral := float64(p.NeutralPWM)

	var cmd Command
	// Pitch forward (lower PWM) towards a pad ahead, roll towards a pad to the right.
	cmd.Channels[ChannelPitch] = s.clamp(neutral - p.LateralGain*pose.X())
	cmd.Channels[ChannelRoll] = s.clamp(neutral + p.LateralGain*pose.Y())
	cmd.Channels[ChannelYaw] = s.clamp(neutral + p.YawGain*pose.Yaw())

	throttle := neutral
	if state == LandHigh && math.Hypot(pose.X(), pose.Y()) <= p.AlignTolerance {
		throttle -= float64(p.HighDescentPWM)
	}
	cmd.Channels[ChannelThrottle] = s.clamp(throttle)
	return cmd
}

func (s *ProportionalSelector) sinkToGround(t Telemetry) Command {
	p := s.params
	neutral := float64(p.NeutralPWM)

	sink := math.Max(p.MinSinkRate, math.Min(p.MaxSinkRate, t.Alt*p.SinkRatePerMetre))
	climbErr := -sink - t.Climb

	var cmd Command
	cmd.Channels[ChannelRoll] = p.NeutralPWM
	cmd.Channels[ChannelPitch] = p.NeutralPWM
	cmd.Channels[ChannelYaw] = p.NeutralPWM
	cmd.Channels[ChannelThrottle] = s.clamp(neutral + p.ClimbGain*climbErr)
	return cmd
}

func (s *ProportionalSelector) clamp(v float64) uint16 {
	lo, hi := float64(s.params.MinPWM), float64(s.params.MaxPWM)
	if math.IsNaN(v) {
		return s.params.NeutralPWM
	}
	return uint16(math.Round(math.Max(lo, math.Min(hi, v))))
}
