package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/autoland/lander/internal/lander"
)

// ErrMalformedPayload rejects a payload whose shape does not fit its topic.
var ErrMalformedPayload = errors.New("MALFORMED_PAYLOAD")

// Validate checks that payload has the type and shape expected on topic. rc frames
// must carry toggleChannel.
func Validate(topic string, payload any, toggleChannel int) error {
	switch topic {
	case TopicAttitude:
		a, ok := payload.(lander.Attitude)
		if !ok {
			return wrongType(topic, payload)
		}
		return finite(topic, a.Roll, a.Pitch, a.Yaw, a.RollSpeed, a.PitchSpeed, a.YawSpeed)
	case TopicTelemetry:
		t, ok := payload.(lander.Telemetry)
		if !ok {
			return wrongType(topic, payload)
		}
		return finite(topic, t.Airspeed, t.Groundspeed, t.Heading, t.Throttle, t.Alt, t.Climb)
	case TopicPose:
		p, ok := payload.(lander.Pose)
		if !ok {
			return wrongType(topic, payload)
		}
		if len(p.Components) < lander.MinPoseComponents {
			return fmt.Errorf("%w: %s has %d components, need %d", ErrMalformedPayload, topic, len(p.Components), lander.MinPoseComponents)
		}
		return finite(topic, p.Components...)
	case TopicRC:
		rc, ok := payload.(lander.RCChannels)
		if !ok {
			return wrongType(topic, payload)
		}
		if toggleChannel >= len(rc.Channels) {
			return fmt.Errorf("%w: %s has %d channels, toggle is channel %d", ErrMalformedPayload, topic, len(rc.Channels), toggleChannel)
		}
		return nil
	case TopicCommand:
		if _, ok := payload.(lander.Command); !ok {
			return wrongType(topic, payload)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}

// Decode parses a JSON payload for topic into the type Publish expects.
// Pose and rc accept either the object form or a bare array.
func Decode(topic string, data []byte) (any, error) {
	var (
		payload any
		err     error
	)
	switch topic {
	case TopicAttitude:
		var a lander.Attitude
		err = json.Unmarshal(data, &a)
		payload = a
	case TopicTelemetry:
		var t lander.Telemetry
		err = json.Unmarshal(data, &t)
		payload = t
	case TopicPose:
		var p lander.Pose
		if err = json.Unmarshal(data, &p.Components); err != nil {
			err = json.Unmarshal(data, &p)
		}
		payload = p
	case TopicRC:
		var rc lander.RCChannels
		if err = json.Unmarshal(data, &rc.Channels); err != nil {
			err = json.Unmarshal(data, &rc)
		}
		payload = rc
	case TopicCommand:
		var c lander.Command
		err = json.Unmarshal(data, &c)
		payload = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, topic, err)
	}
	return payload, nil
}

func wrongType(topic string, payload any) error {
	return fmt.Errorf("%w: %s does not carry %T", ErrMalformedPayload, topic, payload)
}

func finite(topic string, values ...float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s value %d is not finite", ErrMalformedPayload, topic, i)
		}
	}
	return nil
}
