// Package vehicle defines the southbound link that carries RC override commands to the
// flight controller.
//
// Link errors are normalized to UNAVAILABLE, INVALID_RANGE, BUSY or INTERNAL so the
// command dispatcher can report them the same way regardless of the bridge in use.
package vehicle

import (
	"context"
	"errors"

	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/lander"
)

// Link delivers override frames to the vehicle.
type Link interface {
	// SendRC hands one frame to the link. Delivery is at-most-once.
	SendRC(ctx context.Context, cmd lander.Command) error
}

// Publisher is the part of the bus a BusLink needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// BusLink publishes override frames on the send_rc topic, where the autopilot bridge
// picks them up.
type BusLink struct {
	pub   Publisher
	topic string
}

// NewBusLink creates a link publishing on bus.TopicCommand.
func NewBusLink(pub Publisher) *BusLink {
	return &BusLink{pub: pub, topic: bus.TopicCommand}
}

// SendRC implements Link.
func (l *BusLink) SendRC(ctx context.Context, cmd lander.Command) error {
	if err := ctx.Err(); err != nil {
		return &LinkError{Code: ErrUnavailable, Original: err}
	}

	err := l.pub.Publish(l.topic, cmd)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bus.ErrClosed):
		return &LinkError{Code: ErrUnavailable, Original: err}
	case errors.Is(err, bus.ErrMalformedPayload):
		return &LinkError{Code: ErrInvalidRange, Original: err}
	default:
		return NormalizeLinkError(err, nil)
	}
}
