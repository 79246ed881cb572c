package bus

import (
	"context"
	"fmt"

	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/logging"
)

// Bind subscribes the router to the four inbound topics.
func Bind(b *Bus, r *lander.Router, log logging.Logger) ([]*Subscription, error) {
	if log == nil {
		log = logging.Noop()
	}

	routes := []struct {
		topic   string
		handler Handler
	}{
		{TopicAttitude, func(m Message) { r.OnAttitude(m.Payload.(lander.Attitude)) }},
		{TopicTelemetry, func(m Message) { r.OnTelemetry(m.Payload.(lander.Telemetry)) }},
		{TopicPose, func(m Message) { r.OnPose(m.Payload.(lander.Pose)) }},
		{TopicRC, func(m Message) { r.OnRC(m.Payload.(lander.RCChannels)) }},
	}

	subs := make([]*Subscription, 0, len(routes))
	for _, route := range routes {
		sub, err := b.Subscribe(route.topic, route.handler)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", route.topic, err)
		}
		log.Debug(context.Background(), "router bound", logging.String("topic", route.topic))
		subs = append(subs, sub)
	}
	return subs, nil
}
