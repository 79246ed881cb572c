package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/logging"
)

// Publisher is the part of the bus the player needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Player publishes scenario steps in order with their delays.
type Player struct {
	pub Publisher
	log logging.Logger
}

// NewPlayer creates a player publishing to pub.
func NewPlayer(pub Publisher, log logging.Logger) *Player {
	if log == nil {
		log = logging.Noop()
	}
	return &Player{pub: pub, log: log.With(logging.String("component", "replay"))}
}

// Play runs sc once, or until ctx ends when loop is set, and returns the number of
// steps published. A looping scenario must take non-zero time per pass. Publish errors
// other than a closed bus are logged and skipped.
func (p *Player) Play(ctx context.Context, sc *Scenario, loop bool) (int, error) {
	if loop && sc.Duration() == 0 {
		return 0, fmt.Errorf("looping scenario %q needs at least one delay", sc.Name)
	}

	p.log.Info(ctx, "replay started",
		logging.String("scenario", sc.Name),
		logging.Int("steps", len(sc.Steps)),
		logging.Bool("loop", loop))

	published := 0
	for pass := 1; ; pass++ {
		n, err := p.playOnce(ctx, sc)
		published += n
		if err != nil {
			if loop && ctx.Err() != nil {
				p.log.Info(ctx, "replay stopped", logging.Int("passes", pass), logging.Int("published", published))
				return published, nil
			}
			return published, err
		}
		if !loop {
			p.log.Info(ctx, "replay finished", logging.Int("published", published))
			return published, nil
		}
	}
}

func (p *Player) playOnce(ctx context.Context, sc *Scenario) (int, error) {
	published := 0
	for i, step := range sc.Steps {
		if err := sleep(ctx, step.After); err != nil {
			return published, err
		}

		payload, err := step.Payload()
		if err != nil {
			return published, fmt.Errorf("step %d: %w", i, err)
		}

		if err := p.pub.Publish(step.Topic, payload); err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return published, err
			}
			p.log.Warn(ctx, "replay step rejected",
				logging.Int("step", i),
				logging.String("topic", step.Topic),
				logging.Err(err))
			continue
		}
		published++
	}
	return published, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
