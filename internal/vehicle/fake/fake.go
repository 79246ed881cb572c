// Package fake provides an in-memory vehicle link for tests and bench runs.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/vehicle"
)

// Link records every frame it accepts.
type Link struct {
	mu       sync.Mutex
	sent     []lander.Command
	failWith string
}

// NewLink creates a link that accepts everything.
func NewLink() *Link {
	return &Link{}
}

// SendRC implements vehicle.Link.
func (l *Link) SendRC(ctx context.Context, cmd lander.Command) error {
	select {
	case <-ctx.Done():
		return &vehicle.LinkError{Code: vehicle.ErrUnavailable, Original: ctx.Err()}
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != "" {
		return vehicle.NormalizeLinkError(fmt.Errorf("%s: simulated link error", l.failWith), nil)
	}
	l.sent = append(l.sent, cmd)
	return nil
}

// SetErrorSimulation makes every send fail with the given token, e.g. "BUSY".
func (l *Link) SetErrorSimulation(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = token
}

// DisableErrorSimulation restores normal sends.
func (l *Link) DisableErrorSimulation() {
	l.SetErrorSimulation("")
}

// Sent returns a copy of the accepted frames.
func (l *Link) Sent() []lander.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lander.Command(nil), l.sent...)
}

var _ vehicle.Link = (*Link)(nil)
