package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/vehicle"
	"github.com/autoland/lander/internal/vehicle/vehicletest"
)

func TestLink_RecordsCommands(t *testing.T) {
	l := NewLink()
	cmd := lander.ReleaseCommand()

	if err := l.SendRC(context.Background(), cmd); err != nil {
		t.Fatalf("SendRC() failed: %v", err)
	}
	if sent := l.Sent(); len(sent) != 1 || sent[0] != cmd {
		t.Errorf("Sent() = %v", sent)
	}
}

func TestLink_ErrorSimulation(t *testing.T) {
	l := NewLink()
	l.SetErrorSimulation("BUSY")

	if err := l.SendRC(context.Background(), lander.Command{}); !errors.Is(err, vehicle.ErrBusy) {
		t.Errorf("SendRC() error = %v, want %v", err, vehicle.ErrBusy)
	}
	if len(l.Sent()) != 0 {
		t.Error("failed send recorded")
	}

	l.DisableErrorSimulation()
	if err := l.SendRC(context.Background(), lander.Command{}); err != nil {
		t.Errorf("SendRC() after disable error = %v", err)
	}
}

func TestLink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLink().SendRC(ctx, lander.Command{}); err == nil {
		t.Error("SendRC() accepted a cancelled context")
	}
}

func TestLink_Conformance(t *testing.T) {
	vehicletest.RunConformance(t, "fake", func() vehicle.Link { return NewLink() }, vehicletest.Capabilities{
		Inject: func(link vehicle.Link, token string) { link.(*Link).SetErrorSimulation(token) },
	})
}
