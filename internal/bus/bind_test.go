package bus

import (
	"testing"

	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/logging"
)

func TestBind_RoutesTopicsToRouter(t *testing.T) {
	cc := lander.NewControllerContext(lander.NewProportionalSelector(lander.DefaultGuidanceParams()), lander.DefaultOptions())
	b := New(Options{ToggleChannel: lander.DefaultToggleChannel})
	defer b.Close()

	// Outbound commands go back onto the bus like the vehicle link does.
	var commands atomicCounter
	if _, err := b.Subscribe(TopicCommand, func(Message) { commands.inc() }); err != nil {
		t.Fatal(err)
	}
	sink := sinkFunc(func(cmd lander.Command) error { return b.Publish(TopicCommand, cmd) })
	r := lander.NewRouter(cc, sink)

	subs, err := Bind(b, r, logging.Noop())
	if err != nil {
		t.Fatalf("Bind() failed: %v", err)
	}
	if len(subs) != 4 {
		t.Fatalf("Bind() returned %d subscriptions, want 4", len(subs))
	}

	if err := b.Publish(TopicRC, rc(2000)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Status().State == lander.SeekHome })

	if err := b.Publish(TopicPose, lander.Pose{Components: []float64{0.2, 0.1, 4}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Status().State == lander.LandHigh })
	waitFor(t, func() bool { return commands.get() == 1 })

	if err := b.Publish(TopicTelemetry, lander.Telemetry{Alt: 4}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Status().Sensors.Telemetry != nil })
	if r.Status().State != lander.LandHigh {
		t.Errorf("telemetry moved the machine out of LAND_HIGH")
	}
}
