package vehicle_test

import (
	"testing"

	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/vehicle"
	"github.com/autoland/lander/internal/vehicle/vehicletest"
)

func TestBusLink_Conformance(t *testing.T) {
	b := bus.New(bus.Options{ToggleChannel: lander.DefaultToggleChannel})
	defer b.Close()

	vehicletest.RunConformance(t, "bus", func() vehicle.Link { return vehicle.NewBusLink(b) }, vehicletest.Capabilities{})
}
