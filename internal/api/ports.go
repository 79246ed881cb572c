package api

import (
	"context"
	"net/http"

	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/telemetry"
)

// StatusPort supplies the arbiter snapshot.
type StatusPort interface {
	Status() lander.Status
}

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// EventPort accepts injected inbound events.
type EventPort interface {
	Publish(topic string, payload any) error
}

// AuditPort records operator actions.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry)
	RecordError(ctx context.Context, e audit.Entry, err error)
}

var (
	_ StatusPort    = (*lander.Router)(nil)
	_ TelemetryPort = (*telemetry.Hub)(nil)
	_ EventPort     = (*bus.Bus)(nil)
	_ AuditPort     = (*audit.Logger)(nil)
)
