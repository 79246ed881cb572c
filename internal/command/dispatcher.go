package command

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/logging"
	"github.com/autoland/lander/internal/telemetry"
	"github.com/autoland/lander/internal/vehicle"
)

const tracerName = "github.com/autoland/lander/internal/command"

// toggleActor is recorded as the actor of mode changes, which only come from the RC switch.
const toggleActor = "rc-toggle"

// EventPublisher receives telemetry events.
type EventPublisher interface {
	Publish(event telemetry.Event) error
}

// AuditLogger writes audit records.
type AuditLogger interface {
	Record(ctx context.Context, e audit.Entry)
	RecordError(ctx context.Context, e audit.Entry, err error)
}

// Dispatcher sends commands to the vehicle and reports router outcomes.
type Dispatcher struct {
	link   vehicle.Link
	events EventPublisher
	audit  AuditLogger
	timing *config.TimingConfig
	minPWM uint16
	maxPWM uint16
	log    logging.Logger
	tracer trace.Tracer
}

var (
	_ lander.CommandSink = (*Dispatcher)(nil)
	_ lander.Observer    = (*Dispatcher)(nil)
)

// NewDispatcher creates a dispatcher. events and auditLog may be nil.
func NewDispatcher(link vehicle.Link, events EventPublisher, auditLog AuditLogger, timing *config.TimingConfig, guidance lander.GuidanceParams, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{
		link:   link,
		events: events,
		audit:  auditLog,
		timing: timing,
		minPWM: guidance.MinPWM,
		maxPWM: guidance.MaxPWM,
		log:    log.With(logging.String("component", "dispatcher")),
		tracer: otel.Tracer(tracerName),
	}
}

// Publish implements lander.CommandSink. It validates cmd and sends it on the link.
func (d *Dispatcher) Publish(cmd lander.Command) error {
	ctx, span := d.tracer.Start(context.Background(), "command.send_rc",
		trace.WithAttributes(attribute.Bool("lander.release", cmd.IsRelease())))
	defer span.End()

	if err := d.validateChannels(cmd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid range")
		return err
	}

	if d.link == nil {
		span.SetStatus(codes.Error, "no link")
		return vehicle.ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, d.timing.CommandTimeout)
	defer cancel()

	if err := d.link.SendRC(ctx, cmd); err != nil {
		normalized := vehicle.NormalizeLinkError(err, nil)
		span.RecordError(normalized)
		span.SetStatus(codes.Error, "send failed")
		return normalized
	}
	return nil
}

// validateChannels accepts 0 (release) or a value within the PWM limits.
func (d *Dispatcher) validateChannels(cmd lander.Command) error {
	for i, v := range cmd.Channels {
		if v == lander.ReleaseValue {
			continue
		}
		if v < d.minPWM || v > d.maxPWM {
			return &vehicle.LinkError{
				Code:     vehicle.ErrInvalidRange,
				Original: fmt.Errorf("channel %d value %d outside [%d, %d]", i, v, d.minPWM, d.maxPWM),
			}
		}
	}
	return nil
}

// Observe implements lander.Observer.
func (d *Dispatcher) Observe(out lander.Outcome) {
	ctx := context.Background()

	if out.ToggleEdge {
		d.recordToggle(ctx, out)
	}

	if out.Transitioned() {
		d.log.Info(ctx, "state transition",
			logging.String("from", out.From.String()),
			logging.String("to", out.To.String()),
			logging.String("category", out.Category.String()))
		d.record(ctx, audit.Entry{
			Action:  audit.ActionTransition,
			From:    out.From.String(),
			To:      out.To.String(),
			Params:  map[string]any{"category": out.Category.String()},
			Outcome: "success",
		}, nil)
		d.publish(telemetry.Event{Type: telemetry.EventState, Data: map[string]any{
			"from":     out.From.String(),
			"to":       out.To.String(),
			"active":   out.Active,
			"category": out.Category.String(),
		}})
	}

	switch {
	case out.Command != nil && out.PublishErr != nil:
		d.log.Warn(ctx, "command not delivered",
			logging.String("state", out.To.String()),
			logging.Err(out.PublishErr))
		d.record(ctx, audit.Entry{
			Action: audit.ActionCommand,
			To:     out.To.String(),
			Params: map[string]any{"channels": out.Command.Channels},
		}, out.PublishErr)
		d.publishFault(out, out.PublishErr, "command not delivered")

	case out.Command != nil:
		d.log.Debug(ctx, "command sent",
			logging.String("state", out.To.String()),
			logging.Any("channels", out.Command.Channels))
		d.record(ctx, audit.Entry{
			Action:  audit.ActionCommand,
			To:      out.To.String(),
			Params:  map[string]any{"channels": out.Command.Channels, "release": out.Command.IsRelease()},
			Outcome: "success",
		}, nil)
		d.publish(telemetry.Event{Type: telemetry.EventCommand, Data: map[string]any{
			"state":    out.To.String(),
			"channels": out.Command.Channels,
			"release":  out.Command.IsRelease(),
		}})

	case out.ActionErr != nil && !errors.Is(out.ActionErr, lander.ErrNoAction):
		// A missing reading is expected while waiting for the first pose.
		d.log.Debug(ctx, "no command selected",
			logging.String("state", out.To.String()),
			logging.Err(out.ActionErr))
		d.publishFault(out, out.ActionErr, "no command selected")
	}
}

func (d *Dispatcher) recordToggle(ctx context.Context, out lander.Outcome) {
	ctx = audit.WithActor(ctx, toggleActor)
	action := audit.ActionDisengage
	if out.Active {
		action = audit.ActionEngage
	}
	d.log.Info(ctx, "autonomous mode toggled",
		logging.String("action", action),
		logging.String("state", out.To.String()))
	d.record(ctx, audit.Entry{
		Action:  action,
		From:    out.From.String(),
		To:      out.To.String(),
		Outcome: "success",
	}, nil)
}

func (d *Dispatcher) record(ctx context.Context, e audit.Entry, err error) {
	if d.audit == nil {
		return
	}
	if err != nil {
		d.audit.RecordError(ctx, e, err)
		return
	}
	d.audit.Record(ctx, e)
}

func (d *Dispatcher) publishFault(out lander.Outcome, err error, message string) {
	d.publish(telemetry.Event{Type: telemetry.EventFault, Data: map[string]any{
		"state":   out.To.String(),
		"code":    audit.CodeFromError(err),
		"message": message,
		"details": err.Error(),
	}})
}

func (d *Dispatcher) publish(event telemetry.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(event); err != nil {
		d.log.Warn(context.Background(), "telemetry publish failed",
			logging.String("type", event.Type),
			logging.Err(err))
	}
}
