package lander

import (
	"sync"
	"time"
)

// CommandSink accepts outgoing commands. Publish must not block; delivery is
// at-most-once with no retry.
type CommandSink interface {
	Publish(cmd Command) error
}

// Observer is told about every handled event after the router has released its lock.
// Outcomes are delivered one at a time in the order the router handled them.
type Observer interface {
	Observe(out Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

// Observe calls f(out).
func (f ObserverFunc) Observe(out Outcome) { f(out) }

type nopSink struct{}

func (nopSink) Publish(Command) error { return nil }

// Outcome describes what one inbound event did.
type Outcome struct {
	// Seq numbers outcomes from 1 in the order the router handled their events.
	Seq      uint64    `json:"seq"`
	Category Category  `json:"category"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	At       time.Time `json:"at"`

	// Relevant is true when the event matched a row of the transition table, or was a
	// toggle edge.
	Relevant   bool `json:"relevant"`
	ToggleEdge bool `json:"toggleEdge,omitempty"`
	Active     bool `json:"active"`

	// Command is the selected command, nil when none was produced.
	Command *Command `json:"command,omitempty"`
	// ActionErr is why no command was produced for a relevant event.
	ActionErr error `json:"-"`
	// PublishErr is the sink's error for a produced command.
	PublishErr error `json:"-"`
}

// Transitioned reports whether the event changed the current state.
func (o Outcome) Transitioned() bool {
	return o.From != o.To
}

// Published reports whether a command reached the sink.
func (o Outcome) Published() bool {
	return o.Command != nil && o.PublishErr == nil
}

// Status is a consistent view of the arbiter.
type Status struct {
	State            State          `json:"state"`
	AutonomousActive bool           `json:"autonomousActive"`
	Sensors          SensorSnapshot `json:"sensors"`
	LastCommand      *Command       `json:"lastCommand,omitempty"`
	LastCommandAt    *time.Time     `json:"lastCommandAt,omitempty"`
}

// Router is the single entry point for inbound events. It serializes the whole
// update, evaluate, transition, act and publish sequence of each event under one lock.
type Router struct {
	mu        sync.Mutex
	cc        *ControllerContext
	sink      CommandSink
	observers []Observer

	lastCommand   *Command
	lastCommandAt time.Time
	now           func() time.Time
	seq           uint64

	// delivered is the Seq of the last outcome every observer has seen.
	turnMu    sync.Mutex
	turn      *sync.Cond
	delivered uint64
}

// NewRouter creates a router over cc. A nil sink discards commands.
func NewRouter(cc *ControllerContext, sink CommandSink, observers ...Observer) *Router {
	if sink == nil {
		sink = nopSink{}
	}
	r := &Router{
		cc:        cc,
		sink:      sink,
		observers: observers,
		now:       time.Now,
	}
	r.turn = sync.NewCond(&r.turnMu)
	return r
}

// OnAttitude stores an attitude reading. No state acts on attitude.
func (r *Router) OnAttitude(a Attitude) Outcome {
	return r.route(CategoryAttitude, TriggerAttitude, func(s *SensorState) { s.UpdateAttitude(a) })
}

// OnTelemetry stores a telemetry reading and re-acts in LAND_LOW.
func (r *Router) OnTelemetry(t Telemetry) Outcome {
	return r.route(CategoryTelemetry, TriggerTelemetry, func(s *SensorState) { s.UpdateTelemetry(t) })
}

// OnPose stores a pose reading and acts in SEEK_HOME and LAND_HIGH.
func (r *Router) OnPose(p Pose) Outcome {
	return r.route(CategoryPose, TriggerPose, func(s *SensorState) { s.UpdatePose(p) })
}

// OnRC evaluates the autonomous-mode switch in an RC frame. Only an edge acts:
// engaging from FLYING enters SEEK_HOME and disengaging enters FLYING.
func (r *Router) OnRC(rc RCChannels) Outcome {
	r.mu.Lock()
	m := r.cc.Machine
	r.seq++
	out := Outcome{Seq: r.seq, Category: CategoryToggle, From: m.CurrentState(), At: r.now()}

	if high, ok := r.cc.ToggleReading(rc); ok && m.EvaluateToggle(high) {
		out.ToggleEdge = true
		out.Relevant = true
		trigger := TriggerDisengage
		if m.IsActive() {
			trigger = TriggerEngage
		}
		to, found := Lookup(out.From, trigger)
		if !found {
			to = Flying
		}
		r.act(&out, to)
	}

	out.To = m.CurrentState()
	out.Active = m.IsActive()
	r.mu.Unlock()

	r.notify(out)
	return out
}

func (r *Router) route(category Category, trigger Trigger, update func(*SensorState)) Outcome {
	r.mu.Lock()
	m := r.cc.Machine
	r.seq++
	out := Outcome{Seq: r.seq, Category: category, From: m.CurrentState(), At: r.now()}

	update(r.cc.Sensors)
	if m.IsActive() {
		if to, ok := Lookup(out.From, trigger); ok {
			if trigger == TriggerPose && out.From == LandHigh && r.cc.lowHandoff() {
				to = LandLow
			}
			out.Relevant = true
			r.act(&out, to)
		}
	}

	out.To = m.CurrentState()
	out.Active = m.IsActive()
	r.mu.Unlock()

	r.notify(out)
	return out
}

// act runs with r.mu held.
func (r *Router) act(out *Outcome, to State) {
	cmd, err := r.cc.Machine.TransitionAndAct(to)
	if err != nil {
		out.ActionErr = err
		return
	}
	out.Command = &cmd
	if err := r.sink.Publish(cmd); err != nil {
		out.PublishErr = err
		return
	}
	r.lastCommand = &cmd
	r.lastCommandAt = out.At
}

// notify waits until every earlier outcome has been delivered, then hands out to
// the observers.
func (r *Router) notify(out Outcome) {
	r.turnMu.Lock()
	for r.delivered+1 != out.Seq {
		r.turn.Wait()
	}
	r.turnMu.Unlock()

	defer func() {
		r.turnMu.Lock()
		r.delivered = out.Seq
		r.turnMu.Unlock()
		r.turn.Broadcast()
	}()

	for _, o := range r.observers {
		o.Observe(out)
	}
}

// Status returns the current state, mode, readings and last published command.
func (r *Router) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:            r.cc.Machine.CurrentState(),
		AutonomousActive: r.cc.Machine.IsActive(),
		Sensors:          r.cc.Sensors.Snapshot(),
	}
	if r.lastCommand != nil {
		cmd := *r.lastCommand
		at := r.lastCommandAt
		st.LastCommand = &cmd
		st.LastCommandAt = &at
	}
	return st
}
