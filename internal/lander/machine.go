package lander

import (
	"context"
	"fmt"
	"slices"

	"github.com/qmuntal/stateless"
)

// Trigger is an event as the transition table sees it. Toggle readings become
// TriggerEngage or TriggerDisengage only when they are edges.
type Trigger int

const (
	TriggerAttitude Trigger = iota
	TriggerTelemetry
	TriggerPose
	TriggerEngage
	TriggerDisengage
)

var triggerNames = [...]string{
	TriggerAttitude:  "attitude",
	TriggerTelemetry: "telemetry",
	TriggerPose:      "pose",
	TriggerEngage:    "engage",
	TriggerDisengage: "disengage",
}

func (t Trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
	return triggerNames[t]
}

// MarshalText encodes the trigger by name.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Transition is one row of the transition table.
type Transition struct {
	From    State   `json:"from"`
	Trigger Trigger `json:"trigger"`
	To      State   `json:"to"`
}

// configureTable declares the transition table on sm. Every (state, trigger) pair not
// permitted here is a no-op.
func configureTable(sm *stateless.StateMachine) {
	sm.Configure(Flying).
		Permit(TriggerEngage, SeekHome)

	sm.Configure(SeekHome).
		Permit(TriggerPose, LandHigh).
		Permit(TriggerDisengage, Flying)

	sm.Configure(LandHigh).
		PermitReentry(TriggerPose).
		Permit(TriggerDisengage, Flying)

	sm.Configure(LandLow).
		PermitReentry(TriggerTelemetry).
		Permit(TriggerDisengage, Flying)
}

// tableAt returns a table positioned at from. Firing a trigger writes the
// destination to *to.
func tableAt(from State, to *State) *stateless.StateMachine {
	*to = from
	sm := stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) {
			return *to, nil
		},
		func(_ context.Context, s stateless.State) error {
			*to = s.(State)
			return nil
		},
		stateless.FiringImmediate,
	)
	configureTable(sm)
	return sm
}

// Lookup returns the state a trigger leads to from the given state. ok is false
// when the pair is a no-op.
func Lookup(from State, trigger Trigger) (to State, ok bool) {
	var dest State
	sm := tableAt(from, &dest)
	if can, err := sm.CanFire(trigger); err != nil || !can {
		return to, false
	}
	if err := sm.Fire(trigger); err != nil {
		return to, false
	}
	return dest, true
}

// TransitionTable returns the rows of the transition table ordered by source state
// and trigger.
func TransitionTable() []Transition {
	var rows []Transition
	for _, s := range States() {
		var dest State
		permitted, err := tableAt(s, &dest).PermittedTriggers()
		if err != nil {
			continue
		}
		triggers := make([]Trigger, 0, len(permitted))
		for _, t := range permitted {
			triggers = append(triggers, t.(Trigger))
		}
		slices.Sort(triggers)

		for _, t := range triggers {
			if to, ok := Lookup(s, t); ok {
				rows = append(rows, Transition{From: s, Trigger: t, To: to})
			}
		}
	}
	return rows
}

// Machine holds the lander state and the autonomous-active flag.
//
// Machine trusts its caller: TransitionTo does not consult the transition table.
// It is not safe for concurrent use; Router serializes every call.
type Machine struct {
	current    State
	active     bool
	lastToggle bool

	sensors            *SensorState
	selector           ActionSelector
	releaseOnDisengage bool
}

// NewMachine returns a machine in FLYING with autonomous mode off and the toggle
// last seen low.
func NewMachine(sensors *SensorState, selector ActionSelector, releaseOnDisengage bool) *Machine {
	return &Machine{
		current:            Flying,
		sensors:            sensors,
		selector:           selector,
		releaseOnDisengage: releaseOnDisengage,
	}
}

// IsActive reports whether autonomous mode is engaged.
func (m *Machine) IsActive() bool { return m.active }

// CurrentState returns the current state.
func (m *Machine) CurrentState() State { return m.current }

// EvaluateToggle compares a toggle reading with the previous one. On an edge it flips
// the autonomous-active flag and returns true.
func (m *Machine) EvaluateToggle(reading bool) bool {
	if reading == m.lastToggle {
		return false
	}
	m.lastToggle = reading
	m.active = !m.active
	return true
}

// TransitionTo sets the current state unconditionally.
func (m *Machine) TransitionTo(s State) {
	m.current = s
}

// TransitionAndAct moves to s and returns the command for it.
//
// Entering FLYING never consults the selector. It yields the release-override frame
// when the machine was built to release on disengage, ErrNoAction otherwise.
func (m *Machine) TransitionAndAct(s State) (Command, error) {
	m.TransitionTo(s)
	if s == Flying {
		if m.releaseOnDisengage {
			return ReleaseCommand(), nil
		}
		return Command{}, fmt.Errorf("%w: %s", ErrNoAction, s)
	}
	return m.selector.SelectAction(s, m.sensors.Snapshot())
}
