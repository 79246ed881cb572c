package lander

import (
	"errors"
	"testing"
)

// stubSelector returns a fixed command, or err when set.
type stubSelector struct {
	calls []State
	cmd   Command
	err   error
}

func (s *stubSelector) SelectAction(state State, _ SensorSnapshot) (Command, error) {
	s.calls = append(s.calls, state)
	return s.cmd, s.err
}

func TestNewMachine(t *testing.T) {
	m := NewMachine(NewSensorState(), &stubSelector{}, true)

	if m.CurrentState() != Flying {
		t.Errorf("CurrentState() = %s, want FLYING", m.CurrentState())
	}
	if m.IsActive() {
		t.Error("new machine is active")
	}
}

func TestMachine_EvaluateToggle(t *testing.T) {
	m := NewMachine(NewSensorState(), &stubSelector{}, true)

	steps := []struct {
		reading     bool
		wantChanged bool
		wantActive  bool
	}{
		{false, false, false},
		{false, false, false},
		{true, true, true},
		{true, false, true},
		{true, false, true},
		{false, true, false},
		{false, false, false},
		{true, true, true},
	}

	for i, s := range steps {
		if got := m.EvaluateToggle(s.reading); got != s.wantChanged {
			t.Errorf("step %d: EvaluateToggle(%v) = %v, want %v", i, s.reading, got, s.wantChanged)
		}
		if m.IsActive() != s.wantActive {
			t.Errorf("step %d: IsActive() = %v, want %v", i, m.IsActive(), s.wantActive)
		}
	}
}

func TestMachine_TransitionToIsUnconditional(t *testing.T) {
	m := NewMachine(NewSensorState(), &stubSelector{}, true)
	m.TransitionTo(LandLow)
	if m.CurrentState() != LandLow {
		t.Errorf("CurrentState() = %s, want LAND_LOW", m.CurrentState())
	}
}

func TestMachine_TransitionAndAct(t *testing.T) {
	want := Command{}
	want.Channels[ChannelThrottle] = 1400
	sel := &stubSelector{cmd: want}
	m := NewMachine(NewSensorState(), sel, true)

	got, err := m.TransitionAndAct(LandHigh)
	if err != nil {
		t.Fatalf("TransitionAndAct() error = %v", err)
	}
	if got != want {
		t.Errorf("TransitionAndAct() = %v, want %v", got, want)
	}
	if m.CurrentState() != LandHigh {
		t.Errorf("CurrentState() = %s, want LAND_HIGH", m.CurrentState())
	}
	if len(sel.calls) != 1 || sel.calls[0] != LandHigh {
		t.Errorf("selector calls = %v, want [LAND_HIGH]", sel.calls)
	}
}

func TestMachine_TransitionAndActKeepsStateOnSelectorError(t *testing.T) {
	sel := &stubSelector{err: ErrMissingPrecondition}
	m := NewMachine(NewSensorState(), sel, true)

	if _, err := m.TransitionAndAct(SeekHome); !errors.Is(err, ErrMissingPrecondition) {
		t.Fatalf("TransitionAndAct() error = %v, want %v", err, ErrMissingPrecondition)
	}
	if m.CurrentState() != SeekHome {
		t.Errorf("CurrentState() = %s, want SEEK_HOME", m.CurrentState())
	}
}

func TestMachine_TransitionAndActFlying(t *testing.T) {
	t.Run("release on disengage", func(t *testing.T) {
		sel := &stubSelector{}
		m := NewMachine(NewSensorState(), sel, true)
		m.TransitionTo(LandHigh)

		cmd, err := m.TransitionAndAct(Flying)
		if err != nil {
			t.Fatalf("TransitionAndAct(FLYING) error = %v", err)
		}
		if !cmd.IsRelease() {
			t.Errorf("TransitionAndAct(FLYING) = %v, want release frame", cmd)
		}
		if len(sel.calls) != 0 {
			t.Errorf("selector consulted for FLYING: %v", sel.calls)
		}
	})

	t.Run("no release", func(t *testing.T) {
		sel := &stubSelector{}
		m := NewMachine(NewSensorState(), sel, false)
		m.TransitionTo(SeekHome)

		if _, err := m.TransitionAndAct(Flying); !errors.Is(err, ErrNoAction) {
			t.Errorf("TransitionAndAct(FLYING) error = %v, want %v", err, ErrNoAction)
		}
		if len(sel.calls) != 0 {
			t.Errorf("selector consulted for FLYING: %v", sel.calls)
		}
	})
}

func TestLookup(t *testing.T) {
	want := map[State]map[Trigger]State{
		Flying:   {TriggerEngage: SeekHome},
		SeekHome: {TriggerPose: LandHigh, TriggerDisengage: Flying},
		LandHigh: {TriggerPose: LandHigh, TriggerDisengage: Flying},
		LandLow:  {TriggerTelemetry: LandLow, TriggerDisengage: Flying},
	}

	for _, s := range States() {
		for tr := TriggerAttitude; tr <= TriggerDisengage; tr++ {
			to, ok := Lookup(s, tr)
			wantTo, wantOK := want[s][tr]
			if ok != wantOK || to != wantTo {
				t.Errorf("Lookup(%s, %s) = (%s, %v), want (%s, %v)", s, tr, to, ok, wantTo, wantOK)
			}
		}
	}
}

func TestTransitionTable(t *testing.T) {
	rows := TransitionTable()
	if len(rows) != 7 {
		t.Fatalf("TransitionTable() has %d rows, want 7", len(rows))
	}
	if rows[0] != (Transition{From: Flying, Trigger: TriggerEngage, To: SeekHome}) {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestParseState(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(s.String())
		if err != nil || got != s {
			t.Errorf("ParseState(%q) = (%s, %v)", s.String(), got, err)
		}
	}
	if _, err := ParseState("LANDED"); err == nil {
		t.Error("ParseState(LANDED) succeeded")
	}
}
