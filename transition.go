package transitions

import (
	"fmt"
	"log/slog"
)

// Transition is one candidate source → destination edge of an event.
type Transition struct {
	// Source is the name of the source state.
	Source string

	// Dest is the name of the destination state as registered. Nested
	// machines resolve it to its deepest initial descendant on execution.
	Dest string

	// Conditions are checked in order; all must pass.
	Conditions []Condition

	// Prepare callbacks run before conditions are checked.
	Prepare []Callback

	// Before callbacks run after the conditions passed.
	Before []Callback

	// After callbacks run after the state change.
	After []Callback

	changer StateChanger
}

// StateChanger performs the exit/enter sequence of a transition.
type StateChanger interface {
	ChangeState(e *EventData, t *Transition) error
}

// NewTransition creates a transition whose state change is performed by changer.
// A nil changer exits the source and enters the destination without regard to
// nesting.
func NewTransition(source, dest string, changer StateChanger) *Transition {
	if changer == nil {
		changer = FlatChanger{}
	}
	return &Transition{Source: source, Dest: dest, changer: changer}
}

// AddCallback appends a prepare, before or after callback.
func (t *Transition) AddCallback(kind CallbackKind, cb Callback) error {
	switch kind {
	case KindPrepare:
		t.Prepare = append(t.Prepare, cb)
	case KindBefore:
		t.Before = append(t.Before, cb)
	case KindAfter:
		t.After = append(t.After, cb)
	default:
		return &ArgumentError{ParamName: "kind", Message: fmt.Sprintf("transitions do not accept '%s' callbacks", kind)}
	}
	return nil
}

// Execute runs the transition. Prepare callbacks always run, and their side
// effects stay even when a condition then blocks the transition. It returns
// false without error when a condition fails.
func (t *Transition) Execute(e *EventData) (bool, error) {
	logger := e.Machine.logger
	logger.Debug("initiating transition",
		slog.String("source", t.Source), slog.String("dest", t.Dest), slog.String("attempt", e.ID))

	e.Transition = t
	if err := invokeCallbacks(t.Prepare, e); err != nil {
		return false, err
	}

	for _, c := range t.Conditions {
		ok, err := c.Check(e)
		if err != nil {
			return false, fmt.Errorf("condition '%s': %w", c.Func.Name(), err)
		}
		if !ok {
			logger.Debug("transition condition failed",
				slog.String("condition", c.String()), slog.String("attempt", e.ID))
			return false, nil
		}
	}

	if err := invokeCallbacks(e.Machine.beforeStateChange, e); err != nil {
		return false, err
	}
	if err := invokeCallbacks(t.Before, e); err != nil {
		return false, err
	}

	if err := t.changer.ChangeState(e, t); err != nil {
		return false, err
	}

	if err := invokeCallbacks(t.After, e); err != nil {
		return false, err
	}
	if err := invokeCallbacks(e.Machine.afterStateChange, e); err != nil {
		return false, err
	}

	logger.Debug("executed transition",
		slog.String("source", t.Source), slog.String("dest", t.Dest), slog.String("attempt", e.ID))
	return true, nil
}

func (t *Transition) String() string {
	return fmt.Sprintf("%s -> %s", t.Source, t.Dest)
}

// FlatChanger exits the source state and enters the destination state.
type FlatChanger struct{}

func (FlatChanger) ChangeState(e *EventData, t *Transition) error {
	m := e.Machine
	source, err := m.GetState(e.binding.State())
	if err != nil {
		return err
	}
	dest, err := m.GetState(t.Dest)
	if err != nil {
		return err
	}

	if err := source.Exit(e); err != nil {
		return err
	}
	if err := e.binding.setState(dest.Name()); err != nil {
		return err
	}
	if err := e.Update(); err != nil {
		return err
	}
	return dest.Enter(e)
}

// NestedChanger walks the state tree: it exits up to the shared ancestor and
// enters down to the destination, which is first resolved to its deepest
// initial descendant. A transition from a state to itself exits and re-enters
// that state only.
type NestedChanger struct{}

func (NestedChanger) ChangeState(e *EventData, t *Transition) error {
	m := e.Machine
	dest, err := m.resolveInitial(t.Dest)
	if err != nil {
		return err
	}
	source, err := m.GetState(e.binding.State())
	if err != nil {
		return err
	}

	if source == dest {
		return FlatChanger{}.ChangeState(e, &Transition{Source: source.Name(), Dest: dest.Name()})
	}

	level, err := source.ExitNested(e, dest)
	if err != nil {
		return err
	}
	if err := e.binding.setState(dest.Name()); err != nil {
		return err
	}
	if err := e.Update(); err != nil {
		return err
	}
	return dest.EnterNested(e, level)
}
