package transitions

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Result is the outcome of one trigger attempt.
type Result int

const (
	// ResultBlocked means candidate transitions existed but none passed its conditions.
	ResultBlocked Result = iota
	// ResultSucceeded means a transition was executed.
	ResultSucceeded
	// ResultIgnored means the trigger was invalid for the current state and
	// the state's policy ignores invalid triggers.
	ResultIgnored
	// ResultQueued means the attempt was queued behind a running trigger and
	// will be processed by the caller that owns the queue.
	ResultQueued
)

// OK reports whether the result counts as success for a boolean trigger call.
// Queued attempts report success because their outcome is not known yet.
func (r Result) OK() bool {
	return r == ResultSucceeded || r == ResultQueued
}

func (r Result) String() string {
	switch r {
	case ResultBlocked:
		return "Blocked"
	case ResultSucceeded:
		return "Succeeded"
	case ResultIgnored:
		return "Ignored"
	case ResultQueued:
		return "Queued"
	default:
		return "Unknown"
	}
}

// Event maps source state names to the transitions a trigger may take.
type Event struct {
	name    string
	machine *Machine

	// sources keeps the registration order of transitions.
	sources     []string
	transitions map[string][]*Transition

	signature *ArgumentSignature
}

// NewEvent creates an event owned by machine.
func NewEvent(name string, machine *Machine) *Event {
	return &Event{
		name:        name,
		machine:     machine,
		transitions: make(map[string][]*Transition),
	}
}

// Name returns the trigger name.
func (e *Event) Name() string {
	return e.name
}

// Sources returns the source state names in registration order.
func (e *Event) Sources() []string {
	return e.sources
}

// Transitions returns the candidate transitions registered for source.
func (e *Event) Transitions(source string) []*Transition {
	return e.transitions[source]
}

// HasSource reports whether any transition is registered for source.
func (e *Event) HasSource(source string) bool {
	_, ok := e.transitions[source]
	return ok
}

// AddTransition appends a candidate transition. Transitions sharing a source
// are tried in the order they were added.
func (e *Event) AddTransition(t *Transition) {
	if !e.HasSource(t.Source) {
		e.sources = append(e.sources, t.Source)
	}
	e.transitions[t.Source] = append(e.transitions[t.Source], t)
}

// AddCallback appends a prepare, before or after callback to every
// transition of the event.
func (e *Event) AddCallback(kind CallbackKind, cb Callback) error {
	for _, source := range e.sources {
		for _, t := range e.transitions[source] {
			if err := t.AddCallback(kind, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExpectArgs declares the positional argument types the trigger accepts.
// Attempts with incompatible arguments fail with a ParameterConversionError.
func (e *Event) ExpectArgs(argumentTypes ...reflect.Type) *Event {
	e.signature = NewArgumentSignature(argumentTypes...)
	return e
}

// Trigger attempts the event for model and reports whether a transition was
// taken (or, in queued mode, queued).
func (e *Event) Trigger(ctx context.Context, model any, args ...any) (bool, error) {
	result, err := e.Dispatch(ctx, model, args...)
	return result.OK(), err
}

// Dispatch attempts the event for model through the machine's processing policy.
func (e *Event) Dispatch(ctx context.Context, model any, args ...any) (Result, error) {
	b, err := e.machine.Binding(model)
	if err != nil {
		return ResultBlocked, err
	}
	return e.dispatch(ctx, b, args)
}

func (e *Event) dispatch(ctx context.Context, b *Binding, args []any) (Result, error) {
	return b.processor().process(ctx, func(ctx context.Context) (Result, error) {
		return e.attempt(ctx, b, args)
	})
}

// attempt resolves the model's state, bubbling up through ancestors until a
// state with transitions for this event is found, and tries its transitions
// in order until one succeeds.
func (e *Event) attempt(ctx context.Context, b *Binding, args []any) (Result, error) {
	select {
	case <-ctx.Done():
		return ResultBlocked, ctx.Err()
	default:
	}

	if e.signature != nil {
		positional, _ := splitArgs(args)
		if err := e.signature.Validate(positional); err != nil {
			return ResultBlocked, err
		}
	}

	m := e.machine
	current, err := m.GetState(b.State())
	if err != nil {
		return ResultBlocked, err
	}

	matched := current
	ignore := current.ignoreInvalidTriggers
	for matched != nil && !e.HasSource(matched.Name()) {
		matched = matched.parent
		if matched != nil && matched.ignoreInvalidTriggers {
			ignore = true
		}
	}

	if matched == nil {
		permitted, _ := m.Triggers(current.Name())
		invalid := &InvalidTransitionError{
			Machine:           m.name,
			Trigger:           e.name,
			State:             current.Name(),
			PermittedTriggers: permitted,
		}
		if ignore {
			m.logger.Warn(invalid.Error(), slog.String("event", e.name), slog.String("state", current.Name()))
			return ResultIgnored, nil
		}
		return ResultBlocked, invalid
	}

	data := newEventData(ctx, current, e, b, args)
	for _, t := range e.transitions[matched.Name()] {
		ok, err := t.Execute(data)
		if err != nil {
			return ResultBlocked, fmt.Errorf("event '%s' from state '%s': %w", e.name, current.Name(), err)
		}
		if ok {
			return ResultSucceeded, nil
		}
	}
	return ResultBlocked, nil
}

func (e *Event) String() string {
	return e.name
}
