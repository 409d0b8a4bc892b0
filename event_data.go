package transitions

import (
	"context"

	"github.com/google/uuid"
)

// EventData is the per-attempt context handed to callbacks in send-event mode.
// It is created when a trigger is attempted and discarded afterwards.
type EventData struct {
	// ID identifies this attempt in logs.
	ID string

	// State is the state the attempt started from, refreshed by Update after
	// the model moved.
	State *State

	// Event is the event being processed. It is nil for direct GoTo jumps.
	Event *Event

	// Machine is the owning machine.
	Machine *Machine

	// Model is the host object whose state is changing.
	Model any

	// Transition is the transition currently being executed.
	Transition *Transition

	// Args are the positional trigger arguments.
	Args []any

	// Kwargs are the named trigger arguments.
	Kwargs Kwargs

	ctx     context.Context
	binding *Binding
}

func newEventData(ctx context.Context, state *State, event *Event, b *Binding, args []any) *EventData {
	positional, kwargs := splitArgs(args)
	return &EventData{
		ID:      uuid.Must(uuid.NewV7()).String(),
		State:   state,
		Event:   event,
		Machine: b.machine,
		Model:   b.model,
		Args:    positional,
		Kwargs:  kwargs,
		ctx:     ctx,
		binding: b,
	}
}

// Context returns the context of the attempt. Callbacks that trigger further
// events must pass it on so locked machines recognise the reentrant call.
func (e *EventData) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Update re-reads the model's current state.
func (e *EventData) Update() error {
	state, err := e.Machine.GetState(e.binding.State())
	if err != nil {
		return err
	}
	e.State = state
	return nil
}

// callArgs returns the arguments as originally passed to the trigger.
func (e *EventData) callArgs() []any {
	if len(e.Kwargs) == 0 {
		return e.Args
	}
	args := make([]any, 0, len(e.Args)+1)
	args = append(args, e.Args...)
	return append(args, e.Kwargs)
}
