package transitions

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Stateful is implemented by models that store their current state
// themselves. Other models have their state kept by the machine.
type Stateful interface {
	State() string
	SetState(state string)
}

// TriggerFunc fires one event for the model it was bound to.
type TriggerFunc func(ctx context.Context, args ...any) (bool, error)

// Binding is the machine-side record of a model: its current state, the
// trigger functions and is_<state> predicates generated for it and the
// processor its triggers run through.
type Binding struct {
	// ID identifies the binding in logs.
	ID string

	machine *Machine
	model   any

	mutex sync.RWMutex
	state string

	// holder is set when the model implements Stateful.
	holder Stateful

	triggers   map[string]TriggerFunc
	predicates map[string]func() bool

	// proc is set when locking per model.
	proc *processor
}

// Model returns the bound model.
func (b *Binding) Model() any {
	return b.model
}

// Machine returns the machine the model is bound to.
func (b *Binding) Machine() *Machine {
	return b.machine
}

// State returns the name of the model's current state.
func (b *Binding) State() string {
	if b.holder != nil {
		return b.holder.State()
	}
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.state
}

func (b *Binding) setState(state string) error {
	if _, err := b.machine.GetState(state); err != nil {
		return err
	}
	if b.holder != nil {
		b.holder.SetState(state)
		return nil
	}
	b.mutex.Lock()
	b.state = state
	b.mutex.Unlock()
	return nil
}

// Trigger fires the named event for the model.
func (b *Binding) Trigger(ctx context.Context, trigger string, args ...any) (bool, error) {
	fn, ok := b.TriggerFunc(trigger)
	if !ok {
		return false, &UnregisteredError{Kind: "event", Name: trigger}
	}
	return fn(ctx, args...)
}

// TriggerFunc returns the trigger function generated for the named event.
func (b *Binding) TriggerFunc(trigger string) (TriggerFunc, bool) {
	fn, ok := b.triggers[trigger]
	return fn, ok
}

// Is reports whether the model is exactly in the named state.
func (b *Binding) Is(state string) bool {
	return b.State() == state
}

// Predicate returns the generated is_<state> predicate.
func (b *Binding) Predicate(name string) (func() bool, bool) {
	fn, ok := b.predicates[name]
	return fn, ok
}

// Call invokes a generated member by name: a trigger, or an is_<state>
// predicate whose outcome is returned as the boolean.
func (b *Binding) Call(ctx context.Context, name string, args ...any) (bool, error) {
	if fn, ok := b.triggers[name]; ok {
		return fn(ctx, args...)
	}
	if fn, ok := b.predicates[name]; ok {
		return fn(), nil
	}
	return false, &UnregisteredError{Kind: "member", Name: name}
}

// PermittedTriggers returns the triggers valid from the model's current
// state, including those inherited from its ancestors.
func (b *Binding) PermittedTriggers() ([]string, error) {
	return b.machine.Triggers(b.State())
}

func (b *Binding) processor() *processor {
	if b.proc != nil {
		return b.proc
	}
	return b.machine.proc
}

func (b *Binding) addTrigger(event *Event) {
	if _, ok := resolveMethod(b.model, event.Name()); ok && b.model != any(b.machine) {
		b.machine.logger.Warn("model already defines a member named like the trigger",
			slog.String("event", event.Name()), slog.String("model", b.ID))
	}
	b.triggers[event.Name()] = func(ctx context.Context, args ...any) (bool, error) {
		result, err := event.dispatch(ctx, b, args)
		return result.OK(), err
	}
}

// addState generates the is_<state> predicate and attaches conventionally
// named enter and exit methods of the model to the state.
func (b *Binding) addState(s *State) {
	name := s.Name()
	b.predicates["is_"+name] = func() bool { return b.Is(name) }

	for _, kind := range []CallbackKind{KindEnter, KindExit} {
		method := string(kind) + "_" + name
		if _, ok := resolveMethod(b.model, method); !ok {
			continue
		}
		callbacks := s.onEnter
		if kind == KindExit {
			callbacks = s.onExit
		}
		if slices.ContainsFunc(callbacks, func(cb Callback) bool { return cb.IsNamed() && cb.name == method }) {
			continue
		}
		_ = s.AddCallback(kind, Callback{name: method, optional: true})
	}
}

func (b *Binding) String() string {
	return fmt.Sprintf("Binding { ID = %s, Model = %T, State = %s }", b.ID, b.model, b.State())
}

// AddModel binds model to the machine in the given state, or in the
// machine's initial state when initial is empty. Nested machines place the
// model in the deepest initial descendant. No callbacks fire. Binding an
// already bound model has no effect.
//
// Models are identified by equality, so pointers are the usual choice.
func (m *Machine) AddModel(model any, initial string) error {
	if err := checkModel(model); err != nil {
		return err
	}
	if _, ok := m.bindings[model]; ok {
		return nil
	}

	if initial == "" {
		initial = m.initial
	}
	if initial == "" {
		return &ConfigurationError{Message: "no initial state configured for the model"}
	}
	state, err := m.resolveInitial(initial)
	if err != nil {
		return err
	}

	b := &Binding{
		ID:         uuid.Must(uuid.NewV7()).String(),
		machine:    m,
		model:      model,
		triggers:   make(map[string]TriggerFunc),
		predicates: make(map[string]func() bool),
	}
	if holder, ok := model.(Stateful); ok {
		b.holder = holder
	}
	if m.lockScope == LockModel {
		b.proc = newProcessor(m.queued, true)
	}
	if err := b.setState(state.Name()); err != nil {
		return err
	}
	for _, event := range m.Events() {
		b.addTrigger(event)
	}
	for _, s := range m.States() {
		b.addState(s)
	}

	m.bindings[model] = b
	m.models = append(m.models, b)
	m.logger.Debug("model added", slog.String("model", b.ID), slog.String("state", state.Name()))
	return nil
}

// AddModels binds several models in the machine's initial state.
func (m *Machine) AddModels(models ...any) error {
	for _, model := range models {
		if err := m.AddModel(model, ""); err != nil {
			return err
		}
	}
	return nil
}

// RemoveModel unbinds model. Its state is kept by a Stateful model.
func (m *Machine) RemoveModel(model any) error {
	b, err := m.Binding(model)
	if err != nil {
		return err
	}
	delete(m.bindings, b.model)
	m.models = slices.DeleteFunc(m.models, func(other *Binding) bool { return other == b })
	m.logger.Debug("model removed", slog.String("model", b.ID))
	return nil
}

// Models returns the bound models in binding order.
func (m *Machine) Models() []any {
	result := make([]any, len(m.models))
	for i, b := range m.models {
		result[i] = b.model
	}
	return result
}

// Binding returns the binding of model. A *Binding is returned as is.
func (m *Machine) Binding(model any) (*Binding, error) {
	if b, ok := model.(*Binding); ok {
		if b.machine != m {
			return nil, &ArgumentError{ParamName: "model", Message: "binding belongs to another machine"}
		}
		return b, nil
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	b, ok := m.bindings[model]
	if !ok {
		return nil, &UnregisteredError{Kind: "model", Name: fmt.Sprintf("%T", model)}
	}
	return b, nil
}

// CurrentState returns the state model is in.
func (m *Machine) CurrentState(model any) (*State, error) {
	b, err := m.Binding(model)
	if err != nil {
		return nil, err
	}
	return m.GetState(b.State())
}

// Is reports whether model is exactly in state.
func (m *Machine) Is(model any, state string) (bool, error) {
	b, err := m.Binding(model)
	if err != nil {
		return false, err
	}
	return b.Is(state), nil
}

// IsIn reports whether model is in state or in one of its descendants.
func (m *Machine) IsIn(model any, state string) (bool, error) {
	current, err := m.CurrentState(model)
	if err != nil {
		return false, err
	}
	return current.IsIncludedIn(state), nil
}

// SetState moves the given models, or all bound models when none are given,
// to state without firing callbacks.
func (m *Machine) SetState(state string, models ...any) error {
	if _, err := m.GetState(state); err != nil {
		return err
	}
	bindings := m.models
	if len(models) > 0 {
		bindings = make([]*Binding, 0, len(models))
		for _, model := range models {
			b, err := m.Binding(model)
			if err != nil {
				return err
			}
			bindings = append(bindings, b)
		}
	}
	for _, b := range bindings {
		if err := b.setState(state); err != nil {
			return err
		}
	}
	return nil
}

func checkModel(model any) error {
	if model == nil {
		return &ArgumentError{ParamName: "model", Message: "model must not be nil"}
	}
	if !reflect.ValueOf(model).Comparable() {
		return &ArgumentError{ParamName: "model", Message: fmt.Sprintf("model of type %T is not comparable; bind a pointer instead", model)}
	}
	return nil
}
