package transitions_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/atlekbai/transitions"
)

// item is a plain model whose state is kept by the machine.
type item struct {
	name string
}

// stored is a model that keeps its own state.
type stored struct {
	state string
}

func (s *stored) State() string         { return s.state }
func (s *stored) SetState(state string) { s.state = state }

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) fn(name string) transitions.Callback {
	return transitions.Func(func() { r.record(name) })
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func goAB() transitions.TransitionConfig {
	return transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"A"}, Dest: "B"}
}

func newMachine(t *testing.T, opts ...transitions.Option) *transitions.Machine {
	t.Helper()
	m, err := transitions.NewMachine(opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func currentState(t *testing.T, m *transitions.Machine, model any) string {
	t.Helper()
	s, err := m.CurrentState(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s.Name()
}

// Basic tests

func TestNewMachine_MachineIsItsOwnModel(t *testing.T) {
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
	)

	ok, err := m.Fire(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected go to succeed")
	}
	if state := currentState(t, m, m); state != "B" {
		t.Errorf("expected B, got %s", state)
	}
}

func TestNewMachine_CreatesInitialState(t *testing.T) {
	m := newMachine(t)

	if names := m.StateNames(); !slices.Equal(names, []string{transitions.DefaultInitial}) {
		t.Errorf("expected only the initial state, got %v", names)
	}
	if state := currentState(t, m, m); state != transitions.DefaultInitial {
		t.Errorf("expected %s, got %s", transitions.DefaultInitial, state)
	}
}

func TestNewMachine_WithoutSelf(t *testing.T) {
	m := newMachine(t, transitions.WithoutSelf(), transitions.WithStates(transitions.States("A")...))

	if len(m.Models()) != 0 {
		t.Errorf("expected no models, got %d", len(m.Models()))
	}
	if names := m.StateNames(); !slices.Equal(names, []string{"A"}) {
		t.Errorf("expected [A], got %v", names)
	}

	_, err := m.Binding(m)
	var unregistered *transitions.UnregisteredError
	if !errors.As(err, &unregistered) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestSimpleTransition(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)
	ctx := context.Background()

	ok, err := m.Trigger(ctx, model, "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected go to succeed")
	}

	b, err := m.Binding(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	isB, err := b.Call(ctx, "is_B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isB {
		t.Error("expected is_B to be true")
	}

	_, err = m.Trigger(ctx, model, "go")
	var invalid *transitions.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.Trigger != "go" || invalid.State != "B" {
		t.Errorf("unexpected error details: %+v", invalid)
	}
	if state := currentState(t, m, model); state != "B" {
		t.Errorf("expected state to remain B, got %s", state)
	}
}

func TestStatefulModel(t *testing.T) {
	model := &stored{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)

	if model.state != "A" {
		t.Errorf("expected model to start in A, got %q", model.state)
	}
	if _, err := m.Trigger(context.Background(), model, "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.state != "B" {
		t.Errorf("expected model state B, got %q", model.state)
	}
}

func TestMultipleModels(t *testing.T) {
	first, second := &item{name: "first"}, &item{name: "second"}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithModels(first, second),
	)

	if _, err := m.Trigger(context.Background(), first, "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, first); state != "B" {
		t.Errorf("expected first in B, got %s", state)
	}
	if state := currentState(t, m, second); state != "A" {
		t.Errorf("expected second to remain in A, got %s", state)
	}
}

func TestAddModel_Errors(t *testing.T) {
	m := newMachine(t, transitions.WithoutSelf(), transitions.WithStates(transitions.States("A")...))

	tests := []struct {
		name    string
		model   any
		initial string
		check   func(error) bool
	}{
		{"nil model", nil, "A", isArgumentError},
		{"non-comparable model", map[string]int{}, "A", isArgumentError},
		{"struct holding a slice", struct{ data any }{data: []int{1}}, "A", isArgumentError},
		{"no initial state", &item{}, "", isConfigurationError},
		{"unknown initial state", &item{}, "Z", isUnregisteredError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddModel(tt.model, tt.initial)
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func isArgumentError(err error) bool {
	var target *transitions.ArgumentError
	return errors.As(err, &target)
}

func isConfigurationError(err error) bool {
	var target *transitions.ConfigurationError
	return errors.As(err, &target)
}

func isUnregisteredError(err error) bool {
	var target *transitions.UnregisteredError
	return errors.As(err, &target)
}

func isInvalidOperationError(err error) bool {
	var target *transitions.InvalidOperationError
	return errors.As(err, &target)
}

func TestRemoveModel(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)

	if err := m.RemoveModel(model); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Models()) != 0 {
		t.Errorf("expected no models, got %d", len(m.Models()))
	}
	if _, err := m.Trigger(context.Background(), model, "go"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
	if err := m.RemoveModel(model); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestRegistrationErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []transitions.Option
	}{
		{
			name: "duplicate state",
			opts: []transitions.Option{transitions.WithStates(transitions.States("A", "A")...)},
		},
		{
			name: "unknown source",
			opts: []transitions.Option{
				transitions.WithStates(transitions.States("A", "B")...),
				transitions.WithTransitions(transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"Z"}, Dest: "B"}),
			},
		},
		{
			name: "unknown destination",
			opts: []transitions.Option{
				transitions.WithStates(transitions.States("A", "B")...),
				transitions.WithTransitions(transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"A"}, Dest: "Z"}),
			},
		},
		{
			name: "children on a flat machine",
			opts: []transitions.Option{
				transitions.WithStates(transitions.StateConfig{Name: "P", Children: transitions.States("x")}),
			},
		},
		{
			name: "ordered transitions with one state",
			opts: []transitions.Option{
				transitions.WithoutSelf(),
				transitions.WithStates(transitions.States("A")...),
				transitions.WithOrderedTransitions(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transitions.NewMachine(tt.opts...)
			if !isConfigurationError(err) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestUnknownTrigger(t *testing.T) {
	model := &item{}
	m := newMachine(t, transitions.WithStates(transitions.States("A")...), transitions.WithInitial("A"), transitions.WithModels(model))

	if _, err := m.Trigger(context.Background(), model, "nope"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestConditions(t *testing.T) {
	yes := transitions.Func(func() bool { return true })
	no := transitions.Func(func() bool { return false })

	tests := []struct {
		name       string
		conditions []transitions.Callback
		unless     []transitions.Callback
		expected   string
	}{
		{"no conditions", nil, nil, "B"},
		{"condition passes", []transitions.Callback{yes}, nil, "B"},
		{"condition fails", []transitions.Callback{yes, no}, nil, "A"},
		{"unless passes", nil, []transitions.Callback{no}, "B"},
		{"unless fails", nil, []transitions.Callback{yes}, "A"},
		{"mixed", []transitions.Callback{yes}, []transitions.Callback{no}, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &item{}
			cfg := goAB()
			cfg.Conditions = tt.conditions
			cfg.Unless = tt.unless
			m := newMachine(t,
				transitions.WithStates(transitions.States("A", "B")...),
				transitions.WithTransitions(cfg),
				transitions.WithInitial("A"),
				transitions.WithModels(model),
			)

			ok, err := m.Trigger(context.Background(), model, "go")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != (tt.expected == "B") {
				t.Errorf("unexpected result %v", ok)
			}
			if state := currentState(t, m, model); state != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, state)
			}
		})
	}
}

func TestFirstPassingTransitionWins(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B", "C", "D")...),
		transitions.WithTransitions(
			transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"A"}, Dest: "B", Conditions: []transitions.Callback{transitions.Func(func() bool { return false })}},
			transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"A"}, Dest: "C"},
			transitions.TransitionConfig{Trigger: "go", Source: transitions.Sources{"A"}, Dest: "D"},
		),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)

	if _, err := m.Trigger(context.Background(), model, "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, model); state != "C" {
		t.Errorf("expected C, got %s", state)
	}
}

func TestWildcardSource(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B", "C")...),
		transitions.WithTransitions(
			goAB(),
			transitions.TransitionConfig{Trigger: "reset", Source: transitions.Sources{transitions.Wildcard}, Dest: "A"},
		),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)
	if err := m.AddState("D"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event, err := m.Event("reset")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources := event.Sources(); !slices.Equal(sources, []string{"A", "B", "C"}) {
		t.Errorf("expected sources [A B C], got %v", sources)
	}

	ctx := context.Background()
	if _, err := m.Trigger(ctx, model, "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Trigger(ctx, model, "reset"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, model); state != "A" {
		t.Errorf("expected A, got %s", state)
	}

	if err := m.SetState("D", model); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var invalid *transitions.InvalidTransitionError
	if _, err := m.Trigger(ctx, model, "reset"); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidTransitionError for a state added later, got %v", err)
	}
}

func TestAutoTransitions(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)
	if err := m.AddStates(transitions.States("C")...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, trigger := range []string{"to_A", "to_B", "to_C"} {
		event, err := m.Event(trigger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sources := event.Sources(); !slices.Equal(sources, []string{"A", "B", "C"}) {
			t.Errorf("%s: expected sources [A B C], got %v", trigger, sources)
		}
		if n := len(event.Transitions("A")); n != 1 {
			t.Errorf("%s: expected a single transition from A, got %d", trigger, n)
		}
	}

	if _, err := m.Trigger(context.Background(), model, "to_C"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, model); state != "C" {
		t.Errorf("expected C, got %s", state)
	}
}

func TestAutoTransitions_Disabled(t *testing.T) {
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithInitial("A"),
		transitions.WithAutoTransitions(false),
	)

	if _, err := m.Event("to_B"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestAddOrderedTransitions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      transitions.OrderedConfig
		steps    int
		expected string
		invalid  bool
	}{
		{"cycle", transitions.OrderedConfig{}, 3, "A", false},
		{"no loop", transitions.OrderedConfig{NoLoop: true}, 3, "C", true},
		{"loop excludes initial", transitions.OrderedConfig{LoopExcludesInitial: true}, 3, "B", false},
		{"custom trigger", transitions.OrderedConfig{Trigger: "advance", States: []string{"A", "C"}}, 1, "C", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &item{}
			m := newMachine(t,
				transitions.WithStates(transitions.States("A", "B", "C")...),
				transitions.WithInitial("A"),
				transitions.WithAutoTransitions(false),
				transitions.WithModels(model),
			)
			if err := m.AddOrderedTransitions(tt.cfg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			trigger := tt.cfg.Trigger
			if trigger == "" {
				trigger = "next_state"
			}

			var lastErr error
			for range tt.steps {
				_, lastErr = m.Trigger(context.Background(), model, trigger)
			}
			if tt.invalid != (lastErr != nil) {
				t.Errorf("unexpected error state: %v", lastErr)
			}
			if state := currentState(t, m, model); state != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, state)
			}
		})
	}
}

func TestTriggers(t *testing.T) {
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(
			goAB(),
			transitions.TransitionConfig{Trigger: "back", Source: transitions.Sources{"B"}, Dest: "A"},
			transitions.TransitionConfig{Trigger: "stay", Source: transitions.Sources{"A", "B"}, Dest: "A"},
		),
		transitions.WithInitial("A"),
		transitions.WithAutoTransitions(false),
	)

	triggers, err := m.Triggers("A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(triggers, []string{"go", "stay"}) {
		t.Errorf("expected [go stay], got %v", triggers)
	}

	triggers, err = m.Triggers("A", "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(triggers, []string{"go", "back", "stay"}) {
		t.Errorf("expected [go back stay], got %v", triggers)
	}

	if _, err := m.Triggers("Z"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestSetState(t *testing.T) {
	first, second := &item{}, &item{}
	r := &recorder{}
	m := newMachine(t,
		transitions.WithStates(
			transitions.StateConfig{Name: "A"},
			transitions.StateConfig{Name: "B", OnEnter: []transitions.Callback{r.fn("enter_B")}},
		),
		transitions.WithInitial("A"),
		transitions.WithModels(first, second),
	)

	if err := m.SetState("B", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, second); state != "A" {
		t.Errorf("expected second to remain A, got %s", state)
	}
	if err := m.SetState("B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, second); state != "B" {
		t.Errorf("expected second in B, got %s", state)
	}
	if calls := r.list(); len(calls) != 0 {
		t.Errorf("expected no callbacks, got %v", calls)
	}
	if err := m.SetState("Z"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestGoTo(t *testing.T) {
	model := &item{}
	r := &recorder{}
	m := newMachine(t,
		transitions.WithStates(
			transitions.StateConfig{Name: "A", OnExit: []transitions.Callback{r.fn("exit_A")}},
			transitions.StateConfig{Name: "B"},
			transitions.StateConfig{Name: "C", OnEnter: []transitions.Callback{r.fn("enter_C")}},
		),
		transitions.WithInitial("A"),
		transitions.WithAutoTransitions(false),
		transitions.WithModels(model),
	)

	if err := m.GoTo(context.Background(), model, "C"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, model); state != "C" {
		t.Errorf("expected C, got %s", state)
	}
	if calls := r.list(); !slices.Equal(calls, []string{"exit_A", "enter_C"}) {
		t.Errorf("unexpected calls %v", calls)
	}
	if err := m.GoTo(context.Background(), model, "Z"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}

func TestTrigger_CancelledContext(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Trigger(ctx, model, "go")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if state := currentState(t, m, model); state != "A" {
		t.Errorf("expected state to remain A, got %s", state)
	}
}

func TestBindingTriggerFunc(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithTransitions(goAB()),
		transitions.WithInitial("A"),
		transitions.WithAutoTransitions(false),
		transitions.WithModels(model),
	)
	b, err := m.Binding(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	permitted, err := b.PermittedTriggers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(permitted, []string{"go"}) {
		t.Errorf("expected [go], got %v", permitted)
	}

	trigger, ok := b.TriggerFunc("go")
	if !ok {
		t.Fatal("expected a trigger function for go")
	}
	if ok, err := trigger(context.Background()); err != nil || !ok {
		t.Errorf("expected success, got %v, %v", ok, err)
	}
	if !b.Is("B") {
		t.Errorf("expected B, got %s", b.State())
	}
	if _, err := b.Call(context.Background(), "missing"); !isUnregisteredError(err) {
		t.Errorf("expected UnregisteredError, got %v", err)
	}
}
