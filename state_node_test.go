package transitions_test

import (
	"context"
	"testing"

	"github.com/atlekbai/transitions"
)

func TestConfigure(t *testing.T) {
	model := &item{}
	r := &recorder{}
	m := newMachine(t,
		transitions.WithStates(transitions.States("A", "B")...),
		transitions.WithInitial("A"),
		transitions.WithAutoTransitions(false),
		transitions.WithModels(model),
	)

	allowed := false
	m.Configure("A").
		PermitIf("go", "B", transitions.Func(func() bool { return allowed })).
		OnExit(r.fn("exit_A"))
	m.Configure("B").
		PermitReentry("again").
		Permit("back", "A").
		OnEntry(r.fn("enter_B")).
		IgnoreInvalidTriggers()
	ctx := context.Background()

	if ok, _ := m.Trigger(ctx, model, "go"); ok {
		t.Error("expected go to be blocked")
	}
	allowed = true
	for _, trigger := range []string{"go", "again", "go"} {
		if _, err := m.Trigger(ctx, model, trigger); err != nil {
			t.Fatalf("%s: unexpected error: %v", trigger, err)
		}
	}
	if state := currentState(t, m, model); state != "B" {
		t.Errorf("expected B, got %s", state)
	}
	if calls := r.list(); len(calls) != 3 {
		t.Errorf("expected exit_A, enter_B and the reentry, got %v", calls)
	}
}

func TestConfigure_Panics(t *testing.T) {
	m := newMachine(t,
		transitions.WithNesting("."),
		transitions.WithStates(
			transitions.StateConfig{Name: "P", Initial: "x", Children: transitions.States("x", "y")},
			transitions.StateConfig{Name: "Q", Children: transitions.States("z")},
		),
		transitions.WithInitial("P"),
	)

	tests := []struct {
		name      string
		configure func()
	}{
		{"unknown state", func() { m.Configure("Z") }},
		{"identity transition", func() { m.Configure("Q").Permit("go", "Q") }},
		{"unknown destination", func() { m.Configure("Q").Permit("go", "Z") }},
		{"initial already set", func() { m.Configure("P").InitialTransition("y") }},
		{"initial not a child", func() { m.Configure("Q").InitialTransition("x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			tt.configure()
		})
	}
}

func TestConfigure_InitialTransition(t *testing.T) {
	model := &item{}
	m := newMachine(t,
		transitions.WithNesting("."),
		transitions.WithStates(
			transitions.StateConfig{Name: "A"},
			transitions.StateConfig{Name: "P", Children: transitions.States("x", "y")},
		),
		transitions.WithInitial("A"),
		transitions.WithModels(model),
	)
	m.Configure("P").InitialTransition("y")

	if _, err := m.ToPath(context.Background(), model, "P"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := currentState(t, m, model); state != "P.y" {
		t.Errorf("expected P.y, got %s", state)
	}
}
