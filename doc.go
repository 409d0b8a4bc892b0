// Package transitions provides a hierarchical finite-state machine engine.
//
// A Machine owns a registry of named states and events and drives the state
// of any number of bound models. It supports:
//
//   - Conditional transitions with prepare, before and after callbacks
//   - Enter and exit callbacks on states
//   - Callbacks referenced by function or by model method name
//   - Nested states with initial children and machine merging
//   - Immediate or queued processing of triggers
//   - Machine or model scoped locking for concurrent use
//   - Declarative configuration from JSON, environment or .env files
//   - Introspection for external renderers
//
// # Basic Usage
//
// Create a machine with states and transitions:
//
//	m, err := transitions.NewMachine(
//	    transitions.WithStates(transitions.States("A", "B")...),
//	    transitions.WithTransitions(transitions.TransitionConfig{
//	        Trigger: "go", Source: transitions.Sources{"A"}, Dest: "B",
//	    }),
//	    transitions.WithInitial("A"),
//	    transitions.WithModels(model),
//	)
//
// Fire triggers to cause transitions:
//
//	ok, err := m.Trigger(ctx, model, "go")
//
// # Callbacks
//
// Callbacks are direct functions or method names resolved against the model
// each time they fire:
//
//	m.OnEnter("B", transitions.Method("OnEnterB"))
//	m.Before("go", transitions.Func(func() { fmt.Println("leaving A") }))
//
// Methods named on_enter_<state> or OnEnter<State> (and the exit
// equivalents) are attached automatically when the model is bound.
//
// # Nested States
//
//	m, err := transitions.NewMachine(
//	    transitions.WithNesting("."),
//	    transitions.WithStates(transitions.StateConfig{
//	        Name: "P", Initial: "x", Children: transitions.States("x", "y"),
//	    }),
//	)
//
// Targeting "P" enters "P" and then "P.x".
//
// # Concurrency
//
// Triggers issued from callbacks require WithQueued. Triggers issued from
// several goroutines require WithLocking; callbacks that trigger further
// events must pass on EventData.Context() or the context they received.
package transitions
