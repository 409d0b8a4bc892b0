package transitions

import (
	"fmt"
)

// StateNode provides a fluent interface for configuring a registered state.
// Misconfiguration panics, as it is a programming error detected at setup.
type StateNode struct {
	machine *Machine
	state   *State
}

// Configure returns a fluent configuration of the named state.
func (m *Machine) Configure(state string) *StateNode {
	s, err := m.GetState(state)
	if err != nil {
		panic(err)
	}
	return &StateNode{machine: m, state: s}
}

// State returns the qualified name of the state being configured.
func (sn *StateNode) State() string {
	return sn.state.Name()
}

// Permit configures the state to transition to dest when trigger is fired.
func (sn *StateNode) Permit(trigger, dest string) *StateNode {
	sn.enforceNotIdentityTransition(dest)
	return sn.add(TransitionConfig{Trigger: trigger, Dest: dest})
}

// PermitIf configures the state to transition to dest when trigger is fired
// and all conditions return true.
func (sn *StateNode) PermitIf(trigger, dest string, conditions ...Callback) *StateNode {
	sn.enforceNotIdentityTransition(dest)
	return sn.add(TransitionConfig{Trigger: trigger, Dest: dest, Conditions: conditions})
}

// PermitUnless configures the state to transition to dest when trigger is
// fired and all conditions return false.
func (sn *StateNode) PermitUnless(trigger, dest string, conditions ...Callback) *StateNode {
	sn.enforceNotIdentityTransition(dest)
	return sn.add(TransitionConfig{Trigger: trigger, Dest: dest, Unless: conditions})
}

// PermitReentry configures the state to exit and re-enter itself when
// trigger is fired.
func (sn *StateNode) PermitReentry(trigger string) *StateNode {
	return sn.add(TransitionConfig{Trigger: trigger, Dest: sn.state.Name()})
}

// PermitReentryIf is PermitReentry gated by conditions.
func (sn *StateNode) PermitReentryIf(trigger string, conditions ...Callback) *StateNode {
	return sn.add(TransitionConfig{Trigger: trigger, Dest: sn.state.Name(), Conditions: conditions})
}

// OnEntry appends an enter callback.
func (sn *StateNode) OnEntry(cb Callback) *StateNode {
	_ = sn.state.AddCallback(KindEnter, cb)
	return sn
}

// OnExit appends an exit callback.
func (sn *StateNode) OnExit(cb Callback) *StateNode {
	_ = sn.state.AddCallback(KindExit, cb)
	return sn
}

// IgnoreInvalidTriggers makes the state, and the states nested in it,
// ignore triggers that have no transition from them.
func (sn *StateNode) IgnoreInvalidTriggers() *StateNode {
	sn.state.ignoreInvalidTriggers = true
	return sn
}

// InitialTransition sets the child entered when the state is targeted.
// child is the local name of a direct child.
func (sn *StateNode) InitialTransition(child string) *StateNode {
	if sn.state.initial != "" {
		panic(fmt.Sprintf("state '%s' already has an initial child defined", sn.state.Name()))
	}
	for _, c := range sn.state.children {
		if c.LocalName() == child {
			sn.state.initial = child
			return sn
		}
	}
	panic(fmt.Sprintf("state '%s' has no child '%s'", sn.state.Name(), child))
}

func (sn *StateNode) add(cfg TransitionConfig) *StateNode {
	cfg.Source = Sources{sn.state.Name()}
	if err := sn.machine.AddTransition(cfg); err != nil {
		panic(err)
	}
	return sn
}

// enforceNotIdentityTransition ensures that a transition is not to the same state.
func (sn *StateNode) enforceNotIdentityTransition(dest string) {
	if sn.state.Name() == dest {
		panic("Permit() requires that the destination state is not equal to the source state. To re-enter the state, use PermitReentry()")
	}
}
