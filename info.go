package transitions

import (
	"reflect"
	"runtime"
	"strings"
)

// InvocationInfo describes a callback or condition predicate.
type InvocationInfo struct {
	// MethodName is the late-bound method name or the name of the function.
	MethodName string

	// LateBound is true when the name is resolved against the model on each call.
	LateBound bool
}

// DefaultFunctionDescription is the text returned for compiler-generated functions.
var DefaultFunctionDescription = "Function"

// NullString is the string representation of a missing value.
const NullString = "<null>"

func newInvocationInfo(cb Callback) InvocationInfo {
	return InvocationInfo{MethodName: cb.Name(), LateBound: cb.IsNamed()}
}

// Description returns the method name, or DefaultFunctionDescription for
// anonymous functions.
func (i InvocationInfo) Description() string {
	if i.MethodName == "" {
		return NullString
	}
	if !i.LateBound && (strings.Contains(i.MethodName, "func") || strings.Contains(i.MethodName, ".")) {
		return DefaultFunctionDescription
	}
	return i.MethodName
}

// getFunctionName returns the name of a function.
func getFunctionName(fn any) string {
	if fn == nil {
		return ""
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	name := runtime.FuncForPC(v.Pointer()).Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// ConditionInfo describes a transition condition.
type ConditionInfo struct {
	InvocationInfo

	// Target is the value the predicate must return for the transition to pass.
	Target bool
}

// TransitionInfo describes one transition of an event.
type TransitionInfo struct {
	Trigger    string
	Source     string
	Dest       string
	Conditions []ConditionInfo
	Prepare    []InvocationInfo
	Before     []InvocationInfo
	After      []InvocationInfo
}

// StateInfo describes a state and its position in the state tree.
type StateInfo struct {
	Name      string
	LocalName string

	// Initial is the qualified name of the default child, if any.
	Initial string

	// Parent is nil for root states.
	Parent   *StateInfo
	Children []*StateInfo

	EnterActions []InvocationInfo
	ExitActions  []InvocationInfo

	IgnoreInvalidTriggers bool

	// Transitions lists the transitions whose source is this state.
	Transitions []TransitionInfo
}

func (s *StateInfo) String() string {
	if s == nil {
		return NullString
	}
	return s.Name
}

// EventInfo describes an event and its transitions in registration order.
type EventInfo struct {
	Name        string
	Transitions []TransitionInfo
}

// MachineInfo is a read-only snapshot of a machine's registry for external
// renderers such as diagram generators.
type MachineInfo struct {
	Name      string
	Initial   *StateInfo
	Nested    bool
	Separator string

	// States are the root states in registration order.
	States []*StateInfo

	Events []EventInfo
}

// FindState returns the described state with the given qualified name.
func (i *MachineInfo) FindState(name string) *StateInfo {
	var find func([]*StateInfo) *StateInfo
	find = func(states []*StateInfo) *StateInfo {
		for _, s := range states {
			if s.Name == name {
				return s
			}
			if found := find(s.Children); found != nil {
				return found
			}
		}
		return nil
	}
	return find(i.States)
}

// Info returns a snapshot of the machine's states, events and callbacks.
func (m *Machine) Info() *MachineInfo {
	info := &MachineInfo{
		Name:      m.name,
		Nested:    m.nested,
		Separator: m.separator,
	}

	described := make(map[string]*StateInfo, len(m.stateOrder))
	for _, s := range m.States() {
		si := &StateInfo{
			Name:                  s.Name(),
			LocalName:             s.LocalName(),
			Initial:               s.Initial(),
			EnterActions:          invocations(s.onEnter),
			ExitActions:           invocations(s.onExit),
			IgnoreInvalidTriggers: s.ignoreInvalidTriggers,
		}
		described[si.Name] = si
		if s.parent == nil {
			info.States = append(info.States, si)
			continue
		}
		if parent, ok := described[s.parent.Name()]; ok {
			si.Parent = parent
			parent.Children = append(parent.Children, si)
		}
	}

	for _, event := range m.Events() {
		ei := EventInfo{Name: event.Name()}
		for _, source := range event.Sources() {
			for _, t := range event.Transitions(source) {
				ti := transitionInfo(event.Name(), t)
				ei.Transitions = append(ei.Transitions, ti)
				if si, ok := described[source]; ok {
					si.Transitions = append(si.Transitions, ti)
				}
			}
		}
		info.Events = append(info.Events, ei)
	}

	info.Initial = described[m.initial]
	return info
}

func transitionInfo(trigger string, t *Transition) TransitionInfo {
	ti := TransitionInfo{
		Trigger: trigger,
		Source:  t.Source,
		Dest:    t.Dest,
		Prepare: invocations(t.Prepare),
		Before:  invocations(t.Before),
		After:   invocations(t.After),
	}
	for _, c := range t.Conditions {
		ti.Conditions = append(ti.Conditions, ConditionInfo{InvocationInfo: newInvocationInfo(c.Func), Target: c.Target})
	}
	return ti
}

func invocations(callbacks []Callback) []InvocationInfo {
	result := make([]InvocationInfo, len(callbacks))
	for i, cb := range callbacks {
		result[i] = newInvocationInfo(cb)
	}
	return result
}
