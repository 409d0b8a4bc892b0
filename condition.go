package transitions

import (
	"context"
	"fmt"
)

// Condition gates a transition on a boolean predicate. The transition passes
// the condition when the predicate returns Target.
//
// Supported predicate shapes:
//
//	func() bool
//	func(*EventData) bool               // send-event mode
//	func(...any) bool                   // argument mode
//	func(context.Context, ...any) bool  // argument mode
//
// In argument mode predicates only see the trigger arguments; predicates that
// need the event context require a machine built WithSendEvent.
type Condition struct {
	Func   Callback
	Target bool
}

// NewCondition creates a condition that passes when the predicate returns target.
func NewCondition(fn Callback, target bool) Condition {
	return Condition{Func: fn, Target: target}
}

// When creates conditions that pass when their predicates return true.
func When(callbacks ...Callback) []Condition {
	return conditionsFor(callbacks, true)
}

// Unless creates conditions that pass when their predicates return false.
func Unless(callbacks ...Callback) []Condition {
	return conditionsFor(callbacks, false)
}

func conditionsFor(callbacks []Callback, target bool) []Condition {
	result := make([]Condition, len(callbacks))
	for i, cb := range callbacks {
		result[i] = NewCondition(cb, target)
	}
	return result
}

// Check evaluates the predicate and compares it with the target.
func (c Condition) Check(e *EventData) (bool, error) {
	fn, err := c.Func.resolve(e.Model)
	if err != nil {
		return false, err
	}

	var result bool
	sendEvent := e.Machine.sendEvent
	switch f := fn.(type) {
	case func() bool:
		result = f()
	case func(*EventData) bool:
		if !sendEvent {
			return false, signatureError(c.Func, "requires send-event mode")
		}
		result = f(e)
	case func(...any) bool:
		if sendEvent {
			return false, signatureError(c.Func, "cannot receive event data")
		}
		result = f(e.callArgs()...)
	case func(context.Context, ...any) bool:
		if sendEvent {
			return false, signatureError(c.Func, "cannot receive event data")
		}
		result = f(e.Context(), e.callArgs()...)
	default:
		return false, signatureError(c.Func, fmt.Sprintf("is not a predicate: %T", fn))
	}
	return result == c.Target, nil
}

func (c Condition) String() string {
	if c.Target {
		return c.Func.Name()
	}
	return "!" + c.Func.Name()
}
