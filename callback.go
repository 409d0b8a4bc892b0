package transitions

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CallbackKind names one of the callback lists a transition or state owns.
type CallbackKind string

const (
	// KindPrepare callbacks run before conditions are checked.
	KindPrepare CallbackKind = "prepare"
	// KindBefore callbacks run after conditions pass, before the state change.
	KindBefore CallbackKind = "before"
	// KindAfter callbacks run after the state change.
	KindAfter CallbackKind = "after"
	// KindEnter callbacks run when a state is entered.
	KindEnter CallbackKind = "on_enter"
	// KindExit callbacks run when a state is exited.
	KindExit CallbackKind = "on_exit"
)

var callbackKinds = []CallbackKind{KindPrepare, KindBefore, KindAfter, KindEnter, KindExit}

// Callback references a function invoked during a transition. It is either a
// direct handle captured at registration or a method name resolved against
// the model each time the callback fires, so rebinding a model's method
// between registration and firing changes what runs.
//
// Supported function shapes:
//
//	func()
//	func() error
//	func(*EventData)              // send-event mode
//	func(*EventData) error        // send-event mode
//	func(...any)                  // argument mode
//	func(...any) error            // argument mode
//	func(context.Context, ...any) error // argument mode
type Callback struct {
	name string
	fn   any

	// optional callbacks are skipped when the model has no such method.
	optional bool
}

// Func wraps a direct function handle.
func Func(fn any) Callback {
	return Callback{fn: fn}
}

// Method references a model method by name.
func Method(name string) Callback {
	return Callback{name: name}
}

// Methods references several model methods by name.
func Methods(names ...string) []Callback {
	result := make([]Callback, len(names))
	for i, name := range names {
		result[i] = Method(name)
	}
	return result
}

// IsNamed reports whether the callback is resolved by name.
func (c Callback) IsNamed() bool {
	return c.fn == nil
}

// Name returns the method name, or the function name for direct handles.
func (c Callback) Name() string {
	if c.IsNamed() {
		return c.name
	}
	return getFunctionName(c.fn)
}

func (c Callback) String() string {
	return c.Name()
}

// MarshalJSON encodes named callbacks as their name. Direct handles cannot be
// serialized.
func (c Callback) MarshalJSON() ([]byte, error) {
	if !c.IsNamed() {
		return nil, &ArgumentError{ParamName: "callback", Message: "direct function callbacks cannot be serialized"}
	}
	return json.Marshal(c.name)
}

// UnmarshalJSON decodes a method name.
func (c *Callback) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("callback must be a method name: %w", err)
	}
	*c = Method(name)
	return nil
}

// MethodProvider is implemented by models that resolve callback names
// themselves instead of relying on reflection.
type MethodProvider interface {
	Method(name string) (any, bool)
}

// resolve returns the function the callback refers to for the given model.
func (c Callback) resolve(model any) (any, error) {
	if !c.IsNamed() {
		return c.fn, nil
	}
	fn, ok := resolveMethod(model, c.name)
	if !ok {
		return nil, &UnregisteredError{Kind: "method", Name: c.name}
	}
	return fn, nil
}

// resolveMethod looks name up on model. Names such as "on_enter_B" are also
// tried in their exported Go form "OnEnterB".
func resolveMethod(model any, name string) (any, bool) {
	if provider, ok := model.(MethodProvider); ok {
		if fn, ok := provider.Method(name); ok && fn != nil {
			return fn, true
		}
	}

	v := reflect.ValueOf(model)
	if !v.IsValid() {
		return nil, false
	}
	for _, candidate := range []string{name, exportedName(name)} {
		if candidate == "" {
			continue
		}
		if method := v.MethodByName(candidate); method.IsValid() {
			return method.Interface(), true
		}
	}
	return nil, false
}

// exportedName converts snake_case names into Go's exported CamelCase.
func exportedName(name string) string {
	var sb strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(part)
		sb.WriteRune(unicode.ToUpper(r))
		sb.WriteString(part[size:])
	}
	return sb.String()
}

// invokeCallback resolves and runs one callback, passing either the event
// data or the trigger arguments depending on the machine's mode.
func invokeCallback(cb Callback, e *EventData) error {
	fn, err := cb.resolve(e.Model)
	if err != nil {
		if cb.optional {
			return nil
		}
		return err
	}

	sendEvent := e.Machine.sendEvent
	switch f := fn.(type) {
	case func():
		f()
		return nil
	case func() error:
		return f()
	case func(*EventData):
		if !sendEvent {
			return signatureError(cb, "requires send-event mode")
		}
		f(e)
		return nil
	case func(*EventData) error:
		if !sendEvent {
			return signatureError(cb, "requires send-event mode")
		}
		return f(e)
	case func(...any):
		if sendEvent {
			return signatureError(cb, "cannot receive event data")
		}
		f(e.callArgs()...)
		return nil
	case func(...any) error:
		if sendEvent {
			return signatureError(cb, "cannot receive event data")
		}
		return f(e.callArgs()...)
	case func(context.Context, ...any) error:
		if sendEvent {
			return signatureError(cb, "cannot receive event data")
		}
		return f(e.Context(), e.callArgs()...)
	default:
		return signatureError(cb, fmt.Sprintf("has unsupported signature %T", fn))
	}
}

// invokeCallbacks runs callbacks in order, stopping at the first error.
func invokeCallbacks(callbacks []Callback, e *EventData) error {
	for _, cb := range callbacks {
		if err := invokeCallback(cb, e); err != nil {
			return fmt.Errorf("callback '%s': %w", cb.Name(), err)
		}
	}
	return nil
}

func signatureError(cb Callback, reason string) error {
	return &InvalidOperationError{Message: fmt.Sprintf("callback '%s' %s", cb.Name(), reason)}
}
