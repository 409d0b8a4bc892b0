package transitions

import (
	"fmt"
	"strings"
)

// ConfigurationError indicates an invalid machine setup: a duplicate state,
// a transition referencing an unknown state, a missing initial state, and
// similar registration-time mistakes.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// InvalidOperationError indicates an operation that is not valid given the
// current processing state, such as a synchronous reentrant trigger or a
// callback whose signature cannot be served in the machine's mode.
type InvalidOperationError struct {
	Message string
}

func (e *InvalidOperationError) Error() string {
	return e.Message
}

// ArgumentError indicates an invalid argument was passed.
type ArgumentError struct {
	ParamName string
	Message   string
}

func (e *ArgumentError) Error() string {
	if e.ParamName != "" {
		return fmt.Sprintf("%s (parameter: %s)", e.Message, e.ParamName)
	}
	return e.Message
}

// UnregisteredError is returned when a state, event or model is looked up by
// a name or identity the machine does not know.
type UnregisteredError struct {
	Kind string
	Name string
}

func (e *UnregisteredError) Error() string {
	return fmt.Sprintf("%s '%s' is not registered", e.Kind, e.Name)
}

// InvalidTransitionError is returned when a trigger is invoked from a state
// that, together with its ancestors, has no transition registered for it.
type InvalidTransitionError struct {
	Machine           string
	Trigger           string
	State             string
	PermittedTriggers []string
}

func (e *InvalidTransitionError) Error() string {
	var permitted string
	if len(e.PermittedTriggers) > 0 {
		permitted = fmt.Sprintf(" Permitted triggers: %s.", strings.Join(e.PermittedTriggers, ", "))
	} else {
		permitted = " No valid leaving transitions are permitted from state."
	}

	return fmt.Sprintf("%scan't trigger event '%s' from state '%s'.%s",
		machinePrefix(e.Machine), e.Trigger, e.State, permitted)
}

// ParameterConversionError indicates trigger arguments that do not match the
// types declared for the event.
type ParameterConversionError struct {
	Message string
}

func (e *ParameterConversionError) Error() string {
	return e.Message
}

func machinePrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + ": "
}
