package transitions

import (
	"fmt"
	"reflect"
)

// Kwargs carries named trigger arguments. When the last argument passed to a
// trigger is a Kwargs value it is exposed separately as EventData.Kwargs.
type Kwargs map[string]any

// splitArgs separates a trailing Kwargs value from the positional arguments.
func splitArgs(args []any) ([]any, Kwargs) {
	if len(args) == 0 {
		return nil, Kwargs{}
	}
	if kw, ok := args[len(args)-1].(Kwargs); ok {
		return args[:len(args)-1], kw
	}
	return args, Kwargs{}
}

// ArgumentSignature declares the positional argument types an event accepts.
type ArgumentSignature struct {
	argumentTypes []reflect.Type
}

// NewArgumentSignature creates a signature from the given types.
func NewArgumentSignature(argumentTypes ...reflect.Type) *ArgumentSignature {
	return &ArgumentSignature{argumentTypes: argumentTypes}
}

// ArgumentTypes returns the argument types expected by the signature.
func (s *ArgumentSignature) ArgumentTypes() []reflect.Type {
	return s.argumentTypes
}

// Validate ensures that the supplied positional arguments are compatible with
// the signature. Missing trailing arguments and nil values are accepted.
func (s *ArgumentSignature) Validate(args []any) error {
	if len(args) > len(s.argumentTypes) {
		return &ParameterConversionError{
			Message: fmt.Sprintf("too many parameters have been supplied. Expected %d but got %d", len(s.argumentTypes), len(args)),
		}
	}

	for i, arg := range args {
		if arg == nil {
			continue
		}
		argType := reflect.TypeOf(arg)
		if !argType.AssignableTo(s.argumentTypes[i]) {
			return &ParameterConversionError{
				Message: fmt.Sprintf("argument at position %d is of type %v but expected type %v", i, argType, s.argumentTypes[i]),
			}
		}
	}

	return nil
}
