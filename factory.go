package transitions

// Factory creates the states, transitions and events of a machine. Custom
// factories substitute their own objects without touching dispatch; embed
// DefaultFactory or NestedFactory and override what differs.
type Factory interface {
	NewState(name string, opts ...StateOption) *State
	NewTransition(source, dest string) *Transition
	NewEvent(name string, machine *Machine) *Event
}

// DefaultFactory builds flat machines.
type DefaultFactory struct{}

func (DefaultFactory) NewState(name string, opts ...StateOption) *State {
	return NewState(name, opts...)
}

func (DefaultFactory) NewTransition(source, dest string) *Transition {
	return NewTransition(source, dest, FlatChanger{})
}

func (DefaultFactory) NewEvent(name string, machine *Machine) *Event {
	return NewEvent(name, machine)
}

// NestedFactory builds hierarchical machines: states carry the path
// separator and transitions change state along the state tree.
type NestedFactory struct {
	DefaultFactory
	Separator string
}

func (f NestedFactory) NewState(name string, opts ...StateOption) *State {
	separator := f.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	return NewState(name, append([]StateOption{StateSeparator(separator)}, opts...)...)
}

func (NestedFactory) NewTransition(source, dest string) *Transition {
	return NewTransition(source, dest, NestedChanger{})
}
