package transitions

import (
	"log/slog"
)

// DefaultSeparator joins the local names of nested states into their
// qualified name.
const DefaultSeparator = "_"

// State is a named locus with ordered enter/exit callbacks. On machines built
// WithNesting a state may also have a parent, children and a default initial
// child; on flat machines these are always empty.
type State struct {
	name      string
	separator string

	// parent is a back reference used for traversal only.
	parent *State

	// children are owned by this state.
	children []*State

	// initial is the local name of the child entered when this state is targeted.
	initial string

	onEnter []Callback
	onExit  []Callback

	ignoreInvalidTriggers bool
}

// NewState creates a root state.
func NewState(name string, opts ...StateOption) *State {
	s := &State{name: name, separator: DefaultSeparator}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateOption configures a state at creation.
type StateOption func(*State)

// StateOnEnter appends enter callbacks.
func StateOnEnter(callbacks ...Callback) StateOption {
	return func(s *State) { s.onEnter = append(s.onEnter, callbacks...) }
}

// StateOnExit appends exit callbacks.
func StateOnExit(callbacks ...Callback) StateOption {
	return func(s *State) { s.onExit = append(s.onExit, callbacks...) }
}

// StateIgnoreInvalid sets the invalid-trigger policy of the state.
func StateIgnoreInvalid(ignore bool) StateOption {
	return func(s *State) { s.ignoreInvalidTriggers = ignore }
}

// StateParent attaches the state below parent.
func StateParent(parent *State) StateOption {
	return func(s *State) { s.setParent(parent) }
}

// StateInitial sets the local name of the default child.
func StateInitial(child string) StateOption {
	return func(s *State) { s.initial = child }
}

// StateSeparator sets the separator used to build the qualified name.
func StateSeparator(separator string) StateOption {
	return func(s *State) { s.separator = separator }
}

// Name returns the qualified name, derived from the ancestor chain.
func (s *State) Name() string {
	if s.parent != nil {
		return s.parent.Name() + s.separator + s.name
	}
	return s.name
}

// LocalName returns the name without ancestor prefix.
func (s *State) LocalName() string {
	return s.name
}

// Parent returns the parent state, or nil for roots.
func (s *State) Parent() *State {
	return s.parent
}

// Children returns the child states in registration order.
func (s *State) Children() []*State {
	return s.children
}

// Level returns 0 for roots and parent level + 1 otherwise.
func (s *State) Level() int {
	if s.parent == nil {
		return 0
	}
	return s.parent.Level() + 1
}

// Initial returns the qualified name of the default child, or "".
func (s *State) Initial() string {
	if s.initial == "" {
		return ""
	}
	return s.Name() + s.separator + s.initial
}

// IgnoreInvalidTriggers reports whether invalid triggers are ignored in this state.
func (s *State) IgnoreInvalidTriggers() bool {
	return s.ignoreInvalidTriggers
}

// OnEnter returns the enter callbacks.
func (s *State) OnEnter() []Callback {
	return s.onEnter
}

// OnExit returns the exit callbacks.
func (s *State) OnExit() []Callback {
	return s.onExit
}

// AddCallback appends an enter or exit callback. The same callback may be
// added more than once and then fires once per registration.
func (s *State) AddCallback(kind CallbackKind, cb Callback) error {
	switch kind {
	case KindEnter:
		s.onEnter = append(s.onEnter, cb)
	case KindExit:
		s.onExit = append(s.onExit, cb)
	default:
		return &ArgumentError{ParamName: "kind", Message: "states only accept on_enter and on_exit callbacks"}
	}
	return nil
}

func (s *State) setParent(parent *State) {
	if parent == nil {
		return
	}
	s.parent = parent
	parent.children = append(parent.children, s)
}

// Enter runs the enter callbacks.
func (s *State) Enter(e *EventData) error {
	logger := e.Machine.logger
	logger.Debug("entering state", slog.String("state", s.Name()), slog.String("attempt", e.ID))
	if err := invokeCallbacks(s.onEnter, e); err != nil {
		return err
	}
	logger.Info("entered state", slog.String("state", s.Name()), slog.String("attempt", e.ID))
	return nil
}

// Exit runs the exit callbacks.
func (s *State) Exit(e *EventData) error {
	logger := e.Machine.logger
	logger.Debug("exiting state", slog.String("state", s.Name()), slog.String("attempt", e.ID))
	if err := invokeCallbacks(s.onExit, e); err != nil {
		return err
	}
	logger.Info("exited state", slog.String("state", s.Name()), slog.String("attempt", e.ID))
	return nil
}

// ExitNested exits this state and its ancestors up to, but excluding, the
// ancestor shared with target. It returns the level from which EnterNested
// has to start entering.
func (s *State) ExitNested(e *EventData, target *State) (int, error) {
	if s.Level() > target.Level() {
		if err := s.Exit(e); err != nil {
			return 0, err
		}
		return s.parent.ExitNested(e, target)
	}

	aligned := target
	for s.Level() != aligned.Level() {
		aligned = aligned.parent
	}

	current := s
	for current.Level() > 0 && aligned.parent.Name() != current.parent.Name() {
		if err := current.Exit(e); err != nil {
			return 0, err
		}
		current = current.parent
		aligned = aligned.parent
	}

	if current != aligned {
		if err := current.Exit(e); err != nil {
			return 0, err
		}
		return current.Level(), nil
	}
	return current.Level() + 1, nil
}

// EnterNested enters the ancestors of this state from level downwards and
// then the state itself.
func (s *State) EnterNested(e *EventData, level int) error {
	if level > s.Level() {
		return nil
	}
	if level != s.Level() {
		if err := s.parent.EnterNested(e, level); err != nil {
			return err
		}
	}
	return s.Enter(e)
}

// IsIncludedIn returns true if this state is the named state or a descendant of it.
func (s *State) IsIncludedIn(name string) bool {
	for current := s; current != nil; current = current.parent {
		if current.Name() == name {
			return true
		}
	}
	return false
}

// Includes returns true if this state or any of its descendants is the named state.
func (s *State) Includes(name string) bool {
	if s.Name() == name {
		return true
	}
	for _, child := range s.children {
		if child.Includes(name) {
			return true
		}
	}
	return false
}

// clone copies the state without parent or children.
func (s *State) clone() *State {
	return &State{
		name:                  s.name,
		separator:             s.separator,
		initial:               s.initial,
		onEnter:               append([]Callback(nil), s.onEnter...),
		onExit:                append([]Callback(nil), s.onExit...),
		ignoreInvalidTriggers: s.ignoreInvalidTriggers,
	}
}

func (s *State) String() string {
	return s.Name()
}
