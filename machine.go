package transitions

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// DefaultInitial is the state created when models are bound to a machine
// without a configured initial state.
const DefaultInitial = "initial"

// Machine owns a registry of states and events and drives the state of the
// models bound to it.
//
// States, events and models are registered during setup. Registering them
// while triggers are being processed is not supported.
type Machine struct {
	name   string
	logger *slog.Logger

	factory   Factory
	nested    bool
	separator string

	// states keeps registration order in stateOrder.
	states     map[string]*State
	stateOrder []string

	// events keeps registration order in eventOrder.
	events     map[string]*Event
	eventOrder []string

	initial               string
	sendEvent             bool
	autoTransitions       bool
	ignoreInvalidTriggers bool
	queued                bool
	lockScope             LockScope

	beforeStateChange []Callback
	afterStateChange  []Callback

	models   []*Binding
	bindings map[any]*Binding

	// proc serializes attempts unless locking per model.
	proc *processor

	setup machineSetup
}

// machineSetup collects the registrations requested through options.
type machineSetup struct {
	states             []StateConfig
	transitions        []TransitionConfig
	models             []any
	withoutSelf        bool
	orderedTransitions bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithName sets the machine name used in logs and error messages.
func WithName(name string) Option {
	return func(m *Machine) { m.name = name }
}

// WithLogger sets the logger. By default log output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithInitial sets the state newly bound models start in.
func WithInitial(state string) Option {
	return func(m *Machine) { m.initial = state }
}

// WithStates registers states at construction.
func WithStates(states ...StateConfig) Option {
	return func(m *Machine) { m.setup.states = append(m.setup.states, states...) }
}

// WithTransitions registers transitions at construction, after the states.
func WithTransitions(transitions ...TransitionConfig) Option {
	return func(m *Machine) { m.setup.transitions = append(m.setup.transitions, transitions...) }
}

// WithModels binds models at construction. Without models the machine binds
// itself unless WithoutSelf is given.
func WithModels(models ...any) Option {
	return func(m *Machine) { m.setup.models = append(m.setup.models, models...) }
}

// WithoutSelf stops the machine from acting as its own model.
func WithoutSelf() Option {
	return func(m *Machine) { m.setup.withoutSelf = true }
}

// WithSendEvent passes the EventData to every callback and condition instead
// of the trigger arguments.
func WithSendEvent() Option {
	return func(m *Machine) { m.sendEvent = true }
}

// WithAutoTransitions toggles the generation of to_<state> events.
func WithAutoTransitions(enabled bool) Option {
	return func(m *Machine) { m.autoTransitions = enabled }
}

// WithOrderedTransitions adds next_state transitions cycling through all
// states in registration order.
func WithOrderedTransitions() Option {
	return func(m *Machine) { m.setup.orderedTransitions = true }
}

// WithIgnoreInvalidTriggers sets the default invalid-trigger policy of states.
func WithIgnoreInvalidTriggers(ignore bool) Option {
	return func(m *Machine) { m.ignoreInvalidTriggers = ignore }
}

// WithQueued processes triggers through a FIFO queue so callbacks may
// trigger further events.
func WithQueued() Option {
	return func(m *Machine) { m.queued = true }
}

// WithLocking serializes triggers across goroutines with a reentrant lock
// scoped to the machine or to each model.
func WithLocking(scope LockScope) Option {
	return func(m *Machine) { m.lockScope = scope }
}

// WithNesting enables hierarchical states joined by separator. An empty
// separator selects DefaultSeparator.
func WithNesting(separator string) Option {
	return func(m *Machine) {
		if separator == "" {
			separator = DefaultSeparator
		}
		m.nested = true
		m.separator = separator
		m.factory = NestedFactory{Separator: separator}
	}
}

// WithFactory substitutes the factory. Apply it after WithNesting when both
// are used.
func WithFactory(factory Factory) Option {
	return func(m *Machine) { m.factory = factory }
}

// WithBeforeStateChange adds callbacks run before every transition's own
// before callbacks.
func WithBeforeStateChange(callbacks ...Callback) Option {
	return func(m *Machine) { m.beforeStateChange = append(m.beforeStateChange, callbacks...) }
}

// WithAfterStateChange adds callbacks run after every transition's own
// after callbacks.
func WithAfterStateChange(callbacks ...Callback) Option {
	return func(m *Machine) { m.afterStateChange = append(m.afterStateChange, callbacks...) }
}

// NewMachine creates a machine, registers the configured states and
// transitions and binds the configured models.
func NewMachine(opts ...Option) (*Machine, error) {
	m := &Machine{
		factory:         DefaultFactory{},
		separator:       DefaultSeparator,
		states:          make(map[string]*State),
		events:          make(map[string]*Event),
		autoTransitions: true,
		bindings:        make(map[any]*Binding),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.name != "" {
		m.logger = m.logger.With(slog.String("machine", m.name))
	}
	m.proc = newProcessor(m.queued, m.lockScope == LockMachine)

	models := m.setup.models
	if len(models) == 0 && !m.setup.withoutSelf {
		models = []any{m}
	}

	if len(models) > 0 && m.initial == "" {
		m.initial = DefaultInitial
		if err := m.AddStates(StateConfig{Name: DefaultInitial}); err != nil {
			return nil, err
		}
	}

	if err := m.AddStates(m.setup.states...); err != nil {
		return nil, err
	}
	if err := m.AddTransitions(m.setup.transitions...); err != nil {
		return nil, err
	}
	if m.setup.orderedTransitions {
		if err := m.AddOrderedTransitions(OrderedConfig{}); err != nil {
			return nil, err
		}
	}

	for _, model := range models {
		if err := m.AddModel(model, ""); err != nil {
			return nil, err
		}
	}

	m.setup = machineSetup{}
	return m, nil
}

// Name returns the machine name.
func (m *Machine) Name() string {
	return m.name
}

// Initial returns the configured initial state.
func (m *Machine) Initial() string {
	return m.initial
}

// Nested reports whether the machine was built WithNesting.
func (m *Machine) Nested() bool {
	return m.nested
}

// Separator returns the separator joining nested state names.
func (m *Machine) Separator() string {
	return m.separator
}

// SendEvent reports whether callbacks receive EventData.
func (m *Machine) SendEvent() bool {
	return m.sendEvent
}

// Queued reports whether triggers are processed through a queue.
func (m *Machine) Queued() bool {
	return m.queued
}

// GetState returns the registered state with the given qualified name.
func (m *Machine) GetState(name string) (*State, error) {
	state, ok := m.states[name]
	if !ok {
		return nil, &UnregisteredError{Kind: "state", Name: name}
	}
	return state, nil
}

// States returns the registered states in registration order.
func (m *Machine) States() []*State {
	result := make([]*State, len(m.stateOrder))
	for i, name := range m.stateOrder {
		result[i] = m.states[name]
	}
	return result
}

// StateNames returns the registered state names in registration order.
func (m *Machine) StateNames() []string {
	return slices.Clone(m.stateOrder)
}

// Event returns the registered event with the given trigger name.
func (m *Machine) Event(name string) (*Event, error) {
	event, ok := m.events[name]
	if !ok {
		return nil, &UnregisteredError{Kind: "event", Name: name}
	}
	return event, nil
}

// Events returns the registered events in registration order.
func (m *Machine) Events() []*Event {
	result := make([]*Event, len(m.eventOrder))
	for i, name := range m.eventOrder {
		result[i] = m.events[name]
	}
	return result
}

// AddState registers a single state by name.
func (m *Machine) AddState(name string, opts ...StateOption) error {
	return m.registerStates([]*State{m.factory.NewState(name, append([]StateOption{StateIgnoreInvalid(m.ignoreInvalidTriggers)}, opts...)...)}, nil)
}

// AddStates registers states from their configurations. Nested machines
// materialize children, merged machines and remaps; flat machines reject them.
func (m *Machine) AddStates(configs ...StateConfig) error {
	if len(configs) == 0 {
		return nil
	}

	var (
		created  []*State
		buffered []TransitionConfig
		err      error
	)
	if m.nested {
		created, buffered, err = m.traverse(configs, nil, m.ignoreInvalidTriggers)
	} else {
		created, err = m.flatStates(configs)
	}
	if err != nil {
		return err
	}
	return m.registerStates(created, buffered)
}

func (m *Machine) flatStates(configs []StateConfig) ([]*State, error) {
	created := make([]*State, 0, len(configs))
	for _, cfg := range configs {
		if cfg.State != nil {
			created = append(created, cfg.State)
			continue
		}
		if len(cfg.Children) > 0 || cfg.Machine != nil || cfg.Initial != "" {
			return nil, &ConfigurationError{Message: fmt.Sprintf("state '%s' has children but the machine was not built with nesting", cfg.Name)}
		}
		created = append(created, m.newState(cfg, nil, m.ignoreInvalidTriggers))
	}
	return created, nil
}

func (m *Machine) newState(cfg StateConfig, parent *State, ignore bool) *State {
	if cfg.IgnoreInvalidTriggers != nil {
		ignore = *cfg.IgnoreInvalidTriggers
	}
	return m.factory.NewState(cfg.Name,
		StateOnEnter(cfg.OnEnter...),
		StateOnExit(cfg.OnExit...),
		StateIgnoreInvalid(ignore),
		StateInitial(cfg.Initial),
		StateParent(parent),
	)
}

// registerStates validates and adds fully materialized states, binds them to
// the models, regenerates auto transitions and adds buffered transitions.
func (m *Machine) registerStates(created []*State, buffered []TransitionConfig) error {
	seen := make(map[string]bool, len(created))
	for _, s := range created {
		name := s.Name()
		if name == "" {
			return &ConfigurationError{Message: "state name must not be empty"}
		}
		if seen[name] || m.states[name] != nil {
			return &ConfigurationError{Message: fmt.Sprintf("state '%s' cannot be added since it is already registered", name)}
		}
		seen[name] = true
	}
	for _, s := range created {
		if initial := s.Initial(); initial != "" && !seen[initial] && m.states[initial] == nil {
			return &ConfigurationError{Message: fmt.Sprintf("initial state '%s' of '%s' is not one of its children", initial, s.Name())}
		}
	}

	for _, s := range created {
		m.states[s.Name()] = s
		m.stateOrder = append(m.stateOrder, s.Name())
		for _, b := range m.models {
			b.addState(s)
		}
	}

	if m.autoTransitions {
		if err := m.addAutoTransitions(); err != nil {
			return err
		}
	}
	return m.AddTransitions(buffered...)
}

// addAutoTransitions expands to_<state> events over the current registry.
// Sources that already have the synthetic transition are skipped.
func (m *Machine) addAutoTransitions() error {
	for _, dest := range m.stateOrder {
		trigger := "to_" + dest
		var sources []string
		event := m.events[trigger]
		for _, source := range m.stateOrder {
			if event == nil || !event.HasSource(source) {
				sources = append(sources, source)
			}
		}
		if len(sources) == 0 {
			continue
		}
		if err := m.AddTransition(TransitionConfig{Trigger: trigger, Source: sources, Dest: dest}); err != nil {
			return err
		}
	}
	return nil
}

// AddTransition registers one transition per source. The source "*" expands
// to every state registered at this point; states added later are not
// covered unless the transition is added again.
func (m *Machine) AddTransition(cfg TransitionConfig) error {
	if cfg.Trigger == "" {
		return &ArgumentError{ParamName: "trigger", Message: "trigger must not be empty"}
	}

	sources := []string(cfg.Source)
	if len(sources) == 1 && sources[0] == Wildcard {
		sources = slices.Clone(m.stateOrder)
	}
	if len(sources) == 0 {
		return &ArgumentError{ParamName: "source", Message: fmt.Sprintf("transition '%s' has no source", cfg.Trigger)}
	}
	for _, source := range sources {
		if _, ok := m.states[source]; !ok {
			return &ConfigurationError{Message: fmt.Sprintf("transition '%s' references unknown source state '%s'", cfg.Trigger, source)}
		}
	}
	if _, ok := m.states[cfg.Dest]; !ok {
		return &ConfigurationError{Message: fmt.Sprintf("transition '%s' references unknown destination state '%s'", cfg.Trigger, cfg.Dest)}
	}

	event, ok := m.events[cfg.Trigger]
	if !ok {
		event = m.factory.NewEvent(cfg.Trigger, m)
		m.events[cfg.Trigger] = event
		m.eventOrder = append(m.eventOrder, cfg.Trigger)
		for _, b := range m.models {
			b.addTrigger(event)
		}
	}

	for _, source := range sources {
		t := m.factory.NewTransition(source, cfg.Dest)
		t.Conditions = append(t.Conditions, When(cfg.Conditions...)...)
		t.Conditions = append(t.Conditions, Unless(cfg.Unless...)...)
		t.Prepare = append(t.Prepare, cfg.Prepare...)
		t.Before = append(t.Before, cfg.Before...)
		t.After = append(t.After, cfg.After...)
		event.AddTransition(t)
	}
	return nil
}

// AddTransitions registers several transitions in order.
func (m *Machine) AddTransitions(configs ...TransitionConfig) error {
	for _, cfg := range configs {
		if err := m.AddTransition(cfg); err != nil {
			return err
		}
	}
	return nil
}

// OrderedConfig configures AddOrderedTransitions. Zero values select all
// states, the trigger "next_state" and a loop back to the first state.
type OrderedConfig struct {
	States              []string
	Trigger             string
	NoLoop              bool
	LoopExcludesInitial bool
}

// AddOrderedTransitions links states in sequence under one trigger.
func (m *Machine) AddOrderedTransitions(cfg OrderedConfig) error {
	states := slices.Clone(cfg.States)
	if len(states) == 0 {
		states = slices.Clone(m.stateOrder)
	}
	trigger := cfg.Trigger
	if trigger == "" {
		trigger = "next_state"
	}
	if len(states) < 2 {
		return &ConfigurationError{Message: "can't create ordered transitions on a machine with fewer than 2 states"}
	}

	for i := 1; i < len(states); i++ {
		if err := m.AddTransition(TransitionConfig{Trigger: trigger, Source: Sources{states[i-1]}, Dest: states[i]}); err != nil {
			return err
		}
	}
	if cfg.NoLoop {
		return nil
	}
	if cfg.LoopExcludesInitial {
		states = slices.DeleteFunc(states, func(s string) bool { return s == m.initial })
		if len(states) == 0 {
			return nil
		}
	}
	return m.AddTransition(TransitionConfig{Trigger: trigger, Source: Sources{states[len(states)-1]}, Dest: states[0]})
}

// Triggers returns the trigger names valid from any of the given states,
// including triggers inherited from their ancestors, in registration order.
func (m *Machine) Triggers(states ...string) ([]string, error) {
	candidates := make(map[string]bool)
	for _, name := range states {
		state, err := m.GetState(name)
		if err != nil {
			return nil, err
		}
		for s := state; s != nil; s = s.parent {
			candidates[s.Name()] = true
		}
	}

	var result []string
	for _, trigger := range m.eventOrder {
		event := m.events[trigger]
		for _, source := range event.Sources() {
			if candidates[source] {
				result = append(result, trigger)
				break
			}
		}
	}
	return result, nil
}

// resolveInitial follows initial children from name down to a state
// without one.
func (m *Machine) resolveInitial(name string) (*State, error) {
	state, err := m.GetState(name)
	if err != nil {
		return nil, err
	}
	for state.Initial() != "" {
		if state, err = m.GetState(state.Initial()); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Trigger invokes the named trigger on model.
func (m *Machine) Trigger(ctx context.Context, model any, trigger string, args ...any) (bool, error) {
	result, err := m.Dispatch(ctx, model, trigger, args...)
	return result.OK(), err
}

// Dispatch invokes the named trigger on model and reports the detailed outcome.
func (m *Machine) Dispatch(ctx context.Context, model any, trigger string, args ...any) (Result, error) {
	b, err := m.Binding(model)
	if err != nil {
		return ResultBlocked, err
	}
	event, err := m.Event(trigger)
	if err != nil {
		return ResultBlocked, err
	}
	return event.dispatch(ctx, b, args)
}

// Fire invokes the named trigger on the machine itself, which is bound as
// its own model unless the machine was built WithoutSelf or WithModels.
func (m *Machine) Fire(ctx context.Context, trigger string, args ...any) (bool, error) {
	return m.Trigger(ctx, m, trigger, args...)
}

// ToPath invokes the auto transition to the nested state at path, e.g.
// ToPath(ctx, model, "P", "x") triggers "to_P.x" when the separator is ".".
func (m *Machine) ToPath(ctx context.Context, model any, path ...string) (bool, error) {
	return m.Trigger(ctx, model, "to_"+strings.Join(path, m.separator))
}

// GoTo moves model to state directly, without an event or conditions.
func (m *Machine) GoTo(ctx context.Context, model any, state string, args ...any) error {
	b, err := m.Binding(model)
	if err != nil {
		return err
	}
	if _, err := m.GetState(state); err != nil {
		return err
	}
	_, err = b.processor().process(ctx, func(ctx context.Context) (Result, error) {
		current, err := m.GetState(b.State())
		if err != nil {
			return ResultBlocked, err
		}
		data := newEventData(ctx, current, nil, b, args)
		if _, err := m.factory.NewTransition(current.Name(), state).Execute(data); err != nil {
			return ResultBlocked, err
		}
		return ResultSucceeded, nil
	})
	return err
}

// OnEnter appends an enter callback to the named state.
func (m *Machine) OnEnter(state string, cb Callback) error {
	s, err := m.GetState(state)
	if err != nil {
		return err
	}
	return s.AddCallback(KindEnter, cb)
}

// OnExit appends an exit callback to the named state.
func (m *Machine) OnExit(state string, cb Callback) error {
	s, err := m.GetState(state)
	if err != nil {
		return err
	}
	return s.AddCallback(KindExit, cb)
}

// Before appends a before callback to every transition of the named event.
func (m *Machine) Before(event string, cb Callback) error {
	return m.addEventCallback(KindBefore, event, cb)
}

// After appends an after callback to every transition of the named event.
func (m *Machine) After(event string, cb Callback) error {
	return m.addEventCallback(KindAfter, event, cb)
}

// Prepare appends a prepare callback to every transition of the named event.
func (m *Machine) Prepare(event string, cb Callback) error {
	return m.addEventCallback(KindPrepare, event, cb)
}

func (m *Machine) addEventCallback(kind CallbackKind, event string, cb Callback) error {
	e, err := m.Event(event)
	if err != nil {
		return err
	}
	return e.AddCallback(kind, cb)
}

// AddCallbackByName registers cb through a convenience name such as
// "before_go", "after_go", "prepare_go", "on_enter_B" or "on_exit_B".
func (m *Machine) AddCallbackByName(name string, cb Callback) error {
	kind, target, ok := identifyCallback(name)
	if !ok {
		return &ArgumentError{ParamName: "name", Message: fmt.Sprintf("'%s' does not name a callback", name)}
	}
	switch kind {
	case KindEnter:
		return m.OnEnter(target, cb)
	case KindExit:
		return m.OnExit(target, cb)
	default:
		return m.addEventCallback(kind, target, cb)
	}
}

// identifyCallback splits "<kind>_<target>" names.
func identifyCallback(name string) (CallbackKind, string, bool) {
	for _, kind := range callbackKinds {
		prefix := string(kind) + "_"
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return kind, name[len(prefix):], true
		}
	}
	return "", "", false
}

// BeforeStateChange returns the machine-wide before callbacks.
func (m *Machine) BeforeStateChange() []Callback {
	return m.beforeStateChange
}

// AfterStateChange returns the machine-wide after callbacks.
func (m *Machine) AfterStateChange() []Callback {
	return m.afterStateChange
}

// String returns a string representation of the machine.
func (m *Machine) String() string {
	return fmt.Sprintf("Machine { Name = %s, States = %d, Events = %d, Models = %d }",
		m.name, len(m.stateOrder), len(m.eventOrder), len(m.models))
}
