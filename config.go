package transitions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Wildcard as the only source of a transition expands to every state
// registered when the transition is added.
const Wildcard = "*"

// StateConfig declares a state. Exactly one of State, Machine or the plain
// fields is used: State registers a prebuilt state, Machine merges the
// states and transitions of another machine below a composite state named
// Name.
type StateConfig struct {
	Name    string     `json:"name"`
	OnEnter []Callback `json:"on_enter,omitempty"`
	OnExit  []Callback `json:"on_exit,omitempty"`

	// IgnoreInvalidTriggers overrides the policy inherited from the parent
	// or the machine when set.
	IgnoreInvalidTriggers *bool `json:"ignore_invalid_triggers,omitempty"`

	// Initial is the local name of the child entered when the state is targeted.
	Initial  string        `json:"initial,omitempty"`
	Children []StateConfig `json:"children,omitempty"`

	// Remap maps states of Machine to states of the merging machine.
	Remap map[string]string `json:"remap,omitempty"`

	Machine *Machine `json:"-"`
	State   *State   `json:"-"`
}

// States declares plain states by name.
func States(names ...string) []StateConfig {
	result := make([]StateConfig, len(names))
	for i, name := range names {
		result[i] = StateConfig{Name: name}
	}
	return result
}

// UnmarshalJSON accepts a bare state name or an object.
func (c *StateConfig) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = StateConfig{Name: name}
		return nil
	}
	type plain StateConfig
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("state must be a name or an object: %w", err)
	}
	*c = StateConfig(p)
	return nil
}

// Sources lists the source states of a transition.
type Sources []string

// UnmarshalJSON accepts a single name or a list of names.
func (s *Sources) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = Sources{name}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("source must be a name or a list of names: %w", err)
	}
	*s = names
	return nil
}

// MarshalJSON encodes a single source as a plain name.
func (s Sources) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// TransitionConfig declares the transitions of a trigger, one per source.
type TransitionConfig struct {
	Trigger    string     `json:"trigger"`
	Source     Sources    `json:"source"`
	Dest       string     `json:"dest"`
	Conditions []Callback `json:"conditions,omitempty"`
	Unless     []Callback `json:"unless,omitempty"`
	Prepare    []Callback `json:"prepare,omitempty"`
	Before     []Callback `json:"before,omitempty"`
	After      []Callback `json:"after,omitempty"`
}

// Config declares a machine. Callbacks are given by method name and resolved
// against the bound models when they fire.
type Config struct {
	Name                  string             `json:"name,omitempty"`
	Initial               string             `json:"initial,omitempty"`
	States                []StateConfig      `json:"states,omitempty"`
	Transitions           []TransitionConfig `json:"transitions,omitempty"`
	SendEvent             bool               `json:"send_event,omitempty"`
	AutoTransitions       *bool              `json:"auto_transitions,omitempty"`
	OrderedTransitions    bool               `json:"ordered_transitions,omitempty"`
	IgnoreInvalidTriggers bool               `json:"ignore_invalid_triggers,omitempty"`
	Queued                bool               `json:"queued,omitempty"`
	Locking               LockScope          `json:"locking,omitempty"`
	Nested                bool               `json:"nested,omitempty"`
	Separator             string             `json:"separator,omitempty"`
	BeforeStateChange     []Callback         `json:"before_state_change,omitempty"`
	AfterStateChange      []Callback         `json:"after_state_change,omitempty"`
}

// DefaultConfig returns a Config with the defaults of NewMachine.
func DefaultConfig() Config {
	autoTransitions := true
	return Config{
		AutoTransitions: &autoTransitions,
		Separator:       DefaultSeparator,
	}
}

// Merge applies non-zero values from source into c. Non-empty lists replace
// the lists of c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.Initial != "" {
		c.Initial = source.Initial
	}
	if len(source.States) > 0 {
		c.States = source.States
	}
	if len(source.Transitions) > 0 {
		c.Transitions = source.Transitions
	}
	if source.SendEvent {
		c.SendEvent = true
	}
	if source.AutoTransitions != nil {
		c.AutoTransitions = source.AutoTransitions
	}
	if source.OrderedTransitions {
		c.OrderedTransitions = true
	}
	if source.IgnoreInvalidTriggers {
		c.IgnoreInvalidTriggers = true
	}
	if source.Queued {
		c.Queued = true
	}
	if source.Locking != LockNone {
		c.Locking = source.Locking
	}
	if source.Nested {
		c.Nested = true
	}
	if source.Separator != "" {
		c.Separator = source.Separator
	}
	if len(source.BeforeStateChange) > 0 {
		c.BeforeStateChange = source.BeforeStateChange
	}
	if len(source.AfterStateChange) > 0 {
		c.AfterStateChange = source.AfterStateChange
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// Options translates the config into machine options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if c.Nested {
		opts = append(opts, WithNesting(c.Separator))
	}
	if c.Initial != "" {
		opts = append(opts, WithInitial(c.Initial))
	}
	if c.SendEvent {
		opts = append(opts, WithSendEvent())
	}
	if c.AutoTransitions != nil {
		opts = append(opts, WithAutoTransitions(*c.AutoTransitions))
	}
	if c.IgnoreInvalidTriggers {
		opts = append(opts, WithIgnoreInvalidTriggers(true))
	}
	if c.Queued {
		opts = append(opts, WithQueued())
	}
	if c.Locking != LockNone {
		opts = append(opts, WithLocking(c.Locking))
	}
	if len(c.BeforeStateChange) > 0 {
		opts = append(opts, WithBeforeStateChange(c.BeforeStateChange...))
	}
	if len(c.AfterStateChange) > 0 {
		opts = append(opts, WithAfterStateChange(c.AfterStateChange...))
	}
	opts = append(opts, WithStates(c.States...), WithTransitions(c.Transitions...))
	if c.OrderedTransitions {
		opts = append(opts, WithOrderedTransitions())
	}
	return opts
}

// NewFromConfig creates a machine from cfg. Options given here are applied
// after those derived from the config.
func NewFromConfig(cfg *Config, opts ...Option) (*Machine, error) {
	return NewMachine(append(cfg.Options(), opts...)...)
}

// envConfig holds the settings that can be overridden from the environment.
type envConfig struct {
	File                  string    `env:"CONFIG"`
	Name                  string    `env:"NAME"`
	Initial               string    `env:"INITIAL"`
	SendEvent             bool      `env:"SEND_EVENT"`
	AutoTransitions       string    `env:"AUTO_TRANSITIONS"`
	OrderedTransitions    bool      `env:"ORDERED_TRANSITIONS"`
	IgnoreInvalidTriggers bool      `env:"IGNORE_INVALID_TRIGGERS"`
	Queued                bool      `env:"QUEUED"`
	Locking               LockScope `env:"LOCKING"`
	Nested                bool      `env:"NESTED"`
	Separator             string    `env:"SEPARATOR"`
}

// ConfigFromEnv builds a Config from environment variables named with the
// given prefix, e.g. FSM_INITIAL and FSM_QUEUED for the prefix "FSM_".
// <prefix>CONFIG names a JSON file loaded before the overrides apply.
func ConfigFromEnv(ctx context.Context, prefix string) (*Config, error) {
	return configFrom(ctx, envconfig.PrefixLookuper(prefix, envconfig.OsLookuper()))
}

// ConfigFromDotenv is ConfigFromEnv with the variables of the given .env
// files as fallback for unset environment variables.
func ConfigFromDotenv(ctx context.Context, prefix string, filenames ...string) (*Config, error) {
	values, err := godotenv.Read(filenames...)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	lookuper := envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(values))
	return configFrom(ctx, envconfig.PrefixLookuper(prefix, lookuper))
}

func configFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var env envConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg := DefaultConfig()
	if env.File != "" {
		loaded, err := LoadConfig(env.File)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	overrides := Config{
		Name:                  env.Name,
		Initial:               env.Initial,
		SendEvent:             env.SendEvent,
		OrderedTransitions:    env.OrderedTransitions,
		IgnoreInvalidTriggers: env.IgnoreInvalidTriggers,
		Queued:                env.Queued,
		Locking:               env.Locking,
		Nested:                env.Nested,
		Separator:             env.Separator,
	}
	if env.AutoTransitions != "" {
		autoTransitions, err := strconv.ParseBool(env.AutoTransitions)
		if err != nil {
			return nil, &ArgumentError{ParamName: "AUTO_TRANSITIONS", Message: err.Error()}
		}
		overrides.AutoTransitions = &autoTransitions
	}
	cfg.Merge(&overrides)
	return &cfg, nil
}
