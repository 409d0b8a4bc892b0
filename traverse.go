package transitions

import (
	"fmt"
	"strings"
)

// traverse materializes nested state configurations below parent. It returns
// the created states parents first, together with the transitions of merged
// machines, which can only be added once all states are registered.
func (m *Machine) traverse(configs []StateConfig, parent *State, ignore bool) ([]*State, []TransitionConfig, error) {
	var (
		created  []*State
		buffered []TransitionConfig
	)
	for _, cfg := range configs {
		switch {
		case cfg.State != nil:
			if cfg.State.separator != m.separator {
				return nil, nil, &ConfigurationError{Message: fmt.Sprintf("state '%s' uses separator '%s' but the machine uses '%s'", cfg.State.Name(), cfg.State.separator, m.separator)}
			}
			cfg.State.setParent(parent)
			created = append(created, subtree(cfg.State)...)

		case cfg.Machine != nil:
			states, transitions, err := m.merge(cfg, parent, ignore)
			if err != nil {
				return nil, nil, err
			}
			created = append(created, states...)
			buffered = append(buffered, transitions...)

		default:
			if strings.Contains(cfg.Name, m.separator) {
				return nil, nil, &ConfigurationError{Message: fmt.Sprintf("state name '%s' must not contain the separator '%s'", cfg.Name, m.separator)}
			}
			s := m.newState(cfg, parent, ignore)
			created = append(created, s)

			children, transitions, err := m.traverse(cfg.Children, s, s.ignoreInvalidTriggers)
			if err != nil {
				return nil, nil, err
			}
			created = append(created, children...)
			buffered = append(buffered, transitions...)
		}
	}
	return created, buffered, nil
}

// merge copies the state tree of another machine below a new composite
// state. The other machine is left untouched. Its states listed in Remap, at
// any level, are not copied and neither are their descendants. Transitions
// leading to them are redirected to the state of this machine they are
// mapped to, and transitions leaving them are dropped.
func (m *Machine) merge(cfg StateConfig, parent *State, ignore bool) ([]*State, []TransitionConfig, error) {
	other := cfg.Machine
	if cfg.Initial == "" {
		if _, remapped := cfg.Remap[other.initial]; !remapped && other.initial != "" {
			if root, err := other.GetState(other.initial); err == nil {
				for root.parent != nil {
					root = root.parent
				}
				cfg.Initial = root.LocalName()
			}
		}
	}

	composite := m.newState(cfg, parent, ignore)
	created := []*State{composite}

	// copies maps qualified names in the other machine to their copies.
	copies := make(map[string]*State)
	var copyTree func(src, dst *State)
	copyTree = func(src, dst *State) {
		if _, remapped := cfg.Remap[src.Name()]; remapped {
			return
		}
		c := src.clone()
		c.separator = m.separator
		c.setParent(dst)
		copies[src.Name()] = c
		created = append(created, c)
		for _, child := range src.children {
			copyTree(child, c)
		}
	}
	for _, s := range other.States() {
		if s.parent == nil {
			copyTree(s, composite)
		}
	}

	var buffered []TransitionConfig
	for _, event := range other.Events() {
		if other.autoTransitions && strings.HasPrefix(event.Name(), "to_") {
			continue
		}
		for _, source := range event.Sources() {
			src, ok := copies[source]
			if !ok {
				continue
			}
			for _, t := range event.Transitions(source) {
				var dest string
				if target, remapped := cfg.Remap[t.Dest]; remapped {
					dest = target
				} else if c, ok := copies[t.Dest]; ok {
					dest = c.Name()
				} else {
					return nil, nil, &ConfigurationError{Message: fmt.Sprintf("transition '%s' of the merged machine leads to '%s' which was not copied", event.Name(), t.Dest)}
				}
				buffered = append(buffered, rerooted(event.Name(), src.Name(), dest, t))
			}
		}
	}
	return created, buffered, nil
}

// rerooted copies t as a configuration with new source and destination.
func rerooted(trigger, source, dest string, t *Transition) TransitionConfig {
	cfg := TransitionConfig{
		Trigger: trigger,
		Source:  Sources{source},
		Dest:    dest,
		Prepare: append([]Callback(nil), t.Prepare...),
		Before:  append([]Callback(nil), t.Before...),
		After:   append([]Callback(nil), t.After...),
	}
	for _, c := range t.Conditions {
		if c.Target {
			cfg.Conditions = append(cfg.Conditions, c.Func)
		} else {
			cfg.Unless = append(cfg.Unless, c.Func)
		}
	}
	return cfg
}

// subtree returns s followed by its descendants, depth first.
func subtree(s *State) []*State {
	result := []*State{s}
	for _, child := range s.children {
		result = append(result, subtree(child)...)
	}
	return result
}
