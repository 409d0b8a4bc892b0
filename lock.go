package transitions

import (
	"context"
	"sync"
	"sync/atomic"
)

// LockScope selects how trigger processing is serialized across goroutines.
type LockScope int

const (
	// LockNone leaves serialization to the caller.
	LockNone LockScope = iota
	// LockMachine serializes all triggers of the machine.
	LockMachine
	// LockModel serializes triggers per bound model.
	LockModel
)

func (s LockScope) String() string {
	switch s {
	case LockNone:
		return "none"
	case LockMachine:
		return "machine"
	case LockModel:
		return "model"
	default:
		return "unknown"
	}
}

// MarshalText encodes the scope as its name.
func (s LockScope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a scope name.
func (s *LockScope) UnmarshalText(text []byte) error {
	scope, err := ParseLockScope(string(text))
	if err != nil {
		return err
	}
	*s = scope
	return nil
}

// ParseLockScope parses "none", "machine" or "model". The empty string is "none".
func ParseLockScope(name string) (LockScope, error) {
	switch name {
	case "", "none":
		return LockNone, nil
	case "machine":
		return LockMachine, nil
	case "model":
		return LockModel, nil
	default:
		return LockNone, &ArgumentError{ParamName: "locking", Message: "unknown lock scope '" + name + "'"}
	}
}

// lockOwner marks the call chain holding a reentrantLock.
type lockOwner struct {
	held atomic.Bool
}

type lockKey struct {
	lock *reentrantLock
}

// reentrantLock is a mutex whose ownership travels in a context.Context.
// A call made with a context derived from the owner's context proceeds
// without blocking. Contexts carrying ownership must not be handed to other
// goroutines while the lock is held.
type reentrantLock struct {
	mutex sync.Mutex
}

// acquire locks unless ctx already owns the lock. The returned release
// function must be called exactly once.
func (l *reentrantLock) acquire(ctx context.Context) (context.Context, func()) {
	if owner, ok := ctx.Value(lockKey{lock: l}).(*lockOwner); ok && owner.held.Load() {
		return ctx, func() {}
	}

	l.mutex.Lock()
	owner := &lockOwner{}
	owner.held.Store(true)
	return context.WithValue(ctx, lockKey{lock: l}, owner), func() {
		owner.held.Store(false)
		l.mutex.Unlock()
	}
}
