package core

import "sync"

// Registration is a handle returned by Registry.Register. Closing it
// removes the associated callback. Close is idempotent and safe to call
// from any goroutine, including from within the callback itself.
type Registration struct {
	close func()
	once  sync.Once
}

// Close removes the registration. Safe to call more than once.
func (r *Registration) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.close != nil {
			r.close()
		}
	})
}

// Registry holds at most one callback of type T per subject key. A new
// Register call for a subject already holding a callback replaces it; the
// replaced Registration's Close becomes a no-op, matching repowerd's
// single-handler-per-subject discipline (spec Data Model §3: "replace on
// reregister").
type Registry[T any] struct {
	mu   sync.Mutex
	slot map[string]*registryEntry[T]
}

type registryEntry[T any] struct {
	gen int64
	cb  T
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{slot: make(map[string]*registryEntry[T])}
}

// Register installs cb as the handler for subject, replacing any existing
// handler for that subject. The callback is visible to Get before
// Register returns.
func (r *Registry[T]) Register(subject string, cb T) *Registration {
	r.mu.Lock()
	entry := &registryEntry[T]{cb: cb}
	if existing, ok := r.slot[subject]; ok {
		entry.gen = existing.gen + 1
	}
	r.slot[subject] = entry
	r.mu.Unlock()

	return &Registration{close: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.slot[subject]; ok && cur == entry {
			delete(r.slot, subject)
		}
	}}
}

// NewNoopRegistration returns a Registration whose Close does nothing,
// for event sources that never unregister (e.g. a fixed built-in source
// wired once at startup).
func NewNoopRegistration() *Registration {
	return &Registration{}
}

// Get returns the current handler for subject, if any.
func (r *Registry[T]) Get(subject string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.slot[subject]
	if !ok {
		var zero T
		return zero, false
	}
	return entry.cb, true
}

// Len reports how many subjects currently have a registered handler.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slot)
}
