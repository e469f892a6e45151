package player

import (
	"fmt"
	"sort"
	"sync"
)

// Emitter is a listener registry surfaces embed to implement Subscribe.
type Emitter struct {
	mu        sync.Mutex
	next      int
	listeners map[EventKind]map[int]Listener
}

// Subscribe registers fn for kind.
func (e *Emitter) Subscribe(kind EventKind, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventKind]map[int]Listener)
	}
	if e.listeners[kind] == nil {
		e.listeners[kind] = make(map[int]Listener)
	}

	e.next++
	id := e.next
	e.listeners[kind][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.listeners[kind], id)
		})
	}
}

// Emit delivers ev to every listener of its kind. Listeners are called
// outside the registry lock, in subscription order.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	byID := e.listeners[ev.Kind]
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, byID[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Listeners returns how many listeners are registered for kind.
func (e *Emitter) Listeners(kind EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[kind])
}

// TotalListeners returns the number of registered listeners across all kinds.
func (e *Emitter) TotalListeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, byID := range e.listeners {
		n += len(byID)
	}
	return n
}

// Binding tracks which owner a surface is bound to.
type Binding struct {
	mu    sync.Mutex
	owner string
}

// Bind claims the surface for owner.
func (b *Binding) Bind(owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.owner != "" && b.owner != owner {
		return fmt.Errorf("%w (bound to %s)", ErrSurfaceBusy, b.owner)
	}
	b.owner = owner
	return nil
}

// Unbind releases the surface if owner holds it.
func (b *Binding) Unbind(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.owner == owner {
		b.owner = ""
	}
}

// Owner returns the current owner, or "" if unbound.
func (b *Binding) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}
