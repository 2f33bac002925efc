package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"rayview/internal/core/model"
)

// DefaultScreen is the implicit partition used when a sender never
// names one.
const DefaultScreen = "default"

// Registry tracks the screen partition and the lock table. It is pure
// bookkeeping layered on the timeline store, which owns the single
// instance.
type Registry struct {
	mu      sync.Mutex
	screens map[string]model.Screen
	order   []string
	current string
	locks   map[string]model.Lock
}

// New creates a registry with the implicit default screen active.
func New() *Registry {
	r := &Registry{
		screens: make(map[string]model.Screen),
		locks:   make(map[string]model.Lock),
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.screens = map[string]model.Screen{
		DefaultScreen: {ID: DefaultScreen, Label: "Default", CreatedAt: time.Now()},
	}
	r.order = []string{DefaultScreen}
	r.current = DefaultScreen
}

// Resolve maps a sender-declared screen name to a screen id, creating
// the screen on first use. An empty name resolves to the currently
// active screen.
func (r *Registry) Resolve(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name string) string {
	label := strings.TrimSpace(name)
	if label == "" {
		return r.current
	}
	id := screenID(label)
	if _, ok := r.screens[id]; !ok {
		r.screens[id] = model.Screen{ID: id, Label: label, CreatedAt: time.Now()}
		r.order = append(r.order, id)
	}
	return id
}

// SwitchTo resolves a screen name and makes it the active screen for
// subsequent unscoped payloads.
func (r *Registry) SwitchTo(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.resolveLocked(name)
	r.current = id
	return id
}

// Current returns the active screen id.
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Screens enumerates known screens in creation order.
func (r *Registry) Screens() []model.Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	screens := make([]model.Screen, 0, len(r.order))
	for _, id := range r.order {
		screens = append(screens, r.screens[id])
	}
	return screens
}

// Acquire attempts to take a named lock for a holder. Acquisition
// fails fast when the lock is already held; the sender decides whether
// to retry.
func (r *Registry) Acquire(name, holder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[name]; held {
		return false
	}
	r.locks[name] = model.Lock{Name: name, Holder: holder, AcquiredAt: time.Now()}
	return true
}

// Release drops a named lock. Releasing an unheld lock is a no-op.
func (r *Registry) Release(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[name]; !held {
		return false
	}
	delete(r.locks, name)
	return true
}

// Lock returns the lock record for a name, if held.
func (r *Registry) Lock(name string) (model.Lock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[name]
	return lock, ok
}

// Active reports whether a named lock is currently held.
func (r *Registry) Active(name string) bool {
	_, ok := r.Lock(name)
	return ok
}

// Locks returns the held locks sorted by name.
func (r *Registry) Locks() []model.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	locks := make([]model.Lock, 0, len(r.locks))
	for _, lock := range r.locks {
		locks = append(locks, lock)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Name < locks[j].Name })
	return locks
}

// Reset drops every screen and lock, restoring the default screen.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = make(map[string]model.Lock)
	r.reset()
}

func screenID(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), "-"))
}
