package state

import "sync"

// Router tracks the current route. Listeners are called after each change,
// outside the lock.
type Router struct {
	mu        sync.RWMutex
	path      string
	listeners []func(from, to string)
}

// NewRouter starts at path.
func NewRouter(path string) *Router {
	return &Router{path: path}
}

// Path returns the current route.
func (r *Router) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// Push navigates to path. Navigating to the current path is a no-op.
func (r *Router) Push(path string) {
	r.mu.Lock()
	from := r.path
	if from == path {
		r.mu.Unlock()
		return
	}
	r.path = path
	listeners := append(([]func(string, string))(nil), r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(from, path)
	}
}

// OnChange registers fn to be called after every navigation.
func (r *Router) OnChange(fn func(from, to string)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}
