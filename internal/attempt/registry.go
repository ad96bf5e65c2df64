package attempt

import "sync"

type registryKey struct {
	sid          string
	assignmentID int
}

// Registry tracks the live controllers, one per (browser session,
// assignment). Controllers are created by the start endpoint, looked up by
// the state/answer/navigate/finish endpoints and the proctor socket, and
// removed when the attempt is done or the session ends.
type Registry struct {
	mu          sync.RWMutex
	controllers map[registryKey]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: make(map[registryKey]*Controller)}
}

// Get returns the live controller for the session/assignment pair.
func (r *Registry) Get(sid string, assignmentID int) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[registryKey{sid, assignmentID}]
	return c, ok
}

// GetOrCreate returns the existing controller or installs the one built by
// create. The second result reports whether a new controller was installed;
// the factory runs outside any lock and its result is discarded on a lost
// race.
func (r *Registry) GetOrCreate(sid string, assignmentID int, create func() *Controller) (*Controller, bool) {
	if c, ok := r.Get(sid, assignmentID); ok {
		return c, false
	}

	fresh := create()

	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{sid, assignmentID}
	if c, ok := r.controllers[key]; ok {
		return c, false
	}
	r.controllers[key] = fresh
	return fresh, true
}

// Remove drops the controller without closing it.
func (r *Registry) Remove(sid string, assignmentID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, registryKey{sid, assignmentID})
}

// CloseSession closes and removes every controller belonging to the browser
// session, for logout and forced-termination paths.
func (r *Registry) CloseSession(sid string) {
	r.mu.Lock()
	var closing []*Controller
	for k, c := range r.controllers {
		if k.sid == sid {
			closing = append(closing, c)
			delete(r.controllers, k)
		}
	}
	r.mu.Unlock()

	for _, c := range closing {
		c.Close()
	}
}
