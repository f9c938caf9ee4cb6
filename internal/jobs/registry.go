package jobs

import "fmt"

// Registry maps each job type to its Handler.
type Registry struct {
	handlers map[JobType]Handler
}

// NewRegistry builds a Registry. Entries for unknown types or nil handlers are rejected.
func NewRegistry(handlers map[JobType]Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[JobType]Handler, len(handlers))}
	for t, h := range handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
		}
		if h == nil {
			return nil, fmt.Errorf("handler for %s is nil", t)
		}
		r.handlers[t] = h
	}
	return r, nil
}

// Lookup returns the handler registered for t.
func (r *Registry) Lookup(t JobType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	return h, nil
}
