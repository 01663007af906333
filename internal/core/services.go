package core

import (
	"sync"

	"github.com/go-chi/chi/v5"
)

// Service is implemented by each gateway service. A service owns the root
// of its own listener, so the media proxy and the record bridge can be
// deployed independently or side by side.
type Service interface {
	// Name returns the identifier used in ENABLED_SERVICES ("media", "records").
	Name() string

	// CORS returns the cross-origin policy applied to every response of the service.
	CORS() CORSPolicy

	// RegisterRoutes sets up HTTP routes on the service's root router.
	RegisterRoutes(router chi.Router)
}

// CORSPolicy describes the Access-Control-* headers of a service.
// Allow-Origin is always "*".
type CORSPolicy struct {
	AllowMethods  string
	AllowHeaders  string
	ExposeHeaders string
	// MaxAge is the preflight cache lifetime in seconds; zero omits the header.
	MaxAge int
}

// Registry holds the services built at startup.
type Registry struct {
	mu       sync.RWMutex
	services []Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a service. Registering a second service with the same name
// replaces the first.
func (r *Registry) Register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.services {
		if existing.Name() == s.Name() {
			r.services[i] = s
			return
		}
	}
	r.services = append(r.services, s)
}

// Services returns the registered services in registration order.
func (r *Registry) Services() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}

// Lookup returns the service with the given name.
func (r *Registry) Lookup(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.services {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}
