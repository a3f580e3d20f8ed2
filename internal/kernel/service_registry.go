package kernel

import (
	"fmt"
	"slices"
	"sync"

	"mova-bot/pkg/mova"
)

// ServiceRegistry holds the singletons modules resolve at registration time,
// such as the sink dispatcher and the command catalog. Entries are never
// replaced or removed.
type ServiceRegistry struct {
	services sync.Map
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{}
}

// Register binds service to name. A second registration under the same name
// fails with mova.ErrServiceAlreadyRegistered.
func (r *ServiceRegistry) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case service == nil:
		return fmt.Errorf("register service %s: nil service", name)
	}
	if _, loaded := r.services.LoadOrStore(name, service); loaded {
		return fmt.Errorf("register service %s: %w", name, mova.ErrServiceAlreadyRegistered)
	}

	return nil
}

// Resolve implements mova.ServiceRegistry.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	if service, ok := r.services.Load(name); ok {
		return service, nil
	}

	return nil, fmt.Errorf("resolve service %q: %w", name, mova.ErrServiceNotFound)
}

// Names lists registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	var names []string
	r.services.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	slices.Sort(names)

	return names
}

var _ mova.ServiceRegistry = (*ServiceRegistry)(nil)
