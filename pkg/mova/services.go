package mova

import (
	"fmt"
	"reflect"
)

// Well-known service names registered by the host before modules load.
const (
	// ServiceSinkDispatcher resolves to a SinkDispatcher.
	ServiceSinkDispatcher = "mova.sink_dispatcher"
	// ServiceCommandCatalog resolves to a CommandCatalog.
	ServiceCommandCatalog = "mova.command_catalog"
)

// ServiceRegistry is the name-keyed set of shared singletons handed to modules
// at registration time.
type ServiceRegistry interface {
	Register(name string, service any) error
	Resolve(name string) (any, error)
}

// ResolveAs looks up name and type-asserts it. Misses wrap ErrServiceNotFound;
// a value of another type wraps ErrServiceType.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var want T
	if registry == nil {
		return want, fmt.Errorf("service %q: %w (no registry)", name, ErrServiceNotFound)
	}

	service, err := registry.Resolve(name)
	if err != nil {
		return want, fmt.Errorf("service %q: %w", name, err)
	}
	if typed, ok := service.(T); ok {
		return typed, nil
	}

	return want, fmt.Errorf("service %q: %w: got %T, want %s",
		name, ErrServiceType, service, reflect.TypeFor[T]())
}
