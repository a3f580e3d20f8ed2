// Package driver builds the configured platform drivers and routes outbound
// operations to the driver instance that owns the target conversation.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"mova-bot/pkg/mova"
)

// Definition is one entry of the "drivers" config block.
type Definition struct {
	Name    string
	Type    string
	Enabled bool
	// Config is passed to the type builder untouched.
	Config []byte
}

// Runtime is what a builder returns for one Definition.
type Runtime struct {
	Source         mova.EventSource
	Driver         mova.Driver
	SinkDispatcher mova.SinkDispatcher
}

// BuilderFunc builds one runtime. The logger is already scoped to the instance.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor registers one driver type.
type Descriptor struct {
	Type     string
	Platform mova.Platform
	Builder  BuilderFunc
}

var errUnsupportedType = errors.New("unsupported driver type")

// Registry resolves driver type tokens to builders. It is immutable.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry validates descriptors and indexes them by type.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	indexed := make(map[string]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		switch {
		case descriptor.Type == "":
			return nil, fmt.Errorf("new registry: empty descriptor type")
		case descriptor.Platform == "":
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		case descriptor.Builder == nil:
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := indexed[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}
		indexed[descriptor.Type] = descriptor
	}

	return &Registry{descriptors: indexed}, nil
}

// Types lists registered driver types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.descriptors))
}

// PlatformForType reports the platform served by driverType.
func (r *Registry) PlatformForType(driverType string) (mova.Platform, error) {
	descriptor, err := r.lookup(driverType)
	if err != nil {
		return "", err
	}

	return descriptor.Platform, nil
}

func (r *Registry) lookup(driverType string) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, fmt.Errorf("resolve driver type %s: nil registry", driverType)
	}
	descriptor, exists := r.descriptors[driverType]
	if !exists {
		return Descriptor{}, fmt.Errorf("%w %q (known: %v)", errUnsupportedType, driverType, r.Types())
	}

	return descriptor, nil
}

// BuildEnabled builds every enabled definition in config order. Disabled
// entries are skipped without validation.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var runtimes []Runtime
	names := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, duplicate := names[definition.Name]; duplicate {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		names[definition.Name] = struct{}{}

		runtime, err := r.build(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	descriptor, err := r.lookup(definition.Type)
	if err != nil {
		return Runtime{}, err
	}

	scoped := logger.With("driver", definition.Name, "driver_type", definition.Type)
	runtime, err := descriptor.Builder(ctx, definition, scoped)
	if err != nil {
		return Runtime{}, fmt.Errorf("type %s: %w", definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("type %s: builder returned nil driver", definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}
	scoped.InfoContext(ctx, "driver built", "platform", runtime.Source.Platform)

	return runtime, nil
}
