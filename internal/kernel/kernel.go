package kernel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"mova-bot/pkg/mova"
)

// Kernel owns the event bus and the service registry, and runs the registered
// modules and drivers as one unit.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry

	mu       sync.RWMutex
	modules  []*moduleRecord
	drivers  []mova.Driver
	commands map[string]commandRegistration

	running sync.Mutex
}

// New creates a kernel. The command catalog service is always registered.
func New(options ...Option) *Kernel {
	cfg := newConfig(options)
	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.bus, cfg.onAsyncError),
		services: NewServiceRegistry(),
		commands: make(map[string]commandRegistration),
	}
	// The registry is empty here, so this cannot collide.
	_ = k.services.Register(mova.ServiceCommandCatalog, &commandCatalog{kernel: k})

	return k
}

// EventBus exposes the bus for queue statistics.
func (k *Kernel) EventBus() *EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() mova.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	return nil
}

// RegisterDriver adds a driver. Drivers start in registration order and shut
// down in reverse.
func (k *Kernel) RegisterDriver(driver mova.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if slices.ContainsFunc(k.drivers, func(existing mova.Driver) bool { return existing.Name() == name }) {
		return fmt.Errorf("register driver %s: %w", name, mova.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

// RegisterModule validates the module spec, claims its commands, runs
// OnRegister and subscribes the declared handlers. Any failure undoes the
// steps already taken.
func (k *Kernel) RegisterModule(ctx context.Context, module mova.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	record, err := k.admitModule(name, module)
	if err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	if err := k.wireModule(ctx, record); err != nil {
		k.dropModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}
	k.cfg.logger.Debug("module registered",
		"module", name,
		"commands", len(record.spec.Commands),
		"handlers", len(record.spec.Handlers),
	)

	return nil
}

// admitModule checks the spec and service requirements, then records the
// module. Nothing needs undoing when it fails.
func (k *Kernel) admitModule(name string, module mova.Module) (*moduleRecord, error) {
	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return nil, err
	}
	record := &moduleRecord{
		name:         name,
		module:       module,
		spec:         spec,
		capabilities: spec.Capabilities(),
	}
	for _, capability := range record.capabilities {
		for _, service := range capability.RequiredServices {
			if _, err := k.services.Resolve(service); err != nil {
				return nil, fmt.Errorf("capability %s requires service %s: %w", capability.Name, service, err)
			}
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if slices.ContainsFunc(k.modules, func(existing *moduleRecord) bool { return existing.name == name }) {
		return nil, mova.ErrModuleAlreadyRegistered
	}
	k.modules = append(k.modules, record)

	return record, nil
}

func (k *Kernel) wireModule(ctx context.Context, record *moduleRecord) error {
	if err := k.registerModuleCommands(record.name, record.spec.Commands); err != nil {
		return err
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.hookTimeout)
	defer cancel()

	runtime := &moduleRuntime{record: record, services: k.services, bus: k.bus}
	if registrar, ok := record.module.(mova.ModuleRegistrar); ok {
		err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		})
		if err != nil {
			return err
		}
	}

	for idx, declared := range record.spec.Handlers {
		spec := declared.Subscription
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s-handler-%d", record.name, idx+1)
		}
		if _, err := runtime.Subscribe(hookCtx, declared.Capability.Interest, spec, declared.Handler); err != nil {
			return fmt.Errorf("handler %s for capability %s: %w", spec.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

// dropModule undoes a partial registration.
func (k *Kernel) dropModule(ctx context.Context, record *moduleRecord) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.hookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(cleanupCtx); err != nil {
		k.cfg.onAsyncError(cleanupCtx, "rollback module "+record.name, err)
	}
	k.unregisterModuleCommands(record.name)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.modules = slices.DeleteFunc(k.modules, func(existing *moduleRecord) bool { return existing == record })
}

func (k *Kernel) snapshot() ([]*moduleRecord, []mova.Driver) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules), slices.Clone(k.drivers)
}

// validateModuleSpec rejects unnamed or duplicate capabilities, nil handlers
// and duplicate or malformed commands.
func validateModuleSpec(spec mova.ModuleSpec) error {
	capabilities := make(map[string]struct{})
	for idx, capability := range spec.Capabilities() {
		if capability.Name == "" {
			return fmt.Errorf("capability %d: empty name", idx)
		}
		if _, dup := capabilities[capability.Name]; dup {
			return fmt.Errorf("capability %d: duplicate name %s", idx, capability.Name)
		}
		capabilities[capability.Name] = struct{}{}
	}
	for _, handler := range spec.Handlers {
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
	}

	commands := make(map[string]struct{}, len(spec.Commands))
	for idx, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", idx, err)
		}
		name := mova.NormalizeCommandName(command.Name)
		if _, dup := commands[name]; dup {
			return fmt.Errorf("module command %d: duplicate command /%s", idx, name)
		}
		commands[name] = struct{}{}
	}

	return nil
}
