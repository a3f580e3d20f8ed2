package mova

import (
	"errors"
	"strings"
	"testing"
)

type mapRegistry map[string]any

func (r mapRegistry) Register(name string, service any) error {
	r[name] = service
	return nil
}

func (r mapRegistry) Resolve(name string) (any, error) {
	service, ok := r[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return service, nil
}

func TestResolveAs(t *testing.T) {
	t.Parallel()

	registry := mapRegistry{
		ServiceCommandCatalog: "not a catalog",
		"greeting":            "Привіт",
	}

	greeting, err := ResolveAs[string](registry, "greeting")
	if err != nil || greeting != "Привіт" {
		t.Fatalf("ResolveAs(greeting) = %q, %v", greeting, err)
	}

	_, err = ResolveAs[CommandCatalog](registry, ServiceCommandCatalog)
	if !errors.Is(err, ErrServiceType) {
		t.Fatalf("mistyped error = %v, want ErrServiceType", err)
	}
	if !strings.Contains(err.Error(), "got string") {
		t.Fatalf("mistyped error = %v, want the actual type", err)
	}

	if _, err := ResolveAs[SinkDispatcher](registry, ServiceSinkDispatcher); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("missing error = %v, want ErrServiceNotFound", err)
	}
	if _, err := ResolveAs[SinkDispatcher](nil, ServiceSinkDispatcher); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("nil registry error = %v, want ErrServiceNotFound", err)
	}
}
