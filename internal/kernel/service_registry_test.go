package kernel

import (
	"errors"
	"testing"

	"mova-bot/pkg/mova"

	"github.com/google/go-cmp/cmp"
)

func TestServiceRegistry(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	if err := registry.Register("cache", "redis"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.Register("cache", "memory"); !errors.Is(err, mova.ErrServiceAlreadyRegistered) {
		t.Fatalf("duplicate register error = %v, want ErrServiceAlreadyRegistered", err)
	}
	if err := registry.Register("", "x"); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := registry.Register("nil", nil); err == nil {
		t.Fatal("expected error for nil service")
	}

	got, err := mova.ResolveAs[string](registry, "cache")
	if err != nil || got != "redis" {
		t.Fatalf("ResolveAs() = (%q, %v), want (redis, nil)", got, err)
	}
	if _, err := mova.ResolveAs[int](registry, "cache"); err == nil {
		t.Fatal("expected type assertion error")
	}
	if _, err := registry.Resolve("missing"); !errors.Is(err, mova.ErrServiceNotFound) {
		t.Fatalf("resolve error = %v, want ErrServiceNotFound", err)
	}

	if err := registry.Register("alpha", 1); err != nil {
		t.Fatalf("register alpha failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "cache"}, registry.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}
