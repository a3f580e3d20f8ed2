package driver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"mova-bot/internal/driver/telegram"
	"mova-bot/pkg/mova"

	"github.com/google/go-cmp/cmp"
)

func TestBuiltinRegistry(t *testing.T) {
	t.Parallel()

	registry, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("new builtin registry: %v", err)
	}
	if diff := cmp.Diff([]string{telegram.DriverType}, registry.Types()); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
	platform, err := registry.PlatformForType(telegram.DriverType)
	if err != nil {
		t.Fatalf("platform for %s: %v", telegram.DriverType, err)
	}
	if platform != mova.PlatformTelegram {
		t.Fatalf("platform = %s, want %s", platform, mova.PlatformTelegram)
	}
}

func TestBuiltinRegistryRejectsBadTelegramConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config string
	}{
		{name: "malformed json", config: "{not json"},
		{name: "bad publish timeout", config: `{"app_id":1,"app_hash":"h","bot_token":"t","publish_timeout":"soon"}`},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry, err := NewBuiltinRegistry()
			if err != nil {
				t.Fatalf("new builtin registry: %v", err)
			}
			_, err = registry.BuildEnabled(context.Background(), []Definition{{
				Name:    "tg-main",
				Type:    telegram.DriverType,
				Enabled: true,
				Config:  []byte(testCase.config),
			}}, slog.New(slog.DiscardHandler))
			if err == nil {
				t.Fatal("expected build error")
			}
			if errors.Is(err, errUnsupportedType) {
				t.Fatalf("error = %v, want a config error", err)
			}
		})
	}
}
