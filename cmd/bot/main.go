// Command bot serves Ukrainian language lessons from ukr-mova.in.ua over
// Telegram.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("mova bot stopped", "error", err)
		os.Exit(1)
	}
}
