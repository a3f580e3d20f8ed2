package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
)

// openSessionFile prepares the on-disk session store, creating its directory.
func openSessionFile(path string) (*session.FileStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve session file %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// botSession runs the gotd client and signs the bot in before handing the
// live connection to its callback.
type botSession struct {
	client      *gotdtelegram.Client
	token       string
	authTimeout time.Duration
	sessionFile string
	logger      *slog.Logger
}

func (s botSession) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("run bot session: nil callback")
	}

	return s.client.Run(ctx, func(runCtx context.Context) error {
		if err := s.signIn(runCtx); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}

		return fn(runCtx)
	})
}

// signIn reuses a stored authorization when there is one.
func (s botSession) signIn(ctx context.Context) error {
	authCtx, cancel := context.WithTimeout(ctx, s.authTimeout)
	defer cancel()

	auth := s.client.Auth()
	status, err := auth.Status(authCtx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		s.logger.InfoContext(ctx, "telegram session restored", "session_file", s.sessionFile)
		return nil
	}
	if _, err := auth.Bot(authCtx, s.token); err != nil {
		return fmt.Errorf("bot token: %w", err)
	}
	s.logger.InfoContext(ctx, "telegram bot signed in", "session_file", s.sessionFile)

	return nil
}
