package telegram

import (
	"context"
	"fmt"
)

type gotdSession interface {
	// Run connects, authenticates and calls fn while the session is up.
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

type gotdFeed interface {
	Updates() <-chan gotdUpdate
}

type gotdMapper interface {
	Map(ctx context.Context, raw gotdUpdate) (Update, bool, error)
}

// botSource is the UpdateSource backed by a gotd bot session.
type botSource struct {
	session gotdSession
	feed    gotdFeed
	mapper  gotdMapper
}

func newBotSource(session gotdSession, feed gotdFeed, mapper gotdMapper) (*botSource, error) {
	switch {
	case session == nil:
		return nil, fmt.Errorf("new bot source: nil session")
	case feed == nil:
		return nil, fmt.Errorf("new bot source: nil update feed")
	case mapper == nil:
		return nil, fmt.Errorf("new bot source: nil mapper")
	}

	return &botSource{session: session, feed: feed, mapper: mapper}, nil
}

// Consume keeps the session up and hands every accepted update to handler.
// A mapper failure or panic ends the session; handler errors do too.
func (s *botSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume bot updates: nil handler")
	}

	err := s.session.Run(ctx, func(sessionCtx context.Context) error {
		updates := s.feed.Updates()
		for {
			var raw gotdUpdate
			select {
			case <-sessionCtx.Done():
				return nil
			case next, open := <-updates:
				if !open {
					return nil
				}
				raw = next
			}

			update, ok, err := s.mapSafely(sessionCtx, raw)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := handler(sessionCtx, update); err != nil {
				return fmt.Errorf("handle %s update: %w", update.Type, err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consume bot updates: %w", err)
	}

	return nil
}

func (s *botSource) mapSafely(ctx context.Context, raw gotdUpdate) (update Update, ok bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("map %s: panic: %v", raw.origin, recovered)
		}
	}()

	update, ok, err = s.mapper.Map(ctx, raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map %s: %w", raw.origin, err)
	}

	return update, ok, nil
}
