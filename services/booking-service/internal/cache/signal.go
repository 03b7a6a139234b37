package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const ChangeChannel = "appointments:changed"

// ChangeSignal fans appointment changes out to every booking-service replica
// over Redis pub/sub. Payloads are appointment ids; subscribers only use them
// as a nudge to re-query.
type ChangeSignal struct {
	rdb     redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewChangeSignal(rdb redis.UniversalClient, logger *slog.Logger) *ChangeSignal {
	return &ChangeSignal{rdb: rdb, channel: ChangeChannel, logger: logger}
}

func (s *ChangeSignal) Publish(ctx context.Context, appointmentID string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Publish(ctx, s.channel, appointmentID).Err()
}

// Subscribe delivers one value per change until ctx is done. Bursts coalesce:
// a subscriber that is still busy sees a single pending signal.
func (s *ChangeSignal) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	if s == nil || s.rdb == nil {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					s.logger.Warn("change subscription closed")
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
