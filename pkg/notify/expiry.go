// Package notify carries cache notifications over Redis pub/sub: keyspace
// expiry events for a collection's keys, and data change messages that let
// other processes keep their copy of a collection current.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/internal/logging"
)

var logger = logging.For("notify")

// ErrClosed is returned by Run when the subscription was closed under it.
var ErrClosed = errors.New("subscription closed")

// KeyspaceEvents is the notify-keyspace-events setting expiry subscriptions
// need: keyspace channel (K) and expired events (x).
const KeyspaceEvents = "Kx"

// EnableKeyspaceEvents switches on the server's keyspace notifications for
// expired keys. Managed Redis offerings often forbid CONFIG; configure the
// server directly there.
func EnableKeyspaceEvents(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", KeyspaceEvents).Err(); err != nil {
		return fmt.Errorf("enabling keyspace events: %w", err)
	}
	return nil
}

// ExpirySubscription delivers the names of a collection's keys as they expire.
type ExpirySubscription struct {
	ps      *redis.PubSub
	prefix  string
	pattern string
}

// SubscribeExpiry subscribes to expiry events of every key under collection
// in database db. It returns once the server has confirmed the subscription.
func SubscribeExpiry(ctx context.Context, rdb redis.UniversalClient, db int, collection string) (*ExpirySubscription, error) {
	prefix := fmt.Sprintf("__keyspace@%d__:", db)
	pattern := prefix + collection + ":*"
	ps := rdb.PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	logger.Debug("subscribed to expiry events", "pattern", pattern)
	return &ExpirySubscription{ps: ps, prefix: prefix, pattern: pattern}, nil
}

// Pattern returns the channel pattern the subscription listens on.
func (s *ExpirySubscription) Pattern() string { return s.pattern }

// Run calls fn with each expired key until ctx is done or the subscription
// is closed. fn runs on the calling goroutine.
func (s *ExpirySubscription) Run(ctx context.Context, fn func(key string)) error {
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			if msg.Payload != "expired" {
				continue
			}
			key := strings.TrimPrefix(msg.Channel, s.prefix)
			logger.Debug("key expired", "key", key)
			fn(key)
		}
	}
}

// Close ends the subscription.
func (s *ExpirySubscription) Close() error {
	return s.ps.Close()
}
