package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event names a kind of data change.
type Event string

const (
	ItemAdded         Event = "ItemAdded"
	ItemUpdated       Event = "ItemUpdated"
	ItemDeleted       Event = "ItemDeleted"
	InitialLoadNeeded Event = "InitialLoadNeeded"
)

// Events lists every change event.
var Events = []Event{ItemAdded, ItemUpdated, ItemDeleted, InitialLoadNeeded}

// Channel is the pub/sub channel carrying ev for collection.
func Channel(collection string, ev Event) string {
	return collection + ":" + string(ev)
}

// Message is one data change. Key and Item are set for added and updated
// items, Key alone for deletions, and Items for an initial load. Origin
// identifies the publisher that sent it.
type Message[T any] struct {
	ID     string       `json:"id"`
	Event  Event        `json:"event"`
	Origin string       `json:"origin"`
	SentAt time.Time    `json:"sent_at"`
	Key    string       `json:"key,omitempty"`
	Item   *T           `json:"item,omitempty"`
	Items  map[string]T `json:"items,omitempty"`
}

// Publisher announces changes to one collection.
type Publisher[T any] struct {
	rdb        redis.UniversalClient
	collection string
	origin     string
}

// NewPublisher returns a publisher for collection with a fresh origin id.
func NewPublisher[T any](rdb redis.UniversalClient, collection string) *Publisher[T] {
	return &Publisher[T]{rdb: rdb, collection: collection, origin: uuid.NewString()}
}

// Origin returns the id stamped on every message this publisher sends.
func (p *Publisher[T]) Origin() string { return p.origin }

// Added announces a new item stored under key.
func (p *Publisher[T]) Added(ctx context.Context, key string, item T) error {
	return p.publish(ctx, Message[T]{Event: ItemAdded, Key: key, Item: &item})
}

// Updated announces a new version of the item stored under key.
func (p *Publisher[T]) Updated(ctx context.Context, key string, item T) error {
	return p.publish(ctx, Message[T]{Event: ItemUpdated, Key: key, Item: &item})
}

// Deleted announces the removal of the item stored under key.
func (p *Publisher[T]) Deleted(ctx context.Context, key string) error {
	return p.publish(ctx, Message[T]{Event: ItemDeleted, Key: key})
}

// InitLoadNeeded hands subscribers the complete collection, keyed by master
// key, to load from scratch.
func (p *Publisher[T]) InitLoadNeeded(ctx context.Context, items map[string]T) error {
	return p.publish(ctx, Message[T]{Event: InitialLoadNeeded, Items: items})
}

func (p *Publisher[T]) publish(ctx context.Context, msg Message[T]) error {
	msg.ID = uuid.NewString()
	msg.Origin = p.origin
	msg.SentAt = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Event, err)
	}
	channel := Channel(p.collection, msg.Event)
	receivers, err := p.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	logger.Debug("published change", "channel", channel, "id", msg.ID, "receivers", receivers)
	return nil
}

// redeliveryWindow is how long a handled message id is remembered.
const redeliveryWindow = 10 * time.Minute

// ChangeSubscription receives the change messages of one collection. A
// message id seen within the redelivery window is delivered once.
type ChangeSubscription[T any] struct {
	ps     *redis.PubSub
	seen   *seenIDs
	ignore map[string]bool
}

// SubscribeChanges subscribes to the given events of collection, or to all
// of them when none are named.
func SubscribeChanges[T any](ctx context.Context, rdb redis.UniversalClient, collection string, events ...Event) (*ChangeSubscription[T], error) {
	if len(events) == 0 {
		events = Events
	}
	channels := make([]string, 0, len(events))
	for _, ev := range events {
		channels = append(channels, Channel(collection, ev))
	}
	ps := rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s changes: %w", collection, err)
	}
	return &ChangeSubscription[T]{ps: ps, seen: newSeenIDs(redeliveryWindow), ignore: make(map[string]bool)}, nil
}

// IgnoreOrigin drops messages sent by the publisher with the given origin,
// typically the local one, so a process does not replay its own changes.
// Call before Run.
func (s *ChangeSubscription[T]) IgnoreOrigin(origin string) {
	s.ignore[origin] = true
}

// Run calls fn with each decoded message until ctx is done or the
// subscription is closed. Messages that fail to decode are logged and
// skipped.
func (s *ChangeSubscription[T]) Run(ctx context.Context, fn func(Message[T])) error {
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			var msg Message[T]
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("dropping undecodable change message", "channel", raw.Channel, "err", err)
				continue
			}
			if s.ignore[msg.Origin] {
				continue
			}
			if msg.ID != "" && s.seen.check(msg.ID) {
				logger.Debug("dropping redelivered change message", "id", msg.ID)
				continue
			}
			fn(msg)
		}
	}
}

// Close ends the subscription.
func (s *ChangeSubscription[T]) Close() error {
	return s.ps.Close()
}

// Mutator is the write side of a collection store.
type Mutator[T any] interface {
	AddOrUpdate(ctx context.Context, item T) error
	Remove(ctx context.Context, keys ...string) error
	Set(ctx context.Context, items []T) error
}

// Apply replays msg onto store, so a subscriber's collection follows the
// publisher's.
func Apply[T any](ctx context.Context, store Mutator[T], msg Message[T]) error {
	switch msg.Event {
	case ItemAdded, ItemUpdated:
		if msg.Item == nil {
			return fmt.Errorf("%s message %s carries no item", msg.Event, msg.ID)
		}
		return store.AddOrUpdate(ctx, *msg.Item)
	case ItemDeleted:
		return store.Remove(ctx, msg.Key)
	case InitialLoadNeeded:
		items := make([]T, 0, len(msg.Items))
		for _, item := range msg.Items {
			items = append(items, item)
		}
		return store.Set(ctx, items)
	default:
		return fmt.Errorf("unknown change event %q", msg.Event)
	}
}
