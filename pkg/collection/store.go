package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/internal/logging"
	"github.com/thierryx96/RedisCache/pkg/codec"
)

var logger = logging.For("collection")

// Config describes a collection. Name and MasterKey are required.
type Config[T any] struct {
	// Name is the root of every storage key of the collection. It is
	// lower-cased; two stores with the same name share their data.
	Name string
	// MasterKey extracts the identifier an entity is stored under.
	MasterKey func(T) string
	// TTL, when positive, is applied to every structure a write touches.
	TTL time.Duration
	// Serializer encodes entities; defaults to codec.JSON.
	Serializer codec.Serializer
	// WatchRetries enables WATCH-based optimistic locking around the
	// read-then-write operations when positive, retrying that many times.
	WatchRetries int
}

// reader is the read surface shared by clients and WATCH transactions.
type reader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	HVals(ctx context.Context, key string) *redis.StringSliceCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// Store is the master collection: one Redis hash of serialized entities
// keyed by master key.
type Store[T any] struct {
	rdb          redis.UniversalClient
	name         string
	master       string
	masterKey    Extractor[T]
	ttl          time.Duration
	serializer   codec.Serializer
	watchRetries int
	log          *slog.Logger
}

// New creates a master store without indexes.
func New[T any](rdb redis.UniversalClient, cfg Config[T]) (*Store[T], error) {
	name := normalizeName(cfg.Name)
	if name == "" {
		return nil, ErrCollectionName
	}
	if cfg.MasterKey == nil {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNoMasterKey)
	}
	ser := cfg.Serializer
	if ser == nil {
		ser = codec.JSON{}
	}
	return &Store[T]{
		rdb:          rdb,
		name:         name,
		master:       masterName(name),
		masterKey:    cfg.MasterKey,
		ttl:          cfg.TTL,
		serializer:   ser,
		watchRetries: cfg.WatchRetries,
		log:          logger.With("collection", name),
	}, nil
}

// Name returns the collection root name.
func (s *Store[T]) Name() string { return s.name }

// MasterName returns the key of the master hash.
func (s *Store[T]) MasterName() string { return s.master }

// TTL returns the configured expiry, zero when none.
func (s *Store[T]) TTL() time.Duration { return s.ttl }

// MasterKey extracts the master key of item.
func (s *Store[T]) MasterKey(item T) string { return s.masterKey(item) }

// Get returns the entity stored under key. A missing key reports false
// with a nil error.
func (s *Store[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return s.get(ctx, s.rdb, key)
}

// GetMany returns the entities stored under keys, in key order. Missing
// keys are omitted from the result.
func (s *Store[T]) GetMany(ctx context.Context, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	found, err := s.fetch(ctx, s.rdb, keys)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(found))
	for _, k := range keys {
		if v, ok := found[k]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetAll returns every entity of the collection.
func (s *Store[T]) GetAll(ctx context.Context) ([]T, error) {
	vals, err := s.rdb.HVals(ctx, s.master).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.master, err)
	}
	out := make([]T, 0, len(vals))
	for _, raw := range vals {
		v, err := s.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Set writes items into the master hash. Entities not in items are left
// alone; use Clear to empty the collection.
func (s *Store[T]) Set(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	return s.commit(ctx, "set", nil, func(context.Context, reader) (func(redis.Pipeliner) error, error) {
		return func(pipe redis.Pipeliner) error {
			return s.queueSet(ctx, pipe, items)
		}, nil
	})
}

// AddOrUpdate writes a single entity.
func (s *Store[T]) AddOrUpdate(ctx context.Context, item T) error {
	return s.Set(ctx, []T{item})
}

// Remove deletes the entities stored under keys. Missing keys are ignored.
func (s *Store[T]) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.commit(ctx, "remove", nil, func(context.Context, reader) (func(redis.Pipeliner) error, error) {
		return func(pipe redis.Pipeliner) error {
			s.queueRemove(ctx, pipe, keys)
			return nil
		}, nil
	})
}

// Clear deletes the master hash.
func (s *Store[T]) Clear(ctx context.Context) error {
	return s.commit(ctx, "clear", nil, func(context.Context, reader) (func(redis.Pipeliner) error, error) {
		return func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.master)
			return nil
		}, nil
	})
}

func (s *Store[T]) get(ctx context.Context, r reader, key string) (T, bool, error) {
	var zero T
	raw, err := r.HGet(ctx, s.master, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("reading %s[%s]: %w", s.master, key, err)
	}
	v, err := s.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// fetch reads keys with one HMGET and returns the entities found, by key.
func (s *Store[T]) fetch(ctx context.Context, r reader, keys []string) (map[string]T, error) {
	vals, err := r.HMGet(ctx, s.master, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.master, err)
	}
	found := make(map[string]T, len(vals))
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue // nil: not in the hash
		}
		v, err := s.decode(str)
		if err != nil {
			return nil, err
		}
		found[keys[i]] = v
	}
	return found, nil
}

func (s *Store[T]) queueSet(ctx context.Context, pipe redis.Pipeliner, items []T) error {
	args := make([]any, 0, 2*len(items))
	for _, item := range items {
		key := s.masterKey(item)
		if key == "" {
			return fmt.Errorf("collection %q: %w", s.name, ErrEmptyMasterKey)
		}
		data, err := s.serializer.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding %s[%s]: %w", s.master, key, err)
		}
		args = append(args, key, data)
	}
	pipe.HSet(ctx, s.master, args...)
	s.expire(ctx, pipe, s.master)
	return nil
}

func (s *Store[T]) queueRemove(ctx context.Context, pipe redis.Pipeliner, keys []string) {
	pipe.HDel(ctx, s.master, keys...)
	s.expire(ctx, pipe, s.master)
}

func (s *Store[T]) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, s.ttl)
	}
}

func (s *Store[T]) decode(raw string) (T, error) {
	v, err := codec.Decode[T](s.serializer, []byte(raw))
	if err != nil {
		return v, fmt.Errorf("decoding %s entry: %w", s.name, err)
	}
	return v, nil
}
