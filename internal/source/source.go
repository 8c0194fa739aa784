// Package source is the system of record behind the cache: the place
// cache-aside loads read the authoritative entities from.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/thierryx96/RedisCache/pkg/codec"
)

// ErrEmptyKey is returned when an entity has no key to be stored under.
var ErrEmptyKey = errors.New("entity has an empty key")

// Source is a bucketed key-value store. The bbolt implementation lives in
// source/bolt; anything offering the same operations can stand in for it.
type Source interface {
	Get(bucket, key string) ([]byte, bool, error)
	// Put writes all entries in one transaction.
	Put(bucket string, entries map[string][]byte) error
	Delete(bucket, key string) error
	ForEach(bucket string, fn func(key string, value []byte) error) error
	Close() error
}

// Table stores entities of one type in one bucket of a Source.
type Table[T any] struct {
	src        Source
	bucket     string
	serializer codec.Serializer
	key        func(T) string
}

// NewTable binds entities keyed by key to bucket. A nil serializer means
// codec.JSON.
func NewTable[T any](src Source, bucket string, serializer codec.Serializer, key func(T) string) *Table[T] {
	if serializer == nil {
		serializer = codec.JSON{}
	}
	return &Table[T]{src: src, bucket: bucket, serializer: serializer, key: key}
}

// Bucket returns the bucket name.
func (t *Table[T]) Bucket() string { return t.bucket }

// Put stores items, replacing entities with the same key.
func (t *Table[T]) Put(items ...T) error {
	entries := make(map[string][]byte, len(items))
	for _, item := range items {
		k := t.key(item)
		if k == "" {
			return fmt.Errorf("%s: %w", t.bucket, ErrEmptyKey)
		}
		data, err := t.serializer.Marshal(item)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", t.bucket, k, err)
		}
		entries[k] = data
	}
	if len(entries) == 0 {
		return nil
	}
	return t.src.Put(t.bucket, entries)
}

// Get returns the entity under key.
func (t *Table[T]) Get(key string) (T, bool, error) {
	var zero T
	data, ok, err := t.src.Get(t.bucket, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := codec.Decode[T](t.serializer, data)
	if err != nil {
		return zero, false, fmt.Errorf("%s[%s]: %w", t.bucket, key, err)
	}
	return v, true, nil
}

// Delete removes the entity under key. Missing keys are ignored.
func (t *Table[T]) Delete(key string) error {
	return t.src.Delete(t.bucket, key)
}

// All returns every entity in the bucket, in key order. Its signature
// matches collection.LoadFunc so a table can feed cache-aside loads
// directly.
func (t *Table[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	err := t.src.ForEach(t.bucket, func(key string, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := codec.Decode[T](t.serializer, value)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", t.bucket, key, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
