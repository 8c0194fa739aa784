package collection

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// IndexedStore is a master store plus secondary indexes. Every mutation is
// a single MULTI/EXEC covering the master hash and all indexes.
type IndexedStore[T any] struct {
	*Store[T]
	indexes []*Index[T]
	byName  map[string]*Index[T]
}

// NewIndexed creates a store maintaining the given indexes. Definitions are
// validated here: an unsupported or duplicate index fails construction.
func NewIndexed[T any](rdb redis.UniversalClient, cfg Config[T], defs ...Definition[T]) (*IndexedStore[T], error) {
	master, err := New(rdb, cfg)
	if err != nil {
		return nil, err
	}
	indexes, err := newIndexes(master, defs)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Index[T], len(indexes))
	for _, ix := range indexes {
		byName[ix.name] = ix
	}
	return &IndexedStore[T]{Store: master, indexes: indexes, byName: byName}, nil
}

// Indexes returns the declared indexes in declaration order.
func (s *IndexedStore[T]) Indexes() []*Index[T] {
	out := make([]*Index[T], len(s.indexes))
	copy(out, s.indexes)
	return out
}

// Index returns the declared index called name (case-insensitive).
func (s *IndexedStore[T]) Index(name string) (*Index[T], error) {
	ix, ok := s.byName[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w: %q", s.name, ErrUnknownIndex, name)
	}
	return ix, nil
}

// Set writes items to the master hash and every index. Items already stored
// have their index entries moved as AddOrUpdate would.
func (s *IndexedStore[T]) Set(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	latest := make(map[string]T, len(items))
	for _, item := range items {
		key := s.masterKey(item)
		if key == "" {
			return fmt.Errorf("collection %q: %w", s.name, ErrEmptyMasterKey)
		}
		if _, ok := latest[key]; !ok {
			keys = append(keys, key)
		}
		latest[key] = item
	}
	return s.commit(ctx, "set", []string{s.master}, func(ctx context.Context, r reader) (func(redis.Pipeliner) error, error) {
		stored, err := s.fetch(ctx, r, keys)
		if err != nil {
			return nil, err
		}
		changes := make([]change[T], 0, len(keys))
		for _, k := range keys {
			old, hasOld := stored[k]
			changes = append(changes, change[T]{item: latest[k], old: old, hasOld: hasOld})
		}
		return func(pipe redis.Pipeliner) error {
			if err := s.queueSet(ctx, pipe, items); err != nil {
				return err
			}
			for _, ix := range s.indexes {
				if err := ix.update(ctx, pipe, changes); err != nil {
					return err
				}
			}
			return nil
		}, nil
	})
}

// AddOrUpdate writes item, moving its index entries away from the values
// the stored version had. The stored version is read from the master hash
// before the transaction opens.
func (s *IndexedStore[T]) AddOrUpdate(ctx context.Context, item T) error {
	key := s.masterKey(item)
	if key == "" {
		return fmt.Errorf("collection %q: %w", s.name, ErrEmptyMasterKey)
	}
	return s.commit(ctx, "add_or_update", []string{s.master}, func(ctx context.Context, r reader) (func(redis.Pipeliner) error, error) {
		old, hasOld, err := s.get(ctx, r, key)
		if err != nil {
			return nil, err
		}
		return func(pipe redis.Pipeliner) error {
			for _, ix := range s.indexes {
				if err := ix.AddOrUpdate(ctx, pipe, item, old, hasOld); err != nil {
					return err
				}
			}
			return s.queueSet(ctx, pipe, []T{item})
		}, nil
	})
}

// Remove deletes the entities under keys along with their index entries.
// Missing keys are ignored.
func (s *IndexedStore[T]) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.commit(ctx, "remove", []string{s.master}, func(ctx context.Context, r reader) (func(redis.Pipeliner) error, error) {
		found, err := s.fetch(ctx, r, keys)
		if err != nil {
			return nil, err
		}
		items := make([]T, 0, len(found))
		for _, k := range dedupe(keys) {
			if v, ok := found[k]; ok {
				items = append(items, v)
			}
		}
		return func(pipe redis.Pipeliner) error {
			for _, ix := range s.indexes {
				if err := ix.Remove(ctx, pipe, items); err != nil {
					return err
				}
			}
			s.queueRemove(ctx, pipe, keys)
			return nil
		}, nil
	})
}

// Clear deletes the master hash and every index structure, including the
// per-value sets of lookup indexes recorded in their registries.
func (s *IndexedStore[T]) Clear(ctx context.Context) error {
	watch := []string{s.master}
	for _, ix := range s.indexes {
		watch = append(watch, ix.key)
	}
	return s.commit(ctx, "clear", watch, func(ctx context.Context, r reader) (func(redis.Pipeliner) error, error) {
		keys := []string{s.master}
		for _, ix := range s.indexes {
			ks, err := ix.clearKeys(ctx, r)
			if err != nil {
				return nil, err
			}
			keys = append(keys, ks...)
		}
		return func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		}, nil
	})
}

// GetKeysByIndex returns the master keys filed under value in the named index.
func (s *IndexedStore[T]) GetKeysByIndex(ctx context.Context, index, value string) ([]string, error) {
	ix, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	return ix.MasterKeys(ctx, value)
}

// GetByIndex returns the entities filed under value in the named index.
func (s *IndexedStore[T]) GetByIndex(ctx context.Context, index, value string) ([]T, error) {
	ix, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	return ix.Values(ctx, value)
}

// GetKeysByIndexMany is GetKeysByIndex for several values at once.
func (s *IndexedStore[T]) GetKeysByIndexMany(ctx context.Context, index string, values []string) (map[string][]string, error) {
	ix, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	return ix.MasterKeysMany(ctx, values)
}

// GetByIndexMany is GetByIndex for several values at once.
func (s *IndexedStore[T]) GetByIndexMany(ctx context.Context, index string, values []string) (map[string][]T, error) {
	ix, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	return ix.ValuesMany(ctx, values)
}

func (s *IndexedStore[T]) lookup(index string) (*Index[T], error) {
	ix, err := s.Index(index)
	if err != nil {
		return nil, err
	}
	indexLookups.WithLabelValues(s.name, ix.name).Inc()
	return ix, nil
}
