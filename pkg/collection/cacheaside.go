package collection

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the complete, authoritative set of entities from the
// system of record.
type LoadFunc[T any] func(ctx context.Context) ([]T, error)

// Cache is the part of a store the cache-aside helpers need. Both Store and
// IndexedStore implement it; with an IndexedStore a reload refills the
// indexes too.
type Cache[T any] interface {
	Name() string
	MasterKey(item T) string
	Get(ctx context.Context, key string) (T, bool, error)
	GetMany(ctx context.Context, keys []string) ([]T, error)
	GetAll(ctx context.Context) ([]T, error)
	Set(ctx context.Context, items []T) error
}

// GetOrLoad returns the entity under key. On a miss it loads everything,
// stores it, and returns the loaded entity with that key, if any.
//
// Concurrent misses each call load; wrap load with SharedLoader to collapse
// them.
func GetOrLoad[T any](ctx context.Context, c Cache[T], key string, load LoadFunc[T]) (T, bool, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil || ok {
		return v, ok, err
	}
	items, err := reload(ctx, c, load)
	if err != nil {
		var zero T
		return zero, false, err
	}
	for _, item := range items {
		if c.MasterKey(item) == key {
			return item, true, nil
		}
	}
	var zero T
	return zero, false, nil
}

// GetManyOrLoad returns the entities under keys, reloading everything when
// any of them is missing.
func GetManyOrLoad[T any](ctx context.Context, c Cache[T], keys []string, load LoadFunc[T]) ([]T, error) {
	want := dedupe(keys)
	got, err := c.GetMany(ctx, want)
	if err != nil {
		return nil, err
	}
	if len(got) == len(want) {
		return got, nil
	}
	items, err := reload(ctx, c, load)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(want))
	for _, k := range want {
		wanted[k] = struct{}{}
	}
	out := make([]T, 0, len(want))
	for _, item := range items {
		if _, ok := wanted[c.MasterKey(item)]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// GetAllOrLoad returns every cached entity, loading and storing the full set
// when the collection is empty.
func GetAllOrLoad[T any](ctx context.Context, c Cache[T], load LoadFunc[T]) ([]T, error) {
	items, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}
	return reload(ctx, c, load)
}

func reload[T any](ctx context.Context, c Cache[T], load LoadFunc[T]) ([]T, error) {
	items, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", c.Name(), err)
	}
	if err := c.Set(ctx, items); err != nil {
		return nil, err
	}
	cacheLoads.WithLabelValues(c.Name()).Inc()
	logger.Info("reloaded collection from source", "collection", c.Name(), "entities", len(items))
	return items, nil
}

// SharedLoader wraps load so that concurrent calls share one in-flight load.
// Callers that join an in-flight load get the same slice and must not
// modify it; the load runs with the context of the caller that started it.
func SharedLoader[T any](load LoadFunc[T]) LoadFunc[T] {
	var g singleflight.Group
	return func(ctx context.Context) ([]T, error) {
		v, err, shared := g.Do("load", func() (any, error) {
			return load(ctx)
		})
		if err != nil {
			return nil, err
		}
		if shared {
			logger.Debug("joined in-flight load")
		}
		items, _ := v.([]T)
		return items, nil
	}
}
