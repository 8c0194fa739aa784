package collection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/pkg/codec"
)

// entry is one index record: the indexed value and the member stored for it
// (a master key or a serialized entity).
type entry struct {
	value  string
	member string
}

// encoder turns entities into index members and back.
type encoder[T any] interface {
	member(item T) (string, error)
	// keys maps members to master keys.
	keys(members []string) ([]string, error)
	// resolve maps members to the entities they stand for. Members whose
	// entity no longer exists are absent from the result.
	resolve(ctx context.Context, members []string) (map[string]T, error)
}

// layout stores entries in Redis.
type layout interface {
	write(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration)
	remove(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration)
	read(ctx context.Context, rdb redis.UniversalClient, value string) ([]string, error)
	readMany(ctx context.Context, rdb redis.UniversalClient, values []string) (map[string][]string, error)
	// clearKeys lists every key holding the index's entries.
	clearKeys(ctx context.Context, r reader) ([]string, error)
	// keyedByMember reports whether the member is part of an entry's identity,
	// so a changed member under an unchanged value is a different entry.
	keyedByMember() bool
}

// Index is one secondary index of a collection. It pairs a writer, which
// only queues commands onto a caller's transaction, with a reader.
type Index[T any] struct {
	def        Definition[T]
	name       string
	key        string
	collection string
	ttl        time.Duration
	rdb        redis.UniversalClient
	enc        encoder[T]
	lay        layout
	log        *slog.Logger
}

// NewIndex builds the index described by def on top of master, picking the
// variant from the definition's cardinality and encoding.
func NewIndex[T any](master *Store[T], def Definition[T]) (*Index[T], error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	ix := &Index[T]{
		def:        def,
		name:       normalizeName(def.Name),
		key:        indexKey(master.name, def.Name),
		collection: master.name,
		ttl:        master.ttl,
		rdb:        master.rdb,
		log:        master.log.With("index", normalizeName(def.Name)),
	}
	switch def.Encoding {
	case KeyOnly:
		ix.enc = keyEncoder[T]{master: master}
	case Payload:
		ix.enc = payloadEncoder[T]{serializer: master.serializer, masterKey: master.masterKey}
	}
	switch def.Cardinality {
	case Unique:
		ix.lay = hashLayout{key: ix.key}
	case Multi:
		ix.lay = setLayout{prefix: ix.key}
	}
	return ix, nil
}

func newIndexes[T any](master *Store[T], defs []Definition[T]) ([]*Index[T], error) {
	seen := make(map[string]bool, len(defs))
	out := make([]*Index[T], 0, len(defs))
	for _, def := range defs {
		ix, err := NewIndex(master, def)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", master.name, err)
		}
		if seen[ix.name] {
			return nil, fmt.Errorf("collection %q: index %q: %w", master.name, def.Name, ErrDuplicateIndex)
		}
		seen[ix.name] = true
		out = append(out, ix)
	}
	return out, nil
}

// Name returns the lower-cased index name.
func (ix *Index[T]) Name() string { return ix.name }

// Key returns the index hash (unique) or registry set (lookup) key.
func (ix *Index[T]) Key() string { return ix.key }

// Unique reports whether the index maps a value to a single entity.
func (ix *Index[T]) Unique() bool { return ix.def.Cardinality == Unique }

// Payload reports whether entries hold serialized entities.
func (ix *Index[T]) Payload() bool { return ix.def.Encoding == Payload }

// Extract returns the indexed value of item, "" when it is not indexed.
func (ix *Index[T]) Extract(item T) string { return ix.def.Extract(item) }

// Set queues the entries of items.
func (ix *Index[T]) Set(ctx context.Context, pipe redis.Pipeliner, items []T) error {
	entries, err := ix.entries(items)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		ix.lay.write(ctx, pipe, entries, ix.ttl)
	}
	return nil
}

// Remove queues the removal of the entries items currently have.
func (ix *Index[T]) Remove(ctx context.Context, pipe redis.Pipeliner, items []T) error {
	entries, err := ix.entries(items)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		ix.lay.remove(ctx, pipe, entries, ix.ttl)
	}
	return nil
}

// change pairs an entity being written with the stored version it replaces.
type change[T any] struct {
	item   T
	old    T
	hasOld bool
}

// AddOrUpdate queues the commands moving an entity from its old entry to its
// new one. The old entry is dropped when the indexed value changed; writing
// an unchanged entry again is left to the write step alone.
func (ix *Index[T]) AddOrUpdate(ctx context.Context, pipe redis.Pipeliner, newItem, oldItem T, hasOld bool) error {
	return ix.update(ctx, pipe, []change[T]{{item: newItem, old: oldItem, hasOld: hasOld}})
}

// update is AddOrUpdate for a batch. All stale entries are removed before any
// new entry is written, so entities swapping unique values keep both.
func (ix *Index[T]) update(ctx context.Context, pipe redis.Pipeliner, changes []change[T]) error {
	var stale, fresh []entry
	for _, c := range changes {
		next := entry{value: ix.def.Extract(c.item)}
		if next.value != "" {
			m, err := ix.enc.member(c.item)
			if err != nil {
				return err
			}
			next.member = m
			fresh = append(fresh, next)
		}
		if !c.hasOld {
			continue
		}
		prev := ix.def.Extract(c.old)
		if prev == "" {
			continue
		}
		m, err := ix.enc.member(c.old)
		if err != nil {
			return err
		}
		if prev != next.value || (ix.lay.keyedByMember() && m != next.member) {
			stale = append(stale, entry{value: prev, member: m})
		}
	}
	if len(stale) > 0 {
		ix.lay.remove(ctx, pipe, stale, ix.ttl)
	}
	if len(fresh) > 0 {
		ix.lay.write(ctx, pipe, fresh, ix.ttl)
	}
	return nil
}

// clearKeys lists the keys Clear must delete. Unique indexes own a single
// hash; lookup indexes read their registry of per-value sets.
func (ix *Index[T]) clearKeys(ctx context.Context, r reader) ([]string, error) {
	keys, err := ix.lay.clearKeys(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", ix.name, err)
	}
	return keys, nil
}

// MasterKeys returns the master keys filed under value.
func (ix *Index[T]) MasterKeys(ctx context.Context, value string) ([]string, error) {
	members, err := ix.lay.read(ctx, ix.rdb, value)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", ix.name, err)
	}
	return ix.enc.keys(members)
}

// MasterKeysMany returns the master keys for each of values. Every requested
// value is present in the result, possibly with no keys.
func (ix *Index[T]) MasterKeysMany(ctx context.Context, values []string) (map[string][]string, error) {
	groups, err := ix.lay.readMany(ctx, ix.rdb, values)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", ix.name, err)
	}
	out := make(map[string][]string, len(groups))
	for value, members := range groups {
		keys, err := ix.enc.keys(members)
		if err != nil {
			return nil, err
		}
		out[value] = keys
	}
	return out, nil
}

// Values returns the entities filed under value. Entries pointing at
// entities that are gone from the master hash are skipped.
func (ix *Index[T]) Values(ctx context.Context, value string) ([]T, error) {
	members, err := ix.lay.read(ctx, ix.rdb, value)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", ix.name, err)
	}
	found, err := ix.enc.resolve(ctx, members)
	if err != nil {
		return nil, err
	}
	return ix.collect(members, found), nil
}

// ValuesMany returns the entities for each of values, resolving all of them
// with a single round trip to the master hash for key-only indexes.
func (ix *Index[T]) ValuesMany(ctx context.Context, values []string) (map[string][]T, error) {
	groups, err := ix.lay.readMany(ctx, ix.rdb, values)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", ix.name, err)
	}
	var all []string
	for _, members := range groups {
		all = append(all, members...)
	}
	found, err := ix.enc.resolve(ctx, all)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]T, len(groups))
	for value, members := range groups {
		out[value] = ix.collect(members, found)
	}
	return out, nil
}

func (ix *Index[T]) collect(members []string, found map[string]T) []T {
	out := make([]T, 0, len(members))
	var stale int
	for _, m := range members {
		v, ok := found[m]
		if !ok {
			stale++
			continue
		}
		out = append(out, v)
	}
	if stale > 0 {
		staleIndexEntries.WithLabelValues(ix.collection, ix.name).Add(float64(stale))
		ix.log.Warn("index entries point at missing master entries", "stale", stale)
	}
	return out
}

func (ix *Index[T]) entries(items []T) ([]entry, error) {
	out := make([]entry, 0, len(items))
	for _, item := range items {
		value := ix.def.Extract(item)
		if value == "" {
			continue
		}
		m, err := ix.enc.member(item)
		if err != nil {
			return nil, err
		}
		out = append(out, entry{value: value, member: m})
	}
	return out, nil
}

// keyEncoder stores master keys and materializes entities from the master hash.
type keyEncoder[T any] struct {
	master *Store[T]
}

func (e keyEncoder[T]) member(item T) (string, error) {
	key := e.master.masterKey(item)
	if key == "" {
		return "", fmt.Errorf("collection %q: %w", e.master.name, ErrEmptyMasterKey)
	}
	return key, nil
}

func (e keyEncoder[T]) keys(members []string) ([]string, error) {
	return members, nil
}

func (e keyEncoder[T]) resolve(ctx context.Context, members []string) (map[string]T, error) {
	if len(members) == 0 {
		return nil, nil
	}
	return e.master.fetch(ctx, e.master.rdb, dedupe(members))
}

// payloadEncoder stores serialized entities; the master key is recovered by
// running the master extractor on the decoded entity.
type payloadEncoder[T any] struct {
	serializer codec.Serializer
	masterKey  Extractor[T]
}

func (e payloadEncoder[T]) member(item T) (string, error) {
	data, err := e.serializer.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encoding index payload: %w", err)
	}
	return string(data), nil
}

func (e payloadEncoder[T]) keys(members []string) ([]string, error) {
	out := make([]string, 0, len(members))
	for _, m := range members {
		v, err := codec.Decode[T](e.serializer, []byte(m))
		if err != nil {
			return nil, fmt.Errorf("decoding index payload: %w", err)
		}
		out = append(out, e.masterKey(v))
	}
	return out, nil
}

func (e payloadEncoder[T]) resolve(_ context.Context, members []string) (map[string]T, error) {
	out := make(map[string]T, len(members))
	for _, m := range members {
		if _, ok := out[m]; ok {
			continue
		}
		v, err := codec.Decode[T](e.serializer, []byte(m))
		if err != nil {
			return nil, fmt.Errorf("decoding index payload: %w", err)
		}
		out[m] = v
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
