package collection

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashLayout keeps a unique index in one hash: field = indexed value,
// value = member. A second write for the same value replaces the first.
type hashLayout struct {
	key string
}

func (l hashLayout) write(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration) {
	args := make([]any, 0, 2*len(entries))
	for _, e := range entries {
		args = append(args, e.value, e.member)
	}
	pipe.HSet(ctx, l.key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, l.key, ttl)
	}
}

func (l hashLayout) remove(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration) {
	fields := make([]string, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, e.value)
	}
	pipe.HDel(ctx, l.key, fields...)
	if ttl > 0 {
		pipe.Expire(ctx, l.key, ttl)
	}
}

func (l hashLayout) read(ctx context.Context, rdb redis.UniversalClient, value string) ([]string, error) {
	m, err := rdb.HGet(ctx, l.key, value).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{m}, nil
}

func (l hashLayout) readMany(ctx context.Context, rdb redis.UniversalClient, values []string) (map[string][]string, error) {
	out := make(map[string][]string, len(values))
	if len(values) == 0 {
		return out, nil
	}
	raw, err := rdb.HMGet(ctx, l.key, values...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if _, ok := out[v]; ok {
			continue
		}
		if m, ok := raw[i].(string); ok {
			out[v] = []string{m}
		} else {
			out[v] = nil
		}
	}
	return out, nil
}

func (l hashLayout) clearKeys(context.Context, reader) ([]string, error) {
	return []string{l.key}, nil
}

func (hashLayout) keyedByMember() bool { return false }

// setLayout keeps a lookup index as one set per indexed value, plus a
// registry set at the prefix key listing those per-value sets so the index
// can be cleared without scanning the keyspace.
type setLayout struct {
	prefix string
}

func (l setLayout) write(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration) {
	var order []string
	groups := make(map[string][]any)
	for _, e := range entries {
		if _, ok := groups[e.value]; !ok {
			order = append(order, e.value)
		}
		groups[e.value] = append(groups[e.value], e.member)
	}
	setKeys := make([]any, 0, len(order))
	for _, value := range order {
		key := lookupSetKey(l.prefix, value)
		pipe.SAdd(ctx, key, groups[value]...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		setKeys = append(setKeys, key)
	}
	pipe.SAdd(ctx, l.prefix, setKeys...)
	if ttl > 0 {
		pipe.Expire(ctx, l.prefix, ttl)
	}
}

func (l setLayout) remove(ctx context.Context, pipe redis.Pipeliner, entries []entry, ttl time.Duration) {
	touched := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := lookupSetKey(l.prefix, e.value)
		pipe.SRem(ctx, key, e.member)
		if ttl > 0 && !touched[key] {
			pipe.Expire(ctx, key, ttl)
		}
		touched[key] = true
	}
}

func (l setLayout) read(ctx context.Context, rdb redis.UniversalClient, value string) ([]string, error) {
	return rdb.SMembers(ctx, lookupSetKey(l.prefix, value)).Result()
}

func (l setLayout) readMany(ctx context.Context, rdb redis.UniversalClient, values []string) (map[string][]string, error) {
	out := make(map[string][]string, len(values))
	if len(values) == 0 {
		return out, nil
	}
	cmds := make(map[string]*redis.StringSliceCmd, len(values))
	_, err := rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range values {
			if _, ok := cmds[v]; !ok {
				cmds[v] = pipe.SMembers(ctx, lookupSetKey(l.prefix, v))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for v, cmd := range cmds {
		out[v] = cmd.Val()
	}
	return out, nil
}

func (l setLayout) clearKeys(ctx context.Context, r reader) ([]string, error) {
	keys, err := r.SMembers(ctx, l.prefix).Result()
	if err != nil {
		return nil, err
	}
	return append(keys, l.prefix), nil
}

func (setLayout) keyedByMember() bool { return true }
