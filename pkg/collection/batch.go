package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// prepareFunc reads the state a batch depends on and returns the function
// that queues the batch's commands. r is a WATCH transaction when optimistic
// locking is enabled, the plain client otherwise.
type prepareFunc func(ctx context.Context, r reader) (func(redis.Pipeliner) error, error)

// commit runs prepare and executes the queued commands as one MULTI/EXEC.
// With WatchRetries set and watch keys given, the read and the transaction
// run under WATCH and are retried when a watched key changes.
func (s *Store[T]) commit(ctx context.Context, op string, watch []string, prepare prepareFunc) error {
	start := time.Now()
	err := s.run(ctx, op, watch, prepare)
	observe(s.name, op, start, err)
	return err
}

func (s *Store[T]) run(ctx context.Context, op string, watch []string, prepare prepareFunc) error {
	if s.watchRetries <= 0 || len(watch) == 0 {
		apply, err := prepare(ctx, s.rdb)
		if err != nil {
			return fmt.Errorf("%s %s: %w", s.name, op, err)
		}
		cmds, err := s.rdb.TxPipelined(ctx, apply)
		if err != nil {
			return fmt.Errorf("%s %s: %w", s.name, op, err)
		}
		s.log.Debug("committed batch", "op", op, "commands", len(cmds))
		return nil
	}

	for attempt := 1; attempt <= s.watchRetries; attempt++ {
		var queued int
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			apply, err := prepare(ctx, tx)
			if err != nil {
				return err
			}
			cmds, err := tx.TxPipelined(ctx, apply)
			queued = len(cmds)
			return err
		}, watch...)
		switch {
		case err == nil:
			s.log.Debug("committed watched batch", "op", op, "commands", queued, "attempt", attempt)
			return nil
		case errors.Is(err, redis.TxFailedErr):
			s.log.Debug("watched keys changed, retrying", "op", op, "attempt", attempt)
		default:
			return fmt.Errorf("%s %s: %w", s.name, op, err)
		}
	}
	return fmt.Errorf("%s %s: %w", s.name, op, ErrConflict)
}
