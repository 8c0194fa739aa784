package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/internal/config"
	"github.com/thierryx96/RedisCache/internal/redisconn"
	"github.com/thierryx96/RedisCache/internal/source"
	boltsource "github.com/thierryx96/RedisCache/internal/source/bolt"
	"github.com/thierryx96/RedisCache/pkg/collection"
	"github.com/thierryx96/RedisCache/pkg/notify"
)

// app wires the cache, its system of record and the change publisher.
type app struct {
	cfg     *config.Config
	out     io.Writer
	rdb     redis.UniversalClient
	src     source.Source
	table   *source.Table[company]
	cache   *collection.IndexedStore[company]
	pub     *notify.Publisher[company]
	load    collection.LoadFunc[company]
	metrics *prometheus.Registry
}

// open connects to Redis and the source database named in cfg.
func open(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	rdb, err := redisconn.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	src, err := boltsource.Open(cfg.Source.Path)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("source: %w", err)
	}
	a, err := newApp(cfg, rdb, src, out)
	if err != nil {
		src.Close()
		rdb.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg *config.Config, rdb redis.UniversalClient, src source.Source, out io.Writer) (*app, error) {
	cache, err := collection.NewIndexed(rdb, collection.Config[company]{
		Name:         cfg.Source.Bucket,
		MasterKey:    companyID,
		TTL:          cfg.Collection.TTL.Duration,
		WatchRetries: cfg.Collection.WatchRetries,
	}, companyIndexes...)
	if err != nil {
		return nil, err
	}
	table := source.NewTable(src, cfg.Source.Bucket, nil, companyID)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collection.Collectors()...)

	return &app{
		cfg:     cfg,
		out:     out,
		rdb:     rdb,
		src:     src,
		table:   table,
		cache:   cache,
		pub:     notify.NewPublisher[company](rdb, cache.Name()),
		load:    collection.SharedLoader[company](table.All),
		metrics: metrics,
	}, nil
}

func (a *app) Close() error {
	var result *multierror.Error
	if err := a.src.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing source: %w", err))
	}
	if err := a.rdb.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing redis: %w", err))
	}
	return result.ErrorOrNil()
}
