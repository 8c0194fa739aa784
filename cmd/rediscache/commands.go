package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/thierryx96/RedisCache/internal/logging"
	"github.com/thierryx96/RedisCache/pkg/collection"
	"github.com/thierryx96/RedisCache/pkg/notify"
)

var logger = logging.For("cli")

func registerCommands(reg *Registry) {
	reg.Register("seed", Command{
		Help:    "write the sample companies to the source database",
		Handler: handleSeed,
	})

	reg.Register("warm", Command{
		Help:    "load the whole collection from the source if the cache is empty",
		Handler: handleWarm,
	})

	reg.Register("get", Command{
		Usage:   "get <id>",
		Help:    "read a company, loading from the source on a miss",
		MinArgs: 1,
		Handler: handleGet,
	})

	reg.Register("find", Command{
		Usage:   "find <index> <value>...",
		Help:    "look companies up by a secondary index (name, category)",
		MinArgs: 2,
		Handler: handleFind,
	})

	reg.Register("put", Command{
		Usage:   "put <id> <name> <category> [revenue]",
		Help:    "write a company to the source and the cache, and announce it",
		MinArgs: 3,
		Handler: handlePut,
	})

	reg.Register("rm", Command{
		Usage:   "rm <id>...",
		Help:    "delete companies from the source and the cache, and announce it",
		MinArgs: 1,
		Handler: handleRemove,
	})

	reg.Register("clear", Command{
		Help:    "drop the cached collection and all of its indexes",
		Handler: handleClear,
	})

	reg.Register("watch", Command{
		Usage:   "watch [metrics-addr]",
		Help:    "reload on expiry and apply change messages until interrupted",
		Handler: handleWatch,
	})

	reg.Register("stats", Command{
		Help:    "print the collection metrics of this process",
		Handler: handleStats,
	})

	reg.Register("help", Command{
		Help: "show this help",
		Handler: func(_ context.Context, a *app, _ []string) error {
			_, _ = fmt.Fprint(a.out, reg.HelpText())
			return nil
		},
	})
}

func printCompany(a *app, c company) {
	_, _ = fmt.Fprintf(a.out, "  %-4s %-12s %-8s %d\n", c.ID, c.Name, c.Category, c.Revenue)
}

func handleSeed(ctx context.Context, a *app, _ []string) error {
	if err := a.table.Put(sampleCompanies...); err != nil {
		return err
	}
	byKey := make(map[string]company, len(sampleCompanies))
	for _, c := range sampleCompanies {
		byKey[c.ID] = c
	}
	if err := a.pub.InitLoadNeeded(ctx, byKey); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Seeded %d companies into %s\n", len(sampleCompanies), a.table.Bucket())
	return nil
}

func handleWarm(ctx context.Context, a *app, _ []string) error {
	items, err := collection.GetAllOrLoad[company](ctx, a.cache, a.load)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Cache holds %d companies\n", len(items))
	return nil
}

func handleGet(ctx context.Context, a *app, args []string) error {
	for _, id := range args {
		c, ok, err := collection.GetOrLoad[company](ctx, a.cache, id, a.load)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintf(a.out, "%s: not found\n", id)
			continue
		}
		printCompany(a, c)
	}
	return nil
}

func handleFind(ctx context.Context, a *app, args []string) error {
	index, values := args[0], args[1:]
	byValue, err := a.cache.GetByIndexMany(ctx, index, values)
	if err != nil {
		return err
	}
	for _, v := range values {
		found := byValue[v]
		sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
		_, _ = fmt.Fprintf(a.out, "%s=%s (%d):\n", index, v, len(found))
		for _, c := range found {
			printCompany(a, c)
		}
	}
	return nil
}

func handlePut(ctx context.Context, a *app, args []string) error {
	c := company{ID: args[0], Name: args[1], Category: args[2]}
	if len(args) > 3 {
		rev, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: revenue %q is not a number", errUsage, args[3])
		}
		c.Revenue = rev
	}

	_, existed, err := a.table.Get(c.ID)
	if err != nil {
		return err
	}
	if err := a.table.Put(c); err != nil {
		return err
	}
	if err := a.cache.AddOrUpdate(ctx, c); err != nil {
		return err
	}
	if existed {
		err = a.pub.Updated(ctx, c.ID, c)
	} else {
		err = a.pub.Added(ctx, c.ID, c)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Stored %s\n", c.ID)
	return nil
}

func handleRemove(ctx context.Context, a *app, args []string) error {
	for _, id := range args {
		if err := a.table.Delete(id); err != nil {
			return err
		}
	}
	if err := a.cache.Remove(ctx, args...); err != nil {
		return err
	}
	for _, id := range args {
		if err := a.pub.Deleted(ctx, id); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(a.out, "Removed %s\n", strings.Join(args, ", "))
	return nil
}

func handleClear(ctx context.Context, a *app, _ []string) error {
	if err := a.cache.Clear(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Cleared %s\n", a.cache.Name())
	return nil
}

// handleWatch reloads the collection from the source whenever one of its keys
// expires, and replays change messages published by other processes.
func handleWatch(ctx context.Context, a *app, args []string) error {
	if err := notify.EnableKeyspaceEvents(ctx, a.rdb); err != nil {
		logger.Warn("could not enable keyspace events, relying on server configuration", "err", err)
	}
	expiry, err := notify.SubscribeExpiry(ctx, a.rdb, a.cfg.Redis.DB, a.cache.Name())
	if err != nil {
		return err
	}
	defer expiry.Close()
	changes, err := notify.SubscribeChanges[company](ctx, a.rdb, a.cache.Name())
	if err != nil {
		return err
	}
	defer changes.Close()
	changes.IgnoreOrigin(a.pub.Origin())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return expiry.Run(ctx, func(key string) {
			items, err := collection.GetAllOrLoad[company](ctx, a.cache, a.load)
			if err != nil {
				logger.Error("reload after expiry failed", "key", key, "err", err)
				return
			}
			_, _ = fmt.Fprintf(a.out, "%s expired, cache holds %d companies\n", key, len(items))
		})
	})
	g.Go(func() error {
		return changes.Run(ctx, func(msg notify.Message[company]) {
			if err := notify.Apply[company](ctx, a.cache, msg); err != nil {
				logger.Error("applying change failed", "event", msg.Event, "id", msg.ID, "err", err)
				return
			}
			_, _ = fmt.Fprintf(a.out, "applied %s %s\n", msg.Event, msg.Key)
		})
	})
	if len(args) > 0 {
		srv := &http.Server{
			Addr:    args[0],
			Handler: promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}
	_, _ = fmt.Fprintf(a.out, "Watching %s (ctrl-c to stop)\n", expiry.Pattern())

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleStats(_ context.Context, a *app, _ []string) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			_, _ = fmt.Fprintf(a.out, "%s%s %s\n", mf.GetName(), formatLabels(m.GetLabel()), formatValue(mf.GetType(), m))
		}
	}
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValue(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%gs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "?"
	}
}
