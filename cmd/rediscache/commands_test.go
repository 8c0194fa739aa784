package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/internal/config"
	boltsource "github.com/thierryx96/RedisCache/internal/source/bolt"
)

type harness struct {
	mr  *miniredis.Miniredis
	app *app
	reg *Registry
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	src, err := boltsource.Open(filepath.Join(t.TempDir(), "source.db"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Redis.Addr = mr.Addr()

	out := &bytes.Buffer{}
	a, err := newApp(cfg, rdb, src, out)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	reg := NewRegistry()
	registerCommands(reg)
	return &harness{mr: mr, app: a, reg: reg, out: out}
}

// exec runs a command line and returns what it printed.
func (h *harness) exec(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	if err := h.reg.Dispatch(context.Background(), h.app, strings.Fields(line)); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return h.out.String()
}

func TestRegistryHelpText(t *testing.T) {
	reg := NewRegistry()
	registerCommands(reg)
	help := reg.HelpText()
	for _, want := range []string{"seed", "warm", "get <id>", "find <index> <value>...", "put <id>", "rm <id>...", "clear", "watch", "stats", "help"} {
		if !strings.Contains(help, want) {
			t.Errorf("help should list %q:\n%s", want, help)
		}
	}
	if strings.Index(help, "seed") > strings.Index(help, "warm") {
		t.Error("help should keep registration order")
	}
}

func TestRegisterNilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil handler")
		}
	}()
	NewRegistry().Register("boom", Command{})
}

func TestDispatchErrors(t *testing.T) {
	h := newHarness(t)
	if err := h.reg.Dispatch(context.Background(), h.app, []string{"nope"}); err == nil {
		t.Fatal("unknown command should fail")
	}
	if err := h.reg.Dispatch(context.Background(), h.app, []string{"get"}); !errors.Is(err, errUsage) {
		t.Fatalf("missing args should be a usage error, got %v", err)
	}
	if err := h.reg.Dispatch(context.Background(), h.app, []string{"put", "Z", "Zeta", "misc", "lots"}); !errors.Is(err, errUsage) {
		t.Fatalf("bad revenue should be a usage error, got %v", err)
	}
}

func TestSeedWarmAndLookups(t *testing.T) {
	h := newHarness(t)

	if out := h.exec(t, "seed"); !strings.Contains(out, "Seeded 5 companies") {
		t.Fatalf("unexpected seed output %q", out)
	}
	if h.mr.Exists("companies:master") {
		t.Fatal("seeding the source should not touch the cache")
	}

	if out := h.exec(t, "warm"); !strings.Contains(out, "holds 5 companies") {
		t.Fatalf("unexpected warm output %q", out)
	}
	if !h.mr.Exists("companies:master") || !h.mr.Exists("companies:name") {
		t.Fatal("warm should fill the master hash and indexes")
	}

	out := h.exec(t, "find category tech food")
	for _, want := range []string{"category=tech (2)", "Apple", "Dell", "category=food (1)", "Cargill"} {
		if !strings.Contains(out, want) {
			t.Errorf("find output missing %q:\n%s", want, out)
		}
	}

	if out := h.exec(t, "get B"); !strings.Contains(out, "Boeing") {
		t.Fatalf("unexpected get output %q", out)
	}
}

func TestGetLoadsOnMiss(t *testing.T) {
	h := newHarness(t)
	h.exec(t, "seed")

	if out := h.exec(t, "get E Z"); !strings.Contains(out, "Ebay") || !strings.Contains(out, "Z: not found") {
		t.Fatalf("unexpected get output %q", out)
	}
	if !h.mr.Exists("companies:master") {
		t.Fatal("a miss should load the collection into the cache")
	}
}

func TestPutRemoveClear(t *testing.T) {
	h := newHarness(t)
	h.exec(t, "seed")
	h.exec(t, "warm")

	h.exec(t, "put F Ford auto 176000")
	if out := h.exec(t, "find name Ford"); !strings.Contains(out, "176000") {
		t.Fatalf("new company should be indexed: %q", out)
	}
	if _, ok, _ := h.app.table.Get("F"); !ok {
		t.Fatal("put should write through to the source")
	}

	h.exec(t, "put A Apple food")
	if out := h.exec(t, "find category tech"); strings.Contains(out, "Apple") {
		t.Fatalf("Apple should have moved out of tech: %q", out)
	}

	h.exec(t, "rm F A")
	if out := h.exec(t, "find name Ford Apple"); !strings.Contains(out, "name=Ford (0)") || !strings.Contains(out, "name=Apple (0)") {
		t.Fatalf("removed companies should be unindexed: %q", out)
	}
	if _, ok, _ := h.app.table.Get("A"); ok {
		t.Fatal("rm should delete from the source")
	}

	h.exec(t, "clear")
	if keys := h.mr.Keys(); len(keys) != 0 {
		t.Fatalf("clear should drop every cache key, got %v", keys)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.exec(t, "seed")
	h.exec(t, "warm")
	h.exec(t, "find name Apple")

	out := h.exec(t, "stats")
	for _, want := range []string{
		`rediscache_collection_operations_total{collection="companies",op="set",result="ok"}`,
		`rediscache_collection_index_lookups_total{collection="companies",index="name"}`,
		`rediscache_collection_cache_loads_total{collection="companies"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %s:\n%s", want, out)
		}
	}
}
