package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/redis/go-redis/v9"

	"github.com/thierryx96/RedisCache/pkg/collection"
)

type book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func receive[V any](t *testing.T, ch <-chan V) V {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification")
	}
	var zero V
	return zero
}

func TestChannel(t *testing.T) {
	if got := Channel("books", ItemDeleted); got != "books:ItemDeleted" {
		t.Fatalf("expected books:ItemDeleted, got %q", got)
	}
}

func TestExpirySubscriptionDeliversKeys(t *testing.T) {
	mr, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := SubscribeExpiry(ctx, rdb, 0, "books")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if sub.Pattern() != "__keyspace@0__:books:*" {
		t.Fatalf("unexpected pattern %q", sub.Pattern())
	}

	keys := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, func(key string) { keys <- key }) }()

	mr.Publish("__keyspace@0__:books:master", "hset")
	mr.Publish("__keyspace@0__:movies:master", "expired")
	mr.Publish("__keyspace@0__:booksarchive:master", "expired")
	mr.Publish("__keyspace@0__:books:master", "expired")

	if got := receive(t, keys); got != "books:master" {
		t.Fatalf("expected books:master, got %q", got)
	}
	select {
	case extra := <-keys:
		t.Fatalf("unexpected extra key %q", extra)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := receive(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChangesRoundTrip(t *testing.T) {
	_, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := SubscribeChanges[book](ctx, rdb, "books")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	msgs := make(chan Message[book], 8)
	go sub.Run(ctx, func(m Message[book]) { msgs <- m })

	pub := NewPublisher[book](rdb, "books")
	dune := book{ID: "1", Title: "Dune"}
	if err := pub.Added(ctx, "1", dune); err != nil {
		t.Fatal(err)
	}
	if err := pub.Deleted(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := pub.InitLoadNeeded(ctx, map[string]book{"1": dune}); err != nil {
		t.Fatal(err)
	}

	ignoreMeta := cmpopts.IgnoreFields(Message[book]{}, "ID", "Origin", "SentAt")

	added := receive(t, msgs)
	if diff := cmp.Diff(Message[book]{Event: ItemAdded, Key: "1", Item: &dune}, added, ignoreMeta); diff != "" {
		t.Errorf("added message mismatch (-want +got):\n%s", diff)
	}
	if added.ID == "" || added.Origin != pub.Origin() {
		t.Errorf("message should carry an id and the publisher origin, got %q %q", added.ID, added.Origin)
	}

	deleted := receive(t, msgs)
	if diff := cmp.Diff(Message[book]{Event: ItemDeleted, Key: "1"}, deleted, ignoreMeta); diff != "" {
		t.Errorf("deleted message mismatch (-want +got):\n%s", diff)
	}

	load := receive(t, msgs)
	if diff := cmp.Diff(Message[book]{Event: InitialLoadNeeded, Items: map[string]book{"1": dune}}, load, ignoreMeta); diff != "" {
		t.Errorf("load message mismatch (-want +got):\n%s", diff)
	}
	if added.ID == deleted.ID {
		t.Error("message ids should be unique")
	}
}

func TestSubscribeChangesFiltersEvents(t *testing.T) {
	_, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := SubscribeChanges[book](ctx, rdb, "books", ItemDeleted)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	msgs := make(chan Message[book], 8)
	go sub.Run(ctx, func(m Message[book]) { msgs <- m })

	pub := NewPublisher[book](rdb, "books")
	if err := pub.Updated(ctx, "2", book{ID: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := pub.Deleted(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, msgs); got.Event != ItemDeleted {
		t.Fatalf("only deletions should arrive, got %s", got.Event)
	}
}

func TestChangesDropRedeliveriesAndOwnOrigin(t *testing.T) {
	_, rdb := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewPublisher[book](rdb, "books")
	remote := NewPublisher[book](rdb, "books")
	sub, err := SubscribeChanges[book](ctx, rdb, "books")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	sub.IgnoreOrigin(local.Origin())
	msgs := make(chan Message[book], 8)
	go sub.Run(ctx, func(m Message[book]) { msgs <- m })

	if err := local.Deleted(ctx, "mine"); err != nil {
		t.Fatal(err)
	}
	replay := `{"id":"fixed-id","event":"ItemDeleted","origin":"other","key":"7"}`
	for i := 0; i < 2; i++ {
		if err := rdb.Publish(ctx, Channel("books", ItemDeleted), replay).Err(); err != nil {
			t.Fatal(err)
		}
	}
	if err := rdb.Publish(ctx, Channel("books", ItemDeleted), "{garbage").Err(); err != nil {
		t.Fatal(err)
	}
	if err := remote.Deleted(ctx, "theirs"); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, msgs); got.Key != "7" {
		t.Fatalf("expected the replayed message first, got %+v", got)
	}
	if got := receive(t, msgs); got.Key != "theirs" {
		t.Fatalf("expected the remote deletion next, got %+v", got)
	}
	select {
	case extra := <-msgs:
		t.Fatalf("unexpected extra message %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyFollowsPublisher(t *testing.T) {
	_, rdb := testRedis(t)
	ctx := context.Background()
	store, err := collection.NewIndexed(rdb, collection.Config[book]{
		Name:      "books",
		MasterKey: func(b book) string { return b.ID },
	}, collection.UniqueIndex("title", func(b book) string { return b.Title }))
	if err != nil {
		t.Fatal(err)
	}

	dune := book{ID: "1", Title: "Dune"}
	emma := book{ID: "2", Title: "Emma"}
	steps := []Message[book]{
		{Event: InitialLoadNeeded, Items: map[string]book{"1": dune, "2": emma}},
		{Event: ItemUpdated, Key: "1", Item: &book{ID: "1", Title: "Dune Messiah"}},
		{Event: ItemDeleted, Key: "2"},
	}
	for _, m := range steps {
		if err := Apply[book](ctx, store, m); err != nil {
			t.Fatalf("%s: %v", m.Event, err)
		}
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]book{{ID: "1", Title: "Dune Messiah"}}, all); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}
	byTitle, err := store.GetByIndex(ctx, "title", "Dune")
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 0 {
		t.Fatalf("old title should be unindexed, got %+v", byTitle)
	}

	if err := Apply[book](ctx, store, Message[book]{Event: ItemAdded}); err == nil {
		t.Fatal("an added message without an item should fail")
	}
	if err := Apply[book](ctx, store, Message[book]{Event: "Renamed"}); err == nil {
		t.Fatal("an unknown event should fail")
	}
}
