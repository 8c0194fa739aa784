package collection

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Revenue  int    `json:"revenue,omitempty"`
}

var (
	apple   = company{ID: "A", Name: "Apple", Category: "tech"}
	boeing  = company{ID: "B", Name: "Boeing", Category: "aero"}
	cargill = company{ID: "C", Name: "Cargill", Category: "food"}
	dell    = company{ID: "D", Name: "Dell", Category: "tech"}
	ebay    = company{ID: "E", Name: "Ebay", Category: "retail"}

	allCompanies = []company{apple, boeing, cargill, dell, ebay}
)

func companyID(c company) string       { return c.ID }
func companyName(c company) string     { return c.Name }
func companyCategory(c company) string { return c.Category }

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testStore(t *testing.T, rdb redis.UniversalClient) *Store[company] {
	t.Helper()
	s, err := New(rdb, Config[company]{Name: "companies", MasterKey: companyID})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// testIndexed builds a companies store with a unique "name" index and a
// "category" lookup index, both key-only unless defs are given.
func testIndexed(t *testing.T, rdb redis.UniversalClient, defs ...Definition[company]) *IndexedStore[company] {
	t.Helper()
	if len(defs) == 0 {
		defs = []Definition[company]{
			UniqueIndex("name", companyName),
			LookupIndex("category", companyCategory),
		}
	}
	s, err := NewIndexed(rdb, Config[company]{Name: "companies", MasterKey: companyID}, defs...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func ids(items []company) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		out = append(out, c.ID)
	}
	sort.Strings(out)
	return out
}

func sorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

var ctx = context.Background()
