package main

import "github.com/thierryx96/RedisCache/pkg/collection"

// company is the demo entity the CLI caches.
type company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Revenue  int64  `json:"revenue,omitempty"`
}

func companyID(c company) string { return c.ID }

var companyIndexes = []collection.Definition[company]{
	collection.UniqueIndex("name", func(c company) string { return c.Name }),
	collection.LookupIndex("category", func(c company) string { return c.Category }).WithPayload(),
}

var sampleCompanies = []company{
	{ID: "A", Name: "Apple", Category: "tech", Revenue: 383_000},
	{ID: "B", Name: "Boeing", Category: "aero", Revenue: 77_000},
	{ID: "C", Name: "Cargill", Category: "food", Revenue: 177_000},
	{ID: "D", Name: "Dell", Category: "tech", Revenue: 102_000},
	{ID: "E", Name: "Ebay", Category: "retail", Revenue: 10_000},
}
