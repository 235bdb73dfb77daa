package collect

import (
	"log"

	"memestash/internal/config"
	"memestash/internal/database"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	NewPosts   int
	Refreshed  int
	Sources    map[string]int
}

// Collector pulls posts from configured RSS/Atom feeds into the store.
type Collector struct {
	db         *database.DB
	feedParser *FeedParser
	daysBack   int
}

// NewCollector creates a new feed collector.
func NewCollector(cfg *config.Config, db *database.DB, daysBack int) *Collector {
	c := &Collector{
		db:       db,
		daysBack: daysBack,
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Platform: f.Platform}
		}
		c.feedParser = NewFeedParser(feeds)
	}

	return c
}

// Collect parses all configured feeds and upserts their entries. Entries seen
// before refresh their origin fields instead of duplicating.
func (c *Collector) Collect() *Result {
	r := &Result{Sources: make(map[string]int)}

	if c.feedParser == nil {
		log.Println("No feeds configured, nothing to collect")
		return r
	}

	log.Println("Collecting from feeds...")
	entries := c.feedParser.ParseAll(c.daysBack)
	r.TotalFound = len(entries)

	for _, entry := range entries {
		_, isNew, err := c.db.UpsertPost(database.PostInput{
			URL:      entry.URL,
			Text:     entry.Text,
			Images:   entry.Images,
			Author:   entry.Author,
			Platform: entry.Platform,
		})
		if err != nil {
			log.Printf("Failed to store %s: %v", entry.URL, err)
			continue
		}
		if isNew {
			r.NewPosts++
		} else {
			r.Refreshed++
		}
		r.Sources[entry.Source]++
	}

	log.Printf("Collection complete: %d found, %d new, %d refreshed", r.TotalFound, r.NewPosts, r.Refreshed)
	return r
}
