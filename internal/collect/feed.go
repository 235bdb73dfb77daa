package collect

import (
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 20

// FeedEntry represents a parsed feed entry.
type FeedEntry struct {
	URL           string
	Text          string
	Images        []string
	Author        string
	PublishedDate string // YYYY-MM-DD or empty
	Source        string
	Platform      string
}

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL      string
	Name     string
	Platform string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds []FeedConfig
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig) *FeedParser {
	return &FeedParser{feeds: feeds}
}

// ParseAll parses all configured feeds and returns entries within daysBack.
func (fp *FeedParser) ParseAll(daysBack int) []FeedEntry {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []FeedEntry

	parser := gofeed.NewParser()
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := parseFeed(parser, fc, name, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		all = append(all, entries...)
		log.Printf("Parsed %d entries from %s (within %d days)", len(entries), name, daysBack)
	}

	return all
}

func parseFeed(parser *gofeed.Parser, fc FeedConfig, sourceName string, cutoff time.Time) ([]FeedEntry, error) {
	feed, err := parser.ParseURL(fc.URL)
	if err != nil {
		return nil, err
	}

	platform := fc.Platform
	if platform == "" {
		platform = "rss"
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}

		entry := parseItem(item, sourceName, platform)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.PublishedDate, cutoff) {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func parseItem(item *gofeed.Item, source, platform string) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	var publishedDate string
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		publishedDate = item.UpdatedParsed.Format("2006-01-02")
	}

	var text string
	if item.Title != "" {
		text = strings.TrimSpace(item.Title)
	}
	var body string
	if item.Content != "" {
		body = stripHTML(item.Content)
	} else if item.Description != "" {
		body = stripHTML(item.Description)
	}
	if body != "" && body != text {
		if text != "" {
			text = text + "\n" + body
		} else {
			text = body
		}
	}

	images := extractImages(item)
	if text == "" && len(images) == 0 {
		return nil
	}

	var author string
	if item.Author != nil {
		author = strings.TrimSpace(item.Author.Name)
	}

	return &FeedEntry{
		URL:           itemURL,
		Text:          text,
		Images:        images,
		Author:        author,
		PublishedDate: publishedDate,
		Source:        source,
		Platform:      platform,
	}
}

// extractImages pulls image URLs from enclosures, media extensions and the
// item-level image, deduplicating while preserving order.
func extractImages(item *gofeed.Item) []string {
	var images []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		images = append(images, u)
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			add(enc.URL)
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, e := range media[name] {
				add(e.Attrs["url"])
			}
		}
	}

	if item.Image != nil {
		add(item.Image.URL)
	}

	return images
}

func isWithinWindow(publishedDate string, cutoff time.Time) bool {
	if publishedDate == "" {
		return true // benefit of the doubt
	}
	pub, err := time.Parse("2006-01-02", publishedDate)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff)
}

func stripHTML(text string) string {
	// Simple HTML tag removal
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	// Decode common entities
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	// Normalize whitespace
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
