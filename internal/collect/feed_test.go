package collect

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemBasics(t *testing.T) {
	item := &gofeed.Item{
		Link:        "https://example.com/post/1",
		Title:       "When the cat sits on the keyboard",
		Description: "<p>again &amp; again</p>",
		Author:      &gofeed.Person{Name: "memelord"},
	}

	entry := parseItem(item, "Example", "reddit")
	require.NotNil(t, entry)
	assert.Equal(t, "https://example.com/post/1", entry.URL)
	assert.Equal(t, "When the cat sits on the keyboard\nagain & again", entry.Text)
	assert.Equal(t, "memelord", entry.Author)
	assert.Equal(t, "reddit", entry.Platform)
	assert.Equal(t, "Example", entry.Source)
}

func TestParseItemFallsBackToGUID(t *testing.T) {
	item := &gofeed.Item{GUID: "https://example.com/guid/1", Title: "t"}
	entry := parseItem(item, "Example", "rss")
	require.NotNil(t, entry)
	assert.Equal(t, "https://example.com/guid/1", entry.URL)
}

func TestParseItemRejectsEmpty(t *testing.T) {
	assert.Nil(t, parseItem(&gofeed.Item{Title: "no url"}, "Example", "rss"))
	assert.Nil(t, parseItem(&gofeed.Item{Link: "https://example.com/x"}, "Example", "rss"))
}

func TestExtractImagesFromEnclosuresAndMedia(t *testing.T) {
	item := &gofeed.Item{
		Link: "https://example.com/post/2",
		Enclosures: []*gofeed.Enclosure{
			{URL: "https://img.example.com/a.jpg", Type: "image/jpeg"},
			{URL: "https://example.com/audio.mp3", Type: "audio/mpeg"},
		},
		Extensions: ext.Extensions{
			"media": {
				"content": []ext.Extension{
					{Name: "content", Attrs: map[string]string{"url": "https://img.example.com/b.png"}},
				},
				"thumbnail": []ext.Extension{
					{Name: "thumbnail", Attrs: map[string]string{"url": "https://img.example.com/a.jpg"}},
				},
			},
		},
		Image: &gofeed.Image{URL: "https://img.example.com/c.gif"},
	}

	images := extractImages(item)
	assert.Equal(t, []string{
		"https://img.example.com/a.jpg",
		"https://img.example.com/b.png",
		"https://img.example.com/c.gif",
	}, images)
}

func TestStripHTML(t *testing.T) {
	got := stripHTML(`<p>one&nbsp;two</p> <img src="x"> three`)
	assert.Equal(t, "one two three", got)
}

func TestIsWithinWindow(t *testing.T) {
	cutoff := time.Now().AddDate(0, 0, -7)
	assert.True(t, isWithinWindow("", cutoff))
	assert.True(t, isWithinWindow("not-a-date", cutoff))
	assert.True(t, isWithinWindow(time.Now().Format("2006-01-02"), cutoff))
	assert.False(t, isWithinWindow("2001-01-01", cutoff))
}

func TestExtractSourceName(t *testing.T) {
	assert.Equal(t, "Example", extractSourceName("https://www.example.com/feed.xml"))
	assert.Equal(t, "Reddit", extractSourceName("https://feeds.reddit.com/r/memes.rss"))
}
