package imagesel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"memestash/internal/database"
	"memestash/internal/llm"
)

const (
	// maxImages caps a selection regardless of the caller's requested count.
	maxImages = 3
	minImages = 2
	// catalogWindow is how many of the most recent collected posts are
	// eligible to contribute images.
	catalogWindow = 50
)

// ErrNoImagesAvailable means no image-bearing posts exist in the eligible
// window; the caller must not proceed to text generation.
var ErrNoImagesAvailable = errors.New("no image-bearing posts available for selection")

// ErrNoSuitableImages means the model's picks resolved to zero catalog entries.
var ErrNoSuitableImages = errors.New("no suitable images selected")

const selectionPrompt = `You are picking meme images for the topic: %s

Below is a numbered catalog of available images, described in text. Pick the %d images with the funniest potential for this topic. Choose by number only.

%s

Respond with ONLY this JSON:
{
    "selections": [
        {"number": 1, "reason": "One short sentence on why this image fits"}
    ]
}`

// CatalogEntry is one candidate image in the ephemeral per-request catalog.
// Index is 1-based, assigned in catalog-build order.
type CatalogEntry struct {
	Index        int
	URL          string
	Description  string
	OriginalText string
}

// Store is the slice of the corpus store the selector needs.
type Store interface {
	GetRecentPosts(limit int) ([]database.Post, error)
}

// Selector shortlists catalog images for a topic with one cheap-tier,
// text-only model call. Images are chosen by number reference; their pixels
// are never sent at this stage.
type Selector struct {
	db       Store
	provider llm.Provider
}

// NewSelector creates a new image selector. provider should be the cheap
// model tier.
func NewSelector(db Store, provider llm.Provider) *Selector {
	return &Selector{db: db, provider: provider}
}

// Select returns up to 3 catalog entries judged funniest for the topic, in
// the order the model chose them.
func (s *Selector) Select(ctx context.Context, topic string, count int) ([]CatalogEntry, error) {
	if count > maxImages {
		count = maxImages
	}
	if count < minImages {
		count = minImages
	}

	posts, err := s.db.GetRecentPosts(catalogWindow)
	if err != nil {
		return nil, fmt.Errorf("loading recent posts: %w", err)
	}

	catalog := buildCatalog(posts)
	if len(catalog) == 0 {
		return nil, ErrNoImagesAvailable
	}
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	prompt := fmt.Sprintf(selectionPrompt, topic, count, formatCatalog(catalog))
	responseText, err := s.provider.Generate(ctx, prompt, 512)
	if err != nil {
		return nil, fmt.Errorf("image selection model call: %w", err)
	}

	chosen := resolveSelections(responseText, catalog, count)
	if len(chosen) == 0 {
		return nil, ErrNoSuitableImages
	}

	log.Printf("Selected %d/%d images for topic %q", len(chosen), len(catalog), topic)
	return chosen, nil
}

// buildCatalog flattens every image across the posts into an indexed catalog.
// A post with multiple images contributes one entry per image, all sharing
// the post's description.
func buildCatalog(posts []database.Post) []CatalogEntry {
	var catalog []CatalogEntry
	for _, post := range posts {
		if len(post.Images) == 0 {
			continue
		}

		description := describePost(post)
		for _, imageURL := range post.Images {
			catalog = append(catalog, CatalogEntry{
				Index:        len(catalog) + 1,
				URL:          imageURL,
				Description:  description,
				OriginalText: post.Text,
			})
		}
	}
	return catalog
}

// describePost picks the best available text stand-in for an image:
// prior image analysis, else the post's own text, else a placeholder.
func describePost(post database.Post) string {
	if post.ImageAnalysis != nil && strings.TrimSpace(*post.ImageAnalysis) != "" {
		return *post.ImageAnalysis
	}
	if strings.TrimSpace(post.Text) != "" {
		return post.Text
	}
	return "Meme image (no description available)"
}

func formatCatalog(catalog []CatalogEntry) string {
	var lines []string
	for _, entry := range catalog {
		lines = append(lines, fmt.Sprintf("IMAGE #%d: %s", entry.Index, entry.Description))
	}
	return strings.Join(lines, "\n")
}

// resolveSelections maps the model's number picks back to catalog entries,
// in chosen order. Numbers that don't resolve are silently dropped.
func resolveSelections(responseText string, catalog []CatalogEntry, limit int) []CatalogEntry {
	var parsed struct {
		Selections []struct {
			Number int    `json:"number"`
			Reason string `json:"reason"`
		} `json:"selections"`
	}
	if err := llm.ParseJSONInto(responseText, &parsed); err != nil {
		log.Printf("Unparseable image selection response: %v", err)
		return nil
	}

	byIndex := make(map[int]CatalogEntry, len(catalog))
	for _, entry := range catalog {
		byIndex[entry.Index] = entry
	}

	var chosen []CatalogEntry
	seen := make(map[int]bool)
	for _, sel := range parsed.Selections {
		if len(chosen) >= limit {
			break
		}
		entry, ok := byIndex[sel.Number]
		if !ok || seen[sel.Number] {
			continue
		}
		seen[sel.Number] = true
		chosen = append(chosen, entry)
	}
	return chosen
}
