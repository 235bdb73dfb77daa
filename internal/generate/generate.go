package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"memestash/internal/imagesel"
	"memestash/internal/memegen"
)

// ErrMissingTopic is returned when a generation request has no topic.
var ErrMissingTopic = errors.New("topic is required")

const (
	PathTextOnly   = "text-only"
	PathImageFirst = "image-first"

	defaultCount = 3
	maxTextCount = 10
)

// Request describes one generation run.
type Request struct {
	Topic        string `json:"topic"`
	Style        string `json:"style"`
	Format       string `json:"format"` // "text-only" (alias "text"), "image" or "both" (default)
	Count        int    `json:"count"`
	Instructions string `json:"instructions"`
}

// Item is one generated meme, already in response shape.
type Item struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"image_url"`
}

// Result summarizes a generation run. Considered counts the candidates the
// chosen path worked from, Used the items the model actually produced, Saved
// the items that made it into the store.
type Result struct {
	Items      []Item `json:"items"`
	Path       string `json:"path"`
	Considered int    `json:"considered"`
	Used       int    `json:"used"`
	Saved      int    `json:"saved"`
}

// Store is the slice of the corpus store the orchestrator needs.
type Store interface {
	InsertGeneratedMeme(topic, style, format, textContent string, imageURL *string) (int64, error)
}

// ImageSelector shortlists catalog images for a topic.
type ImageSelector interface {
	Select(ctx context.Context, topic string, count int) ([]imagesel.CatalogEntry, error)
}

// MemeGenerator produces meme texts on either path.
type MemeGenerator interface {
	GenerateTextOnly(ctx context.Context, topic, style string, count int, instructions string) ([]memegen.Item, error)
	GenerateWithImages(ctx context.Context, topic, style string, images []imagesel.CatalogEntry, instructions string) ([]memegen.Item, error)
}

// Orchestrator wires image selection, text generation and persistence into
// one generation run.
type Orchestrator struct {
	db        Store
	selector  ImageSelector
	generator MemeGenerator
}

// NewOrchestrator creates a generation orchestrator.
func NewOrchestrator(db Store, selector ImageSelector, generator MemeGenerator) *Orchestrator {
	return &Orchestrator{db: db, selector: selector, generator: generator}
}

// Run executes one generation request end to end. Persistence is best-effort:
// a failed save is logged and counted, never propagated.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrMissingTopic
	}

	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = memegen.DefaultStyle
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "both"
	}

	count := req.Count
	if count <= 0 {
		count = defaultCount
	}

	switch format {
	case "text-only", "text":
		return o.runTextOnly(ctx, topic, style, count, req.Instructions)
	case "image", "both":
		return o.runImageFirst(ctx, topic, style, format, count, req.Instructions)
	default:
		return nil, fmt.Errorf("unknown format %q", req.Format)
	}
}

func (o *Orchestrator) runTextOnly(ctx context.Context, topic, style string, count int, instructions string) (*Result, error) {
	if count > maxTextCount {
		count = maxTextCount
	}

	generated, err := o.generator.GenerateTextOnly(ctx, topic, style, count, instructions)
	if err != nil {
		return nil, err
	}

	result := &Result{Path: PathTextOnly, Considered: count}
	o.persist(result, topic, style, "text", generated)
	return result, nil
}

func (o *Orchestrator) runImageFirst(ctx context.Context, topic, style, format string, count int, instructions string) (*Result, error) {
	selected, err := o.selector.Select(ctx, topic, count)
	if err != nil {
		return nil, err
	}

	generated, err := o.generator.GenerateWithImages(ctx, topic, style, selected, instructions)
	if err != nil {
		return nil, err
	}

	result := &Result{Path: PathImageFirst, Considered: len(selected)}
	o.persist(result, topic, style, format, generated)
	return result, nil
}

// persist records each generated item, keeping every item in the result even
// when its save fails.
func (o *Orchestrator) persist(result *Result, topic, style, format string, generated []memegen.Item) {
	for _, item := range generated {
		result.Items = append(result.Items, Item{Text: item.Text, ImageURL: item.ImageURL})
		result.Used++

		if _, err := o.db.InsertGeneratedMeme(topic, style, format, item.Text, item.ImageURL); err != nil {
			log.Printf("Failed to save generated meme: %v", err)
			continue
		}
		result.Saved++
	}
}
