package memegen

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"memestash/internal/database"
	"memestash/internal/imagesel"
	"memestash/internal/llm"
)

// blockSeparator delimits memes in the model's free-text response.
const blockSeparator = "---"

// DefaultStyle is used when the requested style is not recognized.
const DefaultStyle = "ironic"

// styleHints maps each supported style keyword to a short directive phrase.
// Built once, never mutated.
var styleHints = map[string]string{
	"ironic":           "say the opposite of what is meant, with a straight face",
	"sarcastic":        "cutting, mock-enthusiastic, a little mean",
	"absurd":           "escalate into the surreal, commit fully to the bit",
	"relatable":        "a shared everyday frustration everyone recognizes",
	"observational":    "point out something true that nobody says out loud",
	"self-deprecating": "the author is the punchline",
}

// StyleHint returns the directive phrase for a style, falling back to the
// ironic hint for unrecognized styles.
func StyleHint(style string) string {
	if hint, ok := styleHints[strings.ToLower(strings.TrimSpace(style))]; ok {
		return hint
	}
	return styleHints[DefaultStyle]
}

// Styles lists the supported style keywords.
func Styles() []string {
	return []string{"ironic", "sarcastic", "absurd", "relatable", "observational", "self-deprecating"}
}

// Item is one unit of generated output. ImageURL is nil on the text-only path.
type Item struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"image_url"`
}

// Store is the slice of the corpus store the generator needs.
type Store interface {
	GetLatestStyleGuide() (*database.StyleGuide, error)
	GetAnalyzedPosts(limit int) ([]database.Post, error)
}

// Generator produces meme captions, either standalone or for a shortlisted
// image set.
type Generator struct {
	db       Store
	provider llm.Provider
}

// NewGenerator creates a new meme text generator.
func NewGenerator(db Store, provider llm.Provider) *Generator {
	return &Generator{db: db, provider: provider}
}

const textOnlyPrompt = `You are writing %d original text memes about: %s

Style: %s — %s
%s%s
Write exactly %d distinct memes. Format each meme as:
[N]. <meme text>

Separate memes with a line containing only:
---`

// GenerateTextOnly produces count standalone meme texts.
func (g *Generator) GenerateTextOnly(ctx context.Context, topic, style string, count int, instructions string) ([]Item, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	styleContext := g.buildStyleContext()

	extra := ""
	if strings.TrimSpace(instructions) != "" {
		extra = "\nAdditional instructions: " + strings.TrimSpace(instructions) + "\n"
	}

	prompt := fmt.Sprintf(textOnlyPrompt, count, topic, style, StyleHint(style), styleContext, extra, count)
	responseText, err := g.provider.Generate(ctx, prompt, 1024)
	if err != nil {
		return nil, fmt.Errorf("text generation model call: %w", err)
	}

	items := parseTextBlocks(responseText)
	log.Printf("Text-only generation for %q: %d/%d memes parsed", topic, len(items), count)
	return items, nil
}

const imageFirstPrompt = `You are writing meme captions about: %s

Style: %s — %s
%s
You are given %d meme images, attached in order:
%s

Write one meme caption per image, matching the caption to what the image shows. Format each as:
Image <n>:
TEXT: <meme text>

Separate memes with a line containing only:
---`

// GenerateWithImages produces one caption per selected image. The images are
// attached as visual inputs in manifest order; the manifest establishes the
// position-to-URL mapping used when parsing the response.
func (g *Generator) GenerateWithImages(ctx context.Context, topic, style string, images []imagesel.CatalogEntry, instructions string) ([]Item, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to caption")
	}

	manifest := make([]string, len(images))
	var manifestLines []string
	for i, entry := range images {
		manifest[i] = entry.URL
		manifestLines = append(manifestLines, fmt.Sprintf("Image %d: %s", i+1, entry.Description))
	}

	extra := ""
	if strings.TrimSpace(instructions) != "" {
		extra = "Additional instructions: " + strings.TrimSpace(instructions) + "\n"
	}

	prompt := fmt.Sprintf(imageFirstPrompt, topic, style, StyleHint(style), extra,
		len(images), strings.Join(manifestLines, "\n"))

	responseText, err := g.provider.GenerateVision(ctx, prompt, manifest, 1024)
	if err != nil {
		return nil, fmt.Errorf("caption generation model call: %w", err)
	}

	items := parseImageBlocks(responseText, manifest)
	log.Printf("Image-first generation for %q: %d/%d captions parsed", topic, len(items), len(images))
	return items, nil
}

// buildStyleContext assembles a short digest from the latest style guide and
// a few analyzed examples: at most 2 humor patterns, at most 3 example
// snippets truncated to 80 characters.
func (g *Generator) buildStyleContext() string {
	var lines []string

	guide, err := g.db.GetLatestStyleGuide()
	if err == nil && guide != nil {
		patterns := guide.Content.HumorPatterns
		if len(patterns) > 2 {
			patterns = patterns[:2]
		}
		for _, p := range patterns {
			lines = append(lines, fmt.Sprintf("Humor pattern that works: %s", p.Pattern))
		}
	}

	examples, err := g.db.GetAnalyzedPosts(3)
	if err == nil {
		for _, ex := range examples {
			text := strings.TrimSpace(ex.Text)
			if text == "" {
				continue
			}
			if len(text) > 80 {
				text = text[:80]
			}
			lines = append(lines, fmt.Sprintf("Example from the collection: %s", text))
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

var (
	listMarkerRe      = regexp.MustCompile(`^\s*\[?(\d+)\]?[.)]\s*`)
	textMarkerRe      = regexp.MustCompile(`(?s)TEXT:\s*(.*)`)
	imageLabelRe      = regexp.MustCompile(`Image\s+(\d+)`)
	leadingImageLabel = regexp.MustCompile(`^\s*Image\s+\d+\s*:?\s*`)
)

// parseTextBlocks splits a text-only response on the block separator,
// stripping the leading "N." marker from each block. Blocks that yield no
// text are discarded.
func parseTextBlocks(response string) []Item {
	var items []Item
	for _, block := range strings.Split(response, blockSeparator) {
		text := strings.TrimSpace(block)
		if marker := listMarkerRe.FindString(text); marker != "" {
			text = strings.TrimSpace(text[len(marker):])
		}
		if text == "" {
			continue
		}
		items = append(items, Item{Text: text})
	}
	return items
}

// parseImageBlocks applies the lenient image-response grammar: per block,
// text comes from a TEXT: marker (to end of block) or, failing that, the
// block minus its leading "Image <n>:" label; the image position comes from
// the label, or falls back to the block's own ordinal. Items missing either
// text or a resolved URL are dropped. Output never exceeds the manifest size.
func parseImageBlocks(response string, manifest []string) []Item {
	var blocks []string
	for _, block := range strings.Split(response, blockSeparator) {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, strings.TrimSpace(block))
		}
	}

	var items []Item
	for i, block := range blocks {
		var text string
		if m := textMarkerRe.FindStringSubmatch(block); m != nil {
			text = strings.TrimSpace(m[1])
		} else {
			text = strings.TrimSpace(leadingImageLabel.ReplaceAllString(block, ""))
		}

		position := 0
		if m := imageLabelRe.FindStringSubmatch(block); m != nil {
			position, _ = strconv.Atoi(m[1])
		}

		var imageURL string
		if position >= 1 && position <= len(manifest) {
			imageURL = manifest[position-1]
		} else if i < len(manifest) {
			// No resolvable label: pair with the image at this block's ordinal.
			imageURL = manifest[i]
		}

		if text == "" || imageURL == "" {
			continue
		}
		items = append(items, Item{Text: text, ImageURL: &imageURL})
		if len(items) >= len(manifest) {
			break
		}
	}
	return items
}
