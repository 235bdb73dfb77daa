package styleguide

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"memestash/internal/database"
	"memestash/internal/llm"
)

// GuideType is the single guide flavor currently produced.
const GuideType = "meme_generation"

const topTopicCount = 10

// ErrNoAnalyzedContent means the corpus holds no analyzed posts; generation
// is refused before any model call.
var ErrNoAnalyzedContent = errors.New("no analyzed posts to build a style guide from")

const synthesisPrompt = `You are distilling a personal meme collection into a reusable style guide for generating new memes in the same voice.

Corpus statistics:
%s

Example posts (truncated):
%s

Respond with ONLY this JSON:
{
    "top_topics": [{"topic": "topic name", "subtopics": ["related subtopic"]}],
    "humor_patterns": [{"pattern": "description of a recurring joke pattern", "effectiveness": "high" | "medium" | "low"}],
    "tone_guidelines": ["short guideline"],
    "image_guidelines": ["how images are used in this corpus"],
    "writing_style": "2-3 sentences describing the writing voice. Use markdown for emphasis.",
    "dos": ["things generated memes should do"],
    "donts": ["things generated memes must avoid"]
}`

// Result is the outcome of one synthesis run. Saved is false when the model
// call succeeded but persisting the snapshot did not; the content is still
// usable.
type Result struct {
	Guide     *database.StyleGuide
	PostCount int
	Saved     bool
	Message   string
}

// Store is the slice of the corpus store the synthesizer needs.
// *database.DB satisfies it.
type Store interface {
	GetAnalyzedPosts(limit int) ([]database.Post, error)
	InsertStyleGuide(guideType string, content database.GuideContent, memeCount int, topics, humorPatterns []string) (int64, error)
	GetLatestStyleGuide() (*database.StyleGuide, error)
}

// Synthesizer condenses the analyzed corpus into a style guide snapshot.
type Synthesizer struct {
	db       Store
	provider llm.Provider
}

// NewSynthesizer creates a new style guide synthesizer.
func NewSynthesizer(db Store, provider llm.Provider) *Synthesizer {
	return &Synthesizer{db: db, provider: provider}
}

// Latest returns the most recent persisted snapshot, or nil if none exist.
func (s *Synthesizer) Latest() (*database.StyleGuide, error) {
	return s.db.GetLatestStyleGuide()
}

// Synthesize digests every analyzed post, issues one structured model call,
// and appends the result as a new snapshot.
func (s *Synthesizer) Synthesize(ctx context.Context) (*Result, error) {
	posts, err := s.db.GetAnalyzedPosts(0)
	if err != nil {
		return nil, fmt.Errorf("loading analyzed posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNoAnalyzedContent
	}
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	topics, humorTypes, stats := buildDigest(posts)
	examples := buildExamples(posts)

	responseText, err := s.provider.Generate(ctx, fmt.Sprintf(synthesisPrompt, stats, examples), 2048)
	if err != nil {
		return nil, fmt.Errorf("style guide model call: %w", err)
	}

	var content database.GuideContent
	if err := llm.ParseJSONInto(responseText, &content); err != nil {
		return nil, fmt.Errorf("style guide response did not match schema: %w", err)
	}

	guide := &database.StyleGuide{
		GuideType:     GuideType,
		Content:       content,
		MemeCount:     len(posts),
		Topics:        topics,
		HumorPatterns: humorTypes,
	}

	result := &Result{
		Guide:     guide,
		PostCount: len(posts),
		Saved:     true,
		Message:   fmt.Sprintf("Style guide generated from %d analyzed memes", len(posts)),
	}

	id, err := s.db.InsertStyleGuide(GuideType, content, len(posts), topics, humorTypes)
	if err != nil {
		// Best-effort durability: the synthesized guide is still returned.
		log.Printf("Failed to save style guide: %v", err)
		result.Saved = false
		result.Message = fmt.Sprintf("Style guide generated from %d analyzed memes (save failed)", len(posts))
		return result, nil
	}
	guide.ID = id

	log.Printf("Style guide %d saved (%d posts)", id, len(posts))
	return result, nil
}

// buildDigest computes the frequency tables and renders the statistics block.
// Returns the exact top topic and humor-type lists fed to the model, so the
// snapshot records what it was derived from.
func buildDigest(posts []database.Post) (topTopics, humorTypes []string, statsBlock string) {
	topicCounts := make(map[string]int)
	topicDisplay := make(map[string]string)
	humorCounts := make(map[string]int)
	toneCounts := make(map[string]int)
	formatCounts := make(map[string]int)

	for _, p := range posts {
		for _, topic := range p.Topics {
			key := strings.ToLower(strings.TrimSpace(topic))
			if key == "" {
				continue
			}
			if _, seen := topicDisplay[key]; !seen {
				topicDisplay[key] = topic
			}
			topicCounts[key]++
		}
		if p.HumorType != nil {
			humorCounts[*p.HumorType]++
		}
		if p.Tone != nil {
			toneCounts[*p.Tone]++
		}
		if p.Format != nil {
			formatCounts[*p.Format]++
		}
	}

	type kv struct {
		key   string
		count int
	}
	var rankedTopics []kv
	for k, c := range topicCounts {
		rankedTopics = append(rankedTopics, kv{k, c})
	}
	sort.Slice(rankedTopics, func(i, j int) bool {
		if rankedTopics[i].count != rankedTopics[j].count {
			return rankedTopics[i].count > rankedTopics[j].count
		}
		return rankedTopics[i].key < rankedTopics[j].key
	})
	if len(rankedTopics) > topTopicCount {
		rankedTopics = rankedTopics[:topTopicCount]
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Total analyzed memes: %d", len(posts)))
	lines = append(lines, "Top topics:")
	for _, t := range rankedTopics {
		topTopics = append(topTopics, topicDisplay[t.key])
		lines = append(lines, fmt.Sprintf("  - %s (%d)", topicDisplay[t.key], t.count))
	}
	lines = append(lines, "Humor types: "+formatCountMap(humorCounts))
	lines = append(lines, "Tones: "+formatCountMap(toneCounts))
	lines = append(lines, "Formats: "+formatCountMap(formatCounts))

	for name := range humorCounts {
		humorTypes = append(humorTypes, name)
	}
	sort.Strings(humorTypes)

	return topTopics, humorTypes, strings.Join(lines, "\n")
}

// buildExamples renders one capped line per post: text to 100 chars, image
// description to 50, to bound prompt size.
func buildExamples(posts []database.Post) string {
	var lines []string
	for i, p := range posts {
		line := fmt.Sprintf("[%d] %s", i+1, truncate(p.Text, 100))
		if p.HumorType != nil {
			line += fmt.Sprintf(" (humor: %s)", *p.HumorType)
		}
		if p.ImageAnalysis != nil && *p.ImageAnalysis != "" {
			line += fmt.Sprintf(" [image: %s]", truncate(*p.ImageAnalysis, 50))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatCountMap(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
