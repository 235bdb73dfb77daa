package analyze

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"memestash/internal/database"
	"memestash/internal/llm"
)

// maxConcurrent bounds in-flight model calls during a batch run.
const maxConcurrent = 4

const analysisPrompt = `You are cataloguing memes for a personal collection. Classify this meme.

Post text:
%s
%s
Respond with ONLY this JSON:
{
    "topics": ["topic 1", "topic 2"],
    "humor_type": "observational" | "absurdist" | "ironic" | "wholesome" | "dark" | "satire" | "shitpost" | "other",
    "format": "image_macro" | "screenshot" | "text_post" | "video_still" | "comic" | "other",
    "template": "template name or null if not a known template",
    "joke_structure": "One sentence describing how the joke is built",
    "tone": "playful" | "sarcastic" | "deadpan" | "cynical" | "earnest" | "chaotic",
    "image_analysis": "What the image shows, or null for text-only posts"
}

topics: 1-5 short lowercase-friendly subjects the meme is about.`

var humorTypes = map[string]bool{
	"observational": true, "absurdist": true, "ironic": true, "wholesome": true,
	"dark": true, "satire": true, "shitpost": true, "other": true,
}

var formats = map[string]bool{
	"image_macro": true, "screenshot": true, "text_post": true,
	"video_still": true, "comic": true, "other": true,
}

var tones = map[string]bool{
	"playful": true, "sarcastic": true, "deadpan": true,
	"cynical": true, "earnest": true, "chaotic": true,
}

// Result holds the results of an analysis run.
type Result struct {
	Processed int
	Errors    int
	// PerPost records the outcome for each requested post ID.
	PerPost map[int64]error
}

// Store is the slice of the corpus store the analyzer needs.
type Store interface {
	GetPostByID(id int64) (*database.Post, error)
	GetUnanalyzedPosts() ([]database.Post, error)
	SaveAnalysis(postID int64, a database.Analysis) error
}

// Analyzer classifies posts with one structured model call each.
type Analyzer struct {
	db       Store
	provider llm.Provider
}

// NewAnalyzer creates a new humor analyzer.
func NewAnalyzer(db Store, provider llm.Provider) *Analyzer {
	return &Analyzer{db: db, provider: provider}
}

// AnalyzeAll analyzes every unanalyzed post in the store.
func (a *Analyzer) AnalyzeAll(ctx context.Context) (*Result, error) {
	posts, err := a.db.GetUnanalyzedPosts()
	if err != nil {
		return nil, fmt.Errorf("loading unanalyzed posts: %w", err)
	}
	return a.analyzeBatch(ctx, posts), nil
}

// AnalyzeIDs analyzes the given posts. Unknown and already-analyzed IDs are
// recorded as per-post errors; they never affect the rest of the batch.
func (a *Analyzer) AnalyzeIDs(ctx context.Context, ids []int64) (*Result, error) {
	var posts []database.Post
	preFailed := make(map[int64]error)
	for _, id := range ids {
		post, err := a.db.GetPostByID(id)
		if err != nil {
			preFailed[id] = err
			continue
		}
		if post == nil {
			preFailed[id] = fmt.Errorf("post %d not found", id)
			continue
		}
		if post.Analyzed() {
			preFailed[id] = fmt.Errorf("post %d already analyzed", id)
			continue
		}
		posts = append(posts, *post)
	}

	result := a.analyzeBatch(ctx, posts)
	for id, err := range preFailed {
		result.PerPost[id] = err
		result.Errors++
	}
	return result, nil
}

// analyzeBatch runs per-post analysis with bounded concurrency. Each post's
// failure is isolated: it is recorded and the batch continues.
func (a *Analyzer) analyzeBatch(ctx context.Context, posts []database.Post) *Result {
	result := &Result{PerPost: make(map[int64]error)}
	if len(posts) == 0 {
		log.Println("No posts to analyze")
		return result
	}
	if a.provider == nil {
		for _, post := range posts {
			result.PerPost[post.ID] = fmt.Errorf("no LLM provider available")
			result.Errors++
		}
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)

	for _, post := range posts {
		wg.Add(1)
		sem <- struct{}{}
		go func(post database.Post) {
			defer wg.Done()
			defer func() { <-sem }()

			err := a.analyzePost(ctx, post)

			mu.Lock()
			defer mu.Unlock()
			result.PerPost[post.ID] = err
			if err != nil {
				result.Errors++
				log.Printf("Error analyzing post %d: %v", post.ID, err)
			} else {
				result.Processed++
			}
		}(post)
	}
	wg.Wait()

	log.Printf("Analysis complete: %d processed, %d errors", result.Processed, result.Errors)
	return result
}

func (a *Analyzer) analyzePost(ctx context.Context, post database.Post) error {
	text := strings.TrimSpace(post.Text)
	if text == "" {
		text = "(no text)"
	}
	if len(text) > 4000 {
		text = text[:4000] + "..."
	}

	imageNote := ""
	if len(post.Images) > 0 {
		imageNote = fmt.Sprintf("\nThe post has %d attached image(s), shown above.\n", len(post.Images))
	}

	prompt := fmt.Sprintf(analysisPrompt, text, imageNote)

	var responseText string
	var err error
	if len(post.Images) > 0 {
		responseText, err = a.provider.GenerateVision(ctx, prompt, post.Images, 512)
	} else {
		responseText, err = a.provider.Generate(ctx, prompt, 512)
	}
	if err != nil {
		return fmt.Errorf("analysis model call: %w", err)
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		return fmt.Errorf("unparseable analysis response")
	}

	analysis := buildAnalysis(parsed, len(post.Images) > 0)
	if err := a.db.SaveAnalysis(post.ID, analysis); err != nil {
		return fmt.Errorf("saving analysis: %w", err)
	}
	return nil
}

// buildAnalysis maps the model's loose JSON onto the fixed classification,
// clamping enum fields to their allowed values.
func buildAnalysis(parsed map[string]any, hasImages bool) database.Analysis {
	analysis := database.Analysis{
		HumorType:     clampEnum(getString(parsed, "humor_type"), humorTypes, "other"),
		Format:        clampEnum(getString(parsed, "format"), formats, "other"),
		JokeStructure: getString(parsed, "joke_structure"),
		Tone:          clampEnum(getString(parsed, "tone"), tones, "playful"),
	}

	if topics, ok := parsed["topics"].([]any); ok {
		for _, v := range topics {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				analysis.Topics = append(analysis.Topics, strings.TrimSpace(s))
			}
		}
		if len(analysis.Topics) > 5 {
			analysis.Topics = analysis.Topics[:5]
		}
	}

	if tpl := getString(parsed, "template"); tpl != "" && !strings.EqualFold(tpl, "null") {
		analysis.Template = &tpl
	}

	if hasImages {
		if ia := getString(parsed, "image_analysis"); ia != "" && !strings.EqualFold(ia, "null") {
			analysis.ImageAnalysis = &ia
		}
	}

	return analysis
}

func clampEnum(value string, allowed map[string]bool, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if allowed[v] {
		return v
	}
	return fallback
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
