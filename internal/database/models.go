package database

// Post represents a collected social-media post, analyzed or not.
// AnalyzedAt is the sole analysis-state flag: nil means unanalyzed.
type Post struct {
	ID          int64
	URL         string
	Text        string
	Images      []string
	Author      *string
	Platform    *string
	Likes       int
	Retweets    int
	Views       int
	Comments    int
	Bookmarks   int
	TextFetched bool
	CollectedAt *string

	Topics         []string
	HumorType      *string
	Format         *string
	Template       *string
	JokeStructure  *string
	Tone           *string
	ImageAnalysis  *string
	SearchableText *string
	AnalyzedAt     *string
}

// Analyzed reports whether the post has been through humor analysis.
func (p *Post) Analyzed() bool {
	return p.AnalyzedAt != nil
}

// PostInput is the upsert payload for a post. URL is the natural key:
// re-ingesting the same URL refreshes origin fields and engagement counters
// but never touches analysis columns.
type PostInput struct {
	URL       string
	Text      string
	Images    []string
	Author    string
	Platform  string
	Likes     int
	Retweets  int
	Views     int
	Comments  int
	Bookmarks int
	// CollectedAt overrides the ingest timestamp when set (YYYY-MM-DD HH:MM:SS).
	CollectedAt string
}

// Analysis holds the classification produced by the humor analyzer.
type Analysis struct {
	Topics        []string
	HumorType     string
	Format        string
	Template      *string
	JokeStructure string
	Tone          string
	ImageAnalysis *string
}

// GeneratedMeme is one unit of generated output.
type GeneratedMeme struct {
	ID               int64
	Topic            string
	Style            string
	Format           string
	TextContent      string
	ImageURL         *string
	ReferenceMemeIDs []int64
	CreatedAt        *string
}

// GuideTopic is a top topic with its related subtopics.
type GuideTopic struct {
	Topic     string   `json:"topic"`
	Subtopics []string `json:"subtopics"`
}

// GuideHumorPattern is a humor pattern with an effectiveness tier.
type GuideHumorPattern struct {
	Pattern       string `json:"pattern"`
	Effectiveness string `json:"effectiveness"`
}

// GuideContent is the fixed schema a style guide's content must conform to.
type GuideContent struct {
	TopTopics       []GuideTopic        `json:"top_topics"`
	HumorPatterns   []GuideHumorPattern `json:"humor_patterns"`
	ToneGuidelines  []string            `json:"tone_guidelines"`
	ImageGuidelines []string            `json:"image_guidelines"`
	WritingStyle    string              `json:"writing_style"`
	Dos             []string            `json:"dos"`
	Donts           []string            `json:"donts"`
}

// StyleGuide is a persisted corpus-digest snapshot. Guides are append-only:
// a new generation inserts a new row, retrieval returns the most recent.
type StyleGuide struct {
	ID            int64
	GuideType     string
	Content       GuideContent
	MemeCount     int
	Topics        []string
	HumorPatterns []string
	CreatedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalPosts      int
	AnalyzedPosts   int
	PostsWithImages int
	GeneratedMemes  int
	StyleGuides     int
}
