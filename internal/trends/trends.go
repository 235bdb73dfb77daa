package trends

import (
	"log"
	"math"
	"sort"
	"strings"

	"memestash/internal/database"
)

const maxTrends = 20

// TopicTrend is a derived, per-request trend bucket. Buckets merge on the
// lowercased, trimmed topic; Topic keeps the casing of the first occurrence.
type TopicTrend struct {
	Topic    string  `json:"topic"`
	Count    int     `json:"count"`
	AvgLikes float64 `json:"avg_likes"`
	MemeIDs  []int64 `json:"meme_ids"`
}

// Score is the popularity ranking value: count * ln(avgLikes + 1).
func (t *TopicTrend) Score() float64 {
	return float64(t.Count) * math.Log(t.AvgLikes+1)
}

// Report is the full trend query result for a time window.
type Report struct {
	Trends     []TopicTrend   `json:"trends"`
	TotalPosts int            `json:"total_posts"`
	HumorTypes map[string]int `json:"humor_types"`
	Formats    map[string]int `json:"formats"`
	WindowDays int            `json:"window_days"`
}

// Aggregator computes topic trends over the analyzed corpus.
type Aggregator struct {
	db *database.DB
}

// NewAggregator creates a new trend aggregator.
func NewAggregator(db *database.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Aggregate builds a trend report over analyzed posts collected within the
// last `days` days. An empty window yields an empty report, not an error.
func (a *Aggregator) Aggregate(days int) (*Report, error) {
	if days <= 0 {
		days = 7
	}

	posts, err := a.db.GetAnalyzedPostsSince(days)
	if err != nil {
		return nil, err
	}

	report := buildReport(posts, days)
	log.Printf("Trend report: %d posts, %d topic buckets (window %dd)",
		report.TotalPosts, len(report.Trends), days)
	return report, nil
}

func buildReport(posts []database.Post, days int) *Report {
	report := &Report{
		Trends:     []TopicTrend{},
		TotalPosts: len(posts),
		HumorTypes: make(map[string]int),
		Formats:    make(map[string]int),
		WindowDays: days,
	}

	buckets := make(map[string]*TopicTrend)
	for _, post := range posts {
		if post.HumorType != nil {
			report.HumorTypes[*post.HumorType]++
		}
		if post.Format != nil {
			report.Formats[*post.Format]++
		}

		for _, topic := range post.Topics {
			key := strings.ToLower(strings.TrimSpace(topic))
			if key == "" {
				continue
			}

			bucket, ok := buckets[key]
			if !ok {
				buckets[key] = &TopicTrend{
					Topic:    topic,
					Count:    1,
					AvgLikes: float64(post.Likes),
					MemeIDs:  []int64{post.ID},
				}
				continue
			}

			// Incremental mean, matching the plain running mean exactly.
			bucket.Count++
			bucket.AvgLikes = (bucket.AvgLikes*float64(bucket.Count-1) + float64(post.Likes)) / float64(bucket.Count)
			bucket.MemeIDs = append(bucket.MemeIDs, post.ID)
		}
	}

	trends := make([]TopicTrend, 0, len(buckets))
	for _, b := range buckets {
		trends = append(trends, *b)
	}

	sort.SliceStable(trends, func(i, j int) bool {
		si, sj := trends[i].Score(), trends[j].Score()
		if si != sj {
			return si > sj
		}
		return trends[i].Count > trends[j].Count
	})

	if len(trends) > maxTrends {
		trends = trends[:maxTrends]
	}
	report.Trends = trends
	return report
}
