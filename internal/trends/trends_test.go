package trends

import (
	"math"
	"path/filepath"
	"testing"

	"memestash/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func analyzedPost(id int64, topics []string, likes int) database.Post {
	ht := "ironic"
	format := "image_macro"
	return database.Post{
		ID:        id,
		Likes:     likes,
		Topics:    topics,
		HumorType: &ht,
		Format:    &format,
	}
}

func TestCaseInsensitiveTopicMerge(t *testing.T) {
	posts := []database.Post{
		analyzedPost(1, []string{"AI"}, 10),
		analyzedPost(2, []string{"ai"}, 20),
		analyzedPost(3, []string{"Startups"}, 5),
	}

	report := buildReport(posts, 7)

	if report.TotalPosts != 3 {
		t.Errorf("expected 3 posts, got %d", report.TotalPosts)
	}
	if len(report.Trends) != 2 {
		t.Fatalf("expected 2 trend buckets, got %d", len(report.Trends))
	}

	var ai *TopicTrend
	for i := range report.Trends {
		if report.Trends[i].Topic == "AI" {
			ai = &report.Trends[i]
		}
	}
	if ai == nil {
		t.Fatal("expected merged bucket displayed as 'AI' (first-seen casing)")
	}
	if ai.Count != 2 {
		t.Errorf("expected count 2, got %d", ai.Count)
	}
	if ai.AvgLikes != 15 {
		t.Errorf("expected avgLikes 15, got %v", ai.AvgLikes)
	}
	if len(ai.MemeIDs) != 2 {
		t.Errorf("expected 2 contributing posts, got %d", len(ai.MemeIDs))
	}
}

func TestRankingByPopularityScore(t *testing.T) {
	// A: count=5, avgLikes=100 -> 5*ln(101); B: count=10, avgLikes=1 -> 10*ln(2).
	var posts []database.Post
	for i := 0; i < 5; i++ {
		posts = append(posts, analyzedPost(int64(i+1), []string{"A"}, 100))
	}
	for i := 0; i < 10; i++ {
		posts = append(posts, analyzedPost(int64(i+6), []string{"B"}, 1))
	}

	report := buildReport(posts, 7)

	if len(report.Trends) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(report.Trends))
	}
	if report.Trends[0].Topic != "A" {
		t.Errorf("expected 'A' ranked first, got %q", report.Trends[0].Topic)
	}

	expected := 5 * math.Log(101)
	if got := report.Trends[0].Score(); math.Abs(got-expected) > 1e-9 {
		t.Errorf("expected score %v, got %v", expected, got)
	}
}

func TestIncrementalMeanMatchesPlainMean(t *testing.T) {
	likes := []int{3, 7, 11, 0, 25}
	var posts []database.Post
	sum := 0
	for i, l := range likes {
		posts = append(posts, analyzedPost(int64(i+1), []string{"go"}, l))
		sum += l
	}

	report := buildReport(posts, 7)
	want := float64(sum) / float64(len(likes))
	if got := report.Trends[0].AvgLikes; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected avgLikes %v, got %v", want, got)
	}
}

func TestTopTwentyCap(t *testing.T) {
	var posts []database.Post
	for i := 0; i < 30; i++ {
		posts = append(posts, analyzedPost(int64(i+1), []string{string(rune('a' + i))}, i))
	}

	report := buildReport(posts, 7)
	if len(report.Trends) != maxTrends {
		t.Errorf("expected %d trends, got %d", maxTrends, len(report.Trends))
	}
}

func TestPostWithoutTopicsContributesNothing(t *testing.T) {
	posts := []database.Post{analyzedPost(1, nil, 50)}
	report := buildReport(posts, 7)
	if len(report.Trends) != 0 {
		t.Errorf("expected 0 trends, got %d", len(report.Trends))
	}
	if report.TotalPosts != 1 {
		t.Errorf("expected total 1, got %d", report.TotalPosts)
	}
}

func TestMultiTopicPostCountsOncePerBucket(t *testing.T) {
	posts := []database.Post{
		analyzedPost(1, []string{"cats", "dogs", "cats "}, 10),
	}
	report := buildReport(posts, 7)
	// "cats" and "cats " normalize to the same key and both fold in.
	for _, tr := range report.Trends {
		if tr.Topic == "cats" && tr.Count != 2 {
			t.Errorf("expected cats count 2 (both spellings fold), got %d", tr.Count)
		}
	}
	if len(report.Trends) != 2 {
		t.Errorf("expected 2 buckets, got %d", len(report.Trends))
	}
}

func TestAggregateEmptyWindow(t *testing.T) {
	db := openTestDB(t)
	agg := NewAggregator(db)

	report, err := agg.Aggregate(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalPosts != 0 {
		t.Errorf("expected 0 posts, got %d", report.TotalPosts)
	}
	if len(report.Trends) != 0 {
		t.Errorf("expected empty trend list, got %d", len(report.Trends))
	}
}

func TestAggregateReadsAnalyzedPostsOnly(t *testing.T) {
	db := openTestDB(t)
	id, _, err := db.UpsertPost(database.PostInput{URL: "https://x.com/1", Text: "lol", Likes: 12})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := NewAggregator(db)
	report, _ := agg.Aggregate(7)
	if report.TotalPosts != 0 {
		t.Error("unanalyzed post should not be counted")
	}

	if err := db.SaveAnalysis(id, database.Analysis{
		Topics:        []string{"Mondays"},
		HumorType:     "relatable",
		Format:        "text_post",
		JokeStructure: "setup-punchline",
		Tone:          "playful",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, _ = agg.Aggregate(7)
	if report.TotalPosts != 1 {
		t.Errorf("expected 1 analyzed post, got %d", report.TotalPosts)
	}
	if len(report.Trends) != 1 || report.Trends[0].Topic != "Mondays" {
		t.Errorf("expected 'Mondays' trend, got %+v", report.Trends)
	}
}
