package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const postColumns = `id, url, text, images, author, platform,
	likes, retweets, views, comments, bookmarks, text_fetched, collected_at,
	topics, humor_type, format, template, joke_structure, tone,
	image_analysis, searchable_text, analyzed_at`

// UpsertPost inserts a post or, when the URL already exists, refreshes its
// origin fields and engagement counters. Analysis columns are never touched.
// Returns the post ID and whether the row was newly created.
func (db *DB) UpsertPost(in PostInput) (int64, bool, error) {
	var existingID int64
	err := db.conn.QueryRow("SELECT id FROM posts WHERE url = ?", in.URL).Scan(&existingID)
	isNew := err == sql.ErrNoRows
	if err != nil && !isNew {
		return 0, false, err
	}

	imagesJSON, err := json.Marshal(in.Images)
	if err != nil {
		return 0, false, err
	}
	if in.Images == nil {
		imagesJSON = []byte("[]")
	}

	_, err = db.conn.Exec(
		`INSERT INTO posts
		(url, text, images, author, platform, likes, retweets, views, comments, bookmarks, collected_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''), datetime('now')))
		ON CONFLICT(url) DO UPDATE SET
			text = excluded.text,
			images = excluded.images,
			author = excluded.author,
			platform = excluded.platform,
			likes = excluded.likes,
			retweets = excluded.retweets,
			views = excluded.views,
			comments = excluded.comments,
			bookmarks = excluded.bookmarks,
			collected_at = excluded.collected_at`,
		in.URL, in.Text, string(imagesJSON), in.Author, in.Platform,
		in.Likes, in.Retweets, in.Views, in.Comments, in.Bookmarks, in.CollectedAt,
	)
	if err != nil {
		return 0, false, err
	}

	if !isNew {
		return existingID, false, nil
	}

	var id int64
	if err := db.conn.QueryRow("SELECT id FROM posts WHERE url = ?", in.URL).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetPostByID returns a single post by ID, or nil if not found.
func (db *DB) GetPostByID(id int64) (*Post, error) {
	row := db.conn.QueryRow("SELECT "+postColumns+" FROM posts WHERE id = ?", id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPostByURL returns a single post by URL, or nil if not found.
func (db *DB) GetPostByURL(url string) (*Post, error) {
	row := db.conn.QueryRow("SELECT "+postColumns+" FROM posts WHERE url = ?", url)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetRecentPosts returns the most recently collected posts, newest first.
func (db *DB) GetRecentPosts(limit int) ([]Post, error) {
	rows, err := db.conn.Query(
		"SELECT "+postColumns+" FROM posts ORDER BY collected_at DESC, id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetAnalyzedPosts returns analyzed posts, newest first. limit <= 0 means all.
func (db *DB) GetAnalyzedPosts(limit int) ([]Post, error) {
	query := "SELECT " + postColumns + " FROM posts WHERE analyzed_at IS NOT NULL ORDER BY collected_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetAnalyzedPostsSince returns analyzed posts collected within the last
// `days` days.
func (db *DB) GetAnalyzedPostsSince(days int) ([]Post, error) {
	rows, err := db.conn.Query(
		"SELECT "+postColumns+` FROM posts
		WHERE analyzed_at IS NOT NULL AND collected_at >= datetime('now', ?)
		ORDER BY collected_at DESC, id DESC`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetUnanalyzedPosts returns posts that have not been analyzed yet.
func (db *DB) GetUnanalyzedPosts() ([]Post, error) {
	rows, err := db.conn.Query(
		"SELECT " + postColumns + " FROM posts WHERE analyzed_at IS NULL ORDER BY collected_at DESC, id DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsNeedingText returns posts with empty text where no fetch was attempted.
func (db *DB) GetPostsNeedingText() ([]Post, error) {
	rows, err := db.conn.Query(
		"SELECT " + postColumns + " FROM posts WHERE text = '' AND text_fetched = 0 ORDER BY collected_at DESC, id DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePostText fills in post text after a backfill fetch.
func (db *DB) UpdatePostText(postID int64, text string) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET text = ?, text_fetched = 1 WHERE id = ?", text, postID,
	)
	return err
}

// MarkTextFetchAttempted marks that we tried to backfill text.
func (db *DB) MarkTextFetchAttempted(postID int64) error {
	_, err := db.conn.Exec("UPDATE posts SET text_fetched = 1 WHERE id = ?", postID)
	return err
}

// SaveAnalysis writes the classification fields and stamps analyzed_at.
// Analysis is written exactly once: a second call for the same post is a no-op.
func (db *DB) SaveAnalysis(postID int64, a Analysis) error {
	post, err := db.GetPostByID(postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}

	topicsJSON, err := json.Marshal(a.Topics)
	if err != nil {
		return err
	}

	searchable := buildSearchableText(post.Text, a)

	_, err = db.conn.Exec(
		`UPDATE posts SET
			topics = ?, humor_type = ?, format = ?, template = ?,
			joke_structure = ?, tone = ?, image_analysis = ?,
			searchable_text = ?, analyzed_at = datetime('now')
		WHERE id = ? AND analyzed_at IS NULL`,
		string(topicsJSON), a.HumorType, a.Format, a.Template,
		a.JokeStructure, a.Tone, a.ImageAnalysis, searchable, postID,
	)
	return err
}

// buildSearchableText derives the searchable concatenation of a post's text,
// topics and image description.
func buildSearchableText(text string, a Analysis) string {
	parts := []string{text}
	if len(a.Topics) > 0 {
		parts = append(parts, strings.Join(a.Topics, " "))
	}
	if a.ImageAnalysis != nil && *a.ImageAnalysis != "" {
		parts = append(parts, *a.ImageAnalysis)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// CountAnalyzedPosts returns the number of analyzed posts.
func (db *DB) CountAnalyzedPosts() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM posts WHERE analyzed_at IS NOT NULL").Scan(&n)
	return n, err
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM posts", &s.TotalPosts},
		{"SELECT COUNT(*) FROM posts WHERE analyzed_at IS NOT NULL", &s.AnalyzedPosts},
		{"SELECT COUNT(*) FROM posts WHERE images != '[]'", &s.PostsWithImages},
		{"SELECT COUNT(*) FROM generated_memes", &s.GeneratedMemes},
		{"SELECT COUNT(*) FROM style_guides", &s.StyleGuides},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		p, err := scanPostRow(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row *sql.Row) (*Post, error) {
	return scanPostRow(row)
}

func scanPostRow(row rowScanner) (*Post, error) {
	var p Post
	var imagesJSON string
	var topicsJSON *string
	var fetched int
	if err := row.Scan(&p.ID, &p.URL, &p.Text, &imagesJSON, &p.Author, &p.Platform,
		&p.Likes, &p.Retweets, &p.Views, &p.Comments, &p.Bookmarks, &fetched, &p.CollectedAt,
		&topicsJSON, &p.HumorType, &p.Format, &p.Template, &p.JokeStructure, &p.Tone,
		&p.ImageAnalysis, &p.SearchableText, &p.AnalyzedAt); err != nil {
		return nil, err
	}
	p.TextFetched = fetched != 0
	if err := json.Unmarshal([]byte(imagesJSON), &p.Images); err != nil {
		p.Images = nil
	}
	if topicsJSON != nil {
		if err := json.Unmarshal([]byte(*topicsJSON), &p.Topics); err != nil {
			p.Topics = nil
		}
	}
	return &p, nil
}
