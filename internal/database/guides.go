package database

import (
	"database/sql"
	"encoding/json"
)

// InsertStyleGuide appends a new style guide snapshot. Guides are never
// updated in place.
func (db *DB) InsertStyleGuide(guideType string, content GuideContent, memeCount int, topics, humorPatterns []string) (int64, error) {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return 0, err
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return 0, err
	}
	patternsJSON, err := json.Marshal(humorPatterns)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO style_guides (guide_type, content, meme_count, topics, humor_patterns)
		VALUES (?, ?, ?, ?, ?)`,
		guideType, string(contentJSON), memeCount, string(topicsJSON), string(patternsJSON),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestStyleGuide returns the most recent snapshot, or nil if none exist.
func (db *DB) GetLatestStyleGuide() (*StyleGuide, error) {
	row := db.conn.QueryRow(
		`SELECT id, guide_type, content, meme_count, topics, humor_patterns, created_at
		FROM style_guides ORDER BY created_at DESC, id DESC LIMIT 1`,
	)
	g, err := scanStyleGuide(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func scanStyleGuide(row *sql.Row) (*StyleGuide, error) {
	var g StyleGuide
	var contentJSON string
	var topicsJSON, patternsJSON *string
	if err := row.Scan(&g.ID, &g.GuideType, &contentJSON, &g.MemeCount,
		&topicsJSON, &patternsJSON, &g.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contentJSON), &g.Content); err != nil {
		return nil, err
	}
	if topicsJSON != nil {
		if err := json.Unmarshal([]byte(*topicsJSON), &g.Topics); err != nil {
			g.Topics = nil
		}
	}
	if patternsJSON != nil {
		if err := json.Unmarshal([]byte(*patternsJSON), &g.HumorPatterns); err != nil {
			g.HumorPatterns = nil
		}
	}
	return &g, nil
}
