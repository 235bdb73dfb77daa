package database

import (
	"database/sql"
	"encoding/json"
)

// InsertGeneratedMeme records one unit of generated output.
// reference_meme_ids is stored as an empty list until reference tracking lands.
func (db *DB) InsertGeneratedMeme(topic, style, format, textContent string, imageURL *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO generated_memes (topic, style, format, text_content, image_url, reference_meme_ids)
		VALUES (?, ?, ?, ?, ?, '[]')`,
		topic, style, format, textContent, imageURL,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecentGeneratedMemes returns generated memes, newest first.
func (db *DB) GetRecentGeneratedMemes(limit int) ([]GeneratedMeme, error) {
	rows, err := db.conn.Query(
		`SELECT id, topic, style, format, text_content, image_url, reference_meme_ids, created_at
		FROM generated_memes ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memes []GeneratedMeme
	for rows.Next() {
		m, err := scanGeneratedMeme(rows)
		if err != nil {
			return nil, err
		}
		memes = append(memes, *m)
	}
	return memes, rows.Err()
}

func scanGeneratedMeme(rows *sql.Rows) (*GeneratedMeme, error) {
	var m GeneratedMeme
	var refsJSON *string
	if err := rows.Scan(&m.ID, &m.Topic, &m.Style, &m.Format, &m.TextContent,
		&m.ImageURL, &refsJSON, &m.CreatedAt); err != nil {
		return nil, err
	}
	if refsJSON != nil {
		if err := json.Unmarshal([]byte(*refsJSON), &m.ReferenceMemeIDs); err != nil {
			m.ReferenceMemeIDs = nil
		}
	}
	return &m, nil
}
