package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    images TEXT NOT NULL DEFAULT '[]',
    author TEXT,
    platform TEXT,
    likes INTEGER DEFAULT 0,
    retweets INTEGER DEFAULT 0,
    views INTEGER DEFAULT 0,
    comments INTEGER DEFAULT 0,
    bookmarks INTEGER DEFAULT 0,
    text_fetched INTEGER DEFAULT 0,
    collected_at TEXT DEFAULT (datetime('now')),
    topics TEXT,
    humor_type TEXT,
    format TEXT,
    template TEXT,
    joke_structure TEXT,
    tone TEXT,
    image_analysis TEXT,
    searchable_text TEXT,
    analyzed_at TEXT
);

CREATE TABLE IF NOT EXISTS generated_memes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL,
    style TEXT NOT NULL,
    format TEXT NOT NULL,
    text_content TEXT NOT NULL,
    image_url TEXT,
    reference_meme_ids TEXT DEFAULT '[]',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS style_guides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guide_type TEXT NOT NULL,
    content TEXT NOT NULL,
    meme_count INTEGER DEFAULT 0,
    topics TEXT,
    humor_patterns TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_posts_url ON posts(url);
CREATE INDEX IF NOT EXISTS idx_posts_collected ON posts(collected_at);
CREATE INDEX IF NOT EXISTS idx_posts_analyzed ON posts(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_style_guides_created ON style_guides(created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
