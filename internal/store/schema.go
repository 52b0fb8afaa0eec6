// Package store provides the SQLite-backed private note store: encoded note
// blobs, their attachments and a search index over the plain text.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	folder      TEXT NOT NULL DEFAULT '',
	data        BLOB NOT NULL,
	markup      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER,
	modified_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_notes_folder_title ON notes(folder, title);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target TEXT NOT NULL,
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS attachments (
	id          TEXT PRIMARY KEY,
	note_id     TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	name        TEXT NOT NULL DEFAULT '',
	type_tag    TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	data        BLOB NOT NULL,
	created_at  INTEGER,
	modified_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_attachments_note ON attachments(note_id);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
