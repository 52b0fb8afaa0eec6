package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notebridge/internal/apperr"
)

// Row is one stored note as the transfer layer sees it: the encoded blob plus
// the columns kept beside it.
type Row struct {
	ID         string
	Blob       []byte
	Folder     string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

// RowSummary is a lightweight listing entry.
type RowSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Folder     string     `json:"folder"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// NoteRecord is everything written for one note.
type NoteRecord struct {
	ID         string
	Title      string
	Folder     string
	Blob       []byte
	Markup     string
	Body       string
	Hashtags   []string
	Links      []string // internal link targets
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Folder  string `json:"folder"`
	Snippet string `json:"snippet"`
}

// UpsertNote inserts or replaces a note, its search entry and links within a
// transaction.
func (db *DB) UpsertNote(ctx context.Context, n NoteRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.Blob == nil {
		n.Blob = []byte{}
	}
	tags := n.Hashtags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, folder, data, markup, body, tags, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			folder      = excluded.folder,
			data        = excluded.data,
			markup      = excluded.markup,
			body        = excluded.body,
			tags        = excluded.tags,
			created_at  = excluded.created_at,
			modified_at = excluded.modified_at
	`, n.ID, n.Title, n.Folder, n.Blob, n.Markup, n.Body, string(tagsJSON),
		toMillis(n.CreatedAt), toMillis(n.ModifiedAt))
	if err != nil {
		return fmt.Errorf("store: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.ID, n.Title, n.Body, n.Hashtags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source = ?`, n.ID); err != nil {
		return fmt.Errorf("store: clear links: %w", err)
	}
	if len(n.Links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range n.Links {
			if _, err := stmt.ExecContext(ctx, n.ID, target); err != nil {
				return fmt.Errorf("store: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note with its links, attachments and search entry.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// FetchRow returns the stored blob of a note.
func (db *DB) FetchRow(ctx context.Context, id string) (Row, error) {
	var (
		r                 Row
		created, modified sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, data, folder, created_at, modified_at FROM notes WHERE id = ?`, id).
		Scan(&r.ID, &r.Blob, &r.Folder, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, apperr.ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("store: fetch row: %w", err)
	}
	r.CreatedAt, r.ModifiedAt = fromMillis(created), fromMillis(modified)
	return r, nil
}

// NoteMarkup returns the markup last written for a note.
func (db *DB) NoteMarkup(ctx context.Context, id string) (title, markup string, err error) {
	err = db.conn.QueryRowContext(ctx, `SELECT title, markup FROM notes WHERE id = ?`, id).Scan(&title, &markup)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperr.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("store: note markup: %w", err)
	}
	return title, markup, nil
}

// ListRows lists notes ordered by folder, title and id. An empty folder lists
// every folder; a non-positive limit lists everything.
func (db *DB) ListRows(ctx context.Context, folder string, limit int) ([]RowSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, folder, modified_at
		FROM notes
		WHERE ? = '' OR folder = ?
		ORDER BY folder, title, id
		LIMIT ?
	`, folder, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	defer rows.Close()

	var out []RowSummary
	for rows.Next() {
		var (
			s        RowSummary
			modified sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Folder, &modified); err != nil {
			return nil, err
		}
		s.ModifiedAt = fromMillis(modified)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Backlinks returns the ids of notes linking to target.
func (db *DB) Backlinks(ctx context.Context, target string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("store: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
