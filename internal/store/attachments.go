package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/document"
)

// PutAttachment stores an attachment payload for a note. The note must exist.
func (db *DB) PutAttachment(ctx context.Context, noteID string, a document.Attachment, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attachments (id, note_id, name, type_tag, size, data, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			note_id     = excluded.note_id,
			name        = excluded.name,
			type_tag    = excluded.type_tag,
			size        = excluded.size,
			data        = excluded.data,
			created_at  = excluded.created_at,
			modified_at = excluded.modified_at
	`, a.ID, noteID, a.Name, a.TypeTag, int64(len(data)), data, toMillis(a.CreatedAt), toMillis(a.ModifiedAt))
	if err != nil {
		return fmt.Errorf("store: put attachment: %w", err)
	}
	return nil
}

// Attachments returns the attachment metadata of a note ordered by name.
func (db *DB) Attachments(ctx context.Context, noteID string) ([]document.Attachment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, type_tag, size, created_at, modified_at
		FROM attachments
		WHERE note_id = ?
		ORDER BY name, id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: attachments: %w", err)
	}
	defer rows.Close()

	var out []document.Attachment
	for rows.Next() {
		var (
			a                 document.Attachment
			created, modified sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.TypeTag, &a.Size, &created, &modified); err != nil {
			return nil, err
		}
		a.CreatedAt, a.ModifiedAt = fromMillis(created), fromMillis(modified)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AttachmentData returns the payload of an attachment.
func (db *DB) AttachmentData(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM attachments WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: attachment data: %w", err)
	}
	return data, nil
}
