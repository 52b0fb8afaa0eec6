// Package bridge implements the write-side collaborator of the transfer
// pipeline against the local SQLite store. Writes arrive as markup, are
// parsed into documents and stored as encoded blobs.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/document"
	"github.com/starford/notebridge/internal/store"
	"github.com/starford/notebridge/internal/wire"
)

// Option configures a Local bridge.
type Option func(*Local)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Local) { l.now = now }
}

// WithIDGenerator overrides how new note identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(l *Local) { l.newID = newID }
}

// Local is a bridge backed by the local store. Calls are serialized, like a
// host application applying one automation command at a time.
type Local struct {
	mu    sync.Mutex
	db    *store.DB
	now   func() time.Time
	newID func() string
}

// NewLocal returns a bridge writing into db.
func NewLocal(db *store.DB, opts ...Option) *Local {
	l := &Local{db: db, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create stores a new note built from markup and returns its identifier. A
// non-empty title overrides the markup's leading heading.
func (l *Local) Create(ctx context.Context, title, markup, folder string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := convert.ParseMarkup(markup)
	if err != nil {
		return "", fmt.Errorf("bridge: create: %w", err)
	}
	if title != "" {
		doc.Title = title
	}
	now := l.now().UTC().Truncate(time.Millisecond)
	doc.ID = l.newID()
	doc.Folder = folder
	doc.CreatedAt, doc.ModifiedAt = &now, &now

	if err := l.save(ctx, doc); err != nil {
		return "", fmt.Errorf("bridge: create: %w", err)
	}
	return doc.ID, nil
}

// Update changes the title, the body or both of an existing note. A nil
// argument leaves that half untouched. When only markup is given, a leading
// <h1> in it sets the title; markup without one keeps the stored title and
// every block of the markup becomes body.
func (l *Local) Update(ctx context.Context, id string, title, markup *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load(ctx, id)
	if err != nil {
		return fmt.Errorf("bridge: update %s: %w", id, err)
	}
	if markup != nil {
		parsed, err := convert.ParseMarkup(*markup)
		if err != nil {
			return fmt.Errorf("bridge: update %s: %w", id, err)
		}
		doc.Blocks = parsed.Blocks
		if title == nil && parsed.Title != "" {
			doc.Title = parsed.Title
		}
	}
	if title != nil {
		doc.Title = *title
	}
	now := l.now().UTC().Truncate(time.Millisecond)
	doc.ModifiedAt = &now

	if err := l.save(ctx, doc); err != nil {
		return fmt.Errorf("bridge: update %s: %w", id, err)
	}
	return nil
}

// Delete removes a note and its attachments.
func (l *Local) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.DeleteNote(ctx, id); err != nil {
		return fmt.Errorf("bridge: delete %s: %w", id, err)
	}
	return nil
}

// FetchAttachmentBytes returns the payload of an attachment.
func (l *Local) FetchAttachmentBytes(ctx context.Context, ref document.Attachment) ([]byte, error) {
	data, err := l.db.AttachmentData(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("bridge: attachment %s: %w", ref.ID, err)
	}
	return data, nil
}

// AddAttachment stores a payload for a note and records it in the note's
// blob. The attachment id is minted by the bridge.
func (l *Local) AddAttachment(ctx context.Context, noteID, name, typeTag string, data []byte) (document.Attachment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load(ctx, noteID)
	if err != nil {
		return document.Attachment{}, fmt.Errorf("bridge: attach to %s: %w", noteID, err)
	}
	now := l.now().UTC().Truncate(time.Millisecond)
	att := document.Attachment{
		ID:         l.newID(),
		Name:       name,
		TypeTag:    typeTag,
		Size:       int64(len(data)),
		CreatedAt:  &now,
		ModifiedAt: &now,
	}
	if err := l.db.PutAttachment(ctx, noteID, att, data); err != nil {
		return document.Attachment{}, fmt.Errorf("bridge: attach to %s: %w", noteID, err)
	}
	doc.Attachments = append(doc.Attachments, att)
	doc.ModifiedAt = &now
	if err := l.save(ctx, doc); err != nil {
		return document.Attachment{}, fmt.Errorf("bridge: attach to %s: %w", noteID, err)
	}
	return att, nil
}

func (l *Local) load(ctx context.Context, id string) (*document.Document, error) {
	row, err := l.db.FetchRow(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := wire.Decode(row.Blob)
	if err != nil {
		return nil, fmt.Errorf("decode stored blob: %w", err)
	}
	doc.ID = row.ID
	doc.Folder = row.Folder
	doc.CreatedAt = row.CreatedAt
	return doc, nil
}

func (l *Local) save(ctx context.Context, doc *document.Document) error {
	d := doc.Derive()
	blob, err := wire.EncodeDocument(&d)
	if err != nil {
		return err
	}
	links := make([]string, 0, len(d.InternalLinks))
	for _, link := range d.InternalLinks {
		links = append(links, link.Target)
	}
	return l.db.UpsertNote(ctx, store.NoteRecord{
		ID:         d.ID,
		Title:      d.Title,
		Folder:     d.Folder,
		Blob:       blob,
		Markup:     convert.ToMarkup(&d),
		Body:       d.Body(),
		Hashtags:   d.Hashtags,
		Links:      links,
		CreatedAt:  d.CreatedAt,
		ModifiedAt: d.ModifiedAt,
	})
}
