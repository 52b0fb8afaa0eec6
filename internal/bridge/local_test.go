package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/document"
	"github.com/starford/notebridge/internal/store"
	"github.com/starford/notebridge/internal/wire"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newBridge(t *testing.T) (*Local, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	n := 0
	l := NewLocal(db,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return l, db
}

func stored(t *testing.T, db *store.DB, id string) *document.Document {
	t.Helper()
	row, err := db.FetchRow(context.Background(), id)
	require.NoError(t, err)
	doc, err := wire.Decode(row.Blob)
	require.NoError(t, err)
	return doc
}

func para(s string) document.Paragraph { return document.Paragraph{Runs: document.Plain(s)} }

func TestCreate(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()

	id, err := l.Create(ctx, "Groceries", "<h1>ignored</h1><ul class=\"checklist\"><li data-checked=\"false\">Milk</li><li data-checked=\"true\">Eggs</li></ul>", "Home")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	doc := stored(t, db, id)
	assert.Equal(t, "Groceries", doc.Title)
	assert.Equal(t, []document.Block{
		document.Checklist{Runs: document.Plain("Milk")},
		document.Checklist{Checked: true, Runs: document.Plain("Eggs")},
	}, doc.Blocks)

	row, err := db.FetchRow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Home", row.Folder)
	require.NotNil(t, row.CreatedAt)
	assert.True(t, row.CreatedAt.Equal(fixedNow))

	rows, err := db.ListRows(ctx, "Home", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Groceries", rows[0].Title)
}

func TestCreate_TitleFromMarkup(t *testing.T) {
	l, db := newBridge(t)
	id, err := l.Create(context.Background(), "", "<h1>From markup</h1><div>body</div>", "")
	require.NoError(t, err)
	assert.Equal(t, "From markup", stored(t, db, id).Title)
}

func TestCreate_RejectsMultilineTitle(t *testing.T) {
	l, _ := newBridge(t)
	_, err := l.Create(context.Background(), "two\nlines", "<div>x</div>", "")
	assert.ErrorIs(t, err, wire.ErrInvalidDocument)
}

func TestUpdate_TitleOnly(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, err := l.Create(ctx, "Old", "<div>first line</div><div>second</div>", "")
	require.NoError(t, err)

	title := "New"
	require.NoError(t, l.Update(ctx, id, &title, nil))

	doc := stored(t, db, id)
	assert.Equal(t, "New", doc.Title)
	assert.Equal(t, []document.Block{para("first line"), para("second")}, doc.Blocks)
}

func TestUpdate_BodyOnlyKeepsTitle(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, err := l.Create(ctx, "Keep me", "<div>old</div>", "")
	require.NoError(t, err)

	// The first line of a body-only update is body, not an assumed title.
	body := "<div>Keep me</div><div>new body</div>"
	require.NoError(t, l.Update(ctx, id, nil, &body))

	doc := stored(t, db, id)
	assert.Equal(t, "Keep me", doc.Title)
	assert.Equal(t, []document.Block{para("Keep me"), para("new body")}, doc.Blocks)
}

func TestUpdate_BodyWithOwnHeading(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, err := l.Create(ctx, "Report", "<div>draft</div>", "")
	require.NoError(t, err)

	body := "<h1>Report v2</h1><h1>Summary</h1><div>all good</div>"
	require.NoError(t, l.Update(ctx, id, nil, &body))

	doc := stored(t, db, id)
	assert.Equal(t, "Report v2", doc.Title)
	assert.Equal(t, []document.Block{
		document.Heading{Level: 1, Runs: document.Plain("Summary")},
		para("all good"),
	}, doc.Blocks)

	body = "<div>intro</div><h1>Section</h1>"
	require.NoError(t, l.Update(ctx, id, nil, &body))
	doc = stored(t, db, id)
	assert.Equal(t, "Report v2", doc.Title)
	assert.Equal(t, []document.Block{
		para("intro"),
		document.Heading{Level: 1, Runs: document.Plain("Section")},
	}, doc.Blocks)
}

func TestUpdate_Both(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, _ := l.Create(ctx, "A", "<div>a</div>", "")

	title, body := "B", "<h1>ignored</h1><div>b</div>"
	require.NoError(t, l.Update(ctx, id, &title, &body))

	doc := stored(t, db, id)
	assert.Equal(t, "B", doc.Title)
	assert.Equal(t, []document.Block{para("b")}, doc.Blocks)
}

func TestUpdate_Missing(t *testing.T) {
	l, _ := newBridge(t)
	title := "x"
	err := l.Update(context.Background(), "nope", &title, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, _ := l.Create(ctx, "Gone", "", "")

	require.NoError(t, l.Delete(ctx, id))
	_, err := db.FetchRow(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, l.Delete(ctx, id), apperr.ErrNotFound)
}

func TestAttachments(t *testing.T) {
	l, db := newBridge(t)
	ctx := context.Background()
	id, _ := l.Create(ctx, "With file", "<div>see attached</div>", "Docs")

	att, err := l.AddAttachment(ctx, id, "scan.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), att.Size)

	doc := stored(t, db, id)
	require.Len(t, doc.Attachments, 1)
	assert.Equal(t, "scan.pdf", doc.Attachments[0].Name)

	data, err := l.FetchAttachmentBytes(ctx, doc.Attachments[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	// Body updates keep the attachment records.
	body := "<div>replaced</div>"
	require.NoError(t, l.Update(ctx, id, nil, &body))
	assert.Len(t, stored(t, db, id).Attachments, 1)

	_, err = l.FetchAttachmentBytes(ctx, document.Attachment{ID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
