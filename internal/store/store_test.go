package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/document"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "links", "attachments"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndFetchRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := NoteRecord{
		ID:        "n1",
		Title:     "Hello",
		Folder:    "Work",
		Blob:      []byte{1, 2, 3},
		Markup:    "<h1>Hello</h1>",
		Body:      "hello world",
		Hashtags:  []string{"go"},
		CreatedAt: &created,
	}
	if err := db.UpsertNote(ctx, rec); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	row, err := db.FetchRow(ctx, "n1")
	if err != nil {
		t.Fatalf("FetchRow: %v", err)
	}
	if !reflect.DeepEqual(row.Blob, []byte{1, 2, 3}) || row.Folder != "Work" {
		t.Errorf("row = %+v", row)
	}
	if row.CreatedAt == nil || !row.CreatedAt.Equal(created) {
		t.Errorf("created = %v", row.CreatedAt)
	}
	if row.ModifiedAt != nil {
		t.Errorf("modified = %v, want nil", row.ModifiedAt)
	}

	rec.Title, rec.Blob = "Hello again", []byte{9}
	if err := db.UpsertNote(ctx, rec); err != nil {
		t.Fatalf("UpsertNote (update): %v", err)
	}
	title, markup, err := db.NoteMarkup(ctx, "n1")
	if err != nil {
		t.Fatalf("NoteMarkup: %v", err)
	}
	if title != "Hello again" || markup != "<h1>Hello</h1>" {
		t.Errorf("title=%q markup=%q", title, markup)
	}
}

func TestFetchRowNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.FetchRow(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, r := range []NoteRecord{
		{ID: "3", Title: "b", Folder: "Work", Blob: []byte{0}},
		{ID: "1", Title: "a", Folder: "Work", Blob: []byte{0}},
		{ID: "2", Title: "z", Folder: "Home", Blob: []byte{0}},
	} {
		if err := db.UpsertNote(ctx, r); err != nil {
			t.Fatalf("UpsertNote: %v", err)
		}
	}

	all, err := db.ListRows(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if want := []string{"2", "1", "3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	work, _ := db.ListRows(ctx, "Work", 1)
	if len(work) != 1 || work[0].ID != "1" {
		t.Errorf("work = %+v", work)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertNote(ctx, NoteRecord{ID: "a", Blob: []byte{0}, Links: []string{"b"}})
	if err := db.PutAttachment(ctx, "a", document.Attachment{ID: "att", Name: "x.png"}, []byte("png")); err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}

	if err := db.DeleteNote(ctx, "a"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := db.AttachmentData(ctx, "att"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("attachment survived delete: %v", err)
	}
	bl, _ := db.Backlinks(ctx, "b")
	if len(bl) != 0 {
		t.Errorf("backlinks survived delete: %v", bl)
	}
	if err := db.DeleteNote(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertNote(ctx, NoteRecord{ID: "a", Blob: []byte{0}, Links: []string{"c"}})
	_ = db.UpsertNote(ctx, NoteRecord{ID: "b", Blob: []byte{0}, Links: []string{"c", "c"}})

	bl, err := db.Backlinks(ctx, "c")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(bl, want) {
		t.Errorf("backlinks = %v, want %v", bl, want)
	}

	_ = db.UpsertNote(ctx, NoteRecord{ID: "a", Blob: []byte{0}})
	bl, _ = db.Backlinks(ctx, "c")
	if want := []string{"b"}; !reflect.DeepEqual(bl, want) {
		t.Errorf("backlinks after relink = %v, want %v", bl, want)
	}
}

func TestAttachments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertNote(ctx, NoteRecord{ID: "n", Blob: []byte{0}})

	if err := db.PutAttachment(ctx, "n", document.Attachment{ID: "2", Name: "b.pdf", TypeTag: "application/pdf"}, []byte("pdf!")); err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}
	_ = db.PutAttachment(ctx, "n", document.Attachment{ID: "1", Name: "a.png"}, []byte("png"))

	atts, err := db.Attachments(ctx, "n")
	if err != nil {
		t.Fatalf("Attachments: %v", err)
	}
	if len(atts) != 2 || atts[0].Name != "a.png" || atts[1].Size != 4 {
		t.Errorf("attachments = %+v", atts)
	}

	data, err := db.AttachmentData(ctx, "2")
	if err != nil || string(data) != "pdf!" {
		t.Errorf("data = %q, err = %v", data, err)
	}

	if err := db.PutAttachment(ctx, "missing", document.Attachment{ID: "3"}, nil); err == nil {
		t.Error("expected foreign key violation for unknown note")
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertNote(ctx, NoteRecord{ID: "s", Title: "Trip", Folder: "Travel", Blob: []byte{0}, Body: "pack sunscreen"})

	results, err := db.Search(ctx, "sunscreen", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" || results[0].Folder != "Travel" {
		t.Errorf("results = %+v", results)
	}
}
