// Package noteservice is the facade the HTTP API, the MCP server and the CLI
// share: note reads and renders, bridge writes and transfer batches.
package noteservice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/bridge"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/document"
	"github.com/starford/notebridge/internal/storage"
	"github.com/starford/notebridge/internal/store"
	"github.com/starford/notebridge/internal/transfer"
	"github.com/starford/notebridge/internal/wire"
)

// FormatHTML selects the rendered preview in Render.
const FormatHTML convert.Format = "html"

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Folder      string           `json:"folder"`
	Body        string           `json:"body"`
	Hashtags    []string         `json:"hashtags"`
	Links       []string         `json:"links"`
	Backlinks   []string         `json:"backlinks"`
	Attachments []AttachmentInfo `json:"attachments"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"`
	ModifiedAt  *time.Time       `json:"modified_at,omitempty"`
}

// AttachmentInfo describes an attachment without its payload.
type AttachmentInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	TypeTag string `json:"type"`
	Size    int64  `json:"size"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem = store.RowSummary

// ExportRequest selects notes for an export batch. Without IDs every note in
// Folder (or every note) is exported.
type ExportRequest struct {
	IDs             []string         `json:"ids"`
	Folder          string           `json:"folder"`
	Format          convert.Format   `json:"format"`
	JSONMode        convert.JSONMode `json:"json_mode"`
	Frontmatter     *bool            `json:"frontmatter"`
	CopyAttachments *bool            `json:"copy_attachments"`
	DryRun          bool             `json:"dry_run"`
}

// ImportRequest selects artifacts under the import root by glob pattern.
type ImportRequest struct {
	Patterns      []string          `json:"patterns"`
	Folder        string            `json:"folder"`
	DefaultFolder string            `json:"default_folder"`
	Strategy      transfer.Strategy `json:"strategy"`
	DryRun        bool              `json:"dry_run"`
	// Resolve answers "ask" conflicts; only in-process callers can set it.
	Resolve transfer.Resolver `json:"-"`
}

// Defaults are applied to requests that leave a setting empty.
type Defaults struct {
	Format          convert.Format
	JSONMode        convert.JSONMode
	Frontmatter     bool
	CopyAttachments bool
	Workers         int
	Strategy        transfer.Strategy
	DefaultFolder   string
}

// ProgressFunc receives batch progress; direction is "export" or "import".
type ProgressFunc func(direction string, current, total int)

// NoteEventFunc receives note mutations; kind is created, updated, deleted
// or imported.
type NoteEventFunc func(kind, id string)

// Option configures a Service.
type Option func(*Service)

// WithDefaults sets the transfer defaults.
func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// WithProgress registers a batch progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Service) { s.progress = fn }
}

// WithNoteEvents registers a note mutation observer.
func WithNoteEvents(fn NoteEventFunc) Option {
	return func(s *Service) { s.events = fn }
}

// Service coordinates the store, the bridge and transfer batches.
type Service struct {
	db         *store.DB
	bridge     *bridge.Local
	orch       *transfer.Orchestrator
	exportRoot *storage.FS
	importRoot *storage.FS
	defaults   Defaults
	progress   ProgressFunc
	events     NoteEventFunc
}

// NewService creates a note service. exportRoot and importRoot may be nil
// when the corresponding batch direction is not used.
func NewService(db *store.DB, br *bridge.Local, orch *transfer.Orchestrator, exportRoot, importRoot *storage.FS, opts ...Option) *Service {
	s := &Service{
		db:         db,
		bridge:     br,
		orch:       orch,
		exportRoot: exportRoot,
		importRoot: importRoot,
		defaults:   Defaults{Format: convert.FormatMarkdown, JSONMode: convert.JSONMinimal, Strategy: transfer.StrategySkip},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNotes returns notes ordered by folder and title.
func (s *Service) ListNotes(ctx context.Context, folder string, limit int) ([]NoteListItem, error) {
	rows, err := s.db.ListRows(ctx, folder, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(rows), nil
}

// GetNote decodes a stored note and enriches it with backlinks.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return nil, err
	}
	// Links may name a note by id or by title.
	var bl []string
	seen := make(map[string]struct{})
	for _, target := range []string{doc.ID, doc.Title} {
		ids, err := s.db.Backlinks(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, dup := seen[id]; !dup && id != doc.ID {
				seen[id] = struct{}{}
				bl = append(bl, id)
			}
		}
	}
	links := make([]string, 0, len(doc.InternalLinks))
	for _, l := range doc.InternalLinks {
		links = append(links, l.Target)
	}
	atts := make([]AttachmentInfo, 0, len(doc.Attachments))
	for _, a := range doc.Attachments {
		atts = append(atts, AttachmentInfo{ID: a.ID, Name: a.Name, TypeTag: a.TypeTag, Size: a.Size})
	}
	return &NoteDetail{
		ID:          doc.ID,
		Title:       doc.Title,
		Folder:      doc.Folder,
		Body:        doc.Body(),
		Hashtags:    nonNilSlice(doc.Hashtags),
		Links:       links,
		Backlinks:   nonNilSlice(bl),
		Attachments: atts,
		CreatedAt:   doc.CreatedAt,
		ModifiedAt:  doc.ModifiedAt,
	}, nil
}

// Render returns a note in the requested representation and its media type.
func (s *Service) Render(ctx context.Context, id string, format convert.Format, mode convert.JSONMode) ([]byte, string, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return nil, "", err
	}
	switch format {
	case convert.FormatMarkdown, "":
		data, err := convert.ToMarkdown(doc, convert.MarkdownOptions{Frontmatter: true})
		return data, "text/markdown; charset=utf-8", err
	case convert.FormatJSON:
		if mode == "" {
			mode = s.defaults.JSONMode
		}
		if !mode.Valid() {
			return nil, "", apperr.Precondition("unknown json mode %q", mode)
		}
		data, err := convert.ToJSON(doc, mode)
		return data, "application/json", err
	case convert.FormatMarkup:
		return []byte(convert.ToMarkup(doc)), "text/html; charset=utf-8", nil
	case FormatHTML:
		md, err := convert.ToMarkdown(doc, convert.MarkdownOptions{})
		if err != nil {
			return nil, "", err
		}
		data, err := convert.RenderPreview(md)
		return data, "text/html; charset=utf-8", err
	}
	return nil, "", apperr.Precondition("unknown format %q", format)
}

// CreateNote writes a new note through the bridge.
func (s *Service) CreateNote(ctx context.Context, title, markup, folder string) (*NoteDetail, error) {
	id, err := s.bridge.Create(ctx, title, markup, folder)
	if err != nil {
		return nil, err
	}
	s.notify("created", id)
	return s.GetNote(ctx, id)
}

// UpdateNote replaces the title, the body or both.
func (s *Service) UpdateNote(ctx context.Context, id string, title, markup *string) (*NoteDetail, error) {
	if err := s.bridge.Update(ctx, id, title, markup); err != nil {
		return nil, err
	}
	s.notify("updated", id)
	return s.GetNote(ctx, id)
}

// DeleteNote removes a note.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if err := s.bridge.Delete(ctx, id); err != nil {
		return err
	}
	s.notify("deleted", id)
	return nil
}

// Search runs a full-text query over titles, bodies and hashtags.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	res, err := s.db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Backlinks returns the ids of notes linking to target.
func (s *Service) Backlinks(ctx context.Context, target string) ([]string, error) {
	bl, err := s.db.Backlinks(ctx, target)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// AddAttachment stores a payload for a note.
func (s *Service) AddAttachment(ctx context.Context, noteID, name, typeTag string, data []byte) (AttachmentInfo, error) {
	att, err := s.bridge.AddAttachment(ctx, noteID, name, typeTag, data)
	if err != nil {
		return AttachmentInfo{}, err
	}
	s.notify("updated", noteID)
	return AttachmentInfo{ID: att.ID, Name: att.Name, TypeTag: att.TypeTag, Size: att.Size}, nil
}

// Attachment returns an attachment of a note with its payload.
func (s *Service) Attachment(ctx context.Context, noteID, attID string) (AttachmentInfo, []byte, error) {
	atts, err := s.db.Attachments(ctx, noteID)
	if err != nil {
		return AttachmentInfo{}, nil, err
	}
	for _, a := range atts {
		if a.ID != attID {
			continue
		}
		data, err := s.bridge.FetchAttachmentBytes(ctx, a)
		if err != nil {
			return AttachmentInfo{}, nil, err
		}
		return AttachmentInfo{ID: a.ID, Name: a.Name, TypeTag: a.TypeTag, Size: a.Size}, data, nil
	}
	return AttachmentInfo{}, nil, apperr.ErrNotFound
}

// Export runs an export batch into the export root.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*transfer.Result, error) {
	ids := req.IDs
	if len(ids) == 0 {
		rows, err := s.db.ListRows(ctx, req.Folder, 0)
		if err != nil {
			return nil, fmt.Errorf("noteservice: export: %w", err)
		}
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
	}
	opts := transfer.ExportOptions{
		Format:          firstNonEmpty(req.Format, s.defaults.Format),
		JSONMode:        firstNonEmpty(req.JSONMode, s.defaults.JSONMode),
		Frontmatter:     boolOr(req.Frontmatter, s.defaults.Frontmatter),
		CopyAttachments: boolOr(req.CopyAttachments, s.defaults.CopyAttachments),
		DryRun:          req.DryRun,
		Workers:         s.defaults.Workers,
		Progress:        s.progressFor("export"),
	}
	if s.exportRoot != nil {
		opts.Output = s.exportRoot
	}
	return s.orch.Export(ctx, ids, opts)
}

// Import runs an import batch over the artifacts matching req.Patterns under
// the import root. Without patterns every supported artifact is imported.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*transfer.Result, error) {
	if s.importRoot == nil {
		return nil, apperr.Precondition("no import directory configured")
	}
	sources, err := s.ImportSources(req.Patterns)
	if err != nil {
		return nil, err
	}
	return s.ImportFiles(ctx, sources, req)
}

// ImportFiles imports the given paths relative to the import root.
func (s *Service) ImportFiles(ctx context.Context, sources []string, req ImportRequest) (*transfer.Result, error) {
	if s.importRoot == nil {
		return nil, apperr.Precondition("no import directory configured")
	}
	res, err := s.orch.Import(ctx, sources, transfer.ImportOptions{
		Source:        s.importRoot,
		Folder:        req.Folder,
		DefaultFolder: firstNonEmpty(req.DefaultFolder, s.defaults.DefaultFolder),
		Strategy:      firstNonEmpty(req.Strategy, s.defaults.Strategy),
		Resolve:       req.Resolve,
		DryRun:        req.DryRun,
		Progress:      s.progressFor("import"),
	})
	if err != nil {
		return nil, err
	}
	for _, it := range res.Items {
		if it.State == transfer.StateSucceeded && it.ID != "" {
			s.notify("imported", it.ID)
		}
	}
	return res, nil
}

// ImportSources expands glob patterns under the import root into a sorted,
// de-duplicated list of artifacts with a supported extension.
func (s *Service) ImportSources(patterns []string) ([]string, error) {
	if s.importRoot == nil {
		return nil, apperr.Precondition("no import directory configured")
	}
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := s.importRoot.Glob(p)
		if err != nil {
			return nil, apperr.Precondition("bad pattern %q: %v", p, err)
		}
		for _, m := range matches {
			if _, ok := convert.FormatForPath(m); !ok {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) document(ctx context.Context, id string) (*document.Document, error) {
	row, err := s.db.FetchRow(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := wire.Decode(row.Blob)
	if err != nil {
		return nil, apperr.New(apperr.KindDecode, id, err)
	}
	doc.ID = row.ID
	doc.Folder = row.Folder
	doc.CreatedAt = row.CreatedAt
	doc.ModifiedAt = row.ModifiedAt
	return doc, nil
}

func (s *Service) progressFor(direction string) transfer.ProgressFunc {
	if s.progress == nil {
		return nil
	}
	return func(current, total int) { s.progress(direction, current, total) }
}

func (s *Service) notify(kind, id string) {
	if s.events != nil {
		s.events(kind, id)
	}
}

func firstNonEmpty[T ~string](v, fallback T) T {
	if v == "" {
		return fallback
	}
	return v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
