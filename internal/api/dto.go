package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/transfer"
)

// CreateNoteRequest is the request body for creating a note. Markup is the
// HTML fragment the bridge accepts; a leading <h1> sets the title when Title
// is empty.
type CreateNoteRequest struct {
	Title  string `json:"title"`
	Markup string `json:"markup"`
	Folder string `json:"folder"`
}

// Validate checks that the note has a title source.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.When(r.Markup == "", validation.Required.Error("title or markup is required")), validation.By(singleLine)),
		validation.Field(&r.Folder, validation.Length(0, 512)),
	)
}

// UpdateNoteRequest is the request body for a partial update. A missing field
// keeps that half of the note.
type UpdateNoteRequest struct {
	Title  *string `json:"title"`
	Markup *string `json:"markup"`
}

// Validate requires at least one field.
func (r UpdateNoteRequest) Validate() error {
	if r.Title == nil && r.Markup == nil {
		return errors.New("title or markup is required")
	}
	if r.Title != nil {
		return singleLine(*r.Title)
	}
	return nil
}

// ExportRequest is the request body of POST /api/export.
type ExportRequest noteservice.ExportRequest

// Validate checks the format settings.
func (r ExportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Format, validation.In(convert.FormatMarkdown, convert.FormatJSON)),
		validation.Field(&r.JSONMode, validation.In(convert.JSONMinimal, convert.JSONFull)),
	)
}

// ImportRequest is the request body of POST /api/import.
type ImportRequest noteservice.ImportRequest

// Validate checks the conflict strategy.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Strategy, validation.In(
			transfer.StrategySkip, transfer.StrategyReplace, transfer.StrategyDuplicate, transfer.StrategyAsk)),
	)
}

func singleLine(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "\r\n") {
		return errors.New("must be a single line")
	}
	return nil
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []noteservice.NoteListItem `json:"notes"`
}

// ItemResponse is one transfer item with its error flattened to text.
type ItemResponse struct {
	Source string `json:"source"`
	State  string `json:"state"`
	Path   string `json:"path,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TransferResponse is the JSON form of a transfer.Result.
type TransferResponse struct {
	Succeeded  int                 `json:"succeeded"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	Unresolved int                 `json:"unresolved"`
	Conflicts  []transfer.Conflict `json:"conflicts"`
	Items      []ItemResponse      `json:"items"`
	Cancelled  bool                `json:"cancelled"`
	DryRun     bool                `json:"dry_run"`
}

func transferResponse(r *transfer.Result) TransferResponse {
	out := TransferResponse{
		Succeeded:  r.Succeeded,
		Skipped:    len(r.Skipped),
		Failed:     len(r.Failures),
		Unresolved: r.Unresolved(),
		Conflicts:  r.Conflicts,
		Items:      make([]ItemResponse, len(r.Items)),
		Cancelled:  r.Cancelled,
		DryRun:     r.DryRun,
	}
	if out.Conflicts == nil {
		out.Conflicts = []transfer.Conflict{}
	}
	for i, it := range r.Items {
		item := ItemResponse{Source: it.Source, State: it.State.String(), Path: it.Path, ID: it.ID, Reason: it.Reason}
		if it.Err != nil {
			item.Kind = string(apperr.KindOf(it.Err))
			item.Error = it.Err.Error()
		}
		out.Items[i] = item
	}
	return out
}
