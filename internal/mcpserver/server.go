// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notebridge tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/transfer"
)

const formatsURI = "notebridge://formats"

// Server wraps the MCP server with notebridge tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notebridge tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notebridge",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes in the store, optionally restricted to one folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes (0 for no limit)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note rendered as markdown (default), json, markup or html."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("format", mcp.Description("markdown, json, markup or html"),
			mcp.Enum("markdown", "json", "markup", "html")),
		mcp.WithString("mode", mcp.Description("JSON mode: minimal or full"), mcp.Enum("minimal", "full")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, bodies and hashtags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The body is an HTML fragment in the note markup "+
			"described by get_note_contract or the "+formatsURI+" resource."),
		mcp.WithString("title", mcp.Description("Note title; taken from a leading <h1> when empty")),
		mcp.WithString("markup", mcp.Description("Body markup")),
		mcp.WithString("folder", mcp.Description("Folder path, '/' separated")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("attach_file",
		mcp.WithDescription("Attach a file to a note from an http(s) URL or a base64 data URI."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note to attach to")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data>")),
		mcp.WithString("filename", mcp.Description("Optional attachment name")),
	), s.attachFile)

	s.mcp.AddTool(mcp.NewTool("export_notes",
		mcp.WithDescription("Export notes into the export directory as markdown or json files."),
		mcp.WithArray("ids", mcp.Description("Note ids; empty exports the folder or everything"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("folder", mcp.Description("Folder to export when ids is empty")),
		mcp.WithString("format", mcp.Description("markdown or json"), mcp.Enum("markdown", "json")),
		mcp.WithString("json_mode", mcp.Description("minimal or full"), mcp.Enum("minimal", "full")),
		mcp.WithBoolean("dry_run", mcp.Description("Report what would be written without writing")),
	), s.exportNotes)

	s.mcp.AddTool(mcp.NewTool("import_notes",
		mcp.WithDescription("Import markdown, json and html files from the import directory."),
		mcp.WithArray("patterns", mcp.Description("Glob patterns relative to the import directory (default **/*)"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("folder", mcp.Description("Folder that overrides each file's own folder")),
		mcp.WithString("strategy", mcp.Description("Conflict strategy"),
			mcp.Enum("skip", "replace", "duplicate", "ask")),
		mcp.WithBoolean("dry_run", mcp.Description("Detect conflicts without creating notes")),
	), s.importNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note markup and file format contract. "+
			"Call this before creating notes or preparing import files."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(formatsURI, "Note Formats",
			mcp.WithResourceDescription("Note markup and the markdown, json and html file formats."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListNotes(ctx, req.GetString("folder", ""), req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", it.ID, it.Folder, it.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := convert.Format(req.GetString("format", string(convert.FormatMarkdown)))
	data, _, err := s.svc.Render(ctx, id, format, convert.JSONMode(req.GetString("mode", "")))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	if len(note.Backlinks) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(note.Backlinks, "\n")), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	markup := req.GetString("markup", "")
	if title == "" && markup == "" {
		return mcp.NewToolResultError("title or markup is required"), nil
	}
	if strings.ContainsAny(title, "\r\n") {
		return mcp.NewToolResultError("title must be a single line"), nil
	}
	note, err := s.svc.CreateNote(ctx, title, markup, req.GetString("folder", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.ID)), nil
}

func (s *Server) exportNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Export(ctx, noteservice.ExportRequest{
		IDs:      req.GetStringSlice("ids", nil),
		Folder:   req.GetString("folder", ""),
		Format:   convert.Format(req.GetString("format", "")),
		JSONMode: convert.JSONMode(req.GetString("json_mode", "")),
		DryRun:   req.GetBool("dry_run", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(summarize(res)), nil
}

func (s *Server) importNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	strategy := transfer.Strategy(req.GetString("strategy", ""))
	if strategy != "" && !strategy.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown strategy %q", strategy)), nil
	}
	res, err := s.svc.Import(ctx, noteservice.ImportRequest{
		Patterns: req.GetStringSlice("patterns", nil),
		Folder:   req.GetString("folder", ""),
		Strategy: strategy,
		DryRun:   req.GetBool("dry_run", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(summarize(res)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readFormatsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatsURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

type itemSummary struct {
	Source string `json:"source"`
	State  string `json:"state"`
	Path   string `json:"path,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type batchSummary struct {
	Succeeded  int                 `json:"succeeded"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	Unresolved int                 `json:"unresolved"`
	Conflicts  []transfer.Conflict `json:"conflicts,omitempty"`
	Cancelled  bool                `json:"cancelled,omitempty"`
	DryRun     bool                `json:"dry_run,omitempty"`
	Items      []itemSummary       `json:"items"`
}

func summarize(r *transfer.Result) batchSummary {
	out := batchSummary{
		Succeeded:  r.Succeeded,
		Skipped:    len(r.Skipped),
		Failed:     len(r.Failures),
		Unresolved: r.Unresolved(),
		Conflicts:  r.Conflicts,
		Cancelled:  r.Cancelled,
		DryRun:     r.DryRun,
		Items:      make([]itemSummary, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		is := itemSummary{Source: it.Source, State: it.State.String(), Path: it.Path, ID: it.ID, Reason: it.Reason}
		if it.Err != nil {
			is.Error = it.Err.Error()
		}
		out.Items = append(out.Items, is)
	}
	return out
}
