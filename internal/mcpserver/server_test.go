package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notebridge/internal/bridge"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/storage"
	"github.com/starford/notebridge/internal/testutil"
	"github.com/starford/notebridge/internal/transfer"
)

type testEnv struct {
	srv *Server
	out *storage.FS
	in  *storage.FS
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.TestDB(t)
	_, out := testutil.TestRoot(t)
	_, in := testutil.TestRoot(t)
	br := bridge.NewLocal(db)
	orch := transfer.New(db, br, transfer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := noteservice.NewService(db, br, orch, out, in)
	return &testEnv{srv: New(svc, "test"), out: out, in: in}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_notes":        srv.listNotes,
		"read_note":         srv.readNote,
		"search_notes":      srv.searchNotes,
		"get_backlinks":     srv.getBacklinks,
		"create_note":       srv.createNote,
		"attach_file":       srv.attachFile,
		"export_notes":      srv.exportNotes,
		"import_notes":      srv.importNotes,
		"get_note_contract": srv.getNoteContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createNote(t *testing.T, srv *Server, title, markup string) string {
	t.Helper()
	r := callTool(t, srv, "create_note", map[string]any{"title": title, "markup": markup})
	if r.IsError {
		t.Fatalf("create_note: %s", resultText(r))
	}
	return strings.TrimPrefix(resultText(r), "created: ")
}

func TestCreateAndReadNote(t *testing.T) {
	env := testServer(t)
	id := createNote(t, env.srv, "Test", "<div>Hello</div>")

	r := callTool(t, env.srv, "read_note", map[string]any{"id": id})
	if text := resultText(r); !strings.Contains(text, "Hello") || !strings.Contains(text, `title: "Test"`) {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, env.srv, "read_note", map[string]any{"id": id, "format": "markup"})
	if text := resultText(r); !strings.HasPrefix(text, "<h1>Test</h1>") {
		t.Errorf("markup result = %q", text)
	}
}

func TestCreateNoteValidation(t *testing.T) {
	env := testServer(t)
	if r := callTool(t, env.srv, "create_note", map[string]any{}); !r.IsError {
		t.Error("expected error for empty note")
	}
	if r := callTool(t, env.srv, "create_note", map[string]any{"title": "a\nb"}); !r.IsError {
		t.Error("expected error for multi-line title")
	}
}

func TestListNotes(t *testing.T) {
	env := testServer(t)
	createNote(t, env.srv, "A", "<div>a</div>")
	createNote(t, env.srv, "B", "<div>b</div>")

	r := callTool(t, env.srv, "list_notes", map[string]any{})
	lines := strings.Split(resultText(r), "\n")
	if len(lines) != 2 {
		t.Errorf("list = %q, want 2 lines", resultText(r))
	}
}

func TestReadNoteMissing(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "read_note", map[string]any{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
	if resultText(r) != "not found" {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	env := testServer(t)
	createNote(t, env.srv, "B", "<div>target</div>")
	a := createNote(t, env.srv, "A", `<div>links to <a href="B">b</a></div>`)
	c := createNote(t, env.srv, "C", "<div>unrelated</div>")

	r := callTool(t, env.srv, "list_notes", map[string]any{})
	var bID string
	for _, line := range strings.Split(resultText(r), "\n") {
		if strings.HasSuffix(line, "\tB") {
			bID = strings.SplitN(line, "\t", 2)[0]
		}
	}

	r = callTool(t, env.srv, "get_backlinks", map[string]any{"id": bID})
	if text := resultText(r); text != a {
		t.Errorf("backlinks = %q, want %s", text, a)
	}
	r = callTool(t, env.srv, "get_backlinks", map[string]any{"id": c})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestExportAndImportNotes(t *testing.T) {
	env := testServer(t)
	createNote(t, env.srv, "Plan", "<div>ship it</div>")

	r := callTool(t, env.srv, "export_notes", map[string]any{"format": "json"})
	if r.IsError {
		t.Fatalf("export: %s", resultText(r))
	}
	var sum batchSummary
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 1 || sum.Items[0].Path != "Plan.json" {
		t.Fatalf("export summary = %+v", sum)
	}

	if err := env.in.Write("Plan.md", []byte("# Plan\nagain")); err != nil {
		t.Fatal(err)
	}
	if err := env.in.Write("Fresh.md", []byte("new")); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, env.srv, "import_notes", map[string]any{"patterns": []any{"*.md"}, "strategy": "duplicate"})
	if r.IsError {
		t.Fatalf("import: %s", resultText(r))
	}
	sum = batchSummary{}
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 2 || len(sum.Conflicts) != 1 {
		t.Errorf("import summary = %+v", sum)
	}

	r = callTool(t, env.srv, "import_notes", map[string]any{"strategy": "merge"})
	if !r.IsError {
		t.Error("expected error for unknown strategy")
	}
}

func TestAttachFileDataURI(t *testing.T) {
	env := testServer(t)
	id := createNote(t, env.srv, "Receipt", "<div>scan</div>")

	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("total 12"))
	r := callTool(t, env.srv, "attach_file", map[string]any{"note_id": id, "url": uri, "filename": "receipt.txt"})
	if r.IsError {
		t.Fatalf("attach_file: %s", resultText(r))
	}
	var info noteservice.AttachmentInfo
	if err := json.Unmarshal([]byte(resultText(r)), &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "receipt.txt" || info.Size != 8 {
		t.Errorf("info = %+v", info)
	}

	bad := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png"))
	if r := callTool(t, env.srv, "attach_file", map[string]any{"note_id": id, "url": bad}); !r.IsError {
		t.Error("expected error for mismatched content")
	}
	if r := callTool(t, env.srv, "attach_file", map[string]any{"note_id": id, "url": "ftp://example.com/x.png"}); !r.IsError {
		t.Error("expected error for unsupported scheme")
	}
}

func TestCheckBlockedHost(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "169.254.169.254", "metadata.google.internal"} {
		if err := checkBlockedHost(host); err == nil {
			t.Errorf("checkBlockedHost(%q) = nil, want error", host)
		}
	}
	if err := checkBlockedHost("93.184.216.34"); err != nil {
		t.Errorf("public address blocked: %v", err)
	}
}

func TestGetNoteContract(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "get_note_contract", map[string]any{})
	if !strings.Contains(resultText(r), "checklist") {
		t.Error("contract does not describe checklists")
	}
}
