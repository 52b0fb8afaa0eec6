package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/notebridge/internal/bridge"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/storage"
	tu "github.com/starford/notebridge/internal/testutil"
	"github.com/starford/notebridge/internal/transfer"
)

type testEnv struct {
	router  http.Handler
	out     *storage.FS
	in      *storage.FS
	metrics *HTTPMetrics
}

// newTestEnv wires a temp store, export and import roots, service and router.
// An empty token disables auth.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	db := tu.TestDB(t)
	_, out := tu.TestRoot(t)
	_, in := tu.TestRoot(t)
	br := bridge.NewLocal(db)
	orch := transfer.New(db, br, transfer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := noteservice.NewService(db, br, orch, out, in, noteservice.WithDefaults(noteservice.Defaults{
		Format:      convert.FormatMarkdown,
		JSONMode:    convert.JSONMinimal,
		Frontmatter: true,
		Strategy:    transfer.StrategySkip,
	}))

	metrics, err := NewHTTPMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		router:  NewRouter(svc, token != "", token, nil, metrics),
		out:     out,
		in:      in,
		metrics: metrics,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, title, markup, folder string) noteservice.NoteDetail {
	t.Helper()
	w := e.do(t, http.MethodPost, "/notes", map[string]string{"title": title, "markup": markup, "folder": folder})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var note noteservice.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	e := newTestEnv(t, "")
	created := e.create(t, "Hello", "<div>World #greeting</div>", "Inbox")
	if created.ID == "" {
		t.Fatal("expected an id")
	}

	w := e.do(t, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note noteservice.NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Hello" || note.Folder != "Inbox" {
		t.Errorf("note = %+v", note)
	}
	if len(note.Hashtags) != 1 || note.Hashtags[0] != "greeting" {
		t.Errorf("hashtags = %v", note.Hashtags)
	}

	w = e.do(t, http.MethodGet, "/notes?folder=Inbox", nil)
	var list NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Notes) != 1 || list.Notes[0].ID != created.ID {
		t.Errorf("list = %+v", list.Notes)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodPost, "/notes", map[string]string{"folder": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title = %d, want 400", w.Code)
	}
	w = e.do(t, http.MethodPost, "/notes", map[string]string{"title": "a\nb"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("multi-line title = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestGetNoteFormats(t *testing.T) {
	e := newTestEnv(t, "")
	note := e.create(t, "Plan", "<div><b>bold</b> move</div>", "Work")

	cases := []struct {
		query    string
		wantType string
		contains string
	}{
		{"format=markdown", "text/markdown; charset=utf-8", "**bold**"},
		{"format=json&mode=full", "application/json", `"title"`},
		{"format=markup", "text/html; charset=utf-8", "<h1>Plan</h1>"},
		{"format=html", "text/html; charset=utf-8", "<strong>bold</strong>"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/notes/"+note.ID+"?"+tc.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			if got := w.Header().Get("Content-Type"); got != tc.wantType {
				t.Errorf("content type = %q", got)
			}
			if !strings.Contains(w.Body.String(), tc.contains) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tc.contains)
			}
		})
	}

	w := e.do(t, http.MethodGet, "/notes/"+note.ID+"?format=pdf", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", w.Code)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	e := newTestEnv(t, "")
	note := e.create(t, "Draft", "<div>body</div>", "")

	w := e.do(t, http.MethodPatch, "/notes/"+note.ID, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodPatch, "/notes/"+note.ID, map[string]string{"title": "Final"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated noteservice.NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Title != "Final" || updated.Body != "body" {
		t.Errorf("updated = %+v", updated)
	}

	w = e.do(t, http.MethodDelete, "/notes/"+note.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/notes/"+note.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	target := e.create(t, "Target", "<div>here</div>", "")
	src := e.create(t, "Source", `<div>see <a href="Target">it</a></div>`, "")

	w := e.do(t, http.MethodGet, "/notes/"+target.ID+"/backlinks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Backlinks []string `json:"backlinks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Backlinks) != 1 || resp.Backlinks[0] != src.ID {
		t.Errorf("backlinks = %v", resp.Backlinks)
	}
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t, "")
	e.create(t, "Trip", "<div>pack the tent</div>", "")

	w := e.do(t, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodGet, "/search?q=tent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Trip" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestExportImport(t *testing.T) {
	e := newTestEnv(t, "")
	e.create(t, "Standup", "<div>notes</div>", "Work")

	w := e.do(t, http.MethodPost, "/export", map[string]any{"format": "json"})
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TransferResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Succeeded != 1 || len(resp.Items) != 1 || resp.Items[0].Path != "Work/Standup.json" {
		t.Fatalf("export response = %+v", resp)
	}
	data, err := e.out.Read("Work/Standup.json")
	if err != nil {
		t.Fatal(err)
	}

	if err := e.in.Write("Work/Standup.json", data); err != nil {
		t.Fatal(err)
	}
	if err := e.in.Write("broken.json", []byte(`{"title": 3}`)); err != nil {
		t.Fatal(err)
	}
	w = e.do(t, http.MethodPost, "/import", map[string]any{"strategy": "ask"})
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	resp = TransferResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Failed != 1 || resp.Unresolved != 1 || len(resp.Conflicts) != 1 {
		t.Errorf("import response = %+v", resp)
	}
	for _, it := range resp.Items {
		if it.Source == "broken.json" && it.Kind != "conversion" {
			t.Errorf("broken item kind = %q", it.Kind)
		}
	}
}

func TestTransferValidation(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodPost, "/export", map[string]any{"format": "markup"}); w.Code != http.StatusBadRequest {
		t.Errorf("export markup = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/export", map[string]any{"json_mode": "huge"}); w.Code != http.StatusBadRequest {
		t.Errorf("export mode = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/import", map[string]any{"strategy": "merge"}); w.Code != http.StatusBadRequest {
		t.Errorf("import strategy = %d, want 400", w.Code)
	}
}

func TestAttachments(t *testing.T) {
	e := newTestEnv(t, "")
	note := e.create(t, "Scan", "<div>see file</div>", "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "receipt.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("total 12"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/notes/"+note.ID+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var info noteservice.AttachmentInfo
	_ = json.Unmarshal(w.Body.Bytes(), &info)
	if info.Name != "receipt.txt" || info.Size != 8 {
		t.Errorf("info = %+v", info)
	}

	w = e.do(t, http.MethodGet, "/notes/"+note.ID+"/attachments/"+info.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if w.Body.String() != "total 12" {
		t.Errorf("payload = %q", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "receipt.txt") {
		t.Errorf("disposition = %q", w.Header().Get("Content-Disposition"))
	}

	w = e.do(t, http.MethodGet, "/notes/"+note.ID+"/attachments/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing attachment = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, "secret")

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}

func TestHTTPMetrics(t *testing.T) {
	e := newTestEnv(t, "")
	note := e.create(t, "Counted", "<div>x</div>", "")
	e.do(t, http.MethodGet, "/notes/"+note.ID, nil)
	e.do(t, http.MethodGet, "/notes/missing", nil)

	if got := testutil.ToFloat64(e.metrics.requests.WithLabelValues(http.MethodGet, "/notes/{id}", "200")); got != 1 {
		t.Errorf("200 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.requests.WithLabelValues(http.MethodGet, "/notes/{id}", "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.requests.WithLabelValues(http.MethodPost, "/notes", "201")); got != 1 {
		t.Errorf("create count = %v, want 1", got)
	}
}
