package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/transfer"
)

func TestRender(t *testing.T) {
	res := &transfer.Result{
		Succeeded: 1,
		Skipped:   []transfer.Skip{{Item: "b.md", Reason: "already exists"}},
		Failures:  []transfer.Failure{{Item: "c.json"}},
		Items: []transfer.Item{
			{Source: "a.md", State: transfer.StateSucceeded, ID: "n-1"},
			{Source: "b.md", State: transfer.StateSkipped, Reason: "already exists"},
			{Source: "c.json", State: transfer.StateFailed, Err: apperr.New(apperr.KindConversion, "c.json", errors.New("title must be a string"))},
		},
	}

	var buf bytes.Buffer
	if err := Render(&buf, "import", res); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"SOURCE", "a.md", "n-1", "already exists", "conversion c.json: title must be a string",
		"import: 1 succeeded, 1 skipped, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary(t *testing.T) {
	res := &transfer.Result{
		DryRun:    true,
		Cancelled: true,
		Items:     []transfer.Item{{Source: "x.md", State: transfer.StateConflictUnresolved}},
	}
	got := Summary("import", res)
	want := "import: 0 succeeded, 0 skipped, 0 failed, 1 unresolved (dry run) (cancelled)"
	if got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestRender_Cancelled(t *testing.T) {
	res := &transfer.Result{
		Succeeded: 1,
		Cancelled: true,
		Items: []transfer.Item{
			{Source: "n1", State: transfer.StateSucceeded, Path: "One.md"},
			{Source: "n2", State: transfer.StatePending},
			{Source: "n3", State: transfer.StatePending},
		},
	}

	var buf bytes.Buffer
	if err := Render(&buf, "export", res); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"One.md", "not started",
		"export: 1 succeeded, 0 skipped, 0 failed (cancelled, 2 not started)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := res.Completed(); got != 1 {
		t.Errorf("Completed = %d, want 1", got)
	}
}
