package internal

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/starford/notebridge/internal/bridge"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/store"
	"github.com/starford/notebridge/internal/transfer"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "notes.db")
	cfg.Export.Dir = filepath.Join(dir, "export")
	cfg.Import.Dir = filepath.Join(dir, "inbox")
	return cfg
}

func TestInterruptible_Signal(t *testing.T) {
	ctx, stop := interruptible(context.Background())
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGINT")
	}
}

func TestExport_CancelledReportsPartialResult(t *testing.T) {
	cfg := testConfig(t)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	br := bridge.NewLocal(db)
	var ids []string
	for _, title := range []string{"One", "Two"} {
		id, err := br.Create(context.Background(), title, "<p>body</p>", "")
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids = append(ids, id)
	}
	db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Export(ctx, noteservice.ExportRequest{IDs: ids}, WithConfig(cfg), WithLogOutput(os.Stderr))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !res.Cancelled {
		t.Error("result should be cancelled")
	}
	if res.Succeeded != 0 || len(res.Failures) != 0 {
		t.Errorf("succeeded = %d, failures = %d, want none", res.Succeeded, len(res.Failures))
	}
	for _, it := range res.Items {
		if it.State != transfer.StatePending {
			t.Errorf("%s: state = %s, want pending", it.Source, it.State)
		}
	}
}
