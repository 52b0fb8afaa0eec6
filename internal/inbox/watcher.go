// Package inbox watches a drop directory and imports note files that land
// in it. Imported files are moved under ProcessedDir so they are not picked
// up twice.
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/storage"
	"github.com/starford/notebridge/internal/transfer"
)

// ProcessedDir receives files after a terminal import outcome other than
// failure.
const ProcessedDir = ".processed"

// DefaultDebounce is the quiet period before a batch is imported.
const DefaultDebounce = 500 * time.Millisecond

// Importer runs an import batch over paths relative to the inbox root.
type Importer interface {
	ImportFiles(ctx context.Context, sources []string, req noteservice.ImportRequest) (*transfer.Result, error)
}

// BatchCallback is called after every import batch.
type BatchCallback func(res *transfer.Result)

// Watcher imports files dropped into an inbox directory.
type Watcher struct {
	root     *storage.FS
	importer Importer
	req      noteservice.ImportRequest
	debounce time.Duration
	logger   *slog.Logger
	onBatch  BatchCallback
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBatchCallback registers cb for finished batches.
func WithBatchCallback(cb BatchCallback) Option {
	return func(w *Watcher) { w.onBatch = cb }
}

// New creates a Watcher. req carries the folder and conflict strategy used
// for every batch; its Patterns are ignored.
func New(root *storage.FS, importer Importer, req noteservice.ImportRequest, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		importer: importer,
		req:      req,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run imports files already in the inbox, then watches for new ones until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	rootDir := w.root.Root()
	if err := addDirsRecursive(fw, rootDir); err != nil {
		return err
	}
	w.logger.Info("inbox: started", slog.String("root", rootDir))

	pending := make(map[string]struct{})
	existing, err := w.root.Glob("**/*")
	if err != nil {
		return err
	}
	for _, rel := range existing {
		w.enqueue(pending, filepath.ToSlash(rel))
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}
	if len(pending) > 0 {
		schedule()
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			w.flush(ctx, pending)
			pending = make(map[string]struct{})

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(rootDir, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if isHidden(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.logger.Warn("inbox: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the watch was added.
					if files, globErr := w.root.Glob(rel + "/**/*"); globErr == nil {
						for _, f := range files {
							w.enqueue(pending, filepath.ToSlash(f))
						}
					}
					schedule()
					continue
				}
			}
			if w.enqueue(pending, rel) {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) enqueue(pending map[string]struct{}, rel string) bool {
	if _, ok := convert.FormatForPath(rel); !ok {
		return false
	}
	pending[rel] = struct{}{}
	return true
}

// flush imports the pending files as one batch and moves settled ones
// aside. Failed files stay in place for the next write to retry them.
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	sources := make([]string, 0, len(pending))
	for rel := range pending {
		if _, err := os.Stat(filepath.Join(w.root.Root(), filepath.FromSlash(rel))); err == nil {
			sources = append(sources, rel)
		}
	}
	if len(sources) == 0 {
		return
	}
	sort.Strings(sources)

	res, err := w.importer.ImportFiles(ctx, sources, w.req)
	if err != nil {
		w.logger.Error("inbox: import failed", slog.Int("files", len(sources)), slog.String("error", err.Error()))
		return
	}
	if !res.DryRun {
		for _, it := range res.Items {
			if it.State != transfer.StateSucceeded && it.State != transfer.StateSkipped {
				continue
			}
			if mvErr := w.root.Move(it.Source, path.Join(ProcessedDir, it.Source)); mvErr != nil {
				w.logger.Warn("inbox: move processed failed",
					slog.String("path", it.Source),
					slog.String("error", mvErr.Error()))
			}
		}
	}
	w.logger.Info("inbox: batch imported",
		slog.Int("files", len(sources)),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failures)))
	if w.onBatch != nil {
		w.onBatch(res)
	}
}

func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
