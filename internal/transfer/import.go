package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/document"
)

// ImportOptions configures an import batch.
type ImportOptions struct {
	Source ArtifactWriter
	// Folder overrides the folder of every imported document.
	Folder string
	// DefaultFolder is used when neither Folder nor the artifact names one.
	DefaultFolder string
	Strategy      Strategy // skip when empty
	Resolve       Resolver
	DryRun        bool
	Progress      ProgressFunc
}

// identity is the conflict key of a document. Matching is case-sensitive.
type identity struct {
	title  string
	folder string
}

// Import parses each source artifact and writes it through the bridge. The
// conflict index is loaded once from the store and grows with every document
// the batch creates, so two sources with the same title and folder conflict
// with each other regardless of order.
func (o *Orchestrator) Import(ctx context.Context, sources []string, opts ImportOptions) (*Result, error) {
	if err := o.checkImport(&opts); err != nil {
		return nil, err
	}
	b := o.newBatch("import", sources, opts.DryRun, opts.Progress)
	if len(sources) == 0 {
		return b.result, nil
	}

	index, err := o.loadIndex(ctx)
	if err != nil {
		return nil, apperr.New(apperr.KindPrecondition, "", err)
	}

	for i := range sources {
		if ctx.Err() != nil {
			b.result.Cancelled = true
			break
		}
		began := time.Now()
		o.importItem(ctx, b, i, opts, index)
		o.metrics.observeDuration(b.direction, time.Since(began))
	}
	b.summary()
	return b.result, nil
}

func (o *Orchestrator) checkImport(opts *ImportOptions) error {
	if opts.Source == nil {
		return apperr.Precondition("import requires a source location")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySkip
	}
	if !opts.Strategy.Valid() {
		return apperr.Precondition("unknown conflict strategy %q", opts.Strategy)
	}
	if o.bridge == nil && !opts.DryRun {
		return apperr.Precondition("import requires a bridge")
	}
	return nil
}

func (o *Orchestrator) loadIndex(ctx context.Context) (map[identity]string, error) {
	index := make(map[identity]string)
	if o.store == nil {
		return index, nil
	}
	rows, err := o.store.ListRows(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("load conflict index: %w", err)
	}
	for _, r := range rows {
		k := identity{title: r.Title, folder: r.Folder}
		if _, ok := index[k]; !ok {
			index[k] = r.ID
		}
	}
	return index, nil
}

func (o *Orchestrator) importItem(ctx context.Context, b *batch, i int, opts ImportOptions, index map[identity]string) {
	it := &b.result.Items[i]
	it.advance(StateConverting)
	// Host writes started for this item run to completion.
	hostCtx := context.WithoutCancel(ctx)

	data, err := opts.Source.Read(it.Source)
	if err != nil {
		b.complete(i, StateFailed, "", apperr.New(apperr.KindIO, it.Source, err))
		return
	}
	doc, err := parseArtifact(it.Source, data)
	if err != nil {
		b.complete(i, StateFailed, "", apperr.New(apperr.KindConversion, it.Source, err))
		return
	}
	switch {
	case opts.Folder != "":
		doc.Folder = opts.Folder
	case doc.Folder == "":
		doc.Folder = opts.DefaultFolder
	}
	markup := convert.ToMarkup(doc)

	it.advance(StateConflictCheck)
	key := identity{title: doc.Title, folder: doc.Folder}
	existing, conflict := index[key]
	if !conflict {
		id, err := o.create(hostCtx, doc, markup, opts.DryRun)
		if err != nil {
			b.complete(i, StateFailed, "", err)
			return
		}
		index[key] = id
		it.ID = id
		b.complete(i, StateSucceeded, "", nil)
		return
	}

	c := Conflict{Source: it.Source, Title: doc.Title, Folder: doc.Folder, ExistingID: existing}
	strategy := opts.Strategy
	if strategy == StrategyAsk && opts.Resolve != nil {
		strategy = opts.Resolve(ctx, c)
	}
	if strategy.Valid() && strategy != StrategyAsk {
		c.Resolution = strategy
	}
	b.result.Conflicts = append(b.result.Conflicts, c)

	switch c.Resolution {
	case StrategySkip:
		b.complete(i, StateSkipped, "already exists", nil)
	case StrategyReplace:
		if !opts.DryRun {
			title := doc.Title
			if err := o.bridge.Update(hostCtx, existing, &title, &markup); err != nil {
				b.complete(i, StateFailed, "", apperr.New(apperr.KindBridge, it.Source, err))
				return
			}
		}
		it.ID = existing
		b.complete(i, StateSucceeded, "", nil)
	case StrategyDuplicate:
		id, err := o.create(hostCtx, doc, markup, opts.DryRun)
		if err != nil {
			b.complete(i, StateFailed, "", err)
			return
		}
		it.ID = id
		b.complete(i, StateSucceeded, "", nil)
	default:
		o.logger.Debug("transfer: conflict left to caller",
			slog.String("item", it.Source),
			slog.String("existing_id", existing))
		b.complete(i, StateConflictUnresolved, "", apperr.New(apperr.KindConflictUnresolved, it.Source,
			fmt.Errorf("%w: %q in folder %q", apperr.ErrConflict, doc.Title, doc.Folder)))
	}
}

func (o *Orchestrator) create(ctx context.Context, doc *document.Document, markup string, dryRun bool) (string, error) {
	if dryRun {
		return "", nil
	}
	id, err := o.bridge.Create(ctx, doc.Title, markup, doc.Folder)
	if err != nil {
		return "", apperr.New(apperr.KindBridge, doc.Title, err)
	}
	return id, nil
}

var errUnknownFormat = errors.New("unrecognized file extension")

// parseArtifact picks the parser from the file extension. The file name
// without extension is the title of last resort.
func parseArtifact(p string, data []byte) (*document.Document, error) {
	format, ok := convert.FormatForPath(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownFormat, path.Ext(p))
	}
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))

	var doc *document.Document
	switch format {
	case convert.FormatMarkdown:
		parsed, err := convert.ParseMarkdown(data, stem)
		if err != nil {
			return nil, err
		}
		doc = &parsed.Document
	case convert.FormatJSON:
		d, err := convert.ParseJSON(data)
		if err != nil {
			return nil, err
		}
		doc = d
	default:
		d, err := convert.ParseMarkup(string(data))
		if err != nil {
			return nil, err
		}
		doc = d
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = stem
	}
	return doc, nil
}
