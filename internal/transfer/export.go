package transfer

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notebridge/internal/apperr"
	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/document"
	"github.com/starford/notebridge/internal/textutil"
	"github.com/starford/notebridge/internal/wire"
)

const (
	// DefaultWorkers is the decode window used when ExportOptions.Workers is
	// not set.
	DefaultWorkers = 4
	// MaxWorkers caps the decode window.
	MaxWorkers = 8

	attachmentsDir = "attachments"
)

// ExportOptions configures an export batch.
type ExportOptions struct {
	Output          ArtifactWriter
	Format          convert.Format // markdown or json
	JSONMode        convert.JSONMode
	Frontmatter     bool
	CopyAttachments bool
	DryRun          bool
	Workers         int
	Progress        ProgressFunc
}

// decoded is the outcome of the parallel fetch and decode of one id.
type decoded struct {
	doc *document.Document
	err error
}

// Export writes one artifact per id. Fetch and decode run in parallel
// windows of Workers items; conversion and writes happen one item at a time
// in input order.
func (o *Orchestrator) Export(ctx context.Context, ids []string, opts ExportOptions) (*Result, error) {
	if err := o.checkExport(&opts); err != nil {
		return nil, err
	}
	b := o.newBatch("export", ids, opts.DryRun, opts.Progress)
	if len(ids) == 0 {
		return b.result, nil
	}

	if lk, ok := opts.Output.(locker); ok && !opts.DryRun {
		unlock, err := lk.Lock()
		if err != nil {
			return nil, apperr.New(apperr.KindPrecondition, "", err)
		}
		defer unlock() //nolint:errcheck // released on exit either way
	}

	used := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += opts.Workers {
		if ctx.Err() != nil {
			b.result.Cancelled = true
			break
		}
		end := min(start+opts.Workers, len(ids))
		window := o.decodeWindow(ctx, ids[start:end], opts.Workers)

		for k, d := range window {
			if ctx.Err() != nil {
				b.result.Cancelled = true
				break
			}
			i := start + k
			began := time.Now()
			// An item that has started finishes even if ctx is cancelled.
			o.exportItem(context.WithoutCancel(ctx), b, i, d, opts, used)
			o.metrics.observeDuration(b.direction, time.Since(began))
		}
		if b.result.Cancelled {
			break
		}
	}
	b.summary()
	return b.result, nil
}

func (o *Orchestrator) checkExport(opts *ExportOptions) error {
	if o.store == nil {
		return apperr.Precondition("export requires a store")
	}
	if opts.Output == nil && !opts.DryRun {
		return apperr.Precondition("export requires an output location")
	}
	switch opts.Format {
	case "":
		opts.Format = convert.FormatMarkdown
	case convert.FormatMarkdown, convert.FormatJSON:
	default:
		return apperr.Precondition("unsupported export format %q", opts.Format)
	}
	if opts.JSONMode == "" {
		opts.JSONMode = convert.JSONMinimal
	}
	if !opts.JSONMode.Valid() {
		return apperr.Precondition("unknown json mode %q", opts.JSONMode)
	}
	if opts.CopyAttachments && o.bridge == nil {
		return apperr.Precondition("copying attachments requires a bridge")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	opts.Workers = min(opts.Workers, MaxWorkers)
	return nil
}

// decodeWindow fetches and decodes ids concurrently. Errors are per slot.
func (o *Orchestrator) decodeWindow(ctx context.Context, ids []string, workers int) []decoded {
	out := make([]decoded, len(ids))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = o.fetchAndDecode(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) fetchAndDecode(ctx context.Context, id string) decoded {
	row, err := o.store.FetchRow(ctx, id)
	if err != nil {
		return decoded{err: apperr.New(apperr.KindIO, id, fmt.Errorf("fetch: %w", err))}
	}
	doc, err := wire.Decode(row.Blob)
	if err != nil {
		return decoded{err: apperr.New(apperr.KindDecode, id, err)}
	}
	doc.ID = id
	doc.Folder = row.Folder
	doc.CreatedAt = row.CreatedAt
	doc.ModifiedAt = row.ModifiedAt
	return decoded{doc: doc}
}

func (o *Orchestrator) exportItem(ctx context.Context, b *batch, i int, d decoded, opts ExportOptions, used map[string]struct{}) {
	it := &b.result.Items[i]
	it.advance(StateConverting)
	if d.err != nil {
		b.complete(i, StateFailed, "", d.err)
		return
	}
	doc := d.doc

	data, err := render(doc, opts)
	if err != nil {
		b.complete(i, StateFailed, "", apperr.New(apperr.KindConversion, it.Source, err))
		return
	}

	dir := folderPath(doc.Folder)
	name := uniqueName(dir, textutil.SafeName(doc.Title), doc.ID, used)
	it.Path = path.Join(dir, name+"."+opts.Format.Extension())

	if opts.DryRun {
		b.complete(i, StateSucceeded, "", nil)
		return
	}

	if err := writeArtifact(opts.Output, it.Path, data); err != nil {
		b.complete(i, StateFailed, "", apperr.New(apperr.KindIO, it.Source, err))
		return
	}

	if opts.CopyAttachments && len(doc.Attachments) > 0 {
		if err := o.copyAttachments(ctx, opts.Output, path.Join(attachmentsDir, dir, name), doc.Attachments); err != nil {
			b.complete(i, StateFailed, "", err)
			return
		}
	}
	b.complete(i, StateSucceeded, "", nil)
}

func render(doc *document.Document, opts ExportOptions) ([]byte, error) {
	if opts.Format == convert.FormatJSON {
		return convert.ToJSON(doc, opts.JSONMode)
	}
	return convert.ToMarkdown(doc, convert.MarkdownOptions{Frontmatter: opts.Frontmatter})
}

func writeArtifact(w ArtifactWriter, p string, data []byte) error {
	if cw, ok := w.(changeAwareWriter); ok {
		_, err := cw.WriteIfChanged(p, data)
		return err
	}
	return w.Write(p, data)
}

func (o *Orchestrator) copyAttachments(ctx context.Context, w ArtifactWriter, dir string, atts []document.Attachment) error {
	used := make(map[string]struct{}, len(atts))
	for _, a := range atts {
		data, err := o.bridge.FetchAttachmentBytes(ctx, a)
		if err != nil {
			return apperr.New(apperr.KindBridge, a.ID, err)
		}
		base := a.Name
		if base == "" {
			base = a.ID
		}
		name := uniqueName(dir, textutil.SafeName(base), a.ID, used)
		if err := writeArtifact(w, path.Join(dir, name), data); err != nil {
			return apperr.New(apperr.KindIO, a.ID, err)
		}
	}
	return nil
}

// folderPath maps a note folder to a relative directory. Each '/'-separated
// component is escaped separately.
func folderPath(folder string) string {
	var parts []string
	for _, p := range strings.Split(folder, "/") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		parts = append(parts, textutil.SafeName(p))
	}
	return path.Join(parts...)
}

// uniqueName returns name, or name with the escaped id appended when another
// artifact in dir already uses a case-insensitively equal name.
func uniqueName(dir, name, id string, used map[string]struct{}) string {
	key := func(n string) string { return textutil.FoldKey(path.Join(dir, n)) }
	if _, taken := used[key(name)]; !taken {
		used[key(name)] = struct{}{}
		return name
	}
	candidate := textutil.Disambiguate(name, id)
	for n := 2; ; n++ {
		if _, taken := used[key(candidate)]; !taken {
			used[key(candidate)] = struct{}{}
			return candidate
		}
		candidate = textutil.Disambiguate(name, id) + "-" + strconv.Itoa(n)
	}
}
