// Package transfer moves batches of notes between the private store and text
// artifacts. Each item is isolated: its failure is recorded in the result
// and the batch continues.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/notebridge/internal/document"
	"github.com/starford/notebridge/internal/store"
)

// Store is the read-only source of encoded notes.
type Store interface {
	FetchRow(ctx context.Context, id string) (store.Row, error)
	ListRows(ctx context.Context, folder string, limit int) ([]store.RowSummary, error)
}

// Bridge performs writes against the host application. Every failure is
// item-level.
type Bridge interface {
	Create(ctx context.Context, title, markup, folder string) (string, error)
	Update(ctx context.Context, id string, title, markup *string) error
	Delete(ctx context.Context, id string) error
	FetchAttachmentBytes(ctx context.Context, ref document.Attachment) ([]byte, error)
}

// ArtifactWriter reads and writes text artifacts relative to a root.
type ArtifactWriter interface {
	Write(path string, data []byte) error
	Read(path string) ([]byte, error)
}

// changeAwareWriter is implemented by writers that can skip identical content.
type changeAwareWriter interface {
	WriteIfChanged(path string, data []byte) (bool, error)
}

// locker is implemented by writers that can be locked for a batch.
type locker interface {
	Lock() (func() error, error)
}

// State is the lifecycle position of one item.
type State int

const (
	StatePending State = iota
	StateConverting
	StateConflictCheck
	StateSucceeded
	StateSkipped
	StateConflictUnresolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConverting:
		return "converting"
	case StateConflictCheck:
		return "conflict_check"
	case StateSucceeded:
		return "succeeded"
	case StateSkipped:
		return "skipped"
	case StateConflictUnresolved:
		return "conflict_unresolved"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s is final.
func (s State) Terminal() bool { return s >= StateSucceeded }

// Strategy resolves an identity conflict on import.
type Strategy string

const (
	StrategySkip      Strategy = "skip"
	StrategyReplace   Strategy = "replace"
	StrategyDuplicate Strategy = "duplicate"
	StrategyAsk       Strategy = "ask"
)

// Valid reports whether s is one of the four strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySkip, StrategyReplace, StrategyDuplicate, StrategyAsk:
		return true
	}
	return false
}

// Conflict describes an imported document whose title and folder match an
// existing one.
type Conflict struct {
	Source     string   `json:"source"`
	Title      string   `json:"title"`
	Folder     string   `json:"folder"`
	ExistingID string   `json:"existing_id"`
	Resolution Strategy `json:"resolution,omitempty"` // empty when unresolved
}

// Resolver decides a conflict for one item. Returning StrategyAsk or an
// unknown strategy leaves the conflict unresolved.
type Resolver func(ctx context.Context, c Conflict) Strategy

// ProgressFunc is called synchronously after each item reaches a terminal
// state; current increases by one per call.
type ProgressFunc func(current, total int)

// Item is the outcome of one export id or import source.
type Item struct {
	Source string `json:"source"`
	State  State  `json:"-"`
	// Path is the artifact written on export.
	Path string `json:"path,omitempty"`
	// ID is the note created or updated on import.
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// advance moves a non-terminal item forward.
func (it *Item) advance(s State) {
	if !it.State.Terminal() {
		it.State = s
	}
}

// finish moves the item into a terminal state once; later calls are ignored
// and report false.
func (it *Item) finish(s State, reason string, err error) bool {
	if it.State.Terminal() || !s.Terminal() {
		return false
	}
	it.State, it.Reason, it.Err = s, reason, err
	return true
}

// Skip is an item skipped with a reason.
type Skip struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// Failure is an item that failed with an error.
type Failure struct {
	Item string `json:"item"`
	Err  error  `json:"-"`
}

// Result aggregates a batch. Items keep input order.
type Result struct {
	Succeeded int        `json:"succeeded"`
	Skipped   []Skip     `json:"skipped"`
	Conflicts []Conflict `json:"conflicts"`
	Failures  []Failure  `json:"failures"`
	Items     []Item     `json:"items"`
	Cancelled bool       `json:"cancelled"`
	DryRun    bool       `json:"dry_run"`
}

// Unresolved counts items left in StateConflictUnresolved.
func (r *Result) Unresolved() int {
	n := 0
	for _, it := range r.Items {
		if it.State == StateConflictUnresolved {
			n++
		}
	}
	return n
}

// Completed counts items that reached a terminal state. It is below
// len(Items) only when the batch was cancelled.
func (r *Result) Completed() int {
	n := 0
	for _, it := range r.Items {
		if it.State.Terminal() {
			n++
		}
	}
	return n
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records item outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs export and import batches. Batches on one Orchestrator
// may run concurrently; all per-batch state lives in the call.
type Orchestrator struct {
	store   Store
	bridge  Bridge
	logger  *slog.Logger
	metrics *Metrics
}

// New returns an Orchestrator over the given collaborators. Either may be nil
// when only one direction is used; the batch then fails its precondition
// check.
func New(st Store, br Bridge, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: st, bridge: br, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// batch tracks progress and aggregation for one run.
type batch struct {
	direction string
	result    *Result
	done      int
	progress  ProgressFunc
	logger    *slog.Logger
	metrics   *Metrics
}

func (o *Orchestrator) newBatch(direction string, sources []string, dryRun bool, progress ProgressFunc) *batch {
	items := make([]Item, len(sources))
	for i, s := range sources {
		items[i] = Item{Source: s}
	}
	return &batch{
		direction: direction,
		result:    &Result{Items: items, DryRun: dryRun},
		progress:  progress,
		logger:    o.logger,
		metrics:   o.metrics,
	}
}

// complete records the terminal transition of item i and notifies progress.
func (b *batch) complete(i int, s State, reason string, err error) {
	it := &b.result.Items[i]
	if !it.finish(s, reason, err) {
		return
	}
	switch s {
	case StateSucceeded:
		b.result.Succeeded++
	case StateSkipped:
		b.result.Skipped = append(b.result.Skipped, Skip{Item: it.Source, Reason: reason})
		b.logger.Warn("transfer: item skipped",
			slog.String("direction", b.direction),
			slog.String("item", it.Source),
			slog.String("reason", reason))
	case StateConflictUnresolved:
		b.logger.Warn("transfer: conflict unresolved",
			slog.String("direction", b.direction),
			slog.String("item", it.Source))
	case StateFailed:
		b.result.Failures = append(b.result.Failures, Failure{Item: it.Source, Err: err})
		b.logger.Warn("transfer: item failed",
			slog.String("direction", b.direction),
			slog.String("item", it.Source),
			slog.String("error", err.Error()))
	}
	b.metrics.observe(b.direction, s)
	b.done++
	if b.progress != nil {
		b.progress(b.done, len(b.result.Items))
	}
}

func (b *batch) summary() {
	r := b.result
	b.logger.Info("transfer: batch finished",
		slog.String("direction", b.direction),
		slog.Int("total", len(r.Items)),
		slog.Int("succeeded", r.Succeeded),
		slog.Int("skipped", len(r.Skipped)),
		slog.Int("conflicts", len(r.Conflicts)),
		slog.Int("failed", len(r.Failures)),
		slog.Bool("cancelled", r.Cancelled),
		slog.Bool("dry_run", r.DryRun))
}
