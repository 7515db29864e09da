// Package engine implements the batch orchestrator: load every record under
// the target path, build the aggregate snapshot once, score each record, and
// write the alert fields back as bounded multi-location patch batches guarded
// by a pre-write backup. Dry-run scores and reports without writing.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/aggregate"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/filter"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/scoring"
)

var tracer = otel.Tracer("cic-engine")

// Engine orchestrates scoring runs. The record store is injected once by the
// bootstrap layer and never re-initialized here; cache and bus are optional.
type Engine struct {
	store domain.RecordStore
	cache domain.Cache
	bus   domain.EventBus
	cfg   *domain.Config
	now   func() time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithCache attaches a run-summary cache.
func WithCache(c domain.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithBus attaches an event bus for run lifecycle events.
func WithBus(b domain.EventBus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithClock overrides the engine clock. Tests pin "today" with this.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a scoring engine.
func New(store domain.RecordStore, cfg *domain.Config, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions are the per-run parameters. Zero values fall back to the
// configured defaults; writes stay disabled unless explicitly enabled.
type RunOptions struct {
	// DryRun skips all store writes; scoring and the summary still happen.
	DryRun bool

	// Target is the store path to score (default from config,
	// "credit_requests").
	Target string

	// BatchSize bounds the number of leaf-field entries per store update
	// call (default from config, 300).
	BatchSize int

	// Backup controls the pre-write snapshot. When writing with backups
	// enabled, a failed backup aborts the run before any write.
	Backup bool

	// BackupFile overrides the default timestamped snapshot path.
	BackupFile string

	// Filter is an optional CEL expression scoping which records are
	// scored and written. Aggregates still cover the full record set.
	Filter string
}

// Run executes one scoring run and returns its summary.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	runID := uuid.New().String()
	start := e.now()

	target := opts.Target
	if target == "" {
		target = e.cfg.Run.TargetPath
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = e.cfg.Run.BatchSize
	}

	ctx, span := tracer.Start(ctx, "engine.Run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.target", target),
		attribute.Bool("run.dry_run", opts.DryRun),
	)
	defer span.End()

	var recordFilter *filter.Filter
	if opts.Filter != "" {
		f, err := filter.Compile(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		recordFilter = f
	}

	slog.Info("scoring run started",
		"run_id", runID,
		"target", target,
		"dry_run", opts.DryRun,
		"batch_size", batchSize,
	)

	// Loaded: fetch the full record set.
	raw, err := e.load(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	// Backup before any write. A run that cannot secure its safety copy
	// never touches the store.
	if !opts.DryRun && opts.Backup {
		backupPath := opts.BackupFile
		if backupPath == "" {
			backupPath = defaultBackupPath(target, start)
		}
		if err := e.writeBackup(ctx, backupPath, raw); err != nil {
			return nil, fmt.Errorf("backup failed, aborting before any write: %w", err)
		}
		slog.Info("backup written", "run_id", runID, "path", backupPath)
	}

	// Scored: parse, aggregate once, score per record, buffer patches.
	today := e.today()
	records := parseRecords(raw)

	snap := e.buildSnapshot(ctx, records, today)

	summary, patches := e.score(ctx, runID, records, snap, today, recordFilter)
	summary.DryRun = opts.DryRun
	summary.Target = target
	summary.BatchSize = batchSize

	// Flushed: apply buffered patches in bounded batches. Dry-run stops
	// here and only reports.
	if !opts.DryRun {
		if err := e.flush(ctx, target, patches, batchSize); err != nil {
			return nil, fmt.Errorf("flush failed: %w", err)
		}
	}

	e.finish(ctx, runID, summary)

	slog.Info("scoring run completed",
		"run_id", runID,
		"processed", summary.Processed,
		"highs", summary.Highs,
		"mediums", summary.Mediums,
		"lows", summary.Lows,
		"dry_run", summary.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return summary, nil
}

func (e *Engine) load(ctx context.Context, target string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "engine.load")
	defer span.End()

	raw, err := e.store.GetAll(ctx, target)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("records.raw", len(raw)))
	return raw, nil
}

func (e *Engine) buildSnapshot(ctx context.Context, records map[string]*domain.CreditRequest, today time.Time) *aggregate.Snapshot {
	_, span := tracer.Start(ctx, "engine.aggregate")
	defer span.End()

	snap := aggregate.Build(records, e.cfg.Scoring.Windows, today)
	span.SetAttributes(
		attribute.Int("aggregate.pairs", len(snap.Counts.Pairs)),
		attribute.Int("aggregate.customers", len(snap.Counts.Customers)),
		attribute.Float64("aggregate.trend_pct", snap.TrendPct),
	)
	return snap
}

// score evaluates every record against the shared snapshot and builds the
// flat patch map: five id/field leaf entries per record, so a write never
// clobbers the rest of a record.
func (e *Engine) score(ctx context.Context, runID string, records map[string]*domain.CreditRequest, snap *aggregate.Snapshot, today time.Time, recordFilter *filter.Filter) (*domain.RunSummary, []patchEntry) {
	ctx, span := tracer.Start(ctx, "engine.score")
	defer span.End()

	summary := &domain.RunSummary{
		RunID:    runID,
		MaxScore: -1,
		MinScore: 101,
	}

	lastRun := e.now().UTC().Format(time.RFC3339)

	var samples []domain.Sample
	var patches []patchEntry

	for _, id := range sortedIDs(records) {
		rec := records[id]
		if recordFilter != nil && !recordFilter.Match(rec, today) {
			continue
		}

		result := scoring.Apply(rec, snap, &e.cfg.Scoring, today)

		summary.Processed++
		switch result.Label {
		case domain.LabelHigh:
			summary.Highs++
		case domain.LabelMedium:
			summary.Mediums++
		default:
			summary.Lows++
		}
		if result.Score > summary.MaxScore {
			summary.MaxScore = result.Score
		}
		if result.Score < summary.MinScore {
			summary.MinScore = result.Score
		}

		sample := domain.Sample{
			ID:      id,
			Score:   result.Score,
			Label:   result.Label,
			Flags:   result.Flags,
			Amount:  rec.Amount,
			Invoice: rec.InvoiceNumber,
			Item:    rec.ItemNumber,
		}
		samples = append(samples, sample)

		if result.Label == domain.LabelHigh {
			e.publish(ctx, domain.TopicHighRisk, sample)
		}

		flags := result.Flags
		if flags == nil {
			flags = []string{}
		}
		patches = append(patches,
			patchEntry{id + "/" + domain.FieldAlertFlags, flags},
			patchEntry{id + "/" + domain.FieldAlertScore, result.Score},
			patchEntry{id + "/" + domain.FieldAlertLabel, result.Label},
			patchEntry{id + "/" + domain.FieldAlertFactors, result.Factors},
			patchEntry{id + "/" + domain.FieldAlertLastRun, lastRun},
		)
	}

	summary.TopSamples = topSamples(samples, 3, true)
	summary.BottomSamples = topSamples(samples, 3, false)

	span.SetAttributes(attribute.Int("records.processed", summary.Processed))
	return summary, patches
}

// patchEntry is one leaf-field write. Kept as an ordered slice so batching
// is deterministic and no key is written twice across batches.
type patchEntry struct {
	key   string
	value any
}

// flush applies the patch list in batches of at most batchSize leaf entries.
// Already-applied batches are not rolled back when a later batch fails.
func (e *Engine) flush(ctx context.Context, target string, patches []patchEntry, batchSize int) error {
	ctx, span := tracer.Start(ctx, "engine.flush")
	defer span.End()

	batch := make(map[string]any, batchSize)
	flushed := 0

	for _, p := range patches {
		batch[p.key] = p.value
		if len(batch) >= batchSize {
			if err := e.store.Update(ctx, target, batch); err != nil {
				return fmt.Errorf("after %d applied batches: %w", flushed, err)
			}
			flushed++
			batch = make(map[string]any, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := e.store.Update(ctx, target, batch); err != nil {
			return fmt.Errorf("after %d applied batches: %w", flushed, err)
		}
		flushed++
	}

	span.SetAttributes(
		attribute.Int("flush.batches", flushed),
		attribute.Int("flush.entries", len(patches)),
	)
	return nil
}

// finish caches the summary and announces run completion. Both are
// best-effort: a cache or bus hiccup never fails a finished run.
func (e *Engine) finish(ctx context.Context, runID string, summary *domain.RunSummary) {
	if e.cache != nil {
		if err := e.cache.SetSummary(ctx, runID, summary, domain.SummaryTTL); err != nil {
			slog.Warn("failed to cache run summary", "run_id", runID, "error", err)
		}
		if err := e.cache.SetSummary(ctx, domain.LastRunID, summary, domain.SummaryTTL); err != nil {
			slog.Warn("failed to cache last-run summary", "run_id", runID, "error", err)
		}
	}
	e.publish(ctx, domain.TopicRunCompleted, summary)
}

func (e *Engine) publish(ctx context.Context, topic string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// writeBackup snapshots the pre-write record collection to a local JSON
// export.
func (e *Engine) writeBackup(ctx context.Context, path string, raw map[string]any) error {
	_, span := tracer.Start(ctx, "engine.backup")
	defer span.End()

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (e *Engine) today() time.Time {
	t := e.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func defaultBackupPath(target string, now time.Time) string {
	ts := now.UTC().Format("20060102T150405Z")
	safeTarget := strings.ReplaceAll(target, "/", "_")
	return fmt.Sprintf("./store_backup_%s_%s.json", safeTarget, ts)
}

// parseRecords keeps only well-formed record objects. Malformed entries are
// skipped and never count toward processed.
func parseRecords(raw map[string]any) map[string]*domain.CreditRequest {
	records := make(map[string]*domain.CreditRequest, len(raw))
	for id, doc := range raw {
		if rec, ok := domain.ParseRecord(id, doc); ok {
			records[id] = rec
		}
	}
	return records
}

// sortedIDs fixes the iteration order so patch batching and sample
// tie-breaks are deterministic run to run.
func sortedIDs(records map[string]*domain.CreditRequest) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// topSamples returns up to n samples ordered by score (descending when top,
// ascending otherwise), with record ID as the tie-break.
func topSamples(samples []domain.Sample, n int, top bool) []domain.Sample {
	sorted := make([]domain.Sample, len(samples))
	copy(sorted, samples)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			if top {
				return sorted[i].Score > sorted[j].Score
			}
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
