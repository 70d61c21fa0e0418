package ops

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/filename"
	"github.com/hpungsan/nounimaging/internal/imaging"
	"github.com/hpungsan/nounimaging/internal/logging"
	"github.com/hpungsan/nounimaging/internal/noun"
	"github.com/hpungsan/nounimaging/internal/storage"
	"github.com/hpungsan/nounimaging/internal/stream"
)

// Stage is a step of a reconciliation run.
type Stage string

const (
	StageListing        Stage = "LISTING"
	StageValidating     Stage = "VALIDATING"
	StageLoadingRecords Stage = "LOADING_RECORDS"
	StageMatching       Stage = "MATCHING"
	StageCleaning       Stage = "CLEANING"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// stageRange is the slice of overall progress a stage covers.
var stageRange = map[Stage][2]float64{
	StageListing:        {0.0, 0.1},
	StageValidating:     {0.1, 0.2},
	StageLoadingRecords: {0.2, 0.3},
	StageMatching:       {0.3, 0.6},
	StageCleaning:       {0.6, 1.0},
	StageDone:           {1.0, 1.0},
}

// StageFraction maps done/total items of stage onto overall progress.
func StageFraction(stage Stage, done, total int) float64 {
	r, ok := stageRange[stage]
	if !ok {
		return 0
	}
	if total <= 0 {
		return r[0]
	}
	if done > total {
		done = total
	}
	return r[0] + (r[1]-r[0])*float64(done)/float64(total)
}

// RecordStore is the noun record collaborator.
type RecordStore interface {
	ListAll(ctx context.Context) ([]*noun.Noun, error)
	FindByNameEn(ctx context.Context, name string) ([]*noun.Noun, error)
	UpdateImageURL(ctx context.Context, id, imageURL string) error
}

// Reconciler runs the image-record reconciliation pipeline.
type Reconciler struct {
	store     storage.ObjectStore
	records   RecordStore
	validator *filename.Validator
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *RunMetrics
}

// ReconcilerOptions holds the optional collaborators of a Reconciler.
type ReconcilerOptions struct {
	Validator *filename.Validator
	Logger    *slog.Logger
	Metrics   *RunMetrics
}

// NewReconciler wires a Reconciler. A nil cfg selects the defaults.
func NewReconciler(store storage.ObjectStore, records RecordStore, cfg *config.Config, opts ReconcilerOptions) *Reconciler {
	defaults := config.DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	c := *cfg
	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if c.MatchBatchSize <= 0 {
		c.MatchBatchSize = defaults.MatchBatchSize
	}
	if c.CleanBatchSize <= 0 {
		c.CleanBatchSize = defaults.CleanBatchSize
	}
	if opts.Validator == nil {
		opts.Validator = filename.NewValidator(nil, nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Reconciler{
		store:     store,
		records:   records,
		validator: opts.Validator,
		cfg:       &c,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// ReconcileInput contains parameters for one run.
type ReconcileInput struct {
	Namespace string              // default: cfg.Namespace
	Progress  func(stream.Update) // optional; called from the run goroutine and matcher workers, serialized
}

// run carries per-run state.
type run struct {
	id       string
	ns       string
	logger   *slog.Logger
	progress func(stream.Update)

	mu sync.Mutex
}

func (r *run) emit(stage Stage, done, total int, boundary bool, message string) {
	r.send(stage, StageFraction(stage, done, total), done, total, boundary, message)
}

// finish reports stage as complete regardless of its item count.
func (r *run) finish(stage Stage, count int, message string) {
	r.send(stage, stageRange[stage][1], count, count, true, message)
}

func (r *run) send(stage Stage, fraction float64, done, total int, boundary bool, message string) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress(stream.Update{
		Progress: stream.Progress{
			Stage:    string(stage),
			Fraction: fraction,
			Current:  done,
			Total:    total,
			Status:   statusText(stage),
			Message:  message,
		},
		Boundary: boundary,
	})
}

func statusText(stage Stage) string {
	switch stage {
	case StageListing:
		return "Listing stored files"
	case StageValidating:
		return "Validating filenames"
	case StageLoadingRecords:
		return "Loading noun records"
	case StageMatching:
		return "Matching files to nouns"
	case StageCleaning:
		return "Cleaning dangling references"
	case StageDone:
		return "Done"
	}
	return string(stage)
}

// Reconcile runs LISTING → VALIDATING → LOADING_RECORDS → MATCHING →
// CLEANING and returns the report.
//
// Listing and record loading failures abort the run. Per-item failures are
// recorded in the report. Cancelling ctx stops the run between batches with
// the context error; mutations already applied stay applied.
func (rc *Reconciler) Reconcile(ctx context.Context, input ReconcileInput) (report *imaging.Report, err error) {
	ns := strings.Trim(strings.TrimSpace(input.Namespace), "/")
	if ns == "" {
		ns = rc.cfg.Namespace
	}

	started := time.Now()
	r := &run{
		id:       newRunID(),
		ns:       ns,
		progress: input.Progress,
	}
	r.logger = rc.logger.With("run_id", r.id, "namespace", ns)

	defer func() {
		elapsed := time.Since(started)
		rc.metrics.ObserveRun(report, elapsed, err)
		if err != nil {
			r.logger.Error("reconciliation failed", "stage", StageFailed, "error", err, "elapsed", elapsed)
		}
	}()

	// LISTING
	r.logger.Info("stage started", "stage", StageListing)
	r.emit(StageListing, 0, 0, true, "")
	objects, err := rc.store.List(ctx, ns)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewStorageUnavailable("list objects", err)
	}

	files := make([]storage.Object, 0, len(objects))
	var listedBytes int64
	for _, o := range objects {
		if o.IsDirMarker() || o.SizeBytes <= 0 {
			continue
		}
		files = append(files, o)
		listedBytes += o.SizeBytes
	}
	skipped := len(objects) - len(files)
	r.finish(StageListing, len(files), fmt.Sprintf("Found %d files", len(files)))

	// VALIDATING
	r.logger.Info("stage started", "stage", StageValidating, "files", len(files), "skipped", skipped)
	parsed := make([]filename.Parsed, len(files))
	repaired := 0
	for i, o := range files {
		parsed[i] = rc.validator.ParseObjectPath(o.Path)
		if parsed[i].Repaired() {
			repaired++
		}
	}
	r.finish(StageValidating, len(parsed), fmt.Sprintf("%d names need repair", repaired))

	// LOADING_RECORDS
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.logger.Info("stage started", "stage", StageLoadingRecords)
	records, err := rc.records.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("load records: %w", err))
	}
	paths := imaging.NewURLPaths(ns, rc.cfg.S3.Bucket)
	idx := imaging.NewRecordIndex(records, paths)
	r.finish(StageLoadingRecords, len(records), fmt.Sprintf("Loaded %d nouns", len(records)))

	// MATCHING
	r.logger.Info("stage started", "stage", StageMatching, "files", len(parsed), "records", len(records))
	matcher := imaging.NewMatcher(rc.store, rc.records, imaging.MatcherOptions{
		Workers: rc.cfg.Workers,
		Logger:  r.logger.With("stage", StageMatching),
	})
	results := make([]imaging.MatchResult, 0, len(parsed))
	matched := 0
	r.emit(StageMatching, 0, len(parsed), true, "")
	for start := 0; start < len(parsed); start += rc.cfg.MatchBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+rc.cfg.MatchBatchSize, len(parsed))
		batch := matcher.MatchBatch(ctx, parsed[start:end], idx, func(imaging.MatchResult) {
			matched++
			r.emit(StageMatching, matched, len(parsed), false, "")
		})
		results = append(results, batch...)
		r.emit(StageMatching, end, len(parsed), true, fmt.Sprintf("Processed %d of %d files", end, len(parsed)))
	}

	// CLEANING
	r.logger.Info("stage started", "stage", StageCleaning, "records", len(records))
	live := imaging.LiveSetFromResults(results)
	cleaner := imaging.NewCleaner(rc.records, paths, r.logger.With("stage", StageCleaning))
	cleaned := make([]imaging.CleanupResult, 0)
	examined := 0
	r.emit(StageCleaning, 0, len(records), true, "")
	for start := 0; start < len(records); start += rc.cfg.CleanBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+rc.cfg.CleanBatchSize, len(records))
		cleaned = append(cleaned, cleaner.CleanBatch(ctx, records[start:end], live, func() {
			examined++
			r.emit(StageCleaning, examined, len(records), false, "")
		})...)
		r.emit(StageCleaning, end, len(records), true, fmt.Sprintf("Checked %d of %d nouns", end, len(records)))
	}

	// DONE
	counts, failed := imaging.CountActions(results)
	report = &imaging.Report{
		Files:       results,
		CleanedURLs: cleaned,
		Summary: imaging.Summary{
			RunID:       r.id,
			Namespace:   ns,
			ListedFiles: len(files),
			ListedBytes: listedBytes,
			Skipped:     skipped,
			Repaired:    repaired,
			Records:     len(records),
			Actions:     counts,
			Failed:      failed,
			Cleaned:     len(cleaned),
			StartedAt:   started.UTC(),
			DurationMs:  time.Since(started).Milliseconds(),
		},
	}
	r.finish(StageDone, len(results), "")
	r.logger.Info("reconciliation finished",
		"stage", StageDone,
		"files", len(results),
		"failed", failed,
		"cleaned", len(cleaned),
		"duration_ms", report.Summary.DurationMs,
	)
	return report, nil
}

func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
