package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/nounimaging/internal/filename"
	"github.com/hpungsan/nounimaging/internal/logging"
	"github.com/hpungsan/nounimaging/internal/noun"
	"github.com/hpungsan/nounimaging/internal/storage"
)

// DefaultWorkers bounds concurrent items within one batch.
const DefaultWorkers = 4

// MatcherOptions configures a Matcher.
type MatcherOptions struct {
	Workers int
	Logger  *slog.Logger
}

// Matcher decides keep/delete/rename-and-link for stored files.
type Matcher struct {
	store   storage.ObjectStore
	records RecordUpdater
	workers int
	logger  *slog.Logger
}

// NewMatcher creates a Matcher that mutates store and records.
func NewMatcher(store storage.ObjectStore, records RecordUpdater, opts MatcherOptions) *Matcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Matcher{
		store:   store,
		records: records,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
}

// MatchBatch produces exactly one result per entry. Entries run concurrently
// on a bounded pool; onItem, if set, is called once per finished entry and
// must be safe for concurrent use. Result order follows the input but
// callers should not depend on it.
func (m *Matcher) MatchBatch(ctx context.Context, batch []filename.Parsed, idx *RecordIndex, onItem func(MatchResult)) []MatchResult {
	results := make([]MatchResult, len(batch))

	var g errgroup.Group
	g.SetLimit(m.workers)

	var mu sync.Mutex
	for i, p := range batch {
		g.Go(func() error {
			r := m.match(ctx, p, idx)
			results[i] = r
			if onItem != nil {
				mu.Lock()
				onItem(r)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (m *Matcher) match(ctx context.Context, p filename.Parsed, idx *RecordIndex) MatchResult {
	res := MatchResult{Parsed: p}

	if !p.Repaired() {
		if idx.Referenced(p.Original) {
			res.Action = ActionKeep
			return res
		}
		if err := m.store.Delete(ctx, p.Original); err != nil {
			res.Action = ActionRemoveFailed
			res.Error = err.Error()
			m.logger.Warn("delete orphan failed", "path", p.Original, "error", err)
			return res
		}
		res.Action = ActionRemoved
		return res
	}

	rec := idx.Claimant(p.Original)
	if rec == nil {
		if err := m.store.Delete(ctx, p.Original); err != nil {
			res.Action = ActionRemoveFailedNoMatch
			res.Error = err.Error()
			m.logger.Warn("delete unclaimed failed", "path", p.Original, "error", err)
			return res
		}
		res.Action = ActionRemovedNoMatch
		return res
	}

	imageURL, retained, err := m.renameAndLink(ctx, p, rec, idx)
	if err != nil {
		res.Action = ActionRenameUpdateFailed
		res.Error = err.Error()
		m.logger.Warn("rename failed", "path", p.Original, "noun_id", rec.ID, "error", err)
		return res
	}
	res.Action = ActionRenamedAndUpdated
	res.ImageURL = imageURL
	res.sourceRetained = retained
	return res
}

// renameAndLink copies the file to its repaired name, removes the source and
// points the record at the new object. A failed source delete leaves a stale
// duplicate behind but does not fail the rename.
func (m *Matcher) renameAndLink(ctx context.Context, p filename.Parsed, rec *noun.Noun, idx *RecordIndex) (string, bool, error) {
	if err := m.store.Copy(ctx, p.Original, p.FinalName); err != nil {
		return "", false, fmt.Errorf("copy to %s: %w", p.FinalName, err)
	}
	retained := false
	if err := m.store.Delete(ctx, p.Original); err != nil {
		retained = true
		m.logger.Warn("source not removed after copy",
			"path", p.Original,
			"final_name", p.FinalName,
			"error", err,
		)
	}

	imageURL, err := m.store.URL(ctx, p.FinalName)
	if err != nil {
		return "", retained, fmt.Errorf("read url for %s: %w", p.FinalName, err)
	}
	if err := m.records.UpdateImageURL(ctx, rec.ID, imageURL); err != nil {
		return "", retained, fmt.Errorf("update noun %s: %w", rec.ID, err)
	}
	idx.SetImageURL(rec, imageURL)
	return imageURL, retained, nil
}
