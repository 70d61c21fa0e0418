package imaging

import (
	"context"
	"log/slog"

	"github.com/hpungsan/nounimaging/internal/filename"
	"github.com/hpungsan/nounimaging/internal/logging"
	"github.com/hpungsan/nounimaging/internal/noun"
)

// LiveSet is the set of object keys currently present in storage.
type LiveSet map[string]struct{}

// Add inserts an object path.
func (s LiveSet) Add(objectPath string) {
	s[ObjectKey(objectPath)] = struct{}{}
}

// Has reports whether objectPath is present.
func (s LiveSet) Has(objectPath string) bool {
	_, ok := s[ObjectKey(objectPath)]
	return ok
}

// LiveSetFromParsed treats every listed file as present under its final
// name. Use it when no matching has been applied.
func LiveSetFromParsed(parsed []filename.Parsed) LiveSet {
	s := make(LiveSet, len(parsed))
	for _, p := range parsed {
		s.Add(p.FinalName)
	}
	return s
}

// LiveSetFromResults derives what storage holds after matching.
func LiveSetFromResults(results []MatchResult) LiveSet {
	s := make(LiveSet, len(results))
	for _, r := range results {
		switch r.Action {
		case ActionKeep, ActionRemoveFailed, ActionRemoveFailedNoMatch, ActionRenameUpdateFailed:
			s.Add(r.Original)
		case ActionRenamedAndUpdated:
			s.Add(r.FinalName)
			if r.sourceRetained {
				s.Add(r.Original)
			}
		}
	}
	return s
}

// Cleaner clears record image references to objects that no longer exist.
type Cleaner struct {
	records RecordUpdater
	paths   URLPaths
	logger  *slog.Logger
}

// NewCleaner creates a Cleaner writing through records and reading image
// URLs through paths.
func NewCleaner(records RecordUpdater, paths URLPaths, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Cleaner{records: records, paths: paths, logger: logger}
}

// CleanBatch empties the image URL of every record in batch whose extracted
// path is absent from live. Records with an empty or unparsable URL are left
// alone. A record whose update fails is logged and skipped. onItem, if set,
// is called once per record examined.
func (c *Cleaner) CleanBatch(ctx context.Context, batch []*noun.Noun, live LiveSet, onItem func()) []CleanupResult {
	var out []CleanupResult
	for _, n := range batch {
		if r, ok := c.cleanOne(ctx, n, live); ok {
			out = append(out, r)
		}
		if onItem != nil {
			onItem()
		}
	}
	return out
}

func (c *Cleaner) cleanOne(ctx context.Context, n *noun.Noun, live LiveSet) (CleanupResult, bool) {
	oldURL := n.ImageURL
	p, ok := c.paths.Extract(oldURL)
	if !ok || live.Has(p) {
		return CleanupResult{}, false
	}

	if err := c.records.UpdateImageURL(ctx, n.ID, ""); err != nil {
		c.logger.Warn("clear dangling reference failed", "noun_id", n.ID, "path", p, "error", err)
		return CleanupResult{}, false
	}
	n.ImageURL = ""
	return CleanupResult{NounID: n.ID, OldURL: oldURL, NewURL: ""}, true
}
