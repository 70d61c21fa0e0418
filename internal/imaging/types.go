// Package imaging reconciles stored noun images against noun records.
//
// The Matcher decides the fate of every stored file, the Cleaner clears
// record references to files that no longer exist. Both are per-item
// tolerant: a failed storage or record call becomes a failed result and
// never aborts the batch.
package imaging

import (
	"context"

	"github.com/hpungsan/nounimaging/internal/filename"
)

// Action is the outcome recorded for one stored file.
type Action string

const (
	ActionKeep                Action = "KEEP"
	ActionRemoved             Action = "REMOVED"
	ActionRemoveFailed        Action = "REMOVE_FAILED"
	ActionRenamedAndUpdated   Action = "RENAMED_AND_UPDATED"
	ActionRenameUpdateFailed  Action = "RENAME_UPDATE_FAILED"
	ActionRemovedNoMatch      Action = "REMOVED_NO_MATCH"
	ActionRemoveFailedNoMatch Action = "REMOVE_FAILED_NO_MATCH"
)

// Actions lists every action in report order.
var Actions = []Action{
	ActionKeep,
	ActionRemoved,
	ActionRemoveFailed,
	ActionRenamedAndUpdated,
	ActionRenameUpdateFailed,
	ActionRemovedNoMatch,
	ActionRemoveFailedNoMatch,
}

// Failed reports whether the action records a failed mutation.
func (a Action) Failed() bool {
	switch a {
	case ActionRemoveFailed, ActionRenameUpdateFailed, ActionRemoveFailedNoMatch:
		return true
	}
	return false
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// MatchResult is the per-file outcome of matching.
type MatchResult struct {
	filename.Parsed
	Action   Action `json:"action"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`

	// sourceRetained marks a rename whose source delete failed.
	sourceRetained bool
}

// CleanupResult records one cleared dangling reference.
type CleanupResult struct {
	NounID string `json:"nounId"`
	OldURL string `json:"oldUrl"`
	NewURL string `json:"newUrl"`
}

// RecordUpdater persists a noun's image reference.
type RecordUpdater interface {
	UpdateImageURL(ctx context.Context, id, imageURL string) error
}
