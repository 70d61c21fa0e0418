package imaging

import "time"

// Report is the final outcome of one reconciliation run.
type Report struct {
	Files       []MatchResult   `json:"files"`
	CleanedURLs []CleanupResult `json:"cleanedUrls"`
	Summary     Summary         `json:"summary"`
}

// Summary condenses a report for logs, tables and metrics.
type Summary struct {
	RunID       string         `json:"runId"`
	Namespace   string         `json:"namespace"`
	ListedFiles int            `json:"listedFiles"`
	ListedBytes int64          `json:"listedBytes"`
	Skipped     int            `json:"skipped"`
	Repaired    int            `json:"repaired"`
	Records     int            `json:"records"`
	Actions     map[Action]int `json:"actions"`
	Failed      int            `json:"failed"`
	Cleaned     int            `json:"cleaned"`
	StartedAt   time.Time      `json:"startedAt"`
	DurationMs  int64          `json:"durationMs"`
}

// CountActions tallies results by action. Every defined action is present.
func CountActions(results []MatchResult) (map[Action]int, int) {
	counts := make(map[Action]int, len(Actions))
	for _, a := range Actions {
		counts[a] = 0
	}
	failed := 0
	for _, r := range results {
		counts[r.Action]++
		if r.Action.Failed() {
			failed++
		}
	}
	return counts, failed
}
