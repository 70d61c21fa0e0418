package imaging

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/nounimaging/internal/filename"
	"github.com/hpungsan/nounimaging/internal/noun"
	"github.com/hpungsan/nounimaging/internal/storage"
)

const ns = "nouns"

var nsPaths = NewURLPaths(ns, "")

// memRecords is a RecordUpdater over a fixed set of nouns.
type memRecords struct {
	mu      sync.Mutex
	urls    map[string]string
	fail    map[string]error
	updates int
}

func newMemRecords(nouns ...*noun.Noun) *memRecords {
	r := &memRecords{urls: make(map[string]string), fail: make(map[string]error)}
	for _, n := range nouns {
		r.urls[n.ID] = n.ImageURL
	}
	return r
}

func (r *memRecords) UpdateImageURL(_ context.Context, id, imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[id]; err != nil {
		return err
	}
	r.urls[id] = imageURL
	r.updates++
	return nil
}

func (r *memRecords) url(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urls[id]
}

func newValidator() *filename.Validator {
	return filename.NewValidator(rand.NewPCG(3, 4), func() time.Time { return time.UnixMilli(1700000000999) })
}

func parseAll(v *filename.Validator, paths ...string) []filename.Parsed {
	out := make([]filename.Parsed, len(paths))
	for i, p := range paths {
		out[i] = v.ParseObjectPath(p)
	}
	return out
}

func byOriginal(results []MatchResult) map[string]MatchResult {
	m := make(map[string]MatchResult, len(results))
	for _, r := range results {
		m[r.Original] = r
	}
	return m
}

func TestMatcher_KeepAndUnclaimed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	store.Put("nouns/cat_1700000000000_ab12cd3.png", 100, "image/png")
	store.Put("nouns/dog.png", 100, "image/png")

	cat := &noun.Noun{ID: "n1", NameEn: "cat", ImageURL: storage.PublicURL(storage.DefaultMemBaseURL, "nouns/cat_1700000000000_ab12cd3.png")}
	records := newMemRecords(cat)
	idx := NewRecordIndex([]*noun.Noun{cat}, nsPaths)

	parsed := parseAll(newValidator(), "nouns/cat_1700000000000_ab12cd3.png", "nouns/dog.png")
	results := NewMatcher(store, records, MatcherOptions{}).MatchBatch(ctx, parsed, idx, nil)
	require.Len(t, results, 2)

	got := byOriginal(results)
	assert.Equal(t, ActionKeep, got["nouns/cat_1700000000000_ab12cd3.png"].Action)

	dog := got["nouns/dog.png"]
	assert.Equal(t, ActionRemovedNoMatch, dog.Action)
	assert.Equal(t, filename.StatusRepaired, dog.Status)
	assert.True(t, strings.HasPrefix(dog.FinalName, "nouns/dog_1700000000999_"))

	assert.Equal(t, []string{"nouns/cat_1700000000000_ab12cd3.png"}, store.Paths())
	assert.Zero(t, records.updates)
}

func TestMatcher_RenameAndLink(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	store.Put("nouns/rabbit.png", 100, "image/png")

	rabbit := &noun.Noun{ID: "n1", NameEn: "Rabbit"}
	records := newMemRecords(rabbit)
	idx := NewRecordIndex([]*noun.Noun{rabbit}, nsPaths)

	parsed := parseAll(newValidator(), "nouns/rabbit.png")
	results := NewMatcher(store, records, MatcherOptions{}).MatchBatch(ctx, parsed, idx, nil)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, ActionRenamedAndUpdated, r.Action)
	assert.NotEmpty(t, r.ImageURL)
	assert.Equal(t, []string{r.FinalName}, store.Paths())

	// Record points at the new object, in the store and in memory.
	assert.Equal(t, r.ImageURL, records.url("n1"))
	assert.Equal(t, r.ImageURL, rabbit.ImageURL)
	path, ok := ExtractPath(rabbit.ImageURL, ns)
	require.True(t, ok)
	assert.Equal(t, ObjectKey(r.FinalName), path)
}

func TestMatcher_OrphanRemoval(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	store.Put("nouns/owl_1700000000000_aaaaaaa.png", 1, "")
	store.Put("nouns/fox_1700000000000_bbbbbbb.png", 1, "")
	boom := errors.New("permission denied")
	store.FailOn("delete", "nouns/fox_1700000000000_bbbbbbb.png", boom)

	idx := NewRecordIndex(nil, nsPaths)
	parsed := parseAll(newValidator(), "nouns/owl_1700000000000_aaaaaaa.png", "nouns/fox_1700000000000_bbbbbbb.png")
	got := byOriginal(NewMatcher(store, newMemRecords(), MatcherOptions{}).MatchBatch(ctx, parsed, idx, nil))

	assert.Equal(t, ActionRemoved, got["nouns/owl_1700000000000_aaaaaaa.png"].Action)
	fox := got["nouns/fox_1700000000000_bbbbbbb.png"]
	assert.Equal(t, ActionRemoveFailed, fox.Action)
	assert.Equal(t, "permission denied", fox.Error)
	assert.True(t, store.Has("nouns/fox_1700000000000_bbbbbbb.png"))
}

func TestMatcher_UnclaimedDeleteFailure(t *testing.T) {
	store := storage.NewMemStore()
	store.Put("nouns/ghost.png", 1, "")
	store.FailOn("delete", "nouns/ghost.png", errors.New("timeout"))

	results := NewMatcher(store, newMemRecords(), MatcherOptions{}).
		MatchBatch(context.Background(), parseAll(newValidator(), "nouns/ghost.png"), NewRecordIndex(nil, nsPaths), nil)

	require.Len(t, results, 1)
	assert.Equal(t, ActionRemoveFailedNoMatch, results[0].Action)
	assert.Equal(t, "timeout", results[0].Error)
}

func TestMatcher_RenameFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(store *storage.MemStore, records *memRecords, final string)
	}{
		{
			name: "copy fails",
			setup: func(store *storage.MemStore, _ *memRecords, _ string) {
				store.FailOn("copy", "nouns/rabbit.png", errors.New("copy denied"))
			},
		},
		{
			name: "url fails",
			setup: func(store *storage.MemStore, _ *memRecords, final string) {
				store.FailOn("url", final, errors.New("no signer"))
			},
		},
		{
			name: "record update fails",
			setup: func(_ *storage.MemStore, records *memRecords, _ string) {
				records.fail["n1"] = errors.New("db locked")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemStore()
			store.Put("nouns/rabbit.png", 1, "")
			rabbit := &noun.Noun{ID: "n1", NameEn: "rabbit"}
			records := newMemRecords(rabbit)
			parsed := parseAll(newValidator(), "nouns/rabbit.png")
			tt.setup(store, records, parsed[0].FinalName)

			results := NewMatcher(store, records, MatcherOptions{}).
				MatchBatch(context.Background(), parsed, NewRecordIndex([]*noun.Noun{rabbit}, nsPaths), nil)

			require.Len(t, results, 1)
			assert.Equal(t, ActionRenameUpdateFailed, results[0].Action)
			assert.NotEmpty(t, results[0].Error)
			assert.Empty(t, results[0].ImageURL)
			assert.Empty(t, rabbit.ImageURL)
		})
	}
}

func TestMatcher_SourceDeleteFailureStillRenamed(t *testing.T) {
	store := storage.NewMemStore()
	store.Put("nouns/rabbit.png", 1, "")
	store.FailOn("delete", "nouns/rabbit.png", errors.New("busy"))
	rabbit := &noun.Noun{ID: "n1", NameEn: "rabbit"}

	results := NewMatcher(store, newMemRecords(rabbit), MatcherOptions{}).
		MatchBatch(context.Background(), parseAll(newValidator(), "nouns/rabbit.png"), NewRecordIndex([]*noun.Noun{rabbit}, nsPaths), nil)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, ActionRenamedAndUpdated, r.Action)
	assert.Empty(t, r.Error)
	assert.True(t, store.Has("nouns/rabbit.png"))
	assert.True(t, store.Has(r.FinalName))

	live := LiveSetFromResults(results)
	assert.True(t, live.Has("nouns/rabbit.png"))
	assert.True(t, live.Has(r.FinalName))
}

// Duplicate English names are not detected; the first record given wins.
func TestMatcher_DuplicateNameFirstMatchWins(t *testing.T) {
	store := storage.NewMemStore()
	store.Put("nouns/bat.png", 1, "")
	older := &noun.Noun{ID: "old", NameEn: "bat"}
	newer := &noun.Noun{ID: "new", NameEn: "Bat"}
	records := newMemRecords(older, newer)

	results := NewMatcher(store, records, MatcherOptions{}).
		MatchBatch(context.Background(), parseAll(newValidator(), "nouns/bat.png"), NewRecordIndex([]*noun.Noun{older, newer}, nsPaths), nil)

	require.Len(t, results, 1)
	assert.Equal(t, ActionRenamedAndUpdated, results[0].Action)
	assert.NotEmpty(t, records.url("old"))
	assert.Empty(t, records.url("new"))
}

func TestMatcher_CompletenessAcrossWorkers(t *testing.T) {
	store := storage.NewMemStore()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		p := "nouns/" + name + ".png"
		store.Put(p, 1, "")
		paths = append(paths, p)
	}
	store.Put("nouns/k_1700000000000_kkkkkkk.png", 1, "")
	paths = append(paths, "nouns/k_1700000000000_kkkkkkk.png")

	recs := []*noun.Noun{{ID: "1", NameEn: "a"}, {ID: "2", NameEn: "c"}}
	var calls atomic.Int32

	results := NewMatcher(store, newMemRecords(recs...), MatcherOptions{Workers: 3}).
		MatchBatch(context.Background(), parseAll(newValidator(), paths...), NewRecordIndex(recs, nsPaths), func(MatchResult) { calls.Add(1) })

	require.Len(t, results, len(paths))
	assert.EqualValues(t, len(paths), calls.Load())
	seen := make(map[string]bool)
	for _, r := range results {
		assert.True(t, r.Action.Valid(), "action %q", r.Action)
		seen[r.Original] = true
	}
	assert.Len(t, seen, len(paths))
}

func TestMatcher_ClaimUsesPathBelowNamespace(t *testing.T) {
	store := storage.NewMemStore()
	store.Put("nouns/sub/dog.png", 1, "")
	store.Put("nouns/Hen.PNG", 1, "")
	dog := &noun.Noun{ID: "n-dog", NameEn: "dog"}
	nested := &noun.Noun{ID: "n-nested", NameEn: "sub/dog"}
	hen := &noun.Noun{ID: "n-hen", NameEn: "hen"}
	recs := []*noun.Noun{dog, nested, hen}
	records := newMemRecords(recs...)

	got := byOriginal(NewMatcher(store, records, MatcherOptions{}).
		MatchBatch(context.Background(), parseAll(newValidator(), "nouns/sub/dog.png", "nouns/Hen.PNG"), NewRecordIndex(recs, nsPaths), nil))

	assert.Equal(t, ActionRenamedAndUpdated, got["nouns/sub/dog.png"].Action)
	assert.NotEmpty(t, records.url("n-nested"))
	assert.Empty(t, records.url("n-dog"))

	assert.Equal(t, ActionRenamedAndUpdated, got["nouns/Hen.PNG"].Action)
	assert.NotEmpty(t, records.url("n-hen"))
}

// Path-style URLs carry the bucket as the first segment; a bucket named like
// the namespace must not shift the extracted path.
func TestMatcherAndCleaner_BucketNamedLikeNamespace(t *testing.T) {
	ctx := context.Background()
	paths := NewURLPaths(ns, "nouns")
	presigned := func(p string) string {
		return "http://minio:9000/nouns/" + p + "?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Signature=1"
	}

	store := storage.NewMemStore()
	store.Put("nouns/cat_1700000000000_ab12cd3.png", 1, "")
	cat := &noun.Noun{ID: "n1", NameEn: "cat", ImageURL: presigned("nouns/cat_1700000000000_ab12cd3.png")}
	records := newMemRecords(cat)

	results := NewMatcher(store, records, MatcherOptions{}).
		MatchBatch(ctx, parseAll(newValidator(), "nouns/cat_1700000000000_ab12cd3.png"), NewRecordIndex([]*noun.Noun{cat}, paths), nil)
	require.Len(t, results, 1)
	assert.Equal(t, ActionKeep, results[0].Action)
	assert.True(t, store.Has("nouns/cat_1700000000000_ab12cd3.png"))

	cleaned := NewCleaner(records, paths, nil).CleanBatch(ctx, []*noun.Noun{cat}, LiveSetFromResults(results), nil)
	assert.Empty(t, cleaned)
	assert.Equal(t, presigned("nouns/cat_1700000000000_ab12cd3.png"), cat.ImageURL)
}

func TestCleaner_DanglingReference(t *testing.T) {
	ctx := context.Background()
	gone := storage.PublicURL(storage.DefaultMemBaseURL, "nouns/gone_1700000000000_abcdefg.png")
	kept := storage.PublicURL(storage.DefaultMemBaseURL, "nouns/kept_1700000000000_abcdefg.png")

	n1 := &noun.Noun{ID: "n1", ImageURL: gone}
	n2 := &noun.Noun{ID: "n2", ImageURL: kept}
	n3 := &noun.Noun{ID: "n3", ImageURL: ""}
	n4 := &noun.Noun{ID: "n4", ImageURL: "https://elsewhere.example.com/picture.png"}
	records := newMemRecords(n1, n2, n3, n4)

	live := LiveSet{}
	live.Add("nouns/kept_1700000000000_abcdefg.png")

	var examined int
	c := NewCleaner(records, nsPaths, nil)
	cleaned := c.CleanBatch(ctx, []*noun.Noun{n1, n2, n3, n4}, live, func() { examined++ })

	require.Len(t, cleaned, 1)
	assert.Equal(t, CleanupResult{NounID: "n1", OldURL: gone, NewURL: ""}, cleaned[0])
	assert.Empty(t, n1.ImageURL)
	assert.Equal(t, "", records.url("n1"))
	assert.Equal(t, kept, n2.ImageURL)
	assert.Equal(t, "https://elsewhere.example.com/picture.png", n4.ImageURL)
	assert.Equal(t, 4, examined)

	// A second pass over the same state changes nothing.
	again := c.CleanBatch(ctx, []*noun.Noun{n1, n2, n3, n4}, live, nil)
	assert.Empty(t, again)
	assert.Equal(t, 1, records.updates)
}

func TestCleaner_UpdateFailureSkipsRecord(t *testing.T) {
	url := storage.PublicURL(storage.DefaultMemBaseURL, "nouns/gone.png")
	n := &noun.Noun{ID: "n1", ImageURL: url}
	records := newMemRecords(n)
	records.fail["n1"] = errors.New("db locked")

	cleaned := NewCleaner(records, nsPaths, nil).CleanBatch(context.Background(), []*noun.Noun{n}, LiveSet{}, nil)
	assert.Empty(t, cleaned)
	assert.Equal(t, url, n.ImageURL)
}

func TestLiveSetFromResults(t *testing.T) {
	mk := func(orig, final string, a Action) MatchResult {
		return MatchResult{Parsed: filename.Parsed{Original: orig, FinalName: final}, Action: a}
	}
	live := LiveSetFromResults([]MatchResult{
		mk("nouns/keep.png", "nouns/keep.png", ActionKeep),
		mk("nouns/removed.png", "nouns/removed.png", ActionRemoved),
		mk("nouns/stuck.png", "nouns/stuck.png", ActionRemoveFailed),
		mk("nouns/old.png", "nouns/new.png", ActionRenamedAndUpdated),
		mk("nouns/bad.png", "nouns/bad2.png", ActionRenameUpdateFailed),
		mk("nouns/gone.png", "nouns/gone2.png", ActionRemovedNoMatch),
		mk("nouns/left.png", "nouns/left2.png", ActionRemoveFailedNoMatch),
	})

	for _, p := range []string{"nouns/keep.png", "nouns/stuck.png", "nouns/new.png", "nouns/bad.png", "nouns/left.png"} {
		assert.True(t, live.Has(p), p)
	}
	for _, p := range []string{"nouns/removed.png", "nouns/old.png", "nouns/bad2.png", "nouns/gone.png", "nouns/gone2.png"} {
		assert.False(t, live.Has(p), p)
	}
}

func TestLiveSetFromParsed(t *testing.T) {
	live := LiveSetFromParsed(parseAll(newValidator(), "nouns/Cat_1700000000000_abcdefg.png"))
	assert.True(t, live.Has("nouns/cat_1700000000000_abcdefg.png"))
}

func TestCountActions(t *testing.T) {
	counts, failed := CountActions([]MatchResult{
		{Action: ActionKeep},
		{Action: ActionKeep},
		{Action: ActionRemoveFailed},
	})
	assert.Equal(t, 2, counts[ActionKeep])
	assert.Equal(t, 0, counts[ActionRemoved])
	assert.Len(t, counts, len(Actions))
	assert.Equal(t, 1, failed)
}
