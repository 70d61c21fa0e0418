package imaging

import (
	"sync"

	"github.com/hpungsan/nounimaging/internal/noun"
)

// RecordIndex is the in-memory view of all noun records for one run.
//
// It answers "is this path referenced" and "which record has this English
// name". When several records share a name the first one given wins; the
// duplicate is not reported.
type RecordIndex struct {
	paths URLPaths

	mu         sync.Mutex
	records    []*noun.Noun
	byName     map[string]*noun.Noun
	referenced map[string]struct{}
}

// NewRecordIndex indexes records, reading image URLs through paths. Records
// should be ordered oldest first so that duplicate names resolve to the
// oldest record.
func NewRecordIndex(records []*noun.Noun, paths URLPaths) *RecordIndex {
	idx := &RecordIndex{
		paths:      paths,
		records:    records,
		byName:     make(map[string]*noun.Noun, len(records)),
		referenced: make(map[string]struct{}, len(records)),
	}
	for _, n := range records {
		key := noun.NormalizeName(n.NameEn)
		if _, dup := idx.byName[key]; !dup {
			idx.byName[key] = n
		}
		if p, ok := paths.Extract(n.ImageURL); ok {
			idx.referenced[p] = struct{}{}
		}
	}
	return idx
}

// Len returns the number of indexed records.
func (idx *RecordIndex) Len() int {
	return len(idx.records)
}

// Records returns the indexed records.
func (idx *RecordIndex) Records() []*noun.Noun {
	return idx.records
}

// Referenced reports whether some record's image URL pointed at objectPath
// when the index was built.
func (idx *RecordIndex) Referenced(objectPath string) bool {
	_, ok := idx.referenced[ObjectKey(objectPath)]
	return ok
}

// Claimant returns the record claiming objectPath by name, or nil.
func (idx *RecordIndex) Claimant(objectPath string) *noun.Noun {
	return idx.ByName(MatchName(objectPath, idx.paths.Namespace()))
}

// ByName returns the first record whose English name equals name,
// case-insensitively, or nil.
func (idx *RecordIndex) ByName(name string) *noun.Noun {
	return idx.byName[noun.NormalizeName(name)]
}

// SetImageURL updates the in-memory copy of a record.
func (idx *RecordIndex) SetImageURL(n *noun.Noun, imageURL string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n.ImageURL = imageURL
}
