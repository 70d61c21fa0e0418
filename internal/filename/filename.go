// Package filename validates and repairs stored image names of the form
// <descriptor>_<13-digit millisecond timestamp>_<7-char token>.png.
package filename

import (
	"fmt"
	"math/rand/v2"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Status reports whether a name was already compliant.
type Status string

const (
	StatusValid    Status = "VALID"
	StatusRepaired Status = "REPAIRED"
)

// HashLength is the length of the random token in a compliant name.
const HashLength = 7

const hashAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var grammar = regexp.MustCompile(`(?i)^(.+)_(\d{13})_([a-z0-9]{7})\.png$`)

// Parsed is the outcome of validating one stored name.
type Parsed struct {
	// Original is the name (or object path) as stored
	Original string `json:"original"`

	Status Status `json:"status"`

	// Descriptor is the label before the timestamp/token suffix
	Descriptor string `json:"descriptor"`

	Timestamp string `json:"timestamp"`
	Hash      string `json:"hash"`

	// FinalName equals Original when valid, otherwise the synthesized name
	FinalName string `json:"finalName"`
}

// Repaired reports whether the name had to be rewritten.
func (p Parsed) Repaired() bool {
	return p.Status == StatusRepaired
}

// Matches reports whether name satisfies the grammar.
func Matches(name string) bool {
	return grammar.MatchString(name)
}

// Validator parses names and synthesizes compliant ones on failure.
// Randomness and time are injected; a Validator is safe for concurrent use.
type Validator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewValidator returns a Validator drawing tokens from src and timestamps
// from now. Nil arguments select a randomly seeded PCG and time.Now.
func NewValidator(src rand.Source, now func() time.Time) *Validator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{rng: rand.New(src), now: now}
}

// Parse validates a bare filename.
//
// Names that do not match have a trailing ".png" stripped (any case) and the
// remainder kept as descriptor, which may be empty.
func (v *Validator) Parse(name string) Parsed {
	if m := grammar.FindStringSubmatch(name); m != nil {
		return Parsed{
			Original:   name,
			Status:     StatusValid,
			Descriptor: m[1],
			Timestamp:  m[2],
			Hash:       m[3],
			FinalName:  name,
		}
	}

	descriptor := name
	if len(descriptor) >= 4 && strings.EqualFold(descriptor[len(descriptor)-4:], ".png") {
		descriptor = descriptor[:len(descriptor)-4]
	}

	ts, hash := v.stamp()
	return Parsed{
		Original:   name,
		Status:     StatusRepaired,
		Descriptor: descriptor,
		Timestamp:  ts,
		Hash:       hash,
		FinalName:  Compose(descriptor, ts, hash),
	}
}

// ParseObjectPath validates the base name of a storage path such as
// "nouns/dog.png". Original and FinalName keep the directory prefix.
func (v *Validator) ParseObjectPath(objectPath string) Parsed {
	dir, base := path.Split(objectPath)
	p := v.Parse(base)
	p.Original = objectPath
	p.FinalName = dir + p.FinalName
	return p
}

// Compose builds a name from its parts.
func Compose(descriptor, timestamp, hash string) string {
	return descriptor + "_" + timestamp + "_" + hash + ".png"
}

func (v *Validator) stamp() (string, string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ts := fmt.Sprintf("%013d", v.now().UnixMilli())
	var b strings.Builder
	b.Grow(HashLength)
	for range HashLength {
		b.WriteByte(hashAlphabet[v.rng.IntN(len(hashAlphabet))])
	}
	return ts, b.String()
}
