package noun

import "strings"

// Noun is a vocabulary record whose image lives in object storage.
type Noun struct {
	// ID is a ULID that uniquely identifies this noun
	ID string `json:"id"`

	// NameEn is the English name; image repair matches filenames against it
	NameEn string `json:"nameEn"`

	// NameHe is the Hebrew name
	NameHe string `json:"nameHe"`

	// CategoryRef references the owning category (opaque to this service)
	CategoryRef string `json:"category,omitempty"`

	// ImageURL is a download URL embedding the storage path, or empty
	ImageURL string `json:"imageUrl"`

	// CreatedAt is the Unix timestamp when the noun was created
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is the Unix timestamp when the noun was last updated
	UpdatedAt int64 `json:"updatedAt"`
}

// HasImage reports whether the noun references an image.
func (n *Noun) HasImage() bool {
	return strings.TrimSpace(n.ImageURL) != ""
}

// NormalizeName trims and lowercases a name for case-insensitive exact lookup.
// Internal whitespace is preserved so "ice cream" and "ice  cream" stay distinct.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
