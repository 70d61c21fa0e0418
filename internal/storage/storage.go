// Package storage abstracts the object store that holds noun images.
//
// The reconciliation core only lists, deletes and copies objects and asks
// for durable read URLs; it never uploads content.
package storage

import (
	"context"
	"strings"
)

// Object is one entry returned by a listing.
type Object struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType,omitempty"`
}

// IsDirMarker reports whether the object is a folder placeholder.
func (o Object) IsDirMarker() bool {
	return strings.HasSuffix(o.Path, "/")
}

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	// List returns every object under prefix, recursively.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes one object.
	Delete(ctx context.Context, path string) error

	// Copy duplicates src to dst, overwriting dst.
	Copy(ctx context.Context, src, dst string) error

	// URL returns a long-lived read URL for path.
	URL(ctx context.Context, path string) (string, error)
}

// folderPrefix adds a trailing slash to a non-empty prefix.
func folderPrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
