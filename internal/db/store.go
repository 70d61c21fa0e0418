package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/nounimaging/internal/noun"
)

// NounStore adapts the package-level queries to the record store the
// reconciliation pipeline depends on.
type NounStore struct {
	db *sql.DB
}

// NewNounStore wraps an initialized database.
func NewNounStore(db *sql.DB) *NounStore {
	return &NounStore{db: db}
}

// ListAll returns every noun, oldest first.
func (s *NounStore) ListAll(ctx context.Context) ([]*noun.Noun, error) {
	return ListAll(ctx, s.db)
}

// FindByNameEn returns nouns whose English name matches case-insensitively.
func (s *NounStore) FindByNameEn(ctx context.Context, name string) ([]*noun.Noun, error) {
	return FindByNameEn(ctx, s.db, name)
}

// UpdateImageURL persists a new image reference for one noun.
func (s *NounStore) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	return UpdateImageURL(ctx, s.db, id, imageURL)
}
