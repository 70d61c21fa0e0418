package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/noun"
)

const selectColumns = `
	SELECT id, name_en, name_he, category_ref, image_url, created_at, updated_at
	FROM nouns
`

// Insert stores a new noun in the database.
func Insert(ctx context.Context, db *sql.DB, n *noun.Noun) error {
	query := `
		INSERT INTO nouns (
			id, name_en, name_en_norm, name_he, category_ref,
			image_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		n.ID, n.NameEn, noun.NormalizeName(n.NameEn), n.NameHe, toNullString(n.CategoryRef),
		n.ImageURL, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetByID retrieves a noun by its ULID.
func GetByID(ctx context.Context, db *sql.DB, id string) (*noun.Noun, error) {
	row := db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	n, err := scanNoun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return n, nil
}

// FindByNameEn returns every noun whose English name equals name,
// case-insensitively, oldest first. An empty slice means no match.
func FindByNameEn(ctx context.Context, db *sql.DB, name string) ([]*noun.Noun, error) {
	return queryNouns(ctx, db,
		selectColumns+" WHERE name_en_norm = ? ORDER BY created_at ASC, id ASC",
		noun.NormalizeName(name),
	)
}

// ListAll returns every noun, oldest first.
func ListAll(ctx context.Context, db *sql.DB) ([]*noun.Noun, error) {
	return queryNouns(ctx, db, selectColumns+" ORDER BY created_at ASC, id ASC")
}

// List returns one page of nouns, oldest first, plus the total count.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]*noun.Noun, int, error) {
	total, err := Count(ctx, db)
	if err != nil {
		return nil, 0, err
	}
	items, err := queryNouns(ctx, db,
		selectColumns+" ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Count returns the number of nouns.
func Count(ctx context.Context, db *sql.DB) (int, error) {
	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nouns").Scan(&total); err != nil {
		return 0, errors.NewInternal(err)
	}
	return total, nil
}

// UpdateImageURL replaces the image reference of one noun.
// Sets updated_at to the current timestamp.
func UpdateImageURL(ctx context.Context, db *sql.DB, id, imageURL string) error {
	now := time.Now().Unix()

	result, err := db.ExecContext(ctx,
		"UPDATE nouns SET image_url = ?, updated_at = ? WHERE id = ?",
		imageURL, now, id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// queryNouns runs a multi-row query and scans every row.
func queryNouns(ctx context.Context, db *sql.DB, query string, args ...any) ([]*noun.Noun, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items := make([]*noun.Noun, 0)
	for rows.Next() {
		n, err := scanNoun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanNoun scans a single row into a Noun struct.
func scanNoun(row scanner) (*noun.Noun, error) {
	var (
		n           noun.Noun
		categoryRef sql.NullString
	)

	err := row.Scan(
		&n.ID, &n.NameEn, &n.NameHe, &categoryRef, &n.ImageURL,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryRef.Valid {
		n.CategoryRef = categoryRef.String
	}
	return &n, nil
}

// toNullString maps an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
