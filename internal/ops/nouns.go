package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/nounimaging/internal/db"
	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/noun"
)

// ListNounsInput contains parameters for the ListNouns operation.
type ListNounsInput struct {
	Limit  int // default: 20, max: 100
	Offset int
}

// ListNounsOutput contains the result of the ListNouns operation.
type ListNounsOutput struct {
	Items      []*noun.Noun `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// ListNouns returns one page of nouns, oldest first.
func ListNouns(ctx context.Context, database *sql.DB, input ListNounsInput) (*ListNounsOutput, error) {
	limit, offset := normalizePage(input.Limit, input.Offset)

	items, total, err := db.List(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ListNounsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}

// FindNounInput contains parameters for the FindNoun operation.
type FindNounInput struct {
	NameEn string // required; compared case-insensitively
}

// FindNounOutput contains every noun with the requested English name.
// More than one item means the name is duplicated.
type FindNounOutput struct {
	Items []*noun.Noun `json:"items"`
}

// FindNoun looks nouns up by exact English name.
func FindNoun(ctx context.Context, database *sql.DB, input FindNounInput) (*FindNounOutput, error) {
	name := strings.TrimSpace(input.NameEn)
	if name == "" {
		return nil, errors.NewInvalidRequest("name_en is required")
	}
	items, err := db.FindByNameEn(ctx, database, name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.NewNotFound(name)
	}
	return &FindNounOutput{Items: items}, nil
}

// SetNounImageInput contains parameters for the SetNounImage operation.
type SetNounImageInput struct {
	ID       string // required
	ImageURL string // empty clears the reference
}

// SetNounImage replaces a noun's image reference and returns the noun.
func SetNounImage(ctx context.Context, database *sql.DB, input SetNounImageInput) (*noun.Noun, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	imageURL := strings.TrimSpace(input.ImageURL)
	if imageURL != "" {
		if err := validateImageURL(imageURL); err != nil {
			return nil, err
		}
	}

	if err := db.UpdateImageURL(ctx, database, id, imageURL); err != nil {
		return nil, err
	}
	return db.GetByID(ctx, database, id)
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.NewInvalidRequest("image_url must be an absolute URL")
	}
	return nil
}

// ImportItem is one entry of a noun import file.
type ImportItem struct {
	NameEn     string `json:"nameEn"`
	NameHe     string `json:"nameHe"`
	Category   string `json:"category"`
	CategoryHe string `json:"categoryHe"`
	ImageURL   string `json:"imageUrl"`
}

// ImportNounsInput contains parameters for the ImportNouns operation.
type ImportNounsInput struct {
	Reader io.Reader // JSON array of ImportItem
}

// ImportNounsOutput contains the result of the ImportNouns operation.
type ImportNounsOutput struct {
	Total    int           `json:"total"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected entry.
type ImportError struct {
	Index   int    `json:"index"`
	NameEn  string `json:"nameEn,omitempty"`
	Message string `json:"message"`
}

// ImportNouns creates nouns from a JSON array. Entries missing a name are
// reported as errors; entries whose English name already exists are skipped.
// Valid entries are imported even when others fail.
func ImportNouns(ctx context.Context, database *sql.DB, input ImportNounsInput) (*ImportNounsOutput, error) {
	if input.Reader == nil {
		return nil, errors.NewInvalidRequest("import data is required")
	}

	var items []ImportItem
	if err := json.NewDecoder(input.Reader).Decode(&items); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import data must be a JSON array of nouns: %v", err))
	}
	if len(items) > MaxImportItems {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import exceeds %d items", MaxImportItems))
	}

	out := &ImportNounsOutput{Total: len(items), Errors: []ImportError{}}
	for i, item := range items {
		nameEn := strings.TrimSpace(item.NameEn)
		nameHe := strings.TrimSpace(item.NameHe)
		if nameEn == "" || nameHe == "" {
			out.Errors = append(out.Errors, ImportError{
				Index:   i,
				NameEn:  nameEn,
				Message: "nameEn and nameHe are required",
			})
			continue
		}

		existing, err := db.FindByNameEn(ctx, database, nameEn)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			out.Skipped++
			continue
		}

		imageURL := strings.TrimSpace(item.ImageURL)
		if imageURL != "" {
			if err := validateImageURL(imageURL); err != nil {
				out.Errors = append(out.Errors, ImportError{Index: i, NameEn: nameEn, Message: err.Error()})
				continue
			}
		}

		category := strings.TrimSpace(item.Category)
		if category == "" {
			category = strings.TrimSpace(item.CategoryHe)
		}

		now := time.Now().Unix()
		n := &noun.Noun{
			ID:          newID(),
			NameEn:      nameEn,
			NameHe:      nameHe,
			CategoryRef: category,
			ImageURL:    imageURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.Insert(ctx, database, n); err != nil {
			out.Errors = append(out.Errors, ImportError{Index: i, NameEn: nameEn, Message: err.Error()})
			continue
		}
		out.Imported++
	}
	return out, nil
}
