// Package catalog is the storage collaborator the scan engine classifies
// against. It only ever looks up entries, creates them, and appends
// versions; it never deletes or touches unrelated records.
package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveFileOptions struct {
	Fingerprint *string
	Filepath    *string
	LibraryID   *int
}

type RetrieveBookOptions struct {
	ID               *int
	LibraryID        *int
	NormalizedTitle  *string
	NormalizedAuthor *string
	IncludeFiles     bool
}

type ListBooksOptions struct {
	LibraryID *int
	Limit     *int
	Offset    *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveFile(ctx context.Context, opts RetrieveFileOptions) (*models.File, error) {
	file := &models.File{}

	q := svc.db.
		NewSelect().
		Model(file)

	if opts.Fingerprint != nil {
		q = q.Where("f.fingerprint = ?", *opts.Fingerprint)
	}
	if opts.Filepath != nil {
		q = q.Where("f.filepath = ?", *opts.Filepath)
	}
	if opts.LibraryID != nil {
		q = q.Where("f.library_id = ?", *opts.LibraryID)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("File")
		}
		return nil, errors.WithStack(err)
	}

	return file, nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.IncludeFiles {
		q = q.Relation("Files", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("filepath ASC")
		})
	}

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}
	if opts.NormalizedTitle != nil {
		q = q.Where("b.normalized_title = ?", *opts.NormalizedTitle)
	}
	if opts.NormalizedAuthor != nil {
		q = q.Where("b.normalized_author = ?", *opts.NormalizedAuthor)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books := []*models.Book{}

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Files").
		Order("b.normalized_title ASC")

	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// CreateBook inserts a new entry together with its first version, which
// becomes the primary one.
func (svc *Service) CreateBook(ctx context.Context, book *models.Book, file *models.File) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt
	book.SetNormalized()

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return wrapUniqueViolation(err, "Book")
		}

		file.BookID = book.ID
		file.LibraryID = book.LibraryID
		file.Primary = true
		file.CreatedAt = now
		file.UpdatedAt = now

		_, err = tx.
			NewInsert().
			Model(file).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return wrapUniqueViolation(err, "File")
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// AppendFile attaches another version to an existing entry. If the new
// version outranks the current primary's quality tier it takes over as
// primary.
func (svc *Service) AppendFile(ctx context.Context, bookID int, file *models.File) error {
	now := time.Now()
	file.BookID = bookID
	file.CreatedAt = now
	file.UpdatedAt = now

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		primary := &models.File{}
		err := tx.
			NewSelect().
			Model(primary).
			Where("f.book_id = ?", bookID).
			Where("f.is_primary").
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.WithStack(err)
		}
		hasPrimary := err == nil

		file.Primary = !hasPrimary || models.QualityTierRank[file.QualityTier] > models.QualityTierRank[primary.QualityTier]

		_, err = tx.
			NewInsert().
			Model(file).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return wrapUniqueViolation(err, "File")
		}

		if hasPrimary && file.Primary {
			primary.Primary = false
			primary.UpdatedAt = now
			_, err = tx.
				NewUpdate().
				Model(primary).
				Column("is_primary", "updated_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// wrapUniqueViolation maps SQLite uniqueness errors to errcodes.Conflict so
// the scan pipeline can recognize append races and retry.
func wrapUniqueViolation(err error, resource string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errcodes.Conflict(resource)
	}
	return errors.WithStack(err)
}
