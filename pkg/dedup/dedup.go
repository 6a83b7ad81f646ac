// Package dedup classifies a scanned file against the catalog. Content
// identity (fingerprint) always wins over title/author matching, because
// metadata extraction is best-effort and can collide or miss.
package dedup

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shelfmark/shelfmark/pkg/catalog"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
	"github.com/shelfmark/shelfmark/pkg/fingerprint"
	"github.com/shelfmark/shelfmark/pkg/mediafile"
	"github.com/shelfmark/shelfmark/pkg/models"
)

const (
	ActionSkip       = "skip"
	ActionAddVersion = "add_version"
	ActionNewEntry   = "new_entry"
)

// Result is a classification outcome. BookID is set for ActionAddVersion.
type Result struct {
	Action string
	BookID int
}

type Classifier struct {
	catalog *catalog.Service
}

func NewClassifier(svc *catalog.Service) *Classifier {
	return &Classifier{catalog: svc}
}

// Classify decides Skip / AddVersion / NewEntry for a file within a library.
// Order matters: an already-cataloged fingerprint is Skip no matter what the
// extracted metadata says.
func (c *Classifier) Classify(ctx context.Context, libraryID int, fp *fingerprint.Fingerprint, metadata *mediafile.ParsedMetadata) (*Result, error) {
	existing, err := c.catalog.RetrieveFile(ctx, catalog.RetrieveFileOptions{
		Fingerprint: &fp.Hex,
		LibraryID:   &libraryID,
	})
	if err != nil && !errors.Is(err, errcodes.NotFound("File")) {
		return nil, errors.WithStack(err)
	}
	if existing != nil {
		return &Result{Action: ActionSkip}, nil
	}

	normalizedTitle := models.Normalize(metadata.Title)
	normalizedAuthor := ""
	if metadata.Author != nil {
		normalizedAuthor = models.Normalize(*metadata.Author)
	}

	book, err := c.catalog.RetrieveBook(ctx, catalog.RetrieveBookOptions{
		LibraryID:        &libraryID,
		NormalizedTitle:  &normalizedTitle,
		NormalizedAuthor: &normalizedAuthor,
	})
	if err != nil && !errors.Is(err, errcodes.NotFound("Book")) {
		return nil, errors.WithStack(err)
	}
	if book != nil {
		return &Result{Action: ActionAddVersion, BookID: book.ID}, nil
	}

	return &Result{Action: ActionNewEntry}, nil
}

const (
	highTierMinBytes = 1 << 20 // 1MiB
	lowTierMaxBytes  = 64 << 10
)

// QualityTier derives a version's tier from format and size alone, so the
// same input always yields the same tier.
func QualityTier(fileType string, sizeBytes int64) string {
	if fileType == models.FileTypeTXT || sizeBytes < lowTierMaxBytes {
		return models.QualityTierLow
	}
	if fileType == models.FileTypeEPUB && sizeBytes >= highTierMinBytes {
		return models.QualityTierHigh
	}
	return models.QualityTierMedium
}
