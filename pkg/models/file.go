package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	FileTypeEPUB = "epub"
	FileTypeTXT  = "txt"
	FileTypeMOBI = "mobi"
	FileTypeAZW3 = "azw3"
)

const (
	QualityTierLow    = "low"
	QualityTierMedium = "medium"
	QualityTierHigh   = "high"
)

// QualityTierRank orders tiers for primary-version promotion.
var QualityTierRank = map[string]int{
	QualityTierLow:    0,
	QualityTierMedium: 1,
	QualityTierHigh:   2,
}

const FingerprintAlgorithmSHA256 = "sha256"

// File is one physical file (one format/edition) attached to a Book.
type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID                   int       `bun:",pk,nullzero" json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	LibraryID            int       `bun:",nullzero" json:"library_id"`
	BookID               int       `bun:",nullzero" json:"book_id"`
	Book                 *Book     `bun:"rel:belongs-to" json:"book,omitempty"`
	Filepath             string    `bun:",nullzero" json:"filepath"`
	FileType             string    `bun:",nullzero" json:"file_type"`
	FilesizeBytes        int64     `bun:",nullzero" json:"filesize_bytes"`
	Fingerprint          string    `bun:",nullzero" json:"fingerprint"`
	FingerprintAlgorithm string    `bun:",nullzero" json:"fingerprint_algorithm"`
	QualityTier          string    `bun:",nullzero" json:"quality_tier"`
	Primary              bool      `bun:"is_primary" json:"is_primary"`
	MetadataSource       string    `bun:",nullzero" json:"metadata_source"`
	CoverImagePath       *string   `json:"cover_image_path"`
	CoverMimeType        *string   `json:"cover_mime_type"`
}

func (f *File) CoverExtension() string {
	if f.CoverMimeType == nil {
		return ""
	}
	ext := ""
	switch *f.CoverMimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	}
	return ext
}
