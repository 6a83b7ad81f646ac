package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	DataSourceEmbedded = "embedded"
	DataSourceFilename = "filename"
	DataSourceFallback = "fallback"
)

// DataSourcePriority ranks metadata sources; lower wins when deciding
// whether a newly extracted value should replace a stored one.
var DataSourcePriority = map[string]int{
	DataSourceEmbedded: 0,
	DataSourceFilename: 1,
	DataSourceFallback: 2,
}

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID               int       `bun:",pk,nullzero" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LibraryID        int       `bun:",nullzero" json:"library_id"`
	Library          *Library  `bun:"rel:belongs-to" json:"library,omitempty"`
	Title            string    `bun:",nullzero" json:"title"`
	Author           *string   `json:"author"`
	NormalizedTitle  string    `bun:",nullzero" json:"-"`
	NormalizedAuthor string    `json:"-"`
	MetadataSource   string    `bun:",nullzero" json:"metadata_source"`
	Files            []*File   `bun:"rel:has-many" json:"files,omitempty"`
}

// Normalize collapses a title or author name to its comparison form:
// lowercased with runs of whitespace folded to single spaces.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SetNormalized refreshes the normalized lookup columns from Title/Author.
func (b *Book) SetNormalized() {
	b.NormalizedTitle = Normalize(b.Title)
	b.NormalizedAuthor = ""
	if b.Author != nil {
		b.NormalizedAuthor = Normalize(*b.Author)
	}
}
