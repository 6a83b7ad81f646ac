package models

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// DefaultExtensions is the accepted extension set for a library path that
// doesn't configure its own.
var DefaultExtensions = []string{".epub", ".txt", ".mobi", ".azw3"}

// LibraryPath is one configured scan root within a library.
type LibraryPath struct {
	bun.BaseModel `bun:"table:library_paths,alias:lp"`

	ID         int       `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LibraryID  int       `bun:",nullzero" json:"library_id"`
	Filepath   string    `bun:",nullzero" json:"filepath"`
	Enabled    bool      `json:"enabled"`
	Recursive  bool      `json:"recursive"`
	Extensions string    `bun:",nullzero" json:"-"`

	ExtensionsParsed []string `bun:"-" json:"extensions"`
}

func (lp *LibraryPath) UnmarshalExtensions() error {
	if lp.Extensions == "" {
		lp.ExtensionsParsed = nil
		return nil
	}
	err := json.Unmarshal([]byte(lp.Extensions), &lp.ExtensionsParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (lp *LibraryPath) MarshalExtensions() error {
	if lp.ExtensionsParsed == nil {
		lp.Extensions = ""
		return nil
	}
	data, err := json.Marshal(lp.ExtensionsParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	lp.Extensions = string(data)
	return nil
}

// AcceptsExtension reports whether files with the given extension (".epub",
// case-insensitive) should be picked up under this path.
func (lp *LibraryPath) AcceptsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	accepted := lp.ExtensionsParsed
	if len(accepted) == 0 {
		accepted = DefaultExtensions
	}
	for _, a := range accepted {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}
