// Package extract turns a candidate file into a best-effort metadata record.
// It never fails hard: embedded metadata is preferred, then filename pattern
// matching, then the bare filename.
package extract

import (
	"context"
	"strings"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shelfmark/shelfmark/pkg/epub"
	"github.com/shelfmark/shelfmark/pkg/mediafile"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/namepattern"
)

// Format is one supported file format. Parse returns embedded metadata, or
// nil for formats that don't carry any; the context carries the caller's
// per-file deadline.
type Format interface {
	Extensions() []string
	Parse(ctx context.Context, path string) (*mediafile.ParsedMetadata, error)
}

type epubFormat struct{}

func (epubFormat) Extensions() []string { return []string{".epub"} }

func (epubFormat) Parse(ctx context.Context, path string) (*mediafile.ParsedMetadata, error) {
	return epub.Parse(ctx, path)
}

// plainFormat covers formats we catalog but don't parse: plain text and the
// Kindle container formats. Metadata comes from the filename for these.
type plainFormat struct {
	exts []string
}

func (f plainFormat) Extensions() []string { return f.exts }

func (plainFormat) Parse(context.Context, string) (*mediafile.ParsedMetadata, error) {
	return nil, nil
}

// Extractor dispatches to a format by extension lookup.
type Extractor struct {
	formats map[string]Format
}

func New() *Extractor {
	e := &Extractor{formats: map[string]Format{}}
	for _, f := range []Format{
		epubFormat{},
		plainFormat{exts: []string{".txt"}},
		plainFormat{exts: []string{".mobi", ".azw3"}},
	} {
		for _, ext := range f.Extensions() {
			e.formats[ext] = f
		}
	}
	return e
}

// SupportsExtension reports whether the extractor knows the extension.
func (e *Extractor) SupportsExtension(ext string) bool {
	_, ok := e.formats[strings.ToLower(ext)]
	return ok
}

// Extract produces a metadata record for the file at path with the given
// extension. It always returns a record; a non-nil warning means embedded
// extraction was attempted and failed, and a fallback source was used.
func (e *Extractor) Extract(ctx context.Context, path, ext string) (*mediafile.ParsedMetadata, error) {
	var warning error

	format, ok := e.formats[strings.ToLower(ext)]
	if ok {
		metadata, err := format.Parse(ctx, path)
		if err != nil {
			warning = err
		} else if metadata != nil && metadata.Title != "" {
			return metadata, nil
		}
	}

	if match, ok := namepattern.MatchFilename(path); ok {
		return &mediafile.ParsedMetadata{
			Title:  match.Title,
			Author: pointerutil.String(match.Author),
			Source: models.DataSourceFilename,
		}, warning
	}

	return &mediafile.ParsedMetadata{
		Title:  namepattern.Stem(path),
		Source: models.DataSourceFallback,
	}, warning
}
