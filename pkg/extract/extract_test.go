package extract

import (
	"context"
	"testing"

	"github.com/shelfmark/shelfmark/internal/testgen"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	dir := testgen.TempDir(t, "extract-*")
	extractor := New()

	t.Run("embedded metadata wins", func(t *testing.T) {
		// The filename pattern would yield a different author/title pair;
		// the embedded record must take priority over it.
		path := testgen.GenerateEPUB(t, dir, "Wrong Author - Wrong Title.epub", testgen.EPUBOptions{
			Title:  "The Real Title",
			Author: "The Real Author",
		})

		metadata, warning := extractor.Extract(context.Background(), path, ".epub")
		require.NoError(t, warning)
		assert.Equal(t, "The Real Title", metadata.Title)
		require.NotNil(t, metadata.Author)
		assert.Equal(t, "The Real Author", *metadata.Author)
		assert.Equal(t, models.DataSourceEmbedded, metadata.Source)
	})

	t.Run("corrupt epub falls back to the filename with a warning", func(t *testing.T) {
		path := testgen.WriteFile(t, dir, "Jane Doe - Broken.epub", []byte("not a zip"))

		metadata, warning := extractor.Extract(context.Background(), path, ".epub")
		assert.Error(t, warning)
		assert.Equal(t, "Broken", metadata.Title)
		require.NotNil(t, metadata.Author)
		assert.Equal(t, "Jane Doe", *metadata.Author)
		assert.Equal(t, models.DataSourceFilename, metadata.Source)
	})

	t.Run("epub without a title falls back to the filename", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "刘慈欣-三体.epub", testgen.EPUBOptions{})

		metadata, warning := extractor.Extract(context.Background(), path, ".epub")
		require.NoError(t, warning)
		assert.Equal(t, "三体", metadata.Title)
		require.NotNil(t, metadata.Author)
		assert.Equal(t, "刘慈欣", *metadata.Author)
		assert.Equal(t, models.DataSourceFilename, metadata.Source)
	})

	t.Run("txt uses the filename pattern", func(t *testing.T) {
		path := testgen.WriteFile(t, dir, "[东野圭吾]白夜行.txt", []byte("text content"))

		metadata, warning := extractor.Extract(context.Background(), path, ".txt")
		require.NoError(t, warning)
		assert.Equal(t, "白夜行", metadata.Title)
		require.NotNil(t, metadata.Author)
		assert.Equal(t, "东野圭吾", *metadata.Author)
		assert.Equal(t, models.DataSourceFilename, metadata.Source)
	})

	t.Run("unmatched filename uses the stem", func(t *testing.T) {
		path := testgen.WriteFile(t, dir, "book1.txt", []byte("text content"))

		metadata, warning := extractor.Extract(context.Background(), path, ".txt")
		require.NoError(t, warning)
		assert.Equal(t, "book1", metadata.Title)
		assert.Nil(t, metadata.Author)
		assert.Equal(t, models.DataSourceFallback, metadata.Source)
	})

	t.Run("kindle formats use the filename", func(t *testing.T) {
		path := testgen.WriteFile(t, dir, "Jane Doe - Kindle Book.mobi", []byte("mobi bytes"))

		metadata, warning := extractor.Extract(context.Background(), path, ".mobi")
		require.NoError(t, warning)
		assert.Equal(t, "Kindle Book", metadata.Title)
		assert.Equal(t, models.DataSourceFilename, metadata.Source)
	})

	t.Run("expired context interrupts embedded parsing", func(t *testing.T) {
		// The epub itself is fine; the per-file deadline has just run out.
		// Embedded parsing stops and the filename fallback takes over, so
		// the caller sees the warning and can record the timeout.
		path := testgen.GenerateEPUB(t, dir, "Jane Doe - Stalled.epub", testgen.EPUBOptions{
			Title:  "The Real Title",
			Author: "The Real Author",
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		metadata, warning := extractor.Extract(ctx, path, ".epub")
		require.Error(t, warning)
		assert.ErrorIs(t, warning, context.Canceled)
		assert.Equal(t, "Stalled", metadata.Title)
		assert.Equal(t, models.DataSourceFilename, metadata.Source)
	})

	t.Run("unknown extension still yields a record", func(t *testing.T) {
		path := testgen.WriteFile(t, dir, "notes.pdf", []byte("pdf bytes"))

		metadata, warning := extractor.Extract(context.Background(), path, ".pdf")
		require.NoError(t, warning)
		assert.Equal(t, "notes", metadata.Title)
		assert.Equal(t, models.DataSourceFallback, metadata.Source)
	})
}

func TestSupportsExtension(t *testing.T) {
	extractor := New()

	assert.True(t, extractor.SupportsExtension(".epub"))
	assert.True(t, extractor.SupportsExtension(".EPUB"))
	assert.True(t, extractor.SupportsExtension(".txt"))
	assert.True(t, extractor.SupportsExtension(".mobi"))
	assert.True(t, extractor.SupportsExtension(".azw3"))
	assert.False(t, extractor.SupportsExtension(".pdf"))
}
