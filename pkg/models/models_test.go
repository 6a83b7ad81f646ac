package models

import (
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "the three-body problem", Normalize("The  Three-Body   Problem"))
	assert.Equal(t, "三体", Normalize("  三体 "))
	assert.Equal(t, "a b c", Normalize("a\tb\nc"))
	assert.Equal(t, "", Normalize("   "))
}

func TestBookSetNormalized(t *testing.T) {
	book := &Book{Title: "White  Night", Author: pointerutil.String(" Keigo  Higashino ")}
	book.SetNormalized()
	assert.Equal(t, "white night", book.NormalizedTitle)
	assert.Equal(t, "keigo higashino", book.NormalizedAuthor)

	anonymous := &Book{Title: "Untitled"}
	anonymous.SetNormalized()
	assert.Equal(t, "", anonymous.NormalizedAuthor)
}

func TestLibraryPathAcceptsExtension(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		lp := &LibraryPath{}
		assert.True(t, lp.AcceptsExtension(".epub"))
		assert.True(t, lp.AcceptsExtension(".EPUB"))
		assert.True(t, lp.AcceptsExtension(".txt"))
		assert.True(t, lp.AcceptsExtension(".mobi"))
		assert.True(t, lp.AcceptsExtension(".azw3"))
		assert.False(t, lp.AcceptsExtension(".pdf"))
	})

	t.Run("configured set replaces the defaults", func(t *testing.T) {
		lp := &LibraryPath{ExtensionsParsed: []string{".epub"}}
		assert.True(t, lp.AcceptsExtension(".epub"))
		assert.False(t, lp.AcceptsExtension(".txt"))
	})
}

func TestScanTaskTerminal(t *testing.T) {
	for status, terminal := range map[string]bool{
		ScanTaskStatusPending:   false,
		ScanTaskStatusRunning:   false,
		ScanTaskStatusCompleted: true,
		ScanTaskStatusFailed:    true,
		ScanTaskStatusCancelled: true,
	} {
		assert.Equal(t, terminal, (&ScanTask{Status: status}).Terminal(), status)
	}
}

func TestScanTaskTargets(t *testing.T) {
	task := &ScanTask{LibraryIDsParsed: []int{1, 3}}
	assert.True(t, task.Targets(1))
	assert.True(t, task.Targets(3))
	assert.False(t, task.Targets(2))
}
