package worker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shelfmark/shelfmark/internal/testgen"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/scans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessScanTask(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	testgen.GenerateEPUB(t, dir, "embedded.epub", testgen.EPUBOptions{
		Title:    "The Three-Body Problem",
		Author:   "Liu Cixin",
		HasCover: true,
	})
	testgen.WriteFile(t, dir, "[东野圭吾]白夜行.txt", []byte("novel text"))
	testgen.WriteFile(t, dir, "book1.txt", []byte("unlabeled text"))

	library := tc.createLibrary(dir)

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanTaskStatusCompleted, task.Status)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.EndedAt)
	require.NotNil(t, task.ProcessID)
	assert.Equal(t, 3, task.CountersParsed.FilesSeen)
	assert.Equal(t, 3, task.CountersParsed.Added)
	assert.Equal(t, 0, task.CountersParsed.Skipped)
	assert.Equal(t, 0, task.CountersParsed.VersionsAdded)
	assert.Equal(t, 0, task.CountersParsed.Errors)

	books := tc.listBooks(library.ID)
	require.Len(t, books, 3)

	byTitle := map[string]*models.Book{}
	for _, book := range books {
		byTitle[book.Title] = book
	}

	embedded := byTitle["The Three-Body Problem"]
	require.NotNil(t, embedded)
	require.NotNil(t, embedded.Author)
	assert.Equal(t, "Liu Cixin", *embedded.Author)
	assert.Equal(t, models.DataSourceEmbedded, embedded.MetadataSource)
	require.Len(t, embedded.Files, 1)
	assert.True(t, embedded.Files[0].Primary)
	require.NotNil(t, embedded.Files[0].CoverImagePath)
	assert.True(t, testgen.FileExists(filepath.Join(dir, "embedded.cover.png")))

	patterned := byTitle["白夜行"]
	require.NotNil(t, patterned)
	require.NotNil(t, patterned.Author)
	assert.Equal(t, "东野圭吾", *patterned.Author)
	assert.Equal(t, models.DataSourceFilename, patterned.MetadataSource)

	bare := byTitle["book1"]
	require.NotNil(t, bare)
	assert.Nil(t, bare.Author)
	assert.Equal(t, models.DataSourceFallback, bare.MetadataSource)
}

func TestProcessScanTaskIdempotent(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	testgen.WriteFile(t, dir, "刘慈欣-三体.txt", []byte("chapter one"))
	testgen.WriteFile(t, dir, "book1.txt", []byte("other text"))

	library := tc.createLibrary(dir)

	first, err := tc.runScan(library.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.CountersParsed.Added)

	second, err := tc.runScan(library.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanTaskStatusCompleted, second.Status)
	assert.Equal(t, 2, second.CountersParsed.FilesSeen)
	assert.Equal(t, 0, second.CountersParsed.Added)
	assert.Equal(t, 0, second.CountersParsed.VersionsAdded)
	assert.Equal(t, 2, second.CountersParsed.Skipped)

	assert.Len(t, tc.listBooks(library.ID), 2)
}

func TestProcessScanTaskDuplicateContent(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	// Same bytes under two names: only one of them can enter the catalog.
	testgen.WriteFile(t, dir, "Jane Doe - Original.txt", []byte("identical bytes"))
	testgen.WriteFile(t, dir, "Jane Doe - Copy.txt", []byte("identical bytes"))

	library := tc.createLibrary(dir)

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanTaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.CountersParsed.FilesSeen)
	assert.Equal(t, 1, task.CountersParsed.Added)
	assert.Equal(t, 1, task.CountersParsed.Skipped)
	assert.Equal(t, 0, task.CountersParsed.Errors)

	books := tc.listBooks(library.ID)
	require.Len(t, books, 1)
	assert.Len(t, books[0].Files, 1)
}

func TestProcessScanTaskAddsVersions(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)
	subA := testgen.CreateSubDir(t, dir, "a")
	subB := testgen.CreateSubDir(t, dir, "b")

	// Same logical book in two places with different content: one entry,
	// two versions.
	testgen.WriteFile(t, subA, "Jane Doe - Alpha.txt", []byte("first edition"))
	testgen.WriteFile(t, subB, "Jane Doe - Alpha.txt", []byte("second edition"))

	library := tc.createLibrary(dir)

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, task.CountersParsed.FilesSeen)
	assert.Equal(t, 1, task.CountersParsed.Added)
	assert.Equal(t, 1, task.CountersParsed.VersionsAdded)
	assert.Equal(t, 0, task.CountersParsed.Errors)

	books := tc.listBooks(library.ID)
	require.Len(t, books, 1)
	require.Len(t, books[0].Files, 2)

	primaries := 0
	for _, f := range books[0].Files {
		if f.Primary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestProcessScanTaskPromotesHigherQuality(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	testgen.WriteFile(t, dir, "Jane Doe - Alpha.txt", []byte("plain text edition"))
	library := tc.createLibrary(dir)

	_, err := tc.runScan(library.ID)
	require.NoError(t, err)

	// A second scan picks up a bigger edition of the same book, which
	// outranks the small text version and becomes primary.
	testgen.WriteFile(t, dir, "Jane Doe - Alpha.mobi", bytes.Repeat([]byte("m"), 128<<10))

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.CountersParsed.VersionsAdded)
	assert.Equal(t, 1, task.CountersParsed.Skipped)

	books := tc.listBooks(library.ID)
	require.Len(t, books, 1)
	require.Len(t, books[0].Files, 2)
	for _, f := range books[0].Files {
		assert.Equal(t, f.FileType == models.FileTypeMOBI, f.Primary)
		if f.FileType == models.FileTypeMOBI {
			assert.Equal(t, models.QualityTierMedium, f.QualityTier)
		} else {
			assert.Equal(t, models.QualityTierLow, f.QualityTier)
		}
	}
}

func TestProcessScanTaskUnreadableCandidate(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	// One good file plus one unreadable candidate: the bad file counts as
	// seen and errored without aborting the batch.
	testgen.WriteFile(t, dir, "good.txt", []byte("fine"))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "ghost.txt")))

	library := tc.createLibrary(dir)

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanTaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.CountersParsed.FilesSeen)
	assert.Equal(t, 1, task.CountersParsed.Added)
	assert.Equal(t, 1, task.CountersParsed.Errors)
	require.Len(t, task.ErrorSamplesParsed, 1)
	assert.Contains(t, task.ErrorSamplesParsed[0], "ghost.txt")
}

func TestProcessScanTaskDropsStaleDelivery(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	testgen.WriteFile(t, dir, "Jane Doe - Alpha.txt", []byte("first"))
	library := tc.createLibrary(dir)

	finished, err := tc.runScan(library.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScanTaskStatusCompleted, finished.Status)
	assert.Equal(t, 1, finished.CountersParsed.FilesSeen)

	// The fetch loop can hand the same task over again after it finished.
	// A new file on disk must not be picked up and the frozen row must not
	// change.
	testgen.WriteFile(t, dir, "Jane Doe - Beta.txt", []byte("second"))
	require.NoError(t, tc.worker.ProcessScanTask(tc.ctx, finished))

	stored, err := tc.scanService.RetrieveScanTask(tc.ctx, scans.RetrieveScanTaskOptions{ID: &finished.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ScanTaskStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.CountersParsed.FilesSeen)
	assert.Equal(t, 0, stored.CountersParsed.Skipped)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(*finished.EndedAt))

	assert.Len(t, tc.listBooks(library.ID), 1)
}

func TestProcessScanTaskMissingRoot(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	library := tc.createLibrary(filepath.Join(dir, "does-not-exist"))

	task, err := tc.runScan(library.ID)
	require.Error(t, err)

	assert.Equal(t, models.ScanTaskStatusFailed, task.Status)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "not accessible")
	require.NotNil(t, task.EndedAt)
}

func TestProcessScanTaskSkipsDisabledPaths(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)
	testgen.WriteFile(t, dir, "invisible.txt", []byte("never scanned"))

	library := &models.Library{
		Name: "Disabled",
		LibraryPaths: []*models.LibraryPath{
			{Filepath: dir, Enabled: false, Recursive: true},
		},
	}
	require.NoError(t, tc.libraryService.CreateLibrary(tc.ctx, library))

	task, err := tc.runScan(library.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScanTaskStatusCompleted, task.Status)
	assert.Equal(t, 0, task.CountersParsed.FilesSeen)
	assert.Empty(t, tc.listBooks(library.ID))
}

func TestProcessScanTaskMultipleLibraries(t *testing.T) {
	tc := newTestContext(t)
	dirA := testgen.TempLibraryDir(t)
	dirB := testgen.TempLibraryDir(t)

	// Identical content in two libraries stays independent; dedup never
	// crosses library boundaries.
	testgen.WriteFile(t, dirA, "Jane Doe - Shared.txt", []byte("shared bytes"))
	testgen.WriteFile(t, dirB, "Jane Doe - Shared.txt", []byte("shared bytes"))

	libraryA := tc.createLibrary(dirA)
	libraryB := tc.createLibrary(dirB)

	task, err := tc.runScan(libraryA.ID, libraryB.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, task.CountersParsed.FilesSeen)
	assert.Equal(t, 2, task.CountersParsed.Added)
	assert.Len(t, tc.listBooks(libraryA.ID), 1)
	assert.Len(t, tc.listBooks(libraryB.ID), 1)
}

func TestProcessScanTaskCancellation(t *testing.T) {
	tc := newTestContext(t)
	dir := testgen.TempLibraryDir(t)

	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		testgen.WriteFile(t, dir, name+".txt", []byte("content "+name))
	}

	library := tc.createLibrary(dir)

	task, err := tc.scanService.StartScan(tc.ctx, []int{library.ID})
	require.NoError(t, err)
	require.NoError(t, tc.scanService.RequestCancel(tc.ctx, task.ID))

	require.NoError(t, tc.worker.ProcessScanTask(tc.ctx, task))

	stored, err := tc.scanService.RetrieveScanTask(tc.ctx, scans.RetrieveScanTaskOptions{ID: &task.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ScanTaskStatusCancelled, stored.Status)
	assert.Less(t, stored.CountersParsed.FilesSeen, 6)
	require.NotNil(t, stored.EndedAt)

	// The terminal snapshot is the frozen final state.
	assert.Equal(t, stored.CountersParsed.Added+stored.CountersParsed.Skipped, stored.CountersParsed.FilesSeen)
}
