package worker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/catalog"
	"github.com/shelfmark/shelfmark/pkg/config"
	"github.com/shelfmark/shelfmark/pkg/libraries"
	"github.com/shelfmark/shelfmark/pkg/migrations"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/scans"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testContext struct {
	t   *testing.T
	ctx context.Context
	db  *bun.DB

	worker         *Worker
	catalogService *catalog.Service
	libraryService *libraries.Service
	scanService    *scans.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	cfg := &config.Config{
		ScanErrorSampleLimit:   20,
		ScanFileTimeout:        time.Minute,
		ScanSnapshotEveryFiles: 1,
		ScanSnapshotInterval:   10 * time.Millisecond,
		ScanWorkers:            2,
	}

	return &testContext{
		t:   t,
		ctx: logger.New().WithContext(context.Background()),
		db:  db,

		worker:         New(cfg, db),
		catalogService: catalog.NewService(db),
		libraryService: libraries.NewService(db),
		scanService:    scans.NewService(db),
	}
}

// createLibrary registers a library with a single enabled recursive path
// rooted at dir.
func (tc *testContext) createLibrary(dir string) *models.Library {
	tc.t.Helper()

	library := &models.Library{
		Name: "Library " + dir,
		LibraryPaths: []*models.LibraryPath{
			{Filepath: dir, Enabled: true, Recursive: true},
		},
	}
	require.NoError(tc.t, tc.libraryService.CreateLibrary(tc.ctx, library))
	return library
}

// runScan starts a task over the given libraries, processes it inline, and
// returns the task as stored once processing finished.
func (tc *testContext) runScan(libraryIDs ...int) (*models.ScanTask, error) {
	tc.t.Helper()

	task, err := tc.scanService.StartScan(tc.ctx, libraryIDs)
	require.NoError(tc.t, err)

	processErr := tc.worker.ProcessScanTask(tc.ctx, task)

	stored, err := tc.scanService.RetrieveScanTask(tc.ctx, scans.RetrieveScanTaskOptions{ID: &task.ID})
	require.NoError(tc.t, err)
	return stored, processErr
}

func (tc *testContext) listBooks(libraryID int) []*models.Book {
	tc.t.Helper()

	books, err := tc.catalogService.ListBooks(tc.ctx, catalog.ListBooksOptions{LibraryID: &libraryID})
	require.NoError(tc.t, err)
	return books
}
