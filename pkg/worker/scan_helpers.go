package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/dedup"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
	"github.com/shelfmark/shelfmark/pkg/fingerprint"
	"github.com/shelfmark/shelfmark/pkg/mediafile"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/scans"
)

// scanProgress is the only mutable state shared by the scan workers. Every
// update happens under the mutex; snapshots copy out of it.
type scanProgress struct {
	mu            sync.Mutex
	counters      models.ScanCounters
	samples       []string
	sampleLimit   int
	sinceSnapshot int
	lastSnapshot  time.Time

	snapMu sync.Mutex
}

func (w *Worker) newScanProgress() *scanProgress {
	return &scanProgress{
		sampleLimit:  w.config.ScanErrorSampleLimit,
		lastSnapshot: time.Now(),
	}
}

func (p *scanProgress) recordOutcome(outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters.FilesSeen++
	p.sinceSnapshot++
	switch outcome {
	case dedup.ActionSkip:
		p.counters.Skipped++
	case dedup.ActionAddVersion:
		p.counters.VersionsAdded++
	case dedup.ActionNewEntry:
		p.counters.Added++
	}
}

// recordFileError counts a file that was seen but could not be processed,
// whether it failed during the walk or inside the pipeline.
func (p *scanProgress) recordFileError(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters.FilesSeen++
	p.sinceSnapshot++
	p.counters.Errors++
	p.addSample(path, err)
}

func (p *scanProgress) addSample(path string, err error) {
	if len(p.samples) >= p.sampleLimit {
		return
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "file processing budget exceeded"
	}
	p.samples = append(p.samples, fmt.Sprintf("%s: %s", path, msg))
}

func (p *scanProgress) freeze() (models.ScanCounters, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters, append([]string(nil), p.samples...)
}

// snapshotIfDue persists a progress snapshot when enough files or time have
// passed since the last one, and re-reads the cancellation flag in the same
// pass so polling observers and cancel requests share one cadence.
func (w *Worker) snapshotIfDue(ctx context.Context, task *models.ScanTask, prog *scanProgress, cancelled *atomic.Bool) {
	prog.snapMu.Lock()
	defer prog.snapMu.Unlock()

	prog.mu.Lock()
	due := prog.sinceSnapshot >= w.config.ScanSnapshotEveryFiles ||
		time.Since(prog.lastSnapshot) >= w.config.ScanSnapshotInterval
	if !due {
		prog.mu.Unlock()
		return
	}
	prog.sinceSnapshot = 0
	prog.lastSnapshot = time.Now()
	counters := prog.counters
	samples := append([]string(nil), prog.samples...)
	prog.mu.Unlock()

	task.CountersParsed = counters
	task.ErrorSamplesParsed = samples
	err := w.scanService.UpdateScanTask(ctx, task, scans.UpdateScanTaskOptions{
		Columns: []string{"counters", "error_samples"},
	})
	if err != nil {
		w.log.Err(err).Error("persist scan snapshot error")
	}

	requested, err := w.scanService.IsCancelRequested(ctx, task.ID)
	if err != nil {
		w.log.Err(err).Error("read cancel flag error")
		return
	}
	if requested {
		cancelled.Store(true)
	}
}

// entryLocks serializes catalog mutation per logical book. A global lock
// would stall unrelated appends; this keys on the normalized entry.
type entryLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: map[string]*sync.Mutex{}}
}

func (el *entryLocks) lock(key string) func() {
	el.mu.Lock()
	m, ok := el.locks[key]
	if !ok {
		m = &sync.Mutex{}
		el.locks[key] = m
	}
	el.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func entryKey(libraryID int, metadata *mediafile.ParsedMetadata) string {
	author := ""
	if metadata.Author != nil {
		author = models.Normalize(*metadata.Author)
	}
	return fmt.Sprintf("%d|%s|%s", libraryID, models.Normalize(metadata.Title), author)
}

func buildFile(libraryID int, cand CandidateFile, fp *fingerprint.Fingerprint, metadata *mediafile.ParsedMetadata) *models.File {
	fileType := strings.TrimPrefix(cand.Ext, ".")
	file := &models.File{
		LibraryID:            libraryID,
		Filepath:             cand.Path,
		FileType:             fileType,
		FilesizeBytes:        cand.Size,
		Fingerprint:          fp.Hex,
		FingerprintAlgorithm: fp.Algorithm,
		QualityTier:          dedup.QualityTier(fileType, cand.Size),
		MetadataSource:       metadata.Source,
	}

	if len(metadata.CoverData) > 0 && metadata.CoverExtension() != "" {
		coverName := strings.TrimSuffix(filepath.Base(cand.Path), cand.Ext) + ".cover" + metadata.CoverExtension()
		mime := metadata.CoverMimeType
		file.CoverImagePath = &coverName
		file.CoverMimeType = &mime
	}

	return file
}

// writeCoverSidecar saves extracted cover bytes next to the scanned file.
// Failures only warn; the catalog record is already committed.
func (w *Worker) writeCoverSidecar(log logger.Logger, cand CandidateFile, file *models.File, metadata *mediafile.ParsedMetadata) {
	if file.CoverImagePath == nil || len(metadata.CoverData) == 0 {
		return
	}
	coverPath := filepath.Join(filepath.Dir(cand.Path), *file.CoverImagePath)
	err := os.WriteFile(coverPath, metadata.CoverData, 0644)
	if err != nil {
		log.Warn("write cover error", logger.Data{"path": coverPath, "err": err.Error()})
		return
	}
	log.Info("saved cover", logger.Data{"path": coverPath, "mime": metadata.CoverMimeType})
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var ec *errcodes.Error
	return errors.As(err, &ec) && ec.Code == "conflict"
}
