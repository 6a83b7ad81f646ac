package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/dedup"
	"github.com/shelfmark/shelfmark/pkg/fingerprint"
	"github.com/shelfmark/shelfmark/pkg/libraries"
	"github.com/shelfmark/shelfmark/pkg/mediafile"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/scans"
	"golang.org/x/sync/errgroup"
)

// scanUnit pairs a discovered file with the library it belongs to for one
// pass through the pipeline.
type scanUnit struct {
	library   *models.Library
	candidate CandidateFile
}

// ProcessScanTask runs one scan task end to end: walk the configured roots,
// push every file through fingerprint → extract → classify on a bounded
// worker pool, and keep the task row's progress snapshot fresh.
//
// Per-file failures are counted and sampled but never abort the run; only a
// missing root or an unreachable catalog store fails the task.
func (w *Worker) ProcessScanTask(ctx context.Context, task *models.ScanTask) error {
	log := logger.FromContext(ctx)
	log.Info("processing scan task", logger.Data{"library_ids": task.LibraryIDsParsed})

	now := time.Now()
	task.Status = models.ScanTaskStatusRunning
	task.StartedAt = &now
	task.ProcessID = &processID
	task.CountersParsed = models.ScanCounters{}
	claimed, err := w.scanService.ClaimScanTask(ctx, task)
	if err != nil {
		return errors.WithStack(err)
	}
	if !claimed {
		// The fetch loop can deliver a task again while a long scan keeps
		// it queued; whoever claimed it first owns it, and a terminal row
		// must never run again.
		log.Info("scan task is no longer pending; dropping")
		return nil
	}

	prog := w.newScanProgress()

	allLibraries, err := w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{
		IDs: task.LibraryIDsParsed,
	})
	if err != nil {
		return w.failTask(ctx, log, task, prog, err)
	}

	// Collect all candidates up front so the total amount of work is known
	// before any real processing starts.
	units := make([]scanUnit, 0)
	for _, library := range allLibraries {
		log := log.Data(logger.Data{"library_id": library.ID})
		for _, libraryPath := range library.LibraryPaths {
			if !libraryPath.Enabled {
				continue
			}
			log.Info("walking library path", logger.Data{"library_path": libraryPath.Filepath})
			library := library
			err := walkRoot(log, libraryPath, func(c CandidateFile) {
				units = append(units, scanUnit{library: library, candidate: c})
			}, func(path string, err error) {
				// An unreadable candidate is a seen file that errored; it
				// never reaches the pipeline.
				log.Warn("unreadable candidate during walk", logger.Data{"path": path, "err": err.Error()})
				prog.recordFileError(path, err)
			})
			if err != nil {
				return w.failTask(ctx, log, task, prog, err)
			}
		}
	}
	log.Info("collected candidate files", logger.Data{"count": len(units)})

	var cancelled atomic.Bool
	locks := newEntryLocks()

	g := new(errgroup.Group)
	g.SetLimit(w.config.ScanWorkers)
	for _, unit := range units {
		// Cooperative cancellation: nothing new is dispatched once the flag
		// is seen, and in-flight files run to completion.
		if ctx.Err() != nil || cancelled.Load() {
			break
		}
		w.snapshotIfDue(ctx, task, prog, &cancelled)

		unit := unit
		g.Go(func() error {
			w.processCandidate(ctx, log, task, unit, prog, locks, &cancelled)
			return nil
		})
	}
	_ = g.Wait()

	ended := time.Now()
	task.EndedAt = &ended
	task.CountersParsed, task.ErrorSamplesParsed = prog.freeze()
	if ctx.Err() != nil || cancelled.Load() {
		task.Status = models.ScanTaskStatusCancelled
	} else {
		task.Status = models.ScanTaskStatusCompleted
	}

	// The terminal update freezes the counters; the row is never touched
	// again after this.
	err = w.scanService.UpdateScanTask(context.WithoutCancel(ctx), task, scans.UpdateScanTaskOptions{
		Columns: []string{"status", "ended_at", "counters", "error_samples"},
	})
	if err != nil {
		return errors.WithStack(err)
	}

	log.Info("finished scan task", logger.Data{
		"status":         task.Status,
		"files_seen":     task.CountersParsed.FilesSeen,
		"added":          task.CountersParsed.Added,
		"skipped":        task.CountersParsed.Skipped,
		"versions_added": task.CountersParsed.VersionsAdded,
		"errors":         task.CountersParsed.Errors,
	})
	return nil
}

func (w *Worker) processCandidate(ctx context.Context, log logger.Logger, task *models.ScanTask, unit scanUnit, prog *scanProgress, locks *entryLocks, cancelled *atomic.Bool) {
	cand := unit.candidate
	log = log.Data(logger.Data{"path": cand.Path})

	fileCtx, cancel := context.WithTimeout(ctx, w.config.ScanFileTimeout)
	defer cancel()

	fp, err := fingerprint.Compute(fileCtx, cand.Path)
	if err != nil {
		log.Warn("fingerprint error", logger.Data{"err": err.Error()})
		prog.recordFileError(cand.Path, err)
		w.snapshotIfDue(ctx, task, prog, cancelled)
		return
	}

	metadata, warning := w.extractor.Extract(fileCtx, cand.Path, cand.Ext)
	if warning != nil {
		// Fallback metadata was used; informational, not a scan error.
		log.Warn("embedded metadata extraction failed", logger.Data{"err": warning.Error(), "source": metadata.Source})
	}

	if err := fileCtx.Err(); err != nil {
		prog.recordFileError(cand.Path, err)
		w.snapshotIfDue(ctx, task, prog, cancelled)
		return
	}

	result, err := w.classifier.Classify(fileCtx, unit.library.ID, fp, metadata)
	if err != nil {
		log.Err(err).Error("classify error")
		prog.recordFileError(cand.Path, err)
		w.snapshotIfDue(ctx, task, prog, cancelled)
		return
	}

	outcome := dedup.ActionSkip
	if result.Action != dedup.ActionSkip {
		// Mutations for the same logical book are serialized on its
		// normalized key, so concurrent versions can't interleave appends.
		unlock := locks.lock(entryKey(unit.library.ID, metadata))
		defer unlock()

		outcome, err = w.applyClassification(fileCtx, log, unit, fp, metadata)
		if isConflict(err) {
			// Another worker won a race on this entry; re-fetch catalog
			// state and retry once before giving up on the file.
			outcome, err = w.applyClassification(fileCtx, log, unit, fp, metadata)
		}
		if err != nil {
			log.Err(err).Error("apply classification error")
			prog.recordFileError(cand.Path, err)
			w.snapshotIfDue(ctx, task, prog, cancelled)
			return
		}
	}

	prog.recordOutcome(outcome)
	w.snapshotIfDue(ctx, task, prog, cancelled)
}

// applyClassification re-classifies under the entry lock (the catalog may
// have changed since the optimistic pass) and commits the result.
func (w *Worker) applyClassification(ctx context.Context, log logger.Logger, unit scanUnit, fp *fingerprint.Fingerprint, metadata *mediafile.ParsedMetadata) (string, error) {
	result, err := w.classifier.Classify(ctx, unit.library.ID, fp, metadata)
	if err != nil {
		return "", err
	}

	switch result.Action {
	case dedup.ActionSkip:
		return dedup.ActionSkip, nil

	case dedup.ActionAddVersion:
		file := buildFile(unit.library.ID, unit.candidate, fp, metadata)
		if err := w.catalogService.AppendFile(ctx, result.BookID, file); err != nil {
			return "", err
		}
		log.Info("version added", logger.Data{"book_id": result.BookID, "quality_tier": file.QualityTier})
		w.writeCoverSidecar(log, unit.candidate, file, metadata)
		return dedup.ActionAddVersion, nil

	case dedup.ActionNewEntry:
		book := &models.Book{
			LibraryID:      unit.library.ID,
			Title:          metadata.Title,
			Author:         metadata.Author,
			MetadataSource: metadata.Source,
		}
		file := buildFile(unit.library.ID, unit.candidate, fp, metadata)
		if err := w.catalogService.CreateBook(ctx, book, file); err != nil {
			return "", err
		}
		log.Info("book created", logger.Data{"book_id": book.ID, "title": book.Title})
		w.writeCoverSidecar(log, unit.candidate, file, metadata)
		return dedup.ActionNewEntry, nil
	}

	return "", errors.Errorf("unknown classification %q", result.Action)
}

func (w *Worker) failTask(ctx context.Context, log logger.Logger, task *models.ScanTask, prog *scanProgress, cause error) error {
	log.Err(cause).Error("scan task failed")

	ended := time.Now()
	task.EndedAt = &ended
	task.Status = models.ScanTaskStatusFailed
	task.CountersParsed, task.ErrorSamplesParsed = prog.freeze()
	msg := cause.Error()
	task.LastError = &msg

	err := w.scanService.UpdateScanTask(context.WithoutCancel(ctx), task, scans.UpdateScanTaskOptions{
		Columns: []string{"status", "ended_at", "counters", "error_samples", "last_error"},
	})
	if err != nil {
		log.Err(err).Error("update failed scan task error")
	}

	return cause
}
