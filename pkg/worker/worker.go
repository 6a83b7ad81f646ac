package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shelfmark/shelfmark/pkg/catalog"
	"github.com/shelfmark/shelfmark/pkg/config"
	"github.com/shelfmark/shelfmark/pkg/dedup"
	"github.com/shelfmark/shelfmark/pkg/extract"
	"github.com/shelfmark/shelfmark/pkg/libraries"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/scans"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

type Worker struct {
	config *config.Config
	log    logger.Logger

	catalogService *catalog.Service
	libraryService *libraries.Service
	scanService    *scans.Service

	extractor  *extract.Extractor
	classifier *dedup.Classifier

	queue          chan *models.ScanTask
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB) *Worker {
	catalogService := catalog.NewService(db)

	return &Worker{
		config: cfg,
		log:    logger.New(),

		catalogService: catalogService,
		libraryService: libraries.NewService(db),
		scanService:    scans.NewService(db),

		extractor:  extract.New(),
		classifier: dedup.NewClassifier(catalogService),

		queue:          make(chan *models.ScanTask, 1),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.fetchTasks()
	go w.processTasks()
}

func (w *Worker) fetchTasks() {
	duration := 5 * time.Second
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more tasks to the queue.
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			tasks, err := w.scanService.ListScanTasks(context.Background(), scans.ListScanTasksOptions{
				Limit:              pointerutil.Int(1),
				Statuses:           []string{models.ScanTaskStatusPending},
				ProcessIDToExclude: pointerutil.String(processID),
			})
			if err != nil {
				w.log.Err(err).Error("list scan tasks error")
				timer.Reset(duration)
				continue
			}
			for _, task := range tasks {
				w.queue <- task
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) processTasks() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case task := <-w.queue:
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"task_id": task.ID, "process_id": processID})
			ctx := log.WithContext(context.Background())

			err = w.ProcessScanTask(ctx, task)
			if err != nil {
				log.Err(err).Error("scan task error")
			}
		}
	}
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	<-w.doneProcessing
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
