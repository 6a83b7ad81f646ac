// Package scans owns ScanTask records: creating them, guarding the
// one-live-scan-per-library invariant, and exposing the control surface the
// outer API layer consumes.
package scans

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveScanTaskOptions struct {
	ID *int
}

type ListScanTasksOptions struct {
	LibraryID          *int
	Limit              *int
	Statuses           []string
	ProcessIDToExclude *string
}

type UpdateScanTaskOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// StartScan creates a pending task covering the given libraries. It fails
// with AlreadyRunning — without creating a row — if any targeted library
// already has a pending or running task.
func (svc *Service) StartScan(ctx context.Context, libraryIDs []int) (*models.ScanTask, error) {
	if len(libraryIDs) == 0 {
		return nil, errcodes.ValidationError("At least one library is required to start a scan.")
	}

	task := &models.ScanTask{
		Status:           models.ScanTaskStatusPending,
		LibraryIDsParsed: libraryIDs,
	}
	if err := task.MarshalData(); err != nil {
		return nil, err
	}

	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		active := []*models.ScanTask{}
		err := tx.
			NewSelect().
			Model(&active).
			WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
				return sq.
					Where("st.status = ?", models.ScanTaskStatusPending).
					WhereOr("st.status = ?", models.ScanTaskStatusRunning)
			}).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, other := range active {
			if err := other.UnmarshalData(); err != nil {
				return err
			}
			for _, id := range libraryIDs {
				if other.Targets(id) {
					return errcodes.AlreadyRunning("A scan for a targeted library")
				}
			}
		}

		_, err = tx.
			NewInsert().
			Model(task).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// ClaimScanTask transitions a pending task to running on behalf of the
// calling process. It reports false when the task is no longer pending, so
// a stale queue delivery is dropped instead of re-running a claimed or
// terminal task.
func (svc *Service) ClaimScanTask(ctx context.Context, task *models.ScanTask) (bool, error) {
	if err := task.MarshalData(); err != nil {
		return false, err
	}
	task.UpdatedAt = time.Now()

	res, err := svc.db.
		NewUpdate().
		Model(task).
		Column("status", "started_at", "process_id", "counters", "updated_at").
		Where("st.status = ?", models.ScanTaskStatusPending).
		WherePK().
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return rows == 1, nil
}

func (svc *Service) RetrieveScanTask(ctx context.Context, opts RetrieveScanTaskOptions) (*models.ScanTask, error) {
	task := &models.ScanTask{}

	q := svc.db.
		NewSelect().
		Model(task)

	if opts.ID != nil {
		q = q.Where("st.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("ScanTask")
		}
		return nil, errors.WithStack(err)
	}

	if err := task.UnmarshalData(); err != nil {
		return nil, err
	}

	return task, nil
}

func (svc *Service) ListScanTasks(ctx context.Context, opts ListScanTasksOptions) ([]*models.ScanTask, error) {
	tasks := []*models.ScanTask{}

	q := svc.db.
		NewSelect().
		Model(&tasks).
		Order("st.created_at DESC")

	if opts.Statuses != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, s := range opts.Statuses {
				sq = sq.WhereOr("st.status = ?", s)
			}
			return sq
		})
	}
	if opts.ProcessIDToExclude != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("st.process_id IS NULL").
				WhereOr("st.process_id != ?", *opts.ProcessIDToExclude)
		})
	}
	// The library filter happens after unmarshalling since the targeted ids
	// live in a JSON column; Limit is applied in the same pass.
	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	filtered := make([]*models.ScanTask, 0, len(tasks))
	for _, task := range tasks {
		if err := task.UnmarshalData(); err != nil {
			return nil, err
		}
		if opts.LibraryID != nil && !task.Targets(*opts.LibraryID) {
			continue
		}
		if opts.Limit != nil && len(filtered) >= *opts.Limit {
			break
		}
		filtered = append(filtered, task)
	}

	return filtered, nil
}

// RequestCancel flips the cancellation flag on a live task. Cancelling a
// terminal task is a no-op.
func (svc *Service) RequestCancel(ctx context.Context, id int) error {
	task, err := svc.RetrieveScanTask(ctx, RetrieveScanTaskOptions{ID: &id})
	if err != nil {
		return err
	}
	if task.Terminal() {
		return nil
	}

	task.CancelRequested = true
	return svc.UpdateScanTask(ctx, task, UpdateScanTaskOptions{Columns: []string{"cancel_requested"}})
}

// IsCancelRequested re-reads the flag from the database; the orchestrator
// polls this at its snapshot cadence.
func (svc *Service) IsCancelRequested(ctx context.Context, id int) (bool, error) {
	var requested bool
	err := svc.db.
		NewSelect().
		Model((*models.ScanTask)(nil)).
		Column("cancel_requested").
		Where("id = ?", id).
		Scan(ctx, &requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errcodes.NotFound("ScanTask")
		}
		return false, errors.WithStack(err)
	}
	return requested, nil
}

func (svc *Service) UpdateScanTask(ctx context.Context, task *models.ScanTask, opts UpdateScanTaskOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if err := task.MarshalData(); err != nil {
		return err
	}

	// Update updated_at.
	now := time.Now()
	task.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(task).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("ScanTask")
		}
		return errors.WithStack(err)
	}

	return nil
}
