package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	ScanTaskStatusPending   = "pending"
	ScanTaskStatusRunning   = "running"
	ScanTaskStatusCompleted = "completed"
	ScanTaskStatusFailed    = "failed"
	ScanTaskStatusCancelled = "cancelled"
)

// ScanCounters tracks per-file outcomes for one scan run. Counters only ever
// increase while the task is running and are frozen once it's terminal.
type ScanCounters struct {
	FilesSeen     int `json:"files_seen"`
	Added         int `json:"added"`
	Skipped       int `json:"skipped"`
	VersionsAdded int `json:"versions_added"`
	Errors        int `json:"errors"`
}

// ScanTask is one run of the ingestion pipeline over a set of libraries.
type ScanTask struct {
	bun.BaseModel `bun:"table:scan_tasks,alias:st"`

	ID              int        `bun:",pk,nullzero" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Status          string     `bun:",nullzero" json:"status"`
	LibraryIDs      string     `bun:"library_ids,nullzero" json:"-"`
	Counters        string     `bun:",nullzero" json:"-"`
	ErrorSamples    string     `bun:",nullzero" json:"-"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	LastError       *string    `json:"last_error"`
	CancelRequested bool       `json:"cancel_requested"`
	ProcessID       *string    `json:"process_id,omitempty"`

	LibraryIDsParsed   []int        `bun:"-" json:"library_ids"`
	CountersParsed     ScanCounters `bun:"-" json:"counters"`
	ErrorSamplesParsed []string     `bun:"-" json:"error_samples"`
}

// UnmarshalData populates the parsed fields from their JSON columns.
func (t *ScanTask) UnmarshalData() error {
	if t.LibraryIDs != "" {
		if err := json.Unmarshal([]byte(t.LibraryIDs), &t.LibraryIDsParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	if t.Counters != "" {
		if err := json.Unmarshal([]byte(t.Counters), &t.CountersParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	if t.ErrorSamples != "" {
		if err := json.Unmarshal([]byte(t.ErrorSamples), &t.ErrorSamplesParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// MarshalData refreshes the JSON columns from the parsed fields.
func (t *ScanTask) MarshalData() error {
	ids, err := json.Marshal(t.LibraryIDsParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	t.LibraryIDs = string(ids)

	counters, err := json.Marshal(t.CountersParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	t.Counters = string(counters)

	if t.ErrorSamplesParsed != nil {
		samples, err := json.Marshal(t.ErrorSamplesParsed)
		if err != nil {
			return errors.WithStack(err)
		}
		t.ErrorSamples = string(samples)
	}

	return nil
}

// Terminal reports whether the task has reached a final status.
func (t *ScanTask) Terminal() bool {
	switch t.Status {
	case ScanTaskStatusCompleted, ScanTaskStatusFailed, ScanTaskStatusCancelled:
		return true
	}
	return false
}

// Targets reports whether the task covers the given library.
func (t *ScanTask) Targets(libraryID int) bool {
	for _, id := range t.LibraryIDsParsed {
		if id == libraryID {
			return true
		}
	}
	return false
}
