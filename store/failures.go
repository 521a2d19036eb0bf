package store

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// FailuresFile is the document holding the failure ledger.
	FailuresFile = "failures.json"

	// MaxFailureRecords bounds the ledger; the oldest entries are evicted first.
	MaxFailureRecords = 50

	// StatusFailed marks an unrecoverable actuation.
	StatusFailed = "failed"
)

// Actions recorded in the ledger.
const (
	ActionLimit        = "limit"
	ActionRestore      = "restore"
	ActionForceRestore = "force_restore"
)

// FailureRecord describes an actuation that could not be completed.
type FailureRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	Action    string    `json:"action"`
	Download  int64     `json:"download_limit"`
	Upload    int64     `json:"upload_limit"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Probe     string    `json:"probe,omitempty"`
}

// FailureLedger is a bounded, append-only list of failure records.
type FailureLedger struct {
	path string
	max  int
	now  func() time.Time
	mu   sync.Mutex
}

// NewFailureLedger returns a ledger backed by <dataDir>/failures.json.
func NewFailureLedger(dataDir string) *FailureLedger {
	return &FailureLedger{
		path: filepath.Join(dataDir, FailuresFile),
		max:  MaxFailureRecords,
		now:  time.Now,
	}
}

// Append stores rec, filling ID, timestamp and status when unset, and
// returns the stored copy.
func (l *FailureLedger) Append(rec FailureRecord) (FailureRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	if rec.Status == "" {
		rec.Status = StatusFailed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return rec, err
	}

	records = append(records, rec)
	if len(records) > l.max {
		records = records[len(records)-l.max:]
	}

	if err := writeJSON(l.path, records); err != nil {
		return rec, fmt.Errorf("save failure ledger: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (l *FailureLedger) List(limit int) ([]FailureRecord, error) {
	l.mu.Lock()
	records, err := l.load()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	slices.Reverse(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (l *FailureLedger) load() ([]FailureRecord, error) {
	var records []FailureRecord
	if _, err := readJSON(l.path, &records); err != nil {
		return nil, fmt.Errorf("load failure ledger: %w", err)
	}
	return records, nil
}
