package testutil

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bumd-go/internal/bumd"
	"bumd-go/internal/database"
	"bumd-go/internal/model"
)

// ErrInjected is returned by the failing test doubles.
var ErrInjected = errors.New("injected failure")

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// FailingDatabase wraps a MetadataStore and fails selected calls.
type FailingDatabase struct {
	bumd.MetadataStore

	// FailRecordFileAfter makes RecordFile fail once this many file records
	// have succeeded. Negative disables it.
	FailRecordFileAfter int
	// FailFinishRun makes FinishRun fail without touching the run.
	FailFinishRun bool

	mu          sync.Mutex
	fileRecords int
	finishCalls int
}

// NewFailingDatabase wraps db with every failure disabled.
func NewFailingDatabase(db bumd.MetadataStore) *FailingDatabase {
	return &FailingDatabase{MetadataStore: db, FailRecordFileAfter: -1}
}

func (f *FailingDatabase) FinishRun(runID int64, status model.RunStatus, t time.Time) error {
	f.mu.Lock()
	f.finishCalls++
	f.mu.Unlock()
	if f.FailFinishRun {
		return ErrInjected
	}
	return f.MetadataStore.FinishRun(runID, status, t)
}

// FinishCalls returns how many times FinishRun was called.
func (f *FailingDatabase) FinishCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishCalls
}

func (f *FailingDatabase) Begin() (bumd.MetadataTx, error) {
	tx, err := f.MetadataStore.Begin()
	if err != nil {
		return nil, err
	}
	return &failingTx{MetadataTx: tx, db: f}, nil
}

type failingTx struct {
	bumd.MetadataTx
	db *FailingDatabase
}

func (t *failingTx) RecordFile(rec *model.FileRecord) error {
	t.db.mu.Lock()
	fail := t.db.FailRecordFileAfter >= 0 && t.db.fileRecords >= t.db.FailRecordFileAfter
	if !fail {
		t.db.fileRecords++
	}
	t.db.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return t.MetadataTx.RecordFile(rec)
}
