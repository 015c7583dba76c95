package bumd_test

import (
	"context"
	"testing"
	"time"

	"bumd-go/internal/bumd"
	"bumd-go/internal/cas"
	"bumd-go/internal/database"
	"bumd-go/internal/fs"
	"bumd-go/internal/model"
	"bumd-go/internal/testutil"
)

// testContext stands in for testing.T.Context (Go 1.24+): a context that
// is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

var (
	mtime1 = time.Date(2023, 5, 1, 12, 0, 0, 123456789, time.UTC)
	mtime2 = time.Date(2023, 6, 1, 12, 0, 0, 987654321, time.UTC)
)

// env bundles the collaborators of one Service under test.
type env struct {
	db       *database.SQLiteDatabase
	mem      *cas.MemoryStore
	store    *testutil.CountingStore
	fsys     *fs.OSFilesystem
	progress *testutil.RecordingProgress
	clock    *testutil.TickingClock
	svc      *bumd.Service
}

func newEnv(t *testing.T, exclude ...string) *env {
	t.Helper()
	e := &env{
		db:       testutil.NewTestDatabase(t),
		mem:      testutil.NewTestStore(),
		fsys:     fs.NewOSFilesystem(exclude),
		progress: &testutil.RecordingProgress{},
		clock:    testutil.NewTickingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Minute),
	}
	e.store = testutil.NewCountingStore(e.mem)
	e.svc = bumd.NewService(e.db, e.store, e.fsys, bumd.NewNopLogger(), e.progress, e.clock)
	return e
}

// withDB rebuilds the service around a wrapped metadata store.
func (e *env) withDB(db bumd.MetadataStore) *bumd.Service {
	return bumd.NewService(db, e.store, e.fsys, bumd.NewNopLogger(), e.progress, e.clock)
}

func (e *env) backup(t *testing.T, host, base string, subjects ...string) *bumd.BackupResult {
	t.Helper()
	res, err := e.svc.Backup(testContext(t), bumd.BackupOptions{Host: host, SourceBase: base, Subjects: subjects})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if res.Status != model.StatusComplete {
		t.Fatalf("Backup() status = %s, want %s", res.Status, model.StatusComplete)
	}
	return res
}

func (e *env) getRun(t *testing.T, runID int64) *model.Run {
	t.Helper()
	run, err := e.db.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run == nil {
		t.Fatalf("GetRun(%d) = nil", runID)
	}
	return run
}

func (e *env) filePaths(t *testing.T, runID int64) []string {
	t.Helper()
	files, err := e.db.ListFiles(runID, nil)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func statData(t *testing.T, path string) *bumd.StatData {
	t.Helper()
	fsys := fs.NewOSFilesystem(nil)
	info, err := fsys.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	st, err := fsys.StatData(info)
	if err != nil {
		t.Fatalf("StatData() error = %v", err)
	}
	return st
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
