package bumd_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bumd-go/internal/bumd"
	"bumd-go/internal/model"
	"bumd-go/internal/testutil"
)

func TestService_ListRuns(t *testing.T) {
	e := newEnv(t)
	src := t.TempDir()
	testutil.WriteFile(t, src, "a.txt", []byte("alpha"), 0644)

	first := e.backup(t, "alpha", "", src)
	e.clock.Advance(24 * time.Hour)
	second := e.backup(t, "alpha", "", src)
	e.backup(t, "bravo", "", src)

	t.Run("all runs of a host", func(t *testing.T) {
		runs, err := e.svc.ListRuns("alpha", nil, nil)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 || runs[0].ID != first.RunID || runs[1].ID != second.RunID {
			t.Errorf("runs = %+v, want [%d %d]", runs, first.RunID, second.RunID)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		secondRun := e.getRun(t, second.RunID)
		notBefore := secondRun.StartedAt.Add(-time.Hour)
		runs, err := e.svc.ListRuns("alpha", &notBefore, nil)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 || runs[0].ID != second.RunID {
			t.Errorf("runs = %+v, want only %d", runs, second.RunID)
		}

		notAfter := secondRun.StartedAt.Add(-time.Hour)
		runs, err = e.svc.ListRuns("alpha", nil, &notAfter)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 || runs[0].ID != first.RunID {
			t.Errorf("runs = %+v, want only %d", runs, first.RunID)
		}
	})

	t.Run("every host", func(t *testing.T) {
		runs, err := e.svc.ListRuns("", nil, nil)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("len(runs) = %d, want 3", len(runs))
		}
	})
}

func TestService_Search(t *testing.T) {
	e := newEnv(t)
	one := t.TempDir()
	two := t.TempDir()
	testutil.WriteFile(t, one, "reports/q1.pdf", []byte("q1"), 0644)
	testutil.Symlink(t, one, "current-report", "reports/q1.pdf")
	testutil.WriteFile(t, two, "Reports/q2.pdf", []byte("q2"), 0644)

	e.backup(t, "alpha", one, one)
	e.backup(t, "bravo", two, two)

	t.Run("matches across hosts and entry types", func(t *testing.T) {
		results, err := e.svc.Search([]string{"report", "Reports"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		got := make(map[string]bool)
		for _, r := range results {
			got[r.Host+" "+string(r.Type)+" "+r.Path] = true
		}
		for _, want := range []string{
			"alpha DIR /reports",
			"alpha FILE /reports/q1.pdf",
			"alpha LINK /current-report",
			"bravo DIR /Reports",
			"bravo FILE /Reports/q2.pdf",
		} {
			if !got[want] {
				t.Errorf("missing %q in %v", want, got)
			}
		}
	})

	t.Run("case sensitive", func(t *testing.T) {
		results, err := e.svc.Search([]string{"Reports"})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		for _, r := range results {
			if r.Host != "bravo" {
				t.Errorf("unexpected match %+v", r)
			}
		}
	})

	t.Run("empty terms match nothing", func(t *testing.T) {
		results, err := e.svc.Search([]string{""})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0", len(results))
		}
	})
}

func TestService_FileHistory(t *testing.T) {
	e := newEnv(t)
	src := t.TempDir()
	a := testutil.WriteFile(t, src, "a.txt", []byte("v1"), 0644)
	testutil.SetModTime(t, a, mtime1)
	e.backup(t, "alpha", src, src)
	e.backup(t, "alpha", src, src)
	if err := os.WriteFile(a, []byte("version 2"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	testutil.SetModTime(t, a, mtime2)
	e.backup(t, "alpha", src, src)

	versions, err := e.svc.FileHistory("alpha", "a.txt")
	if err != nil {
		t.Fatalf("FileHistory() error = %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("len(versions) = %d, want 3", len(versions))
	}
	if versions[0].Key != testutil.SHA256Key([]byte("version 2")) || versions[0].Size != 9 {
		t.Errorf("newest version = %+v, want version 2", versions[0])
	}
	if versions[2].Key != testutil.SHA256Key([]byte("v1")) || !versions[2].ModTime.Equal(mtime1) {
		t.Errorf("oldest version = %+v, want v1", versions[2])
	}
	if versions[0].RunStatus != model.StatusComplete {
		t.Errorf("RunStatus = %s, want Complete", versions[0].RunStatus)
	}

	if _, err := e.svc.FileHistory("", "a.txt"); err == nil {
		t.Error("FileHistory() without host expected error")
	}
}

func TestService_Verify(t *testing.T) {
	e := newEnv(t)
	src := t.TempDir()
	testutil.WriteFile(t, src, "a.txt", []byte("alpha"), 0644)
	testutil.WriteFile(t, src, "copy.txt", []byte("alpha"), 0644)
	testutil.WriteFile(t, src, "b.txt", []byte("bravo"), 0644)
	res := e.backup(t, "alpha", src, src)

	t.Run("intact run", func(t *testing.T) {
		e.store.Reset()
		got, err := e.svc.Verify(testContext(t), 0, "alpha")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if got.RunID != res.RunID || got.Files != 3 || got.Keys != 2 || len(got.Missing) != 0 {
			t.Errorf("Verify() = %+v, want 3 files, 2 keys, nothing missing", got)
		}
		if e.store.ExistsCalls() != 2 {
			t.Errorf("Exists called %d times, want 2", e.store.ExistsCalls())
		}
	})

	t.Run("missing content", func(t *testing.T) {
		e.mem.Delete(testutil.SHA256Key([]byte("alpha")))
		got, err := e.svc.Verify(testContext(t), res.RunID, "")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if len(got.Missing) != 2 {
			t.Fatalf("len(Missing) = %d, want 2", len(got.Missing))
		}
		for _, m := range got.Missing {
			if m.Path != "/a.txt" && m.Path != "/copy.txt" {
				t.Errorf("unexpected missing path %s", m.Path)
			}
		}
	})
}

func TestService_NilProgress(t *testing.T) {
	e := newEnv(t)
	src := t.TempDir()
	testutil.WriteFile(t, src, "a.txt", []byte("alpha"), 0644)

	svc := bumd.NewService(e.db, e.store, e.fsys, bumd.NewNopLogger(), nil, e.clock)
	res, err := svc.Backup(testContext(t), bumd.BackupOptions{Host: "alpha", Subjects: []string{filepath.Join(src, "a.txt")}})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if res.Files != 1 {
		t.Errorf("Files = %d, want 1", res.Files)
	}
}
