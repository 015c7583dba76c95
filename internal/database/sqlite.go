package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"bumd-go/internal/bumd"
	"bumd-go/internal/database/migrations"
	"bumd-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the MetadataStore interface using SQLite.
// Paths and content keys are interned in their own tables and referenced by
// id from the per-run record tables.
type SQLiteDatabase struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteDatabase opens the database at path, creating it if needed, and
// brings its schema up to date. path can be ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection whose schema is
// already current.
func NewSQLiteDatabaseFromDB(db *sqlx.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// The pool is limited to one connection: the process is the single writer,
// and an in-memory database only exists on the connection that created it.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if path != ":memory:" {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// CheckMigrations verifies that the schema matches this binary.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db.DB)
}

// Run operations

func (s *SQLiteDatabase) CreateRun(host string, startedAt time.Time) (int64, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	hostID, err := intern(tx, "hosts", "name", host)
	if err != nil {
		return 0, fmt.Errorf("interning host: %w", err)
	}

	res, err := tx.Exec(
		"INSERT INTO runs (host_id, started_at, status) VALUES (?, ?, ?)",
		hostID, startedAt.UnixNano(), string(model.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return runID, nil
}

func (s *SQLiteDatabase) SetRunStatus(runID int64, status model.RunStatus) error {
	return setRunStatus(s.db, runID, status)
}

func (s *SQLiteDatabase) SetRunEndTime(runID int64, t time.Time) error {
	return setRunEndTime(s.db, runID, t)
}

func (s *SQLiteDatabase) FinishRun(runID int64, status model.RunStatus, t time.Time) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setRunStatus(tx, runID, status); err != nil {
		return err
	}
	if err := setRunEndTime(tx, runID, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// setRunStatus only ever moves a Running run to a terminal status.
func setRunStatus(q sqlx.Ext, runID int64, status model.RunStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: run %d cannot move to %s", bumd.ErrInvalidTransition, runID, status)
	}
	res, err := q.Exec("UPDATE runs SET status = ? WHERE id = ? AND status = ?",
		string(status), runID, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	return checkRunUpdated(q, res, runID, "status already terminal")
}

// setRunEndTime sets the end time once.
func setRunEndTime(q sqlx.Ext, runID int64, t time.Time) error {
	res, err := q.Exec("UPDATE runs SET finished_at = ? WHERE id = ? AND finished_at IS NULL",
		t.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("updating run end time: %w", err)
	}
	return checkRunUpdated(q, res, runID, "end time already set")
}

// checkRunUpdated tells a missing run apart from a refused transition when
// an update touched no row.
func checkRunUpdated(q sqlx.Ext, res sql.Result, runID int64, reason string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := sqlx.Get(q, &exists, "SELECT EXISTS (SELECT 1 FROM runs WHERE id = ?)", runID); err != nil {
		return fmt.Errorf("checking run: %w", err)
	}
	if !exists {
		return fmt.Errorf("run %d: %w", runID, bumd.ErrNotFound)
	}
	return fmt.Errorf("%w: run %d: %s", bumd.ErrInvalidTransition, runID, reason)
}

type runRow struct {
	ID         int64         `db:"id"`
	Host       string        `db:"host"`
	StartedAt  int64         `db:"started_at"`
	FinishedAt sql.NullInt64 `db:"finished_at"`
	Status     string        `db:"status"`
}

func (r *runRow) toModel() (*model.Run, error) {
	status, err := model.ParseRunStatus(r.Status)
	if err != nil {
		return nil, err
	}
	run := &model.Run{
		ID:        r.ID,
		Host:      r.Host,
		StartedAt: fromNanos(r.StartedAt),
		Status:    status,
	}
	if r.FinishedAt.Valid {
		t := fromNanos(r.FinishedAt.Int64)
		run.FinishedAt = &t
	}
	return run, nil
}

const selectRuns = `
SELECT r.id, h.name AS host, r.started_at, r.finished_at, r.status
FROM runs r
JOIN hosts h ON h.id = r.host_id`

func (s *SQLiteDatabase) GetRun(runID int64) (*model.Run, error) {
	var row runRow
	if err := s.db.Get(&row, selectRuns+" WHERE r.id = ?", runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return row.toModel()
}

func (s *SQLiteDatabase) LatestRun(host string, status model.RunStatus) (*model.Run, error) {
	var row runRow
	err := s.db.Get(&row, selectRuns+`
WHERE h.name = ? AND r.status = ?
ORDER BY r.started_at DESC, r.id DESC
LIMIT 1`, host, string(status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting latest run: %w", err)
	}
	return row.toModel()
}

func (s *SQLiteDatabase) ListRuns(host string, notBefore, notAfter *time.Time) ([]*model.Run, error) {
	var where []string
	var args []any
	if host != "" {
		where = append(where, "h.name = ?")
		args = append(args, host)
	}
	if notBefore != nil {
		where = append(where, "r.started_at >= ?")
		args = append(args, notBefore.UnixNano())
	}
	if notAfter != nil {
		where = append(where, "r.started_at <= ?")
		args = append(args, notAfter.UnixNano())
	}

	query := selectRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.started_at, r.id"

	var rows []runRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*model.Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Batches

func (s *SQLiteDatabase) Begin() (bumd.MetadataTx, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// sqliteTx is one write batch.
type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) RecordDirectory(rec *model.DirectoryRecord) error {
	pathID, err := intern(t.tx, "filepaths", "path", rec.Path)
	if err != nil {
		return fmt.Errorf("interning path: %w", err)
	}
	_, err = t.tx.Exec(
		"INSERT INTO directories (run_id, filepath_id, uid, gid, mode, mtime_ns) VALUES (?, ?, ?, ?, ?, ?)",
		rec.RunID, pathID, rec.UID, rec.GID, rec.Mode, rec.ModTime.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting directory: %w", err)
	}
	return nil
}

func (t *sqliteTx) RecordLink(rec *model.LinkRecord) error {
	pathID, err := intern(t.tx, "filepaths", "path", rec.Path)
	if err != nil {
		return fmt.Errorf("interning path: %w", err)
	}
	_, err = t.tx.Exec(
		"INSERT INTO links (run_id, filepath_id, target) VALUES (?, ?, ?)",
		rec.RunID, pathID, rec.Target)
	if err != nil {
		return fmt.Errorf("inserting link: %w", err)
	}
	return nil
}

func (t *sqliteTx) RecordFile(rec *model.FileRecord) error {
	pathID, err := intern(t.tx, "filepaths", "path", rec.Path)
	if err != nil {
		return fmt.Errorf("interning path: %w", err)
	}
	shaID, err := intern(t.tx, "fileshas", "sha", string(rec.Key))
	if err != nil {
		return fmt.Errorf("interning content key: %w", err)
	}
	_, err = t.tx.Exec(
		"INSERT INTO files (run_id, filepath_id, uid, gid, mode, size, mtime_ns, filesha_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, pathID, rec.UID, rec.GID, rec.Mode, rec.Size, rec.ModTime.UnixNano(), shaID)
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}
	return nil
}

func (t *sqliteTx) FindReusableContentKey(host, path string, size int64, modTime time.Time) (model.ContentKey, bool, error) {
	return findReusableContentKey(t.tx, host, path, size, modTime)
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// intern returns the id of value in a (id, column UNIQUE) table, inserting
// it when missing.
func intern(q sqlx.Ext, table, column, value string) (int64, error) {
	if _, err := q.Exec(fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?)", table, column), value); err != nil {
		return 0, err
	}
	var id int64
	if err := sqlx.Get(q, &id, fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column), value); err != nil {
		return 0, err
	}
	return id, nil
}

// Dedup lookup

func (s *SQLiteDatabase) FindReusableContentKey(host, path string, size int64, modTime time.Time) (model.ContentKey, bool, error) {
	return findReusableContentKey(s.db, host, path, size, modTime)
}

// findReusableContentKey ignores records of runs still in progress: their
// batches may not be committed, and their content is not yet vouched for.
func findReusableContentKey(q sqlx.Ext, host, path string, size int64, modTime time.Time) (model.ContentKey, bool, error) {
	var sha string
	err := sqlx.Get(q, &sha, `
SELECT s.sha
FROM files f
JOIN filepaths p ON p.id = f.filepath_id
JOIN fileshas s ON s.id = f.filesha_id
JOIN runs r ON r.id = f.run_id
JOIN hosts h ON h.id = r.host_id
WHERE h.name = ? AND p.path = ? AND f.size = ? AND f.mtime_ns = ? AND r.status <> ?
ORDER BY r.started_at DESC, r.id DESC, f.id DESC
LIMIT 1`, host, path, size, modTime.UnixNano(), string(model.StatusRunning))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("finding reusable content key: %w", err)
	}
	return model.ContentKey(sha), true, nil
}

// Restore listing

type directoryRow struct {
	RunID   int64  `db:"run_id"`
	Path    string `db:"path"`
	UID     uint32 `db:"uid"`
	GID     uint32 `db:"gid"`
	Mode    uint32 `db:"mode"`
	MtimeNS int64  `db:"mtime_ns"`
}

type linkRow struct {
	RunID  int64  `db:"run_id"`
	Path   string `db:"path"`
	Target string `db:"target"`
}

type fileRow struct {
	RunID   int64  `db:"run_id"`
	Path    string `db:"path"`
	UID     uint32 `db:"uid"`
	GID     uint32 `db:"gid"`
	Mode    uint32 `db:"mode"`
	Size    int64  `db:"size"`
	MtimeNS int64  `db:"mtime_ns"`
	Sha     string `db:"sha"`
}

func (s *SQLiteDatabase) ListDirectories(runID int64, filters []string) ([]*model.DirectoryRecord, error) {
	clause, args := pathFilterClause(filters)
	var rows []directoryRow
	err := s.db.Select(&rows, `
SELECT d.run_id, p.path, d.uid, d.gid, d.mode, d.mtime_ns
FROM directories d
JOIN filepaths p ON p.id = d.filepath_id
WHERE d.run_id = ?`+clause+`
ORDER BY p.path, d.id`, append([]any{runID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("listing directories: %w", err)
	}

	recs := make([]*model.DirectoryRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, &model.DirectoryRecord{
			RunID:   r.RunID,
			Path:    r.Path,
			UID:     r.UID,
			GID:     r.GID,
			Mode:    r.Mode,
			ModTime: fromNanos(r.MtimeNS),
		})
	}
	return recs, nil
}

func (s *SQLiteDatabase) ListLinks(runID int64, filters []string) ([]*model.LinkRecord, error) {
	clause, args := pathFilterClause(filters)
	var rows []linkRow
	err := s.db.Select(&rows, `
SELECT l.run_id, p.path, l.target
FROM links l
JOIN filepaths p ON p.id = l.filepath_id
WHERE l.run_id = ?`+clause+`
ORDER BY p.path, l.id`, append([]any{runID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}

	recs := make([]*model.LinkRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, &model.LinkRecord{RunID: r.RunID, Path: r.Path, Target: r.Target})
	}
	return recs, nil
}

func (s *SQLiteDatabase) ListFiles(runID int64, filters []string) ([]*model.FileRecord, error) {
	clause, args := pathFilterClause(filters)
	var rows []fileRow
	err := s.db.Select(&rows, `
SELECT f.run_id, p.path, f.uid, f.gid, f.mode, f.size, f.mtime_ns, s.sha
FROM files f
JOIN filepaths p ON p.id = f.filepath_id
JOIN fileshas s ON s.id = f.filesha_id
WHERE f.run_id = ?`+clause+`
ORDER BY p.path, f.id`, append([]any{runID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	recs := make([]*model.FileRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, &model.FileRecord{
			RunID:   r.RunID,
			Path:    r.Path,
			UID:     r.UID,
			GID:     r.GID,
			Mode:    r.Mode,
			Size:    r.Size,
			ModTime: fromNanos(r.MtimeNS),
			Key:     model.ContentKey(r.Sha),
		})
	}
	return recs, nil
}

// pathFilterClause matches p.path against logical path prefixes. A filter
// selects the path itself and everything beneath it, never siblings that
// merely share a string prefix. Descendants are the byte range
// [f+"/", f+"0"), since '0' follows '/'. Comparison uses the BINARY
// collation, so matching is case sensitive.
func pathFilterClause(filters []string) (string, []any) {
	var parts []string
	var args []any
	for _, f := range filters {
		if f == "/" {
			return "", nil
		}
		f = strings.TrimSuffix(f, "/")
		parts = append(parts, "(p.path = ? OR (p.path >= ? AND p.path < ?))")
		args = append(args, f, f+"/", f+"0")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " AND (" + strings.Join(parts, " OR ") + ")", args
}

// Search

type searchRow struct {
	Type   string `db:"type"`
	Host   string `db:"host"`
	RunID  int64  `db:"run_id"`
	TimeNS int64  `db:"time_ns"`
	Path   string `db:"path"`
}

func (s *SQLiteDatabase) SearchPaths(substrings []string) ([]*model.SearchResult, error) {
	if len(substrings) == 0 {
		return nil, nil
	}

	conds := make([]string, len(substrings))
	for i := range substrings {
		conds[i] = "instr(p.path, ?) > 0"
	}
	match := "(" + strings.Join(conds, " OR ") + ")"

	query := `
SELECT 'DIR' AS type, h.name AS host, r.id AS run_id, d.mtime_ns AS time_ns, p.path AS path
FROM directories d
JOIN filepaths p ON p.id = d.filepath_id
JOIN runs r ON r.id = d.run_id
JOIN hosts h ON h.id = r.host_id
WHERE ` + match + `
UNION ALL
SELECT 'LINK', h.name, r.id, r.started_at, p.path
FROM links l
JOIN filepaths p ON p.id = l.filepath_id
JOIN runs r ON r.id = l.run_id
JOIN hosts h ON h.id = r.host_id
WHERE ` + match + `
UNION ALL
SELECT 'FILE', h.name, r.id, f.mtime_ns, p.path
FROM files f
JOIN filepaths p ON p.id = f.filepath_id
JOIN runs r ON r.id = f.run_id
JOIN hosts h ON h.id = r.host_id
WHERE ` + match + `
ORDER BY path, run_id`

	args := make([]any, 0, 3*len(substrings))
	for i := 0; i < 3; i++ {
		for _, sub := range substrings {
			args = append(args, sub)
		}
	}

	var rows []searchRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("searching paths: %w", err)
	}

	results := make([]*model.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, &model.SearchResult{
			Type:  model.EntryType(r.Type),
			Host:  r.Host,
			RunID: r.RunID,
			Time:  fromNanos(r.TimeNS),
			Path:  r.Path,
		})
	}
	return results, nil
}

// History

type versionRow struct {
	RunID     int64  `db:"run_id"`
	StartedAt int64  `db:"started_at"`
	Status    string `db:"status"`
	Size      int64  `db:"size"`
	MtimeNS   int64  `db:"mtime_ns"`
	Sha       string `db:"sha"`
}

func (s *SQLiteDatabase) FileVersions(host, path string) ([]*model.FileVersion, error) {
	var rows []versionRow
	err := s.db.Select(&rows, `
SELECT r.id AS run_id, r.started_at, r.status, f.size, f.mtime_ns, s.sha
FROM files f
JOIN filepaths p ON p.id = f.filepath_id
JOIN fileshas s ON s.id = f.filesha_id
JOIN runs r ON r.id = f.run_id
JOIN hosts h ON h.id = r.host_id
WHERE h.name = ? AND p.path = ?
ORDER BY r.started_at DESC, r.id DESC`, host, path)
	if err != nil {
		return nil, fmt.Errorf("listing file versions: %w", err)
	}

	versions := make([]*model.FileVersion, 0, len(rows))
	for _, r := range rows {
		status, err := model.ParseRunStatus(r.Status)
		if err != nil {
			return nil, err
		}
		versions = append(versions, &model.FileVersion{
			RunID:        r.RunID,
			RunStartedAt: fromNanos(r.StartedAt),
			RunStatus:    status,
			Size:         r.Size,
			ModTime:      fromNanos(r.MtimeNS),
			Key:          model.ContentKey(r.Sha),
		})
	}
	return versions, nil
}

// fromNanos converts a stored unix nanosecond timestamp.
func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns)
}

// Compile-time check that SQLiteDatabase implements bumd.MetadataStore interface
var _ bumd.MetadataStore = (*SQLiteDatabase)(nil)
