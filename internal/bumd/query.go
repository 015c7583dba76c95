package bumd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"bumd-go/internal/model"
)

// ListRuns returns the runs of host started within the optional bounds,
// ordered by start time. An empty host lists every host.
func (s *Service) ListRuns(host string, notBefore, notAfter *time.Time) ([]*model.Run, error) {
	runs, err := s.db.ListRuns(host, notBefore, notAfter)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Search returns every recorded path containing one of the substrings.
func (s *Service) Search(substrings []string) ([]*model.SearchResult, error) {
	var terms []string
	for _, sub := range substrings {
		if sub != "" {
			terms = append(terms, sub)
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}

	results, err := s.db.SearchPaths(terms)
	if err != nil {
		return nil, fmt.Errorf("searching paths: %w", err)
	}
	return results, nil
}

// FileHistory returns every recorded version of one logical file path.
func (s *Service) FileHistory(host, path string) ([]*model.FileVersion, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	logical := filepath.Clean("/" + path)

	versions, err := s.db.FileVersions(host, logical)
	if err != nil {
		return nil, fmt.Errorf("finding versions of %s: %w", logical, err)
	}
	return versions, nil
}

// VerifyResult lists the file records of a run whose content is missing
// from the content store.
type VerifyResult struct {
	RunID   int64
	Files   int // file records checked
	Keys    int // distinct keys checked
	Missing []*model.FileRecord
}

// Verify checks that every content key referenced by a run is present in
// the content store. A zero runID selects the latest complete run of host.
func (s *Service) Verify(ctx context.Context, runID int64, host string) (*VerifyResult, error) {
	run, err := s.resolveRun(runID, host)
	if err != nil {
		return nil, err
	}

	files, err := s.db.ListFiles(run.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	result := &VerifyResult{RunID: run.ID, Files: len(files)}
	present := make(map[model.ContentKey]bool)
	for _, rec := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ok, seen := present[rec.Key]
		if !seen {
			ok, err = s.store.Exists(rec.Key)
			if err != nil {
				return result, fmt.Errorf("checking content %s: %w", rec.Key, err)
			}
			present[rec.Key] = ok
			result.Keys++
		}
		if !ok {
			s.logger.Warn("content missing", "run", run.ID, "path", rec.Path, "key", rec.Key)
			result.Missing = append(result.Missing, rec)
		}
	}
	return result, nil
}
