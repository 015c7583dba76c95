package bumd

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LogicalPath maps an absolute source path to the path recorded in the
// metadata store. With an empty sourceBase the path is returned cleaned.
// Otherwise the base prefix is replaced by "/", and paths outside the base
// are rejected.
func LogicalPath(realPath, sourceBase string) (string, error) {
	if !filepath.IsAbs(realPath) {
		return "", fmt.Errorf("path is not absolute: %s", realPath)
	}
	realPath = filepath.Clean(realPath)
	if sourceBase == "" {
		return realPath, nil
	}

	base := filepath.Clean(sourceBase)
	if base == "/" {
		return realPath, nil
	}
	if realPath == base {
		return "/", nil
	}
	if strings.HasPrefix(realPath, base+"/") {
		return realPath[len(base):], nil
	}
	return "", fmt.Errorf("path %s is outside source base %s", realPath, base)
}

// DestinationPath places a logical path under a restore destination root.
func DestinationPath(destination, logical string) string {
	return filepath.Join(destination, filepath.FromSlash(logical))
}

// NormalizeFilters cleans restore filters into absolute logical paths.
// A filter of "/" selects everything, so it collapses the set to empty.
func NormalizeFilters(filters []string) []string {
	var out []string
	for _, f := range filters {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		f = filepath.Clean("/" + f)
		if f == "/" {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// pathDepth counts the components of a logical path. "/" has depth zero.
func pathDepth(logical string) int {
	if logical == "/" {
		return 0
	}
	return strings.Count(logical, "/")
}
