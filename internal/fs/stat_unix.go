//go:build linux

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"bumd-go/internal/bumd"
)

// extractStatData reads owner, group, permission bits and the exact mtime
// from the raw stat result.
func extractStatData(info fs.FileInfo) (*bumd.StatData, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	return &bumd.StatData{
		UID:     st.Uid,
		GID:     st.Gid,
		Mode:    st.Mode & 0o7777,
		ModTime: time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
	}, nil
}
