package app

import (
	"fmt"
	"io"
	"sync"

	"bumd-go/internal/bumd"
)

// progressPrinter writes one line per progress event, e.g. "HASH  /etc/hosts".
// Lines are written straight to w so an interrupted run leaves its trail.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) Report(action bumd.Action, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%-5s %s\n", action, path)
}
