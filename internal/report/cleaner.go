package report

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Cleaner removes temporary files after a delay. Removal failures are
// logged and never reach the caller.
type Cleaner struct {
	Delay time.Duration

	wg sync.WaitGroup
}

// Schedule removes paths once Delay has passed.
func (c *Cleaner) Schedule(paths ...string) {
	if len(paths) == 0 {
		return
	}
	c.wg.Add(1)
	time.AfterFunc(c.Delay, func() {
		defer c.wg.Done()
		removeFiles(paths...)
	})
}

// removeFiles deletes paths now, logging failures.
func removeFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("removing temporary file", "path", p, "error", err)
		}
	}
}

// Wait blocks until every scheduled removal has run.
func (c *Cleaner) Wait() {
	c.wg.Wait()
}
