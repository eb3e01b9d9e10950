package fsutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/beamline/autoproc/util"
)

// Default bounds used while waiting for a detector file to be fully written.
const (
	DefaultWaitInterval = 500 * time.Millisecond
	DefaultWaitTimeout  = 30 * time.Second
)

// WaitReadable blocks until path can be opened for reading, polling at a
// fixed interval until timeout elapses or ctx is canceled.
func WaitReadable(ctx context.Context, path string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	r := util.NewFixedRetrier(interval, timeout)
	err := r.Retry(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("file %s still not readable after %s: %w", path, timeout, err)
	}
	return nil
}
