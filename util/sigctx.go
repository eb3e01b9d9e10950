package util

import (
	"context"
	"os"
	"os/signal"
	"time"
)

// SignalContext returns a context which is canceled delay after any of the
// given signals is received. The returned cancel func releases the signal
// subscription and must be called once the context is no longer needed.
func SignalContext(ctx context.Context, delay time.Duration, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	sch := make(chan os.Signal, 1)
	sub, cancel := context.WithCancel(ctx)
	signal.Notify(sch, sigs...)

	go func() {
		defer signal.Stop(sch)
		select {
		case <-sub.Done():
			return
		case <-sch:
			time.Sleep(delay)
			cancel()
		}
	}()

	return sub, cancel
}
