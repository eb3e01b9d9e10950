package util

import (
	"context"
	"time"
)

// Ticker is a wrapper around time.Ticker which
// 1) fires immediately
// 2) can be canceled by the given context.
func Ticker(ctx context.Context, d time.Duration) <-chan time.Time {
	out := make(chan time.Time)
	go func() {
		select {
		case <-ctx.Done():
			return
		case out <- time.Now():
		}
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case <-ctx.Done():
					return
				case out <- t:
				}
			}
		}
	}()
	return out
}

// TickerFunc creates a tick channel. It exists so loops can be driven by a
// test clock instead of wall time.
type TickerFunc func(ctx context.Context, d time.Duration) <-chan time.Time
