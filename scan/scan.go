// Package scan walks the raw data tree and hands every candidate folder to
// the dispatcher, once or on a fixed interval.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/beamline/autoproc/dispatch"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/metrics"
	"github.com/beamline/autoproc/util"
	"github.com/beamline/autoproc/util/fsutil"
)

// DefaultInterval is the pause between two sweeps.
const DefaultInterval = 2 * time.Second

// Dispatcher processes one folder.
type Dispatcher interface {
	Dispatch(ctx context.Context, folder string) (*dispatch.Result, error)
}

// Scanner sweeps the tree below Root. It keeps no state between sweeps.
type Scanner struct {
	Root       string
	Dispatcher Dispatcher
	Interval   time.Duration
	// Tick drives Run, util.Ticker by default.
	Tick util.TickerFunc
	Log  *logger.Logger
}

// Summary counts the outcomes of one sweep.
type Summary struct {
	Folders  int
	Errors   int
	Outcomes map[dispatch.Outcome]int
}

// Sweep walks Root once and dispatches every directory below it whose
// path relative to Root contains one of patterns. Root itself is never
// dispatched. Without patterns
// every directory is dispatched. Per-folder errors are logged and counted;
// only a missing root or a canceled context end the sweep early.
func (s *Scanner) Sweep(ctx context.Context, patterns []string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Outcomes: map[dispatch.Outcome]int{}}

	err := fsutil.WalkDirs(s.Root, func(path, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rel == "" || !Matches(rel, patterns) {
			return nil
		}
		sum.Folders++
		res, err := s.Dispatcher.Dispatch(ctx, path)
		if res != nil {
			sum.Outcomes[res.Outcome]++
		}
		if err != nil {
			sum.Errors++
			s.Log.Error("Dispatch failed", "folder", path, "error", err)
		}
		return nil
	})
	metrics.SweepDone(start)
	if err != nil {
		return sum, fmt.Errorf("sweeping %s: %w", s.Root, err)
	}
	s.Log.Debug("Sweep done",
		"folders", sum.Folders,
		"errors", sum.Errors,
		"submitted", sum.Outcomes[dispatch.Submitted],
		"duration", time.Since(start),
	)
	return sum, nil
}

// Run sweeps on every tick until ctx is canceled. A failed sweep is logged
// and the loop goes on.
func (s *Scanner) Run(ctx context.Context, patterns []string) error {
	tick := s.Tick
	if tick == nil {
		tick = util.Ticker
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.Log.Info("Scanning", "root", s.Root, "interval", interval, "patterns", len(patterns))

	ticks := tick(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if _, err := s.Sweep(ctx, patterns); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.Log.Error("Sweep failed", err)
			}
		}
	}
}

// Once dispatches a single folder.
func (s *Scanner) Once(ctx context.Context, folder string) (*dispatch.Result, error) {
	if !fsutil.IsDir(folder) {
		return nil, fmt.Errorf("%s is not a directory", folder)
	}
	res, err := s.Dispatcher.Dispatch(ctx, folder)
	if err != nil {
		return res, err
	}
	s.Log.Info("Processed folder", "folder", folder, "outcome", res.Outcome, "pipeline", res.Pipeline)
	return res, nil
}

// WaitForRoot blocks until Root is a directory or ctx is canceled.
func (s *Scanner) WaitForRoot(ctx context.Context) error {
	tick := s.Tick
	if tick == nil {
		tick = util.Ticker
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticks := tick(ctx, interval)
	logged := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return ctx.Err()
			}
			if fsutil.IsDir(s.Root) {
				return nil
			}
			if !logged {
				s.Log.Warn("Waiting for raw directory", "root", s.Root)
				logged = true
			}
		}
	}
}

// Matches reports whether rel contains one of patterns, or whether
// patterns is empty.
func Matches(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if strings.Contains(rel, p) {
			return true
		}
	}
	return false
}

// ReadWorklist reads the unique, non-empty, trimmed lines of the file at
// path, in order.
func ReadWorklist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading worklist: %w", err)
	}
	defer f.Close()

	var out []string
	seen := map[string]bool{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading worklist: %w", err)
	}
	return out, nil
}
