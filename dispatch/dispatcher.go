// Package dispatch decides, for one raw data folder at a time, whether and
// how it gets processed, and submits the jobs of the matching pipeline.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/info"
	"github.com/beamline/autoproc/journal"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/metrics"
	"github.com/beamline/autoproc/util/fsutil"
)

// Outcome is the terminal state of one dispatch.
type Outcome string

// Dispatch outcomes.
const (
	SkippedIncomplete Outcome = "skipped-incomplete"
	SkippedDone       Outcome = "skipped-done"
	SkippedOverloaded Outcome = "skipped-overloaded"
	SkippedEmpty      Outcome = "skipped-empty"
	Submitted         Outcome = "submitted"
	Failed            Outcome = "failed"
)

// Pipeline names a processing strategy.
type Pipeline string

// Pipelines.
const (
	Rotational Pipeline = "rotational"
	Wedge      Pipeline = "wedge"
	Serial     Pipeline = "serial"
)

// Classify maps an acquisition method to its pipeline. Every method maps
// to exactly one pipeline.
func Classify(method string, framesPerPosition int) Pipeline {
	switch {
	case method == info.MethodRotational:
		return Rotational
	case method == info.MethodGridStep && framesPerPosition > 1:
		return Wedge
	default:
		return Serial
	}
}

// Recorder keeps a durable record of submitted jobs.
type Recorder interface {
	Record(*journal.Entry) error
}

// Result describes what one dispatch did.
type Result struct {
	Folder   string
	Outcome  Outcome
	Pipeline Pipeline
	Jobs     []*compute.Submission
}

// Dispatcher runs the per-folder state machine. Flags and cluster
// occupancy are read fresh on every call. The only state kept between
// calls is the set of output directories already forced, so that with
// Dispatch.Force each folder is reprocessed once per process and not on
// every pass.
type Dispatcher struct {
	Conf   config.Config
	Router *compute.Router
	Guard  *compute.Guard
	// Optional.
	Journal Recorder
	Log     *logger.Logger
	// Clock used for directory names, defaults to time.Now.
	Now func() time.Time

	mtx    sync.Mutex
	forced map[string]bool
}

// folderJob carries one folder through a pipeline.
type folderJob struct {
	pipeline Pipeline
	rec      *Record
	desc     *info.Descriptor
	log      *logger.Logger
	jobs     []*compute.Submission
}

// Dispatch evaluates folder once. An error means a pipeline failed part
// way; jobs submitted before the failure are listed in the result and the
// folder is not flagged, so it is retried on a later pass.
func (d *Dispatcher) Dispatch(ctx context.Context, folder string) (*Result, error) {
	log := d.Log.WithFields("folder", folder)
	res := &Result{Folder: folder}

	if !info.Eligible(folder) {
		log.Debug("Folder not ready")
		res.Outcome = SkippedIncomplete
		return res, nil
	}

	rec, err := NewRecord(d.Conf.Crystallography.RawDirectory, d.Conf.Crystallography.ProcessedDirectory, folder)
	if err != nil {
		return nil, err
	}

	if out, ok := d.checkDone(rec, log); !ok {
		res.Outcome = out
		d.finish(res, log)
		return res, nil
	}

	pending := d.Guard.PendingJobs(ctx, d.Conf.User)
	metrics.PendingJobs(pending)
	if pending > d.Conf.Dispatch.MaxPendingJobs {
		log.Warn("Too many pending jobs",
			"outcome", SkippedOverloaded,
			"pending", pending,
			"limit", d.Conf.Dispatch.MaxPendingJobs,
			"strict", d.Conf.Dispatch.StrictBackpressure,
		)
		if d.Conf.Dispatch.StrictBackpressure {
			res.Outcome = SkippedOverloaded
			d.finish(res, log)
			return res, nil
		}
	}

	if err := rec.Ensure(); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	desc := info.Load(folder)
	res.Pipeline = Classify(desc.Method(), desc.FramesPerPosition())
	job := &folderJob{
		pipeline: res.Pipeline,
		rec:      rec,
		desc:     desc,
		log:      log.WithFields("pipeline", res.Pipeline),
	}

	var submitted bool
	switch res.Pipeline {
	case Rotational:
		submitted, err = d.rotational(ctx, job)
	case Wedge:
		submitted, err = d.wedge(ctx, job)
	default:
		submitted, err = d.serial(ctx, job)
	}
	res.Jobs = job.jobs

	switch {
	case err != nil:
		res.Outcome = Failed
		d.finish(res, log)
		return res, fmt.Errorf("%s pipeline: %w", res.Pipeline, err)
	case !submitted:
		res.Outcome = SkippedEmpty
	default:
		res.Outcome = Submitted
	}
	d.finish(res, log)
	return res, nil
}

// checkDone applies the idempotency rule. It returns false with the
// outcome when the folder must be skipped.
func (d *Dispatcher) checkDone(rec *Record, log *logger.Logger) (Outcome, bool) {
	flagged := rec.Flagged()
	if !d.Conf.Dispatch.Force || !d.claimForce(rec.Dir) {
		if flagged {
			return SkippedDone, false
		}
		if m := rec.Partial(); m != "" {
			log.Debug("Found partial results", "marker", m)
			return SkippedDone, false
		}
		return "", true
	}
	if flagged {
		// Individual failures were logged; carry on with what is left.
		if err := rec.Clear(log); err != nil {
			log.Warn("Output directory not fully cleared", "error", err)
		}
	}
	return "", true
}

// claimForce reports whether dir has not been forced yet and marks it.
func (d *Dispatcher) claimForce(dir string) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.forced[dir] {
		return false
	}
	if d.forced == nil {
		d.forced = map[string]bool{}
	}
	d.forced[dir] = true
	return true
}

func (d *Dispatcher) finish(res *Result, log *logger.Logger) {
	metrics.DispatchOutcome(string(res.Outcome), string(res.Pipeline))
	lvl := log.Debug
	if res.Outcome == Submitted {
		lvl = log.Info
	}
	lvl("Dispatched folder", "outcome", res.Outcome, "pipeline", res.Pipeline, "jobs", len(res.Jobs))
}

// submit routes and submits one job of job's folder.
func (d *Dispatcher) submit(ctx context.Context, job *folderJob, spec compute.JobSpec) error {
	spec.Pipeline = string(job.pipeline)
	jd, err := d.Router.Route(ctx, spec)
	if err != nil {
		return err
	}
	sub, err := d.Router.Submit(ctx, jd, spec.Pipeline)
	if err != nil {
		return err
	}
	job.jobs = append(job.jobs, sub)

	if d.Journal == nil {
		return nil
	}
	err = d.Journal.Record(&journal.Entry{
		Folder:      job.rec.Folder,
		Pipeline:    spec.Pipeline,
		JobName:     jd.Name,
		Script:      jd.Script,
		Partition:   jd.Partition,
		Reservation: jd.Reservation,
		Profile:     string(jd.Profile),
		JobID:       sub.JobID,
		Relay:       sub.Relay,
		Submitted:   d.now(),
	})
	if err != nil {
		job.log.Warn("Failed to journal submission", "job", jd.Name, "error", err)
	}
	return nil
}

// wait blocks until path is readable, within the configured budget.
func (d *Dispatcher) wait(ctx context.Context, path string) error {
	return fsutil.WaitReadable(ctx, path, time.Duration(d.Conf.Scan.WaitInterval), time.Duration(d.Conf.Scan.WaitTimeout))
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
