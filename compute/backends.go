// Package compute decides where processing jobs run and hands them to the
// cluster scheduler.
package compute

import (
	"context"
)

// Cluster is the scheduler seen by the dispatcher. Implementations build
// every scheduler command themselves, so callers never construct command
// strings.
type Cluster interface {
	// Submit renders the job script of jd, writes it to jd.Script and
	// submits it, relayed through relay when it is not empty.
	Submit(ctx context.Context, jd *JobDescription, relay string) (*Submission, error)
	// CountJobs returns the number of queued or running jobs matching f.
	CountJobs(ctx context.Context, f JobFilter) (int, error)
}

// JobFilter selects jobs for CountJobs. Empty fields do not filter.
type JobFilter struct {
	User string
	// Job state, e.g. "pending".
	State string
	// Comma separated node list.
	Nodes string
}

// Submission is the outcome of a successful submission.
type Submission struct {
	// Scheduler job id, empty when it could not be parsed.
	JobID  string
	Script string
	Relay  string
}
