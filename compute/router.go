package compute

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/metrics"
)

// JobSpec is what a pipeline asks for. The Router adds placement.
type JobSpec struct {
	Name string
	// Directory holding the job script and its output streams.
	Dir string
	// Base name of the script, output and error files. Defaults to Name.
	Base string
	// Output and error paths, when not next to the script.
	Output   string
	Error    string
	Setup    []string
	Commands []string
	// Pool placement, used when the job lands on the unrestricted pool.
	PoolPartition string
	PoolTime      time.Duration
	// Always place the job on the unrestricted pool.
	PoolOnly bool
	// Pipeline name, for metrics.
	Pipeline string
}

// Router picks a resource profile for each job and submits it.
type Router struct {
	Cluster Cluster
	Guard   *Guard
	// Partition and reservation of the reserved nodes.
	Partition   string
	Reservation string
	// Partition used while the reservation is overloaded.
	SharedPartition string
	// Reservation value naming the unrestricted pool.
	PoolSentinel string
	// Memory ceiling of pool jobs, e.g. "500000MB".
	PoolMemory string
	PoolNice   int
	// Route everything to the pool.
	ForcePool bool
	Log       *logger.Logger
}

// UsesPool reports whether there is no reservation to use.
func (r *Router) UsesPool() bool {
	return r.ForcePool || r.Reservation == "" || r.Reservation == r.PoolSentinel
}

// RelayHost returns the login node used to submit jobs: the first reserved
// node, or "" for the pool.
func (r *Router) RelayHost() string {
	if r.UsesPool() {
		return ""
	}
	return strings.TrimSpace(strings.Split(r.Reservation, ",")[0])
}

// Route builds the job description for spec. Occupancy of the reserved
// nodes is queried on every call.
func (r *Router) Route(ctx context.Context, spec JobSpec) (*JobDescription, error) {
	if spec.Name == "" || spec.Dir == "" {
		return nil, fmt.Errorf("job needs a name and a directory")
	}
	base := spec.Base
	if base == "" {
		base = spec.Name
	}
	jd := &JobDescription{
		Name:     spec.Name,
		Nodes:    1,
		Setup:    spec.Setup,
		Commands: spec.Commands,
		Script:   filepath.Join(spec.Dir, base+".sh"),
		Output:   filepath.Join(spec.Dir, base+".out"),
		Error:    filepath.Join(spec.Dir, base+".err"),
	}
	if spec.Output != "" {
		jd.Output = spec.Output
	}
	if spec.Error != "" {
		jd.Error = spec.Error
	}

	switch {
	case spec.PoolOnly || r.UsesPool():
		mem, err := memoryMB(r.PoolMemory)
		if err != nil {
			return nil, err
		}
		jd.Profile = Pool
		jd.Partition = spec.PoolPartition
		jd.Time = spec.PoolTime
		jd.MemoryMB = mem
		jd.Nice = r.PoolNice

	case r.Guard.Overloaded(ctx, r.Reservation):
		jd.Profile = Shared
		jd.Partition = r.SharedPartition

	default:
		jd.Profile = Reserved
		jd.Partition = r.Partition
		jd.Reservation = r.Reservation
	}
	if jd.Partition == "" {
		return nil, fmt.Errorf("no partition for %s profile", jd.Profile)
	}
	return jd, nil
}

// Submit hands jd to the cluster, relayed through RelayHost.
func (r *Router) Submit(ctx context.Context, jd *JobDescription, pipeline string) (*Submission, error) {
	relay := r.RelayHost()
	sub, err := r.Cluster.Submit(ctx, jd, relay)
	if err != nil {
		metrics.SubmissionFailed(pipeline)
		return nil, fmt.Errorf("submitting %s: %w", jd.Script, err)
	}
	metrics.JobSubmitted(pipeline, string(jd.Profile))
	r.Log.Info("Submitted job",
		"name", jd.Name,
		"job_id", sub.JobID,
		"profile", jd.Profile,
		"partition", jd.Partition,
		"relay", relay,
	)
	return sub, nil
}

// memoryMB converts a size such as "500000MB" to mebibytes.
func memoryMB(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	b, err := units.ParseBase2Bytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", s, err)
	}
	return int64(b / units.MiB), nil
}
