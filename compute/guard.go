package compute

import (
	"context"

	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/metrics"
)

// Guard reports cluster occupancy. Every call queries the scheduler; nothing
// is cached. A failed query counts as zero jobs so that submission goes on.
type Guard struct {
	Cluster Cluster
	// Reserved nodes carrying more than Limit jobs are overloaded.
	Limit int
	// Node list value naming the unrestricted pool.
	PoolSentinel string
	Log          *logger.Logger
}

// Overloaded reports whether the reserved nodes carry more than Limit jobs.
// The pool is never overloaded.
func (g *Guard) Overloaded(ctx context.Context, nodes string) bool {
	if nodes == "" || nodes == g.PoolSentinel {
		return false
	}
	n, err := g.Cluster.CountJobs(ctx, JobFilter{Nodes: nodes})
	if err != nil {
		g.Log.Warn("Counting jobs on reserved nodes failed, assuming none", "nodes", nodes, "error", err)
		metrics.CapacityQueryFailed("nodes")
		return false
	}
	g.Log.Debug("Reserved node occupancy", "nodes", nodes, "jobs", n, "limit", g.Limit)
	return n > g.Limit
}

// PendingJobs returns the number of pending jobs of user, zero on failure.
// Without a user there is nothing to count.
func (g *Guard) PendingJobs(ctx context.Context, user string) int {
	if user == "" {
		return 0
	}
	n, err := g.Cluster.CountJobs(ctx, JobFilter{User: user, State: "pending"})
	if err != nil {
		g.Log.Warn("Counting pending jobs failed, assuming none", "user", user, "error", err)
		metrics.CapacityQueryFailed("pending")
		return 0
	}
	return n
}
