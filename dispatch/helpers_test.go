package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/journal"
	"github.com/beamline/autoproc/logger"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	pending   int
	nodeJobs  int
	countErr  error
	submitErr error
	onSubmit  func(*compute.JobDescription)
	jobs      []*compute.JobDescription
	relays    []string
}

func (f *fakeCluster) Submit(ctx context.Context, jd *compute.JobDescription, relay string) (*compute.Submission, error) {
	if f.onSubmit != nil {
		f.onSubmit(jd)
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.jobs = append(f.jobs, jd)
	f.relays = append(f.relays, relay)
	return &compute.Submission{
		JobID:  strconv.Itoa(100 + len(f.jobs)),
		Script: jd.Script,
		Relay:  relay,
	}, nil
}

func (f *fakeCluster) CountJobs(ctx context.Context, filter compute.JobFilter) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if filter.State == "pending" {
		return f.pending, nil
	}
	return f.nodeJobs, nil
}

type fakeJournal struct {
	entries []*journal.Entry
}

func (f *fakeJournal) Record(e *journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type testEnv struct {
	d       *Dispatcher
	cluster *fakeCluster
	journal *fakeJournal
	raw     string
	proc    string
}

var testNow = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	proc := filepath.Join(root, "processed")
	require.NoError(t, os.MkdirAll(raw, 0777))

	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = raw
	conf.Crystallography.ProcessedDirectory = proc
	conf.User = "bl_user"
	conf.Scan.WaitInterval = config.Duration(10 * time.Millisecond)
	conf.Scan.WaitTimeout = config.Duration(200 * time.Millisecond)

	log := logger.New("dispatch")
	log.Discard()

	fc := &fakeCluster{}
	guard := &compute.Guard{
		Cluster:      fc,
		Limit:        conf.Slurm.ReservedNodeJobLimit,
		PoolSentinel: conf.Slurm.PoolSentinel,
		Log:          log,
	}
	router := &compute.Router{
		Cluster:         fc,
		Guard:           guard,
		Partition:       "upex",
		Reservation:     "node1,node2",
		SharedPartition: conf.Slurm.SharedPartition,
		PoolSentinel:    conf.Slurm.PoolSentinel,
		PoolMemory:      conf.Slurm.Pool.Memory,
		PoolNice:        conf.Slurm.Pool.Nice,
		Log:             log,
	}
	j := &fakeJournal{}
	d := &Dispatcher{
		Conf:    conf,
		Router:  router,
		Guard:   guard,
		Journal: j,
		Log:     log,
		Now:     func() time.Time { return testNow },
	}
	return &testEnv{d: d, cluster: fc, journal: j, raw: raw, proc: proc}
}

// folder creates a raw data folder holding info.txt with the given
// content (skipped when empty) and empty files with the given names.
func (e *testEnv) folder(t *testing.T, rel, info string, files ...string) string {
	dir := filepath.Join(e.raw, rel)
	require.NoError(t, os.MkdirAll(dir, 0777))
	if info != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "info.txt"), []byte(info), 0644))
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("data"), 0644))
	}
	return dir
}

func (e *testEnv) out(rel ...string) string {
	return filepath.Join(append([]string{e.proc}, rel...)...)
}

func readFile(t *testing.T, path string) string {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func commands(jd *compute.JobDescription) string {
	return strings.Join(jd.Commands, "\n")
}
