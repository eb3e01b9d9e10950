package run

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/beamline/autoproc/cmd/util"
	"github.com/beamline/autoproc/compute/slurm"
	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/dispatch"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/scan"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataRecord = `{
  "beamtimeId": 11016750,
  "corePath": "/asap3/petra3/gpfs/p09/2024/data/11016750",
  "onlineAnalysis": {
    "reservedNodes": ["max-p3a020", "max-p3a021"],
    "sshPrivateKeyPath": "shared/id_rsa",
    "sshPublicKeyPath": "shared/id_rsa.pub",
    "userAccount": "bttest04",
    "slurmPartition": "ponline_p09"
  }
}`

func testLogger() *logger.Logger {
	log := logger.New("run")
	log.Discard()
	return log
}

func mkdirs(t *testing.T, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(d, 0755))
	}
}

func flockFile(t *testing.T, path string) func() {
	t.Helper()
	l := flock.New(path)
	ok, err := l.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	return func() { l.Unlock() }
}

type fakeDispatcher struct {
	mtx     sync.Mutex
	folders []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, folder string) (*dispatch.Result, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.folders = append(f.folders, folder)
	return &dispatch.Result{Folder: folder, Outcome: dispatch.SkippedEmpty}, nil
}

func TestCommandFlags(t *testing.T) {
	dir := t.TempDir()
	fileConf := config.DefaultConfig()
	fileConf.Crystallography.RawDirectory = filepath.Join(dir, "raw")
	fileConf.Crystallography.ProcessedDirectory = filepath.Join(dir, "processed")
	tmp, cleanup := util.TempConfigFile(fileConf, "testconfig.yaml")
	defer cleanup()

	c, h := newCommandHooks()
	called := false
	h.Run = func(ctx context.Context, conf config.Config, opts Options, log *logger.Logger) error {
		called = true
		assert.Equal(t, filepath.Join(dir, "raw"), conf.Crystallography.RawDirectory)
		assert.Equal(t, "galchenm", conf.User)
		assert.True(t, conf.Dispatch.Pool)
		assert.True(t, conf.Dispatch.Force)
		assert.Equal(t, "debug", conf.Logger.Level)
		assert.Equal(t, config.Duration(5*time.Second), conf.Scan.Interval)
		assert.Equal(t, Options{Offline: true, Blocks: "runs.lst", Once: true}, opts)
		return nil
	}

	c.SetArgs([]string{
		"--config", tmp,
		"--offline", "--blocks", "runs.lst", "--once",
		"--force", "--pool", "-u", "galchenm",
		"--Logger.Level", "debug", "--scan-interval", "5s",
	})
	require.NoError(t, c.Execute())
	assert.True(t, called)
}

func TestCommandOnlineIsDefault(t *testing.T) {
	dir := t.TempDir()
	fileConf := config.DefaultConfig()
	fileConf.Crystallography.RawDirectory = filepath.Join(dir, "raw")
	fileConf.Crystallography.ProcessedDirectory = filepath.Join(dir, "processed")
	tmp, cleanup := util.TempConfigFile(fileConf, "testconfig.yaml")
	defer cleanup()

	c, h := newCommandHooks()
	h.Run = func(ctx context.Context, conf config.Config, opts Options, log *logger.Logger) error {
		assert.False(t, opts.Offline)
		assert.Equal(t, "/raw/run1", opts.Path)
		return nil
	}
	c.SetArgs([]string{"--config", tmp, "--online", "--path", "/raw/run1"})
	require.NoError(t, c.Execute())
}

func TestCommandOfflineAndOnlineExclusive(t *testing.T) {
	c, h := newCommandHooks()
	h.Run = func(ctx context.Context, conf config.Config, opts Options, log *logger.Logger) error {
		t.Fatal("run should not be called")
		return nil
	}
	c.SetArgs([]string{"--offline", "--online"})
	c.SetOut(io.Discard)
	c.SetErr(io.Discard)
	assert.Error(t, c.Execute())
}

func TestRunRequiresPathOnline(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = "/raw"
	conf.Crystallography.ProcessedDirectory = "/processed"

	err := Run(context.Background(), conf, Options{}, testLogger())
	assert.ErrorContains(t, err, "--path")
}

func TestRunInvalidConfig(t *testing.T) {
	err := Run(context.Background(), config.DefaultConfig(), Options{Offline: true}, testLogger())
	assert.ErrorContains(t, err, "invalid config")
}

func TestRunCanceledWhileWaitingForRaw(t *testing.T) {
	dir := t.TempDir()
	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = filepath.Join(dir, "raw")
	conf.Crystallography.ProcessedDirectory = filepath.Join(dir, "processed")
	conf.Scan.Interval = config.Duration(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, Run(ctx, conf, Options{Offline: true}, testLogger()))
	assert.NoDirExists(t, conf.Crystallography.ProcessedDirectory)
}

func TestRunLockHeld(t *testing.T) {
	dir := t.TempDir()
	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = filepath.Join(dir, "raw")
	conf.Crystallography.ProcessedDirectory = filepath.Join(dir, "processed")
	mkdirs(t, conf.Crystallography.RawDirectory, conf.Crystallography.ProcessedDirectory)

	held := flockFile(t, conf.LockPath())
	defer held()

	err := Run(context.Background(), conf, Options{Offline: true, Once: true}, testLogger())
	assert.ErrorContains(t, err, "another autoproc instance")
}

func TestRunRejectsReservationWithoutPartition(t *testing.T) {
	base := t.TempDir()
	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = filepath.Join(base, "raw")
	conf.Crystallography.ProcessedDirectory = filepath.Join(base, "processed")
	mkdirs(t, conf.Crystallography.RawDirectory)
	record := `{"beamtimeId": "11016750", "onlineAnalysis": {"reservedNodes": ["max-p3a020"], "userAccount": "bttest04"}}`
	require.NoError(t, os.WriteFile(filepath.Join(base, "beamtime-metadata-11016750.json"), []byte(record), 0644))

	err := Run(context.Background(), conf, Options{Offline: true, Once: true}, testLogger())
	assert.ErrorContains(t, err, "no slurm partition")
}

func TestApplyMetadata(t *testing.T) {
	base := t.TempDir()
	raw := filepath.Join(base, "raw")
	mkdirs(t, raw)
	require.NoError(t, os.WriteFile(filepath.Join(base, "beamtime-metadata-11016750.json"), []byte(metadataRecord), 0644))

	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = raw
	conf.User = "galchenm"

	require.NoError(t, applyMetadata(&conf, testLogger()))
	assert.Equal(t, "11016750", conf.BeamtimeID)
	assert.Equal(t, "galchenm", conf.User)
	assert.Equal(t, "max-p3a020,max-p3a021", conf.ReservedNodes)
	assert.Equal(t, filepath.Join(base, "shared/id_rsa"), conf.SSHPrivateKeyPath)
	assert.Equal(t, "shared/id_rsa.pub", conf.SSHPublicKeyPath)
	assert.Equal(t, "ponline_p09", conf.SlurmPartition)
}

func TestApplyMetadataMissing(t *testing.T) {
	base := t.TempDir()
	raw := filepath.Join(base, "raw")
	mkdirs(t, raw)

	conf := config.DefaultConfig()
	conf.Crystallography.RawDirectory = raw
	assert.Error(t, applyMetadata(&conf, testLogger()))
}

func TestNewRouter(t *testing.T) {
	conf := config.DefaultConfig()
	conf.SlurmPartition = "ponline_p09"
	conf.ReservedNodes = "max-p3a020,max-p3a021"

	r := newRouter(conf, &slurm.Backend{}, testLogger())
	assert.Equal(t, "ponline_p09", r.Partition)
	assert.Equal(t, 25, r.Guard.Limit)
	assert.Equal(t, "maxwell", r.Guard.PoolSentinel)
	assert.False(t, r.UsesPool())
	assert.Equal(t, "max-p3a020", r.RelayHost())

	conf.Dispatch.Pool = true
	r = newRouter(conf, &slurm.Backend{}, testLogger())
	assert.True(t, r.UsesPool())
	assert.Equal(t, "", r.RelayHost())
}

func TestNewCluster(t *testing.T) {
	conf := config.DefaultConfig()
	conf.User = "bttest04"
	conf.SSHPrivateKeyPath = "/beamtime/shared/id_rsa"

	b, err := newCluster(conf, testLogger())
	require.NoError(t, err)
	ssh, ok := b.Runner.(*slurm.SSHRunner)
	require.True(t, ok)
	assert.Equal(t, "bttest04", ssh.User)
	assert.Equal(t, "/beamtime/shared/id_rsa", ssh.KeyPath)
	assert.Equal(t, 10*time.Second, ssh.Timeout)

	tpl := filepath.Join(t.TempDir(), "job.tpl")
	require.NoError(t, os.WriteFile(tpl, []byte("#!/bin/sh\n"), 0644))
	conf.Slurm.SSH.Disabled = true
	conf.Slurm.Template = tpl
	conf.Slurm.Sbatch = "/opt/slurm/bin/sbatch"

	b, err = newCluster(conf, testLogger())
	require.NoError(t, err)
	assert.IsType(t, slurm.LocalRunner{}, b.Runner)
	assert.Equal(t, "#!/bin/sh\n", b.Template)
	assert.Equal(t, "/opt/slurm/bin/sbatch", b.SubmitCmd)
	assert.Equal(t, "squeue", b.QueueCmd)

	conf.Slurm.Template = filepath.Join(t.TempDir(), "missing.tpl")
	_, err = newCluster(conf, testLogger())
	assert.Error(t, err)
}

func TestProcessWorklist(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, "lyso", "run1"), filepath.Join(root, "lyso", "run2"))
	list := filepath.Join(t.TempDir(), "runs.lst")
	require.NoError(t, os.WriteFile(list, []byte("run2\n\nrun2\n"), 0644))

	fd := &fakeDispatcher{}
	sc := &scan.Scanner{Root: root, Dispatcher: fd, Log: testLogger()}
	require.NoError(t, process(context.Background(), sc, Options{Offline: true, Blocks: list, Once: true}))
	assert.Equal(t, []string{filepath.Join(root, "lyso", "run2")}, fd.folders)
}

func TestProcessEmptyWorklist(t *testing.T) {
	list := filepath.Join(t.TempDir(), "runs.lst")
	require.NoError(t, os.WriteFile(list, []byte("\n"), 0644))

	sc := &scan.Scanner{Root: t.TempDir(), Dispatcher: &fakeDispatcher{}, Log: testLogger()}
	assert.Error(t, process(context.Background(), sc, Options{Offline: true, Blocks: list}))
}

func TestProcessSweepOnce(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, "a"), filepath.Join(root, "b"))

	fd := &fakeDispatcher{}
	sc := &scan.Scanner{Root: root, Dispatcher: fd, Log: testLogger()}
	require.NoError(t, process(context.Background(), sc, Options{Offline: true, Once: true}))

	sort.Strings(fd.folders)
	assert.Equal(t, []string{filepath.Join(root, "a"), filepath.Join(root, "b")}, fd.folders)
}

func TestProcessOnline(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "run1")
	mkdirs(t, run)

	fd := &fakeDispatcher{}
	sc := &scan.Scanner{Root: root, Dispatcher: fd, Log: testLogger()}
	require.NoError(t, process(context.Background(), sc, Options{Path: run}))
	assert.Equal(t, []string{run}, fd.folders)

	assert.Error(t, process(context.Background(), sc, Options{Path: filepath.Join(root, "missing")}))
}
