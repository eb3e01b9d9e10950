package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/beamline/autoproc/compute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rotationalInfo = "method: rotational\nframes: 100\ndistance: 200\nwavelength: 1.0\ndegrees/frame: 0.1\nstart angle: 0\n"

func TestClassify(t *testing.T) {
	cases := []struct {
		method string
		fpp    int
		want   Pipeline
	}{
		{"rotational", 1, Rotational},
		{"rotational", 10, Rotational},
		{"grid step", 10, Wedge},
		{"grid step", 2, Wedge},
		{"grid step", 1, Serial},
		{"grid step", 0, Serial},
		{"serial", 1, Serial},
		{"still", 5, Serial},
		{"", 1, Serial},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.method, c.fpp), "%q/%d", c.method, c.fpp)
	}
}

func TestIneligibleFolderIsNoop(t *testing.T) {
	e := newTestEnv(t)
	folders := []string{
		e.folder(t, "noinfo", "", "a.cbf", "b.cbf"),
		e.folder(t, "onlyinfo", rotationalInfo),
	}
	empty := e.folder(t, "emptyinfo", "", "a.cbf")
	require.NoError(t, os.WriteFile(filepath.Join(empty, "info.txt"), nil, 0644))
	folders = append(folders, empty)

	for _, f := range folders {
		res, err := e.d.Dispatch(context.Background(), f)
		require.NoError(t, err)
		assert.Equal(t, SkippedIncomplete, res.Outcome, f)
		assert.False(t, exists(e.out(filepath.Base(f), FlagFile)), f)
	}
	assert.Empty(t, e.cluster.jobs)
}

func TestRotationalEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
	assert.Equal(t, Rotational, res.Pipeline)
	require.Len(t, res.Jobs, 2)
	require.Len(t, e.cluster.jobs, 2)

	inp := readFile(t, e.out("run1", "xds", "XDS.INP"))
	assert.Contains(t, inp, "NAME_TEMPLATE_OF_DATA_FRAMES= "+filepath.Join(folder, "sample_??????.h5"))
	assert.Contains(t, inp, "DETECTOR_DISTANCE= 200\n")
	assert.Contains(t, inp, "DATA_RANGE= 1 100\n")
	assert.Contains(t, inp, "!SPACE_GROUP_NUMBER")
	assert.Contains(t, inp, "!UNIT_CELL_CONSTANTS")
	assert.NotContains(t, inp, "$")

	xds := e.cluster.jobs[0]
	assert.Equal(t, "xds", xds.Name)
	assert.Equal(t, e.out("run1", "xds", "xds_XDS.sh"), xds.Script)
	assert.Equal(t, compute.Reserved, xds.Profile)
	assert.Equal(t, "node1,node2", xds.Reservation)
	assert.Contains(t, commands(xds), "xds_par")

	proc := e.cluster.jobs[1]
	assert.Equal(t, "autoPROC_20240301-123045", proc.Name)
	assert.Equal(t, compute.Pool, proc.Profile)
	assert.Contains(t, commands(proc), "process -d "+e.out("run1", "autoPROC_20240301-123045", "autoPROC")+" -I "+folder)
	assert.Equal(t, []string{"node1", "node1"}, e.cluster.relays)

	assert.True(t, exists(e.out("run1", FlagFile)))
	require.Len(t, e.journal.entries, 2)
	assert.Equal(t, folder, e.journal.entries[0].Folder)
	assert.Equal(t, "101", e.journal.entries[0].JobID)
}

func TestFlagBlocksRedispatch(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	_, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	require.Len(t, e.cluster.jobs, 2)

	for i := 0; i < 3; i++ {
		res, err := e.d.Dispatch(context.Background(), folder)
		require.NoError(t, err)
		assert.Equal(t, SkippedDone, res.Outcome)
	}
	assert.Len(t, e.cluster.jobs, 2)
}

func TestPartialResultsCountAsDone(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")
	require.NoError(t, os.MkdirAll(e.out("run1"), 0777))
	require.NoError(t, os.WriteFile(e.out("run1", "CORRECT.LP"), nil, 0644))

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, SkippedDone, res.Outcome)
	assert.Empty(t, e.cluster.jobs)
}

func TestForceClearsOutputBeforeSubmitting(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")
	require.NoError(t, os.MkdirAll(e.out("run1", "old", "deep"), 0777))
	require.NoError(t, os.WriteFile(e.out("run1", "old", "deep", "x.lp"), nil, 0644))
	require.NoError(t, os.WriteFile(e.out("run1", "stale.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(e.out("run1", FlagFile), nil, 0644))

	e.d.Conf.Dispatch.Force = true
	e.cluster.onSubmit = func(*compute.JobDescription) {
		assert.False(t, exists(e.out("run1", "stale.txt")))
		assert.False(t, exists(e.out("run1", "old")))
		assert.False(t, exists(e.out("run1", FlagFile)))
	}

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
	assert.Len(t, e.cluster.jobs, 2)
	assert.True(t, exists(e.out("run1", FlagFile)))
}

func TestForceAppliesOncePerFolder(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")
	require.NoError(t, os.MkdirAll(e.out("run1"), 0777))
	require.NoError(t, os.WriteFile(e.out("run1", FlagFile), nil, 0644))
	e.d.Conf.Dispatch.Force = true

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)

	for i := 0; i < 3; i++ {
		res, err := e.d.Dispatch(context.Background(), folder)
		require.NoError(t, err)
		assert.Equal(t, SkippedDone, res.Outcome)
	}
	assert.Len(t, e.cluster.jobs, 2)
	assert.True(t, exists(e.out("run1", FlagFile)))
}

func TestPendingJobsAreInformationalByDefault(t *testing.T) {
	e := newTestEnv(t)
	e.cluster.pending = 500
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
}

func TestStrictBackpressure(t *testing.T) {
	e := newTestEnv(t)
	e.d.Conf.Dispatch.StrictBackpressure = true
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	e.cluster.pending = 201
	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, SkippedOverloaded, res.Outcome)
	assert.Empty(t, e.cluster.jobs)
	assert.False(t, exists(e.out("run1", FlagFile)))

	e.cluster.pending = 200
	res, err = e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
}

func TestCapacityQueryFailureFailsOpen(t *testing.T) {
	e := newTestEnv(t)
	e.d.Conf.Dispatch.StrictBackpressure = true
	e.cluster.countErr = errors.New("squeue: connection refused")
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
	assert.Equal(t, compute.Reserved, e.cluster.jobs[0].Profile)
}

func TestOverloadedReservationUsesSharedPartition(t *testing.T) {
	e := newTestEnv(t)
	e.cluster.nodeJobs = 26
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	_, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	xds := e.cluster.jobs[0]
	assert.Equal(t, compute.Shared, xds.Profile)
	assert.Equal(t, "allcpu,upex,short", xds.Partition)
	assert.Empty(t, xds.Reservation)
}

func TestSubmissionFailureLeavesFolderUnflagged(t *testing.T) {
	e := newTestEnv(t)
	e.cluster.submitErr = errors.New("sbatch: exit status 1")
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	res, err := e.d.Dispatch(context.Background(), folder)
	require.Error(t, err)
	assert.Equal(t, Failed, res.Outcome)
	assert.False(t, exists(e.out("run1", FlagFile)))

	e.cluster.submitErr = nil
	res, err = e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, Submitted, res.Outcome)
}

func TestRotationalWithoutFramesIsEmpty(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "notes.txt")

	res, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, SkippedEmpty, res.Outcome)
	assert.False(t, exists(e.out("run1", FlagFile)))
	assert.Empty(t, e.cluster.jobs)
}

func TestRotationalCellFile(t *testing.T) {
	e := newTestEnv(t)
	folder := e.folder(t, "run1", rotationalInfo, "img_00001.cbf", "img_00002.cbf")
	cell := "CrystFEL unit cell file version 1.0\n\nlattice_type = tetragonal\ncentering = P\nunique_axis = c\na = 79.1 A\nb = 79.1 A\nc = 38.2 A\nal = 90 deg\nbe = 90 deg\nga = 90 deg\n"
	require.NoError(t, os.WriteFile(filepath.Join(folder, "lyso.cell"), []byte(cell), 0644))

	_, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)

	inp := readFile(t, e.out("run1", "xds", "XDS.INP"))
	assert.Contains(t, inp, filepath.Join(folder, "img_?????.cbf"))
	assert.Contains(t, inp, "UNIT_CELL_CONSTANTS = 79.10 79.10 38.20 90.00 90.00 90.00")
}

func TestPoolReservationSkipsRelay(t *testing.T) {
	e := newTestEnv(t)
	e.d.Router.Reservation = "maxwell"
	folder := e.folder(t, "run1", rotationalInfo, "sample_master.h5")

	_, err := e.d.Dispatch(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, e.cluster.relays)
	for _, jd := range e.cluster.jobs {
		assert.Equal(t, compute.Pool, jd.Profile)
		assert.Equal(t, int64(500000), jd.MemoryMB)
	}
}

func TestFolderOutsideRawDirectory(t *testing.T) {
	e := newTestEnv(t)
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "info.txt"), []byte(rotationalInfo), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(other, "a_master.h5"), nil, 0644))

	_, err := e.d.Dispatch(context.Background(), other)
	assert.Error(t, err)
}

func TestRawRootIsNeverProcessed(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.raw, "info.txt"), []byte(rotationalInfo), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(e.raw, "sample_master.h5"), nil, 0644))
	require.NoError(t, os.MkdirAll(e.out("other_run"), 0777))
	require.NoError(t, os.WriteFile(e.out(".autoproc.lock"), nil, 0644))
	require.NoError(t, os.WriteFile(e.out("autoproc.db"), nil, 0644))
	require.NoError(t, os.WriteFile(e.out(FlagFile), nil, 0644))
	e.d.Conf.Dispatch.Force = true

	_, err := e.d.Dispatch(context.Background(), e.raw)
	assert.Error(t, err)
	assert.Empty(t, e.cluster.jobs)
	assert.True(t, exists(e.out("other_run")))
	assert.True(t, exists(e.out(".autoproc.lock")))
	assert.True(t, exists(e.out("autoproc.db")))
}

func TestFrameTemplate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/raw/run/lyso_master.h5", "/raw/run/lyso_??????.h5"},
		{"/raw/run/lyso_1_master.cxi", "/raw/run/lyso_1_??????.cxi"},
		{"/raw/run/img_00001.cbf", "/raw/run/img_?????.cbf"},
		{"/raw/run1.5/scan_0001.cbf", "/raw/run1.5/scan_????.cbf"},
		{"/raw/run/noindex.cbf", "/raw/run/noindex.cbf"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FrameTemplate(c.in), c.in)
	}
}
