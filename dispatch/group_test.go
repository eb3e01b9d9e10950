package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByPosition(t *testing.T) {
	dir := t.TempDir()
	names := []string{"sample_000002_00001.cbf", "info.txt", "sample_000001_00011.txt"}
	for i := 1; i <= 10; i++ {
		names = append(names, filepath.Base(Position{Template: "sample_000001_?????.cbf"}.FrameFile(i)))
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}

	got, err := GroupByPosition(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Position{
		Index:    1,
		Label:    "000001",
		Template: filepath.Join(dir, "sample_000001_?????.cbf"),
		First:    1,
		Last:     10,
	}, got[0])
	assert.Equal(t, 2, got[1].Index)
	assert.Equal(t, 1, got[1].First)
	assert.Equal(t, 1, got[1].Last)
}

func TestGroupByPositionUnsortedFrames(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"x_y_000007_00042.cbf", "x_y_000007_00003.cbf", "x_y_000007_00017.cbf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}
	got, err := GroupByPosition(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "000007", got[0].Label)
	assert.Equal(t, 3, got[0].First)
	assert.Equal(t, 42, got[0].Last)
	assert.Equal(t, filepath.Join(dir, "x_y_000007_00003.cbf"), got[0].FrameFile(3))
}

func TestGroupByPositionMissingFolder(t *testing.T) {
	_, err := GroupByPosition(filepath.Join(t.TempDir(), "gone"))
	assert.Error(t, err)
}

func TestRotationAxis(t *testing.T) {
	assert.Equal(t, "1.0 0.0 0.0", RotationAxis(0))
	assert.Equal(t, "-1.0 0.0 0.0", RotationAxis(1))
	assert.Equal(t, "1.0 0.0 0.0", RotationAxis(2))
}
