package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamline/autoproc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigFileWithFlags(t *testing.T) {
	dir := t.TempDir()

	fileConf := config.DefaultConfig()
	fileConf.Crystallography.RawDirectory = filepath.Join(dir, "raw")
	fileConf.Crystallography.ProcessedDirectory = filepath.Join(dir, "processed")
	fileConf.User = "fromfile"
	fileConf.Dispatch.MaxPendingJobs = 50
	tmp, cleanup := TempConfigFile(fileConf, "testconfig.yaml")
	defer cleanup()

	flagConf := config.Config{}
	flagConf.User = "fromflag"
	flagConf.Dispatch.Force = true

	conf, path, err := MergeConfigFileWithFlags(tmp, flagConf, config.FillOptions{})
	require.NoError(t, err)
	assert.Equal(t, tmp, path)
	assert.Equal(t, "fromflag", conf.User)
	assert.True(t, conf.Dispatch.Force)
	assert.Equal(t, 50, conf.Dispatch.MaxPendingJobs)
	assert.Equal(t, filepath.Join(dir, "raw"), conf.Crystallography.RawDirectory)
	assert.Equal(t, "xds_par", conf.Crystallography.RotationalCommand)
}

func TestMergeConfigFileWithFlagsBuiltinTemplate(t *testing.T) {
	wd := t.TempDir()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	conf, path, err := MergeConfigFileWithFlags("", config.Config{}, config.FillOptions{
		WorkingDirectory: wd,
		Now:              now,
	})
	require.NoError(t, err)

	processed := filepath.Join(wd, "processed")
	assert.Equal(t, filepath.Join(processed, "filled_config_3-2024.yaml"), path)
	assert.Equal(t, filepath.Join(wd, "raw"), conf.Crystallography.RawDirectory)
	assert.Equal(t, processed, conf.Crystallography.ProcessedDirectory)
	assert.Equal(t, filepath.Join(processed, "templates", "XDS.INP"), conf.Crystallography.XDSTemplate)
	assert.FileExists(t, conf.Crystallography.XDSTemplate)
}

func TestMergeConfigFileWithFlagsMissingFile(t *testing.T) {
	_, _, err := MergeConfigFileWithFlags(filepath.Join(t.TempDir(), "nope.yaml"), config.Config{}, config.FillOptions{})
	assert.Error(t, err)
}

func TestTempConfigFile(t *testing.T) {
	p, cleanup := TempConfigFile(config.DefaultConfig(), "c.yaml")
	assert.FileExists(t, p)
	cleanup()
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestNormalizeFlags(t *testing.T) {
	var conf config.Config
	var file string
	f := RunFlags(&conf, &file)
	f.SetNormalizeFunc(NormalizeFlags)

	err := f.Parse([]string{
		"--logger-level", "debug",
		"--dispatch_maxpendingjobs", "7",
		"--Templates-Dir", "/tpl",
		"--scan.interval", "5s",
		"-u", "bttest04",
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", conf.Logger.Level)
	assert.Equal(t, 7, conf.Dispatch.MaxPendingJobs)
	assert.Equal(t, "/tpl", conf.TemplatesDir)
	assert.Equal(t, config.Duration(5*time.Second), conf.Scan.Interval)
	assert.Equal(t, "bttest04", conf.User)
}
