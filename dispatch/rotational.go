package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/template"
	"github.com/beamline/autoproc/templates"
	"github.com/beamline/autoproc/util/fsutil"
	"github.com/kballard/go-shellquote"
)

var frameNumber = regexp.MustCompile(`\d+(\.[^.]*)$`)

// FrameTemplate turns a data file name into the XDS name template of its
// frames: "x_master.h5" becomes "x_??????.h5", "x_00001.cbf" becomes
// "x_?????.cbf".
func FrameTemplate(path string) string {
	dir, base := filepath.Split(path)
	if strings.Contains(base, "_master.") {
		return dir + strings.Replace(base, "_master.", "_??????.", 1)
	}
	loc := frameNumber.FindStringSubmatchIndex(base)
	if loc == nil {
		return path
	}
	digits := loc[2] - loc[0]
	return dir + base[:loc[0]] + strings.Repeat("?", digits) + base[loc[2]:]
}

// isRotationalData matches HDF5/CXI master files and CBF frames.
func isRotationalData(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".h5", ".cxi":
		return strings.Contains(name, "master")
	case ".cbf":
		return true
	}
	return false
}

// rotational renders xds/XDS.INP and submits an XDS job plus an autoPROC
// job on the unrestricted pool.
func (d *Dispatcher) rotational(ctx context.Context, job *folderJob) (bool, error) {
	files, err := fsutil.ListFiles(job.rec.Folder)
	if err != nil {
		return false, err
	}
	var first string
	for _, f := range files {
		if isRotationalData(f.Rel) {
			first = f.Abs
			break
		}
	}
	if first == "" {
		job.log.Info("No data frames found")
		return false, nil
	}

	c := d.Conf.Crystallography
	p := NewParams(job.rec.Folder, job.desc, c, job.log)
	p.FrameTemplate = FrameTemplate(first)
	job.log.Info("Template for data frames", "template", p.FrameTemplate)

	xdsDir := filepath.Join(job.rec.Dir, "xds")
	if err := fsutil.EnsureDir(xdsDir); err != nil {
		return false, err
	}
	text, err := templates.Load(c.XDSTemplate, templates.XDS)
	if err != nil {
		return false, err
	}
	if err := template.RenderFile(filepath.Join(xdsDir, "XDS.INP"), text, p.XDSValues(), template.PassThrough); err != nil {
		return false, err
	}

	pool := d.Conf.Slurm.Pool.Rotational
	err = d.submit(ctx, job, compute.JobSpec{
		Name:          filepath.Base(xdsDir),
		Dir:           xdsDir,
		Base:          filepath.Base(xdsDir) + "_XDS",
		Setup:         d.Conf.Slurm.Setup,
		Commands:      []string{cd(xdsDir), c.RotationalCommand},
		PoolPartition: pool.Partition,
		PoolTime:      time.Duration(pool.Time),
	})
	if err != nil {
		return false, err
	}

	procDir := filepath.Join(job.rec.Dir, "autoPROC_"+d.now().Format("20060102-150405"))
	if err := fsutil.EnsureDir(procDir); err != nil {
		return false, err
	}
	name := filepath.Base(procDir)
	err = d.submit(ctx, job, compute.JobSpec{
		Name:  name,
		Dir:   procDir,
		Base:  name + "_XDS",
		Setup: d.Conf.Slurm.Setup,
		Commands: []string{
			cd(procDir),
			shellquote.Join(c.AutoPROCCommand, "-d", filepath.Join(procDir, "autoPROC"), "-I", job.rec.Folder),
		},
		PoolPartition: pool.Partition,
		PoolTime:      time.Duration(pool.Time),
		PoolOnly:      true,
	})
	if err != nil {
		return false, err
	}

	if err := job.rec.SetFlag(); err != nil {
		return true, fmt.Errorf("setting flag: %w", err)
	}
	return true, nil
}

func cd(dir string) string {
	return "cd " + shellquote.Join(dir)
}
