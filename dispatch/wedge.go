package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/crystal"
	"github.com/beamline/autoproc/template"
	"github.com/beamline/autoproc/templates"
	"github.com/beamline/autoproc/util/fsutil"
)

// ReferenceDataSet is picked up from the raw folder when present.
const ReferenceDataSet = "XDS_ASCII.HKL"

// RotationAxis returns the rotation axis of a grid position. Odd positions
// rotate backwards.
func RotationAxis(position int) string {
	if position%2 == 0 {
		return "1.0 0.0 0.0"
	}
	return "-1.0 0.0 0.0"
}

// wedge submits one two-pass XDS job per grid position.
func (d *Dispatcher) wedge(ctx context.Context, job *folderJob) (bool, error) {
	positions, err := GroupByPosition(job.rec.Folder)
	if err != nil {
		return false, err
	}
	if len(positions) == 0 {
		job.log.Info("No wedge frames found")
		return false, nil
	}
	job.log.Info("Grouped frames by position", "positions", len(positions))

	c := d.Conf.Crystallography
	text, err := templates.Load(c.XDSWedgesTemplate, templates.XDSWedges)
	if err != nil {
		return false, err
	}
	p := NewParams(job.rec.Folder, job.desc, c, job.log)

	reference := template.Disabled("REFERENCE_DATA_SET")
	if ref := filepath.Join(job.rec.Folder, ReferenceDataSet); fsutil.Exists(ref) {
		reference = ref
	}

	for _, pos := range positions {
		posDir := filepath.Join(job.rec.Dir, pos.Label)
		posRec := &Record{Folder: job.rec.Folder, Dir: posDir}
		if posRec.Flagged() && !d.Conf.Dispatch.Force {
			job.log.Debug("Position already submitted", "position", pos.Label)
			continue
		}
		if err := d.wedgePosition(ctx, job, p, pos, posDir, text, reference); err != nil {
			return false, fmt.Errorf("position %s: %w", pos.Label, err)
		}
		if err := posRec.SetFlag(); err != nil {
			return false, fmt.Errorf("position %s: setting flag: %w", pos.Label, err)
		}
	}

	if err := job.rec.SetFlag(); err != nil {
		return true, fmt.Errorf("setting flag: %w", err)
	}
	return true, nil
}

func (d *Dispatcher) wedgePosition(ctx context.Context, job *folderJob, p Params, pos Position, posDir, text, reference string) error {
	xdsDir := filepath.Join(posDir, "xds")
	if err := fsutil.EnsureDir(xdsDir); err != nil {
		return err
	}

	header := crystal.DefaultCBFHeader()
	frame := pos.FrameFile(pos.First)
	if err := d.wait(ctx, frame); err != nil {
		return err
	}
	h, err := crystal.ReadCBFHeader(frame)
	if err != nil {
		job.log.Warn("Unreadable CBF header, assuming Pilatus 6M", "frame", frame, "error", err)
	} else {
		header = h
	}

	p.FrameTemplate = pos.Template
	values := p.XDSValues()
	values["first_image_index"] = pos.First
	values["last_image_index"] = pos.Last
	values["REFERENCE_DATA_SET"] = reference
	values["INCLUDE_RESOLUTION_RANGE"] = p.ResolutionRange(header)
	values["ROTATION_AXIS"] = RotationAxis(pos.Index)
	if err := template.RenderFile(filepath.Join(xdsDir, "XDS.INP"), text, values, template.PassThrough); err != nil {
		return err
	}
	job.log.Info("Prepared position",
		"position", pos.Label,
		"first", pos.First,
		"last", pos.Last,
	)

	c := d.Conf.Crystallography
	settle := int(time.Duration(c.WedgeSettleTime) / time.Second)
	pool := d.Conf.Slurm.Pool.Wedge
	name := filepath.Base(xdsDir)
	return d.submit(ctx, job, compute.JobSpec{
		Name:  name,
		Dir:   xdsDir,
		Base:  name + "_XDS",
		Setup: d.Conf.Slurm.WedgeSetup,
		Commands: []string{
			cd(xdsDir),
			c.RotationalCommand,
			"sleep " + strconv.Itoa(settle),
			cd(xdsDir),
			"cp GXPARM.XDS XPARM.XDS",
			"cp XDS_ASCII.HKL XDS_ASCII.HKL_1",
			"mv CORRECT.LP CORRECT.LP_1",
			"sed -i 's/ JOB= XYCORR INIT/!JOB= XYCORR INIT/g' XDS.INP",
			"sed -i 's/!JOB= CORRECT/ JOB= DEFPIX INTEGRATE CORRECT/g' XDS.INP",
			c.RotationalCommand,
		},
		PoolPartition: pool.Partition,
		PoolTime:      time.Duration(pool.Time),
	})
}
