package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/beamline/autoproc/compute"
	"github.com/beamline/autoproc/info"
	"github.com/beamline/autoproc/template"
	"github.com/beamline/autoproc/templates"
	"github.com/beamline/autoproc/util/fsutil"
	"github.com/kballard/go-shellquote"
)

// Layout of a serial output directory.
const (
	GeometryFile = "geometry.geom"
	StreamDir    = "streams"
	ErrorDir     = "error"
	JoinedDir    = "j_stream"
)

// FrameIndex returns the frame number of a serial data file: the last
// "_" separated field of the name before its first dot.
func FrameIndex(path string) (int, bool) {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndex(base, "_"); i >= 0 {
		base = base[i+1:]
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SplitLines splits lines into parts of at most n lines.
func SplitLines(lines []string, n int) [][]string {
	if n <= 0 {
		n = len(lines)
	}
	var parts [][]string
	for len(lines) > n {
		parts = append(parts, lines[:n])
		lines = lines[n:]
	}
	if len(lines) > 0 {
		parts = append(parts, lines)
	}
	return parts
}

// serialChunk holds the data files of one range of frames.
type serialChunk struct {
	iteration  int
	start, end int
	cbf, h5    []string
}

// serial renders the CrystFEL geometry and submits one indexamajig job per
// part of every chunk of frames.
func (d *Dispatcher) serial(ctx context.Context, job *folderJob) (bool, error) {
	c := d.Conf.Crystallography
	dir := job.rec.Dir
	for _, sub := range []string{StreamDir, ErrorDir, JoinedDir} {
		if err := fsutil.EnsureDir(filepath.Join(dir, sub)); err != nil {
			return false, err
		}
	}

	p := NewParams(job.rec.Folder, job.desc, c, job.log)
	if c.CellFile != "" {
		p.CellFile = c.CellFile
	}
	text, err := templates.Load(c.GeometryTemplate, templates.Geometry)
	if err != nil {
		return false, err
	}
	values := p.GeometryValues(c.DataH5Path)
	if _, ok := values["PHOTON_ENERGY"]; !ok {
		job.log.Warn("No wavelength in descriptor, photon energy left unset")
	}
	if err := template.RenderFile(filepath.Join(dir, GeometryFile), text, values, template.PassThrough); err != nil {
		return false, err
	}

	method := job.desc.String(info.KeyIndexingMethod, c.Serial.IndexingMethod)
	if method == "" {
		job.log.Info("No indexing method, hit finding only")
		method = "none"
	}
	job.log.Info("Serial parameters", "indexing", method, "cell", p.CellFile, "frames", p.Frames)

	files, err := fsutil.ListFiles(job.rec.Folder)
	if err != nil {
		return false, err
	}

	part := 0
	for it, start := 0, 0; start < p.Frames; it, start = it+1, start+c.Serial.ChunkSize {
		end := start + c.Serial.ChunkSize
		if end > p.Frames {
			end = p.Frames
		}
		chunk := selectChunk(files, it, start, end)
		if len(chunk.cbf) == 0 && len(chunk.h5) == 0 {
			job.log.Debug("No data files for frames", "start", start, "end", end)
			continue
		}
		n, err := d.serialChunk(ctx, job, chunk, p.CellFile, method, part)
		if err != nil {
			return false, fmt.Errorf("frames %d-%d: %w", start, end, err)
		}
		part += n
	}
	if part == 0 {
		job.log.Info("No .h5 or .cbf files found")
		return false, nil
	}

	if err := job.rec.SetFlag(); err != nil {
		return true, fmt.Errorf("setting flag: %w", err)
	}
	return true, nil
}

func selectChunk(files []fsutil.File, iteration, start, end int) serialChunk {
	chunk := serialChunk{iteration: iteration, start: start, end: end}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Rel))
		if ext != ".cbf" && ext != ".h5" {
			continue
		}
		n, ok := FrameIndex(f.Rel)
		if !ok || n < start || n >= end {
			continue
		}
		if ext == ".cbf" {
			chunk.cbf = append(chunk.cbf, f.Abs)
		} else {
			chunk.h5 = append(chunk.h5, f.Abs)
		}
	}
	return chunk
}

// serialChunk writes the chunk's file lists and submits its jobs. Parts
// are numbered from firstPart on; the number of submitted parts is
// returned.
func (d *Dispatcher) serialChunk(ctx context.Context, job *folderJob, chunk serialChunk, cell, method string, firstPart int) (int, error) {
	dir := job.rec.Dir
	listCBF := filepath.Join(dir, fmt.Sprintf("list_cbf_%d.lst", chunk.iteration))
	listH5 := filepath.Join(dir, fmt.Sprintf("list_h5_%d.lst", chunk.iteration))
	if err := writeList(listCBF, chunk.cbf); err != nil {
		return 0, err
	}
	if err := writeList(listH5, chunk.h5); err != nil {
		return 0, err
	}

	// CBF data wins when both kinds are present.
	lines, hdf5 := chunk.cbf, false
	if len(lines) == 0 {
		lines, hdf5 = chunk.h5, true
	}
	if err := d.wait(ctx, lines[len(lines)-1]); err != nil {
		return 0, err
	}

	s := d.Conf.Crystallography.Serial
	name1 := filepath.Base(dir)
	pool := d.Conf.Slurm.Pool.Serial
	parts := SplitLines(lines, s.SplitLines)
	for i, list := range parts {
		suffix := fmt.Sprintf("%03d", firstPart+i)
		name := name1 + suffix
		events := fmt.Sprintf("events-%s.lst%s", name1, suffix)

		commands := []string{cd(dir)}
		if hdf5 {
			files := fmt.Sprintf("files-%s.lst%s", name1, suffix)
			if err := writeList(filepath.Join(dir, files), list); err != nil {
				return i, err
			}
			commands = append(commands, shellquote.Join("list_events", "-i", files, "-g", GeometryFile, "-o", events))
		} else if err := writeList(filepath.Join(dir, events), list); err != nil {
			return i, err
		}

		stream := filepath.Join(StreamDir, fmt.Sprintf("%s.stream%s", name1, suffix))
		args := []string{"indexamajig", "-i", events, "-o", stream, "-j", strconv.Itoa(s.Threads), "-g", GeometryFile}
		args = append(args, s.Options...)
		args = append(args, "--indexing="+method, "--no-check-cell", "--multi")
		if cell != "" {
			args = append(args, "-p", cell)
		}
		commands = append(commands,
			shellquote.Join(args...),
			shellquote.Join("touch", name+".done"),
		)

		job.log.Info("Submitting part", "list", events, "stream", stream, "lines", len(list))
		err := d.submit(ctx, job, compute.JobSpec{
			Name:          name,
			Dir:           dir,
			Output:        filepath.Join(dir, ErrorDir, name+"_serial.out"),
			Error:         filepath.Join(dir, ErrorDir, name+"_serial.err"),
			Setup:         d.Conf.Slurm.SerialSetup,
			Commands:      commands,
			PoolPartition: pool.Partition,
			PoolTime:      time.Duration(pool.Time),
		})
		if err != nil {
			return i, err
		}
	}
	return len(parts), nil
}

func writeList(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return fsutil.WriteFile(path, []byte(b.String()), 0664)
}
