package dispatch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/beamline/autoproc/util/fsutil"
)

var wedgeFrame = regexp.MustCompile(`^(.*)_(\d{6})_(\d{5})\.cbf$`)

// Position is one grid position of a wedge scan.
type Position struct {
	Index int
	// Zero padded index, used as directory name.
	Label string
	// XDS name template of the position's frames.
	Template string
	First    int
	Last     int
}

// FrameFile returns the path of frame n of the position.
func (p Position) FrameFile(n int) string {
	dir, base := filepath.Split(p.Template)
	m := wedgeTemplate.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%05d.cbf", m[1], m[2], n))
}

var wedgeTemplate = regexp.MustCompile(`^(.*)_(\d{6})_\?{5}\.cbf$`)

// GroupByPosition groups the wedge frames in folder, named
// "<prefix>_<position:6>_<frame:5>.cbf", by position. Positions are
// returned in ascending order.
func GroupByPosition(folder string) ([]Position, error) {
	files, err := fsutil.ListFiles(folder)
	if err != nil {
		return nil, err
	}
	return groupFiles(folder, files), nil
}

func groupFiles(folder string, files []fsutil.File) []Position {
	byIndex := map[int]*Position{}
	for _, f := range files {
		m := wedgeFrame.FindStringSubmatch(f.Rel)
		if m == nil {
			continue
		}
		pos, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		frame, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		p, ok := byIndex[pos]
		if !ok {
			p = &Position{
				Index:    pos,
				Label:    fmt.Sprintf("%06d", pos),
				Template: filepath.Join(folder, fmt.Sprintf("%s_%s_?????.cbf", m[1], m[2])),
				First:    frame,
				Last:     frame,
			}
			byIndex[pos] = p
		}
		if frame < p.First {
			p.First = frame
		}
		if frame > p.Last {
			p.Last = frame
		}
	}

	out := make([]Position, 0, len(byIndex))
	for _, p := range byIndex {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
