// Package info reads the per-folder acquisition descriptor, info.txt.
//
// The descriptor is line oriented. The first line names the acquisition
// method; every other line is "label: value". Lookups never fail: a missing
// file, a missing label or an unparsable value yield the caller's fallback.
package info

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/beamline/autoproc/util/fsutil"
)

// FileName is the descriptor's name inside a raw data folder.
const FileName = "info.txt"

// Acquisition methods with dedicated pipelines.
const (
	MethodRotational = "rotational"
	MethodGridStep   = "grid step"
)

// Common descriptor labels.
const (
	KeyDistance          = "distance"
	KeyORGX              = "ORGX"
	KeyORGY              = "ORGY"
	KeyFrames            = "frames"
	KeyFramesPerPosition = "frames/position"
	KeyStartAngle        = "start angle"
	KeyDegreesPerFrame   = "degrees/frame"
	KeyWavelength        = "wavelength"
	KeyIndexingMethod    = "indexing_method"
)

var number = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?`)

type entry struct {
	label string
	value string
}

// Descriptor is a parsed info.txt. The zero value is an empty descriptor.
type Descriptor struct {
	Path    string
	method  string
	entries []entry
}

// Load reads the descriptor of folder. It never fails: an absent, empty or
// unreadable file results in an empty descriptor.
func Load(folder string) *Descriptor {
	p := filepath.Join(folder, FileName)
	b, err := os.ReadFile(p)
	if err != nil {
		return &Descriptor{Path: p}
	}
	d := Parse(string(b))
	d.Path = p
	return d
}

// Parse parses descriptor text.
func Parse(text string) *Descriptor {
	d := &Descriptor{}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i == 0 {
			// "method: rotational" and a bare "rotational" are both seen
			d.method = strings.TrimSpace(line)
			if j := strings.LastIndex(line, ":"); j >= 0 {
				d.method = strings.TrimSpace(line[j+1:])
			}
			continue
		}
		j := strings.Index(line, ":")
		if j < 0 {
			continue
		}
		d.entries = append(d.entries, entry{
			label: strings.TrimSpace(line[:j]),
			value: strings.TrimSpace(line[j+1:]),
		})
	}
	return d
}

// Empty reports whether the descriptor carries no information.
func (d *Descriptor) Empty() bool {
	return d == nil || (d.method == "" && len(d.entries) == 0)
}

// Method returns the acquisition method named on the first line.
func (d *Descriptor) Method() string {
	if d == nil {
		return ""
	}
	return d.method
}

// FramesPerPosition returns the "frames/position" value, or 1.
func (d *Descriptor) FramesPerPosition() int {
	return d.Int(KeyFramesPerPosition, 1)
}

// String returns the trimmed text after the first ":" on the line labelled
// key, or fallback.
func (d *Descriptor) String(key, fallback string) string {
	if v, ok := d.lookup(key); ok {
		return v
	}
	return fallback
}

// Number returns the first number found in the value labelled key, or
// fallback. Scientific notation is accepted.
func (d *Descriptor) Number(key string, fallback float64) float64 {
	v, ok := d.lookup(key)
	if !ok {
		return fallback
	}
	m := number.FindString(v)
	if m == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Int is Number truncated towards zero.
func (d *Descriptor) Int(key string, fallback int) int {
	v, ok := d.lookup(key)
	if !ok {
		return fallback
	}
	m := number.FindString(v)
	if m == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return fallback
	}
	return int(f)
}

func (d *Descriptor) lookup(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, e := range d.entries {
		if strings.EqualFold(e.label, key) {
			return e.value, true
		}
	}
	return "", false
}

// Eligible reports whether folder is ready for processing: it holds a
// non-empty descriptor and more than one regular file.
func Eligible(folder string) bool {
	if fsutil.FileSize(filepath.Join(folder, FileName)) == 0 {
		return false
	}
	files, err := fsutil.ListFiles(folder)
	if err != nil {
		return false
	}
	return len(files) > 1
}
