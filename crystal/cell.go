// Package crystal reads the crystallographic inputs that parameterize
// processing: unit cells, space groups and CBF image headers.
package crystal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// UnitCell holds cell constants in Ångström and degrees, plus the space
// group number when known (zero otherwise).
type UnitCell struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64
	SpaceGroup         int
}

// Constants formats the six cell constants as XDS expects them.
func (u *UnitCell) Constants() string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%.2f %.2f %.2f %.2f %.2f %.2f", u.A, u.B, u.C, u.Alpha, u.Beta, u.Gamma)
}

// SpaceGroupNumber returns the space group as text, or "" when unknown.
func (u *UnitCell) SpaceGroupNumber() string {
	if u == nil || u.SpaceGroup == 0 {
		return ""
	}
	return strconv.Itoa(u.SpaceGroup)
}

// FindCellFile returns the first *.cell file in dir, else the first *.pdb
// file, else "".
func FindCellFile(dir string) string {
	for _, ext := range []string{"*.cell", "*.pdb"} {
		matches, _ := filepath.Glob(filepath.Join(dir, ext))
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0]
		}
	}
	return ""
}

// ReadCellFile parses a CrystFEL unit cell file (*.cell) or the CRYST1
// record of a PDB file, chosen by extension.
func ReadCellFile(path string) (*UnitCell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var u *UnitCell
	if strings.EqualFold(filepath.Ext(path), ".pdb") {
		u, err = parsePDB(bufio.NewScanner(f))
	} else {
		u, err = parseCrystFEL(bufio.NewScanner(f))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

var cellValue = regexp.MustCompile(`^([a-z_]+)\s*=\s*(\S+)`)

func parseCrystFEL(s *bufio.Scanner) (*UnitCell, error) {
	vals := map[string]string{}
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if m := cellValue.FindStringSubmatch(line); m != nil {
			vals[m[1]] = m[2]
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	u := &UnitCell{}
	keys := []string{"a", "b", "c", "al", "be", "ga"}
	dsts := []*float64{&u.A, &u.B, &u.C, &u.Alpha, &u.Beta, &u.Gamma}
	for i, key := range keys {
		v, ok := vals[key]
		if !ok {
			return nil, fmt.Errorf("missing %q", key)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %q: %w", key, err)
		}
		*dsts[i] = f
	}
	u.SpaceGroup = LatticeSpaceGroup(vals["lattice_type"], vals["centering"])
	return u, nil
}

func parsePDB(s *bufio.Scanner) (*UnitCell, error) {
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "CRYST1") {
			continue
		}
		return parseCRYST1(line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no CRYST1 record")
}

// parseCRYST1 reads the fixed-column CRYST1 record.
func parseCRYST1(line string) (*UnitCell, error) {
	col := func(from, to int) string {
		if from >= len(line) {
			return ""
		}
		if to > len(line) {
			to = len(line)
		}
		return strings.TrimSpace(line[from:to])
	}

	u := &UnitCell{}
	fields := []struct {
		from, to int
		dst      *float64
	}{
		{6, 15, &u.A}, {15, 24, &u.B}, {24, 33, &u.C},
		{33, 40, &u.Alpha}, {40, 47, &u.Beta}, {47, 54, &u.Gamma},
	}
	for _, fld := range fields {
		f, err := strconv.ParseFloat(col(fld.from, fld.to), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CRYST1 record: %w", err)
		}
		*fld.dst = f
	}
	u.SpaceGroup = SpaceGroupNumber(col(55, 66))
	return u, nil
}
