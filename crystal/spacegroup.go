package crystal

import (
	"strings"
)

// Hermann-Mauguin symbols of the space groups proteins crystallize in,
// keyed without spaces.
var spaceGroups = map[string]int{
	"P1":  1,
	"P-1": 2,

	"P2":    3,
	"P121":  3,
	"P21":   4,
	"P1211": 4,
	"C2":    5,
	"C121":  5,
	"I2":    5,
	"I121":  5,

	"P222":    16,
	"P2221":   17,
	"P2122":   17,
	"P2212":   17,
	"P21212":  18,
	"P21221":  18,
	"P22121":  18,
	"P212121": 19,
	"C2221":   20,
	"C222":    21,
	"F222":    22,
	"I222":    23,
	"I212121": 24,

	"P4":     75,
	"P41":    76,
	"P42":    77,
	"P43":    78,
	"I4":     79,
	"I41":    80,
	"P422":   89,
	"P4212":  90,
	"P4122":  91,
	"P41212": 92,
	"P4222":  93,
	"P42212": 94,
	"P4322":  95,
	"P43212": 96,
	"I422":   97,
	"I4122":  98,

	"P3":    143,
	"P31":   144,
	"P32":   145,
	"R3":    146,
	"H3":    146,
	"P312":  149,
	"P321":  150,
	"P3112": 151,
	"P3121": 152,
	"P3212": 153,
	"P3221": 154,
	"R32":   155,
	"H32":   155,

	"P6":    168,
	"P61":   169,
	"P65":   170,
	"P62":   171,
	"P64":   172,
	"P63":   173,
	"P622":  177,
	"P6122": 178,
	"P6522": 179,
	"P6222": 180,
	"P6422": 181,
	"P6322": 182,

	"P23":   195,
	"F23":   196,
	"I23":   197,
	"P213":  198,
	"I213":  199,
	"P432":  207,
	"P4232": 208,
	"F432":  209,
	"F4132": 210,
	"I432":  211,
	"P4332": 212,
	"P4132": 213,
	"I4132": 214,
}

// SpaceGroupNumber returns the number of a Hermann-Mauguin symbol such as
// "P 21 21 21", or 0 when the symbol is unknown.
func SpaceGroupNumber(symbol string) int {
	key := strings.ToUpper(strings.Join(strings.Fields(symbol), ""))
	return spaceGroups[key]
}

// LatticeSpaceGroup returns the lowest-symmetry space group of a Bravais
// lattice given by CrystFEL lattice type and centering, or 0 when unknown.
func LatticeSpaceGroup(latticeType, centering string) int {
	c := strings.ToUpper(strings.TrimSpace(centering))
	switch strings.ToLower(strings.TrimSpace(latticeType)) {
	case "triclinic":
		return 1
	case "monoclinic":
		if c == "P" {
			return 3
		}
		return 5
	case "orthorhombic":
		switch c {
		case "P":
			return 16
		case "C", "A", "B":
			return 21
		case "I":
			return 23
		case "F":
			return 22
		}
	case "tetragonal":
		switch c {
		case "P":
			return 75
		case "I":
			return 79
		}
	case "rhombohedral":
		return 146
	case "hexagonal":
		if c == "H" || c == "R" {
			return 146
		}
		return 143
	case "cubic":
		switch c {
		case "P":
			return 195
		case "F":
			return 196
		case "I":
			return 197
		}
	}
	return 0
}
