package crystal

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Pilatus 6M geometry, used when an image header lacks dimensions.
const (
	DefaultFastPixels = 2462
	DefaultSlowPixels = 2526
	DefaultPixelSize  = 0.000172
)

// headerLimit bounds how much of an image is scanned for the text header.
const headerLimit = 64 << 10

// CBFHeader is the detector geometry read from a CBF image.
type CBFHeader struct {
	FastPixels float64
	SlowPixels float64
	// Pixel size in metres.
	PixelSize float64
}

var (
	binaryMarker = []byte{0x0c, 0x1a, 0x04, 0xd5}
	pixelSize    = regexp.MustCompile(`Pixel_size\s+([\deE.\-]+)\s*m\s*x\s*([\deE.\-]+)\s*m`)
)

// DefaultCBFHeader returns the Pilatus 6M geometry.
func DefaultCBFHeader() CBFHeader {
	return CBFHeader{
		FastPixels: DefaultFastPixels,
		SlowPixels: DefaultSlowPixels,
		PixelSize:  DefaultPixelSize,
	}
}

// ReadCBFHeader reads the detector geometry of the CBF image at path.
func ReadCBFHeader(path string) (CBFHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return CBFHeader{}, err
	}
	defer f.Close()
	return ParseCBFHeader(io.LimitReader(f, headerLimit))
}

// ParseCBFHeader scans the text part of a CBF image. Without both binary
// dimension entries the default geometry is returned; a missing pixel size
// keeps the default pixel size.
func ParseCBFHeader(r io.Reader) (CBFHeader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return CBFHeader{}, err
	}
	if i := bytes.Index(b, binaryMarker); i >= 0 {
		b = b[:i]
	}

	h := DefaultCBFHeader()
	var fast, slow float64
	var haveFast, haveSlow bool

	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		switch {
		case strings.HasPrefix(line, "X-Binary-Size-Fastest-Dimension:"):
			fast, haveFast = headerNumber(line)
		case strings.HasPrefix(line, "X-Binary-Size-Second-Dimension:"):
			slow, haveSlow = headerNumber(line)
		case strings.Contains(line, "Pixel_size"):
			if m := pixelSize.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					h.PixelSize = v
				}
			}
		}
	}
	if !haveFast || !haveSlow {
		return DefaultCBFHeader(), nil
	}
	h.FastPixels = fast
	h.SlowPixels = slow
	return h, nil
}

func headerNumber(line string) (float64, bool) {
	i := strings.Index(line, ":")
	v, err := strconv.ParseFloat(strings.TrimSpace(line[i+1:]), 64)
	return v, err == nil
}
