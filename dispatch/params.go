package dispatch

import (
	"fmt"

	"github.com/beamline/autoproc/config"
	"github.com/beamline/autoproc/crystal"
	"github.com/beamline/autoproc/info"
	"github.com/beamline/autoproc/logger"
	"github.com/beamline/autoproc/template"
)

// Params are the values a pipeline renders into its parameter files.
// They are derived fresh for every folder.
type Params struct {
	// Detector distance in mm, with the configured offset applied.
	DetectorDistance float64
	// Beam centre in pixels.
	ORGX float64
	ORGY float64
	// Wavelength in Ångström.
	Wavelength  float64
	Oscillation float64
	StartAngle  float64
	Frames      int
	// XDS name template of the data frames.
	FrameTemplate string
	// Path of the unit cell file, "" when none was found.
	CellFile string
	Cell     *crystal.UnitCell
}

// NewParams derives the parameters of folder from its descriptor and the
// configuration. The cell file is looked up next to the data.
func NewParams(folder string, d *info.Descriptor, c config.Crystallography, log *logger.Logger) Params {
	p := Params{
		DetectorDistance: d.Number(info.KeyDistance, 0) + c.DistanceOffset,
		ORGX:             c.ORGX,
		ORGY:             c.ORGY,
		Wavelength:       d.Number(info.KeyWavelength, 0),
		Oscillation:      d.Number(info.KeyDegreesPerFrame, 0),
		StartAngle:       d.Number(info.KeyStartAngle, 0),
		Frames:           d.Int(info.KeyFrames, 1),
	}
	if p.ORGX == 0 {
		p.ORGX = d.Number(info.KeyORGX, 0)
	}
	if p.ORGY == 0 {
		p.ORGY = d.Number(info.KeyORGY, 0)
	}

	p.CellFile = crystal.FindCellFile(folder)
	if p.CellFile != "" {
		cell, err := crystal.ReadCellFile(p.CellFile)
		if err != nil {
			log.Warn("Ignoring unreadable cell file", "path", p.CellFile, "error", err)
		}
		p.Cell = cell
	}
	return p
}

// SpaceGroup renders the XDS space group directive.
func (p Params) SpaceGroup() string {
	return template.Directive("SPACE_GROUP_NUMBER", p.Cell.SpaceGroupNumber())
}

// UnitCellConstants renders the XDS unit cell directive.
func (p Params) UnitCellConstants() string {
	return template.Directive("UNIT_CELL_CONSTANTS", p.Cell.Constants())
}

// XDSValues maps the placeholders of the rotational XDS.INP template.
func (p Params) XDSValues() template.Values {
	return template.Values{
		"ORGX":                         p.ORGX,
		"ORGY":                         p.ORGY,
		"DETECTOR_DISTANCE":            p.DetectorDistance,
		"OSCILLATION_RANGE":            p.Oscillation,
		"STARTING_ANGLE":               p.StartAngle,
		"WAVELENGTH":                   p.Wavelength,
		"NAME_TEMPLATE_OF_DATA_FRAMES": p.FrameTemplate,
		"NFRAMES":                      p.Frames,
		"SPACE_GROUP_NUMBER":           p.SpaceGroup(),
		"UNIT_CELL_CONSTANTS":          p.UnitCellConstants(),
	}
}

// GeometryValues maps the placeholders of the CrystFEL geometry template:
// distance in metres, negated beam centre and photon energy in eV.
func (p Params) GeometryValues(dataH5Path string) template.Values {
	v := template.Values{
		"DETECTOR_DISTANCE": p.DetectorDistance / 1000,
		"ORGX":              negate(p.ORGX),
		"ORGY":              negate(p.ORGY),
		"data_h5path":       dataH5Path,
	}
	if p.Wavelength > 0 {
		v["PHOTON_ENERGY"] = 12400 / p.Wavelength
	}
	return v
}

// ResolutionRange returns the XDS resolution range for frames with the
// given detector header. Without distance or wavelength the high
// resolution limit is left open.
func (p Params) ResolutionRange(h crystal.CBFHeader) string {
	if p.Wavelength <= 0 || p.DetectorDistance <= 0 {
		return "50.0 0.0"
	}
	return fmt.Sprintf("50.0 %.2f", crystal.HighResolution(p.DetectorDistance, p.Wavelength, h))
}

// negate avoids rendering an unset beam centre as "-0".
func negate(x float64) float64 {
	if x == 0 {
		return 0
	}
	return -x
}
