package project

import (
	"os"

	"crystal-mapper/internal/peaks"
	"crystal-mapper/internal/radial"
	"crystal-mapper/internal/segment"
	"crystal-mapper/internal/watershed"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Tuning gathers every pipeline parameter in one TOML-backed struct, so runs
// are reproducible from an experiment directory and nothing hides in
// hardcoded globals.
type Tuning struct {
	Peaks     PeakTuning           `toml:"peaks"`
	VDF       VDFTuning            `toml:"vdf"`
	Watershed watershed.Params     `toml:"watershed"`
	Merge     segment.Params       `toml:"merge"`
	Paired    segment.PairedParams `toml:"paired"`
	Radial    RadialTuning         `toml:"radial"`
}

// PeakTuning covers peak finding and the unique-vector reduction.
type PeakTuning struct {
	Maxima    peaks.MaximaParams `toml:"maxima"`
	Tolerance float64            `toml:"tolerance"` // unique-vector merge distance (Å⁻¹)
}

// VDFTuning covers virtual dark-field image generation.
type VDFTuning struct {
	DiskRadius float64 `toml:"disk_radius"` // integration disk radius (px)
}

// RadialTuning covers azimuthal integration.
type RadialTuning struct {
	Geometry radial.Geometry `toml:"geometry"`
	Bins     int             `toml:"bins"`
}

// DefaultTuning returns the defaults of every stage.
func DefaultTuning() Tuning {
	return Tuning{
		Peaks: PeakTuning{
			Maxima:    peaks.DefaultMaximaParams(),
			Tolerance: 0.01,
		},
		VDF: VDFTuning{
			DiskRadius: 3,
		},
		Watershed: watershed.DefaultParams(),
		Merge:     segment.DefaultParams(),
		Paired:    segment.DefaultPairedParams(),
		Radial: RadialTuning{
			Bins: 100,
		},
	}
}

// LoadTuning reads a TOML tuning file over the defaults, so partial files
// only override what they mention.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if _, err := toml.DecodeFile(path, &tuning); err != nil {
		return Tuning{}, errors.Wrap(err, "parsing tuning file")
	}
	return tuning, nil
}

// SaveTuning writes the tuning as TOML, typically to seed a new experiment
// directory with an editable parameter file.
func SaveTuning(tuning Tuning, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating tuning file")
	}
	defer f.Close()
	return errors.Wrap(toml.NewEncoder(f).Encode(tuning), "encoding tuning file")
}
