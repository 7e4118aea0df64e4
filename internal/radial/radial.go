// Package radial reduces diffraction patterns to 1D azimuthal profiles using
// a flat-detector geometry model.
package radial

import (
	"math"
	"runtime"

	"crystal-mapper/internal/dataset"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Geometry models the detector relative to the sample.
type Geometry struct {
	// OriginX, OriginY is the pattern center on the detector in pixels.
	OriginX float64 `json:"origin_x" toml:"origin_x"`
	OriginY float64 `json:"origin_y" toml:"origin_y"`

	// PixelSize is the physical detector pixel edge (m).
	PixelSize float64 `json:"pixel_size" toml:"pixel_size"`

	// Distance is the sample-to-detector distance (m).
	Distance float64 `json:"distance" toml:"distance"`

	// Wavelength is the electron wavelength (Å).
	Wavelength float64 `json:"wavelength" toml:"wavelength"`
}

// Validate checks the geometry is physically usable.
func (g Geometry) Validate() error {
	if g.PixelSize <= 0 || g.Distance <= 0 || g.Wavelength <= 0 {
		return errors.Errorf("non-positive geometry: pixel %v, distance %v, wavelength %v",
			g.PixelSize, g.Distance, g.Wavelength)
	}
	return nil
}

// TwoTheta returns the scattering angle for a radial distance in pixels.
func (g Geometry) TwoTheta(rPixels float64) float64 {
	return math.Atan2(rPixels*g.PixelSize, g.Distance)
}

// Q returns the scattering-vector magnitude (Å⁻¹) at a pixel radius:
// q = 4π sin(θ)/λ.
func (g Geometry) Q(rPixels float64) float64 {
	return 4 * math.Pi * math.Sin(g.TwoTheta(rPixels)/2) / g.Wavelength
}

// Profile is a 1D radial intensity profile. Q holds bin centers, Intensity
// the mean counts of the pixels falling in each bin.
type Profile struct {
	Q         []float64
	Intensity []float64
}

// Integrate bins one detector frame azimuthally around the geometry origin
// into the given number of equal-width q bins spanning the detector.
func Integrate(frame []float32, width, height int, geom Geometry, bins int) (Profile, error) {
	if err := geom.Validate(); err != nil {
		return Profile{}, err
	}
	if bins < 1 {
		return Profile{}, errors.Errorf("bin count %d must be positive", bins)
	}
	if len(frame) != width*height {
		return Profile{}, errors.Errorf("frame has %d pixels for shape %dx%d",
			len(frame), width, height)
	}

	qMax := geom.Q(maxRadius(width, height, geom.OriginX, geom.OriginY))
	if qMax <= 0 {
		return Profile{}, errors.New("degenerate geometry: zero q range")
	}
	binWidth := qMax / float64(bins)

	sums := make([]float64, bins)
	counts := make([]int, bins)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := math.Hypot(float64(x)-geom.OriginX, float64(y)-geom.OriginY)
			b := int(geom.Q(r) / binWidth)
			if b >= bins {
				b = bins - 1
			}
			sums[b] += float64(frame[y*width+x])
			counts[b]++
		}
	}

	profile := Profile{
		Q:         make([]float64, bins),
		Intensity: make([]float64, bins),
	}
	for b := 0; b < bins; b++ {
		profile.Q[b] = (float64(b) + 0.5) * binWidth
		if counts[b] > 0 {
			profile.Intensity[b] = sums[b] / float64(counts[b])
		}
	}
	return profile, nil
}

// IntegrateStack maps Integrate over every scan position, in parallel.
// Profiles come back indexed by flat scan position.
func IntegrateStack(stack *dataset.Stack, geom Geometry, bins, workers int) ([]Profile, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	profiles := make([]Profile, stack.Positions())

	var g errgroup.Group
	g.SetLimit(workers)
	for pos := 0; pos < stack.Positions(); pos++ {
		pos := pos
		g.Go(func() error {
			p, err := Integrate(stack.PatternAt(pos), stack.DetWidth, stack.DetHeight, geom, bins)
			if err != nil {
				return errors.Wrapf(err, "scan position %d", pos)
			}
			profiles[pos] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// maxRadius returns the distance from the origin to the farthest detector
// corner.
func maxRadius(width, height int, ox, oy float64) float64 {
	var r float64
	for _, cx := range []float64{0, float64(width - 1)} {
		for _, cy := range []float64{0, float64(height - 1)} {
			if d := math.Hypot(cx-ox, cy-oy); d > r {
				r = d
			}
		}
	}
	return r
}
