// Package peaks provides diffraction-peak types, detector-space peak finding
// and the unique-vector reduction used to drive virtual dark-field imaging.
package peaks

import (
	"encoding/json"
	"os"
	"sort"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/pkg/geometry"

	"github.com/pkg/errors"
)

// Vector is one reciprocal-space diffraction peak. ID is the stable
// source-vector identity that segments carry through correlation and merging.
type Vector struct {
	ID    int              `json:"id"`
	Pixel geometry.Point2D `json:"pixel"` // detector position in pixels
	K     geometry.Point2D `json:"k"`     // calibrated coordinates (Å⁻¹)
}

// Magnitude returns the scattering-vector magnitude |g|.
func (v Vector) Magnitude() float64 {
	return v.K.Norm()
}

// Finder locates peak candidates in a single detector-space image.
// Implementations wrap an external peak-detection routine; this package does
// not define its own detection algorithm.
type Finder interface {
	Find(frame []float64, width, height int) ([]geometry.Point2D, error)
}

// Calibrate converts detector-pixel peak positions into vectors using the
// beam center and pixel scale. IDs are assigned by input order.
func Calibrate(points []geometry.Point2D, calib dataset.Calibration) []Vector {
	out := make([]Vector, len(points))
	for i, p := range points {
		out[i] = Vector{
			ID:    i,
			Pixel: p,
			K: geometry.Point2D{
				X: (p.X - calib.CenterX) * calib.DetectorScale,
				Y: (p.Y - calib.CenterY) * calib.DetectorScale,
			},
		}
	}
	return out
}

// Unique reduces a vector list to one representative per cluster of peaks
// closer than tolerance in reciprocal space. Members average into the
// representative position. This is a greedy tolerance merge standing in for
// the density-based clustering of the reference workflow, which stays an
// external concern.
func Unique(vectors []Vector, tolerance float64) []Vector {
	if tolerance < 0 {
		tolerance = 0
	}

	type cluster struct {
		sumK  geometry.Point2D
		sumPx geometry.Point2D
		n     int
	}
	var clusters []*cluster
	for _, v := range vectors {
		var best *cluster
		for _, c := range clusters {
			rep := c.sumK.Scale(1 / float64(c.n))
			if rep.Distance(v.K) <= tolerance {
				best = c
				break
			}
		}
		if best == nil {
			clusters = append(clusters, &cluster{sumK: v.K, sumPx: v.Pixel, n: 1})
			continue
		}
		best.sumK = best.sumK.Add(v.K)
		best.sumPx = best.sumPx.Add(v.Pixel)
		best.n++
	}

	out := make([]Vector, len(clusters))
	for i, c := range clusters {
		inv := 1 / float64(c.n)
		out[i] = Vector{
			ID:    i,
			K:     c.sumK.Scale(inv),
			Pixel: c.sumPx.Scale(inv),
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Magnitude() < out[b].Magnitude()
	})
	for i := range out {
		out[i].ID = i
	}
	return out
}

// SaveVectors writes a vector list to a JSON file, the cached artifact an
// experiment keeps between runs.
func SaveVectors(vectors []Vector, path string) error {
	data, err := json.MarshalIndent(vectors, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing vector cache")
}

// LoadVectors reads a cached vector list.
func LoadVectors(path string) ([]Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading vector cache")
	}
	var vectors []Vector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, errors.Wrap(err, "parsing vector cache")
	}
	return vectors, nil
}
