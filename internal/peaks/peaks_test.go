package peaks

import (
	"path/filepath"
	"testing"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrate(t *testing.T) {
	calib := dataset.Calibration{
		DetectorScale: 0.01,
		CenterX:       64,
		CenterY:       64,
	}
	points := []geometry.Point2D{
		{X: 64, Y: 64},
		{X: 74, Y: 64},
		{X: 64, Y: 44},
	}

	vectors := Calibrate(points, calib)
	require.Len(t, vectors, 3)

	assert.Equal(t, 0, vectors[0].ID)
	assert.InDelta(t, 0, vectors[0].Magnitude(), 1e-12)
	assert.InDelta(t, 0.1, vectors[1].K.X, 1e-12)
	assert.InDelta(t, 0.1, vectors[1].Magnitude(), 1e-12)
	assert.InDelta(t, -0.2, vectors[2].K.Y, 1e-12)
}

func TestUnique(t *testing.T) {
	vectors := []Vector{
		{ID: 0, K: geometry.Point2D{X: 0.100, Y: 0}},
		{ID: 1, K: geometry.Point2D{X: 0.102, Y: 0}}, // within 0.01 of the first
		{ID: 2, K: geometry.Point2D{X: 0.300, Y: 0}},
		{ID: 3, K: geometry.Point2D{X: 0, Y: 0.050}},
	}

	unique := Unique(vectors, 0.01)
	require.Len(t, unique, 3)

	// Output is sorted by |g| and re-IDed sequentially.
	assert.Equal(t, 0, unique[0].ID)
	assert.InDelta(t, 0.05, unique[0].Magnitude(), 1e-9)
	assert.InDelta(t, 0.101, unique[1].K.X, 1e-9, "cluster members average")
	assert.InDelta(t, 0.3, unique[2].K.X, 1e-9)
}

func TestUniqueZeroTolerance(t *testing.T) {
	vectors := []Vector{
		{K: geometry.Point2D{X: 0.1, Y: 0}},
		{K: geometry.Point2D{X: 0.2, Y: 0}},
	}
	assert.Len(t, Unique(vectors, 0), 2)
}

func TestVectorCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	vectors := []Vector{
		{ID: 0, Pixel: geometry.Point2D{X: 10, Y: 12}, K: geometry.Point2D{X: 0.1, Y: 0.12}},
		{ID: 1, Pixel: geometry.Point2D{X: 40, Y: 2}, K: geometry.Point2D{X: 0.4, Y: 0.02}},
	}

	require.NoError(t, SaveVectors(vectors, path))
	loaded, err := LoadVectors(path)
	require.NoError(t, err)
	assert.Equal(t, vectors, loaded)
}

func TestMaximaFinder(t *testing.T) {
	// Two isolated bright spots on a dark frame, one low spot below the
	// intensity cutoff, one spot inside the excluded border.
	const w, h = 32, 32
	frame := make([]float64, w*h)
	frame[8*w+8] = 100
	frame[20*w+24] = 80
	frame[14*w+14] = 5  // below MinIntensity
	frame[1*w+16] = 100 // inside border exclusion

	finder := NewMaximaFinder(MaximaParams{
		MinDistance:   3,
		MinIntensity:  10,
		ExcludeBorder: 2,
	})
	found, err := finder.Find(frame, w, h)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.InDelta(t, 8, found[0].X, 1e-9)
	assert.InDelta(t, 8, found[0].Y, 1e-9)
	assert.InDelta(t, 24, found[1].X, 1e-9)
	assert.InDelta(t, 20, found[1].Y, 1e-9)
}
