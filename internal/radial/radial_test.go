package radial

import (
	"math"
	"testing"

	"crystal-mapper/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry() Geometry {
	return Geometry{
		OriginX:    8,
		OriginY:    8,
		PixelSize:  55e-6,
		Distance:   0.25,
		Wavelength: 0.0251, // 200 kV electrons
	}
}

func TestGeometryQMonotonic(t *testing.T) {
	geom := testGeometry()
	require.NoError(t, geom.Validate())

	assert.Zero(t, geom.Q(0))
	prev := 0.0
	for r := 1.0; r <= 64; r++ {
		q := geom.Q(r)
		assert.Greater(t, q, prev, "q grows with radius")
		prev = q
	}
}

func TestIntegrateUniformFrame(t *testing.T) {
	const w, h = 17, 17
	frame := make([]float32, w*h)
	for i := range frame {
		frame[i] = 3
	}

	profile, err := Integrate(frame, w, h, testGeometry(), 8)
	require.NoError(t, err)
	require.Len(t, profile.Q, 8)

	// Every populated bin of a uniform frame averages to the frame value.
	populated := 0
	for b := range profile.Intensity {
		if profile.Intensity[b] != 0 {
			assert.InDelta(t, 3, profile.Intensity[b], 1e-9)
			populated++
		}
	}
	assert.Greater(t, populated, 4)
}

func TestIntegrateRing(t *testing.T) {
	// A bright ring at radius ~5 px around the origin peaks in exactly the
	// bins covering that radius.
	const w, h = 17, 17
	geom := testGeometry()
	frame := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := math.Hypot(float64(x)-geom.OriginX, float64(y)-geom.OriginY)
			if r >= 4.5 && r <= 5.5 {
				frame[y*w+x] = 100
			}
		}
	}

	const bins = 16
	profile, err := Integrate(frame, w, h, geom, bins)
	require.NoError(t, err)

	qMax := geom.Q(maxRadius(w, h, geom.OriginX, geom.OriginY))
	ringBin := int(geom.Q(5) / (qMax / bins))

	best := 0
	for b := range profile.Intensity {
		if profile.Intensity[b] > profile.Intensity[best] {
			best = b
		}
	}
	assert.InDelta(t, ringBin, best, 1, "peak lands at the ring radius")
}

func TestIntegrateErrors(t *testing.T) {
	frame := make([]float32, 16)

	_, err := Integrate(frame, 4, 4, Geometry{}, 4)
	assert.Error(t, err, "invalid geometry")

	_, err = Integrate(frame, 4, 4, testGeometry(), 0)
	assert.Error(t, err, "zero bins")

	_, err = Integrate(frame, 5, 4, testGeometry(), 4)
	assert.Error(t, err, "shape mismatch")
}

func TestIntegrateStack(t *testing.T) {
	stack := dataset.NewStack(2, 2, 8, 8)
	for pos := 0; pos < 4; pos++ {
		frame := stack.PatternAt(pos)
		for i := range frame {
			frame[i] = float32(pos + 1)
		}
	}
	geom := testGeometry()
	geom.OriginX, geom.OriginY = 3.5, 3.5

	profiles, err := IntegrateStack(stack, geom, 6, 2)
	require.NoError(t, err)
	require.Len(t, profiles, 4)

	// Each position's uniform frame integrates to its own constant.
	for pos, p := range profiles {
		for b := range p.Intensity {
			if p.Intensity[b] != 0 {
				assert.InDelta(t, float64(pos+1), p.Intensity[b], 1e-9)
			}
		}
	}
}
