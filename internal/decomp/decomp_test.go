package decomp

import (
	"testing"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/segment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rankTwoStack builds a 2x2 scan of 2x2 frames as the sum of two
// loading⊗factor outer products with orthogonal factors.
func rankTwoStack() *dataset.Stack {
	factorA := []float64{1, 0, 0, 1}
	factorB := []float64{0, 1, -1, 0}
	loadA := []float64{3, 0, 1, 0}
	loadB := []float64{0, 2, 0, 1}

	s := dataset.NewStack(2, 2, 2, 2)
	for pos := 0; pos < 4; pos++ {
		frame := s.PatternAt(pos)
		for i := range frame {
			frame[i] = float32(loadA[pos]*factorA[i] + loadB[pos]*factorB[i])
		}
	}
	return s
}

func TestSVDReconstructs(t *testing.T) {
	stack := rankTwoStack()

	components, err := SVD(stack, nil, 2)
	require.NoError(t, err)
	require.Len(t, components, 2)

	// Two components fully reconstruct a rank-2 stack.
	for pos := 0; pos < stack.Positions(); pos++ {
		frame := stack.PatternAt(pos)
		for i := range frame {
			var rec float64
			for _, c := range components {
				rec += c.Loading.Pixels[pos] * c.Factor.Pixels[i]
			}
			assert.InDelta(t, float64(frame[i]), rec, 1e-9, "pos %d pixel %d", pos, i)
		}
	}

	// Factor images live in detector space, loadings in scan space.
	assert.Equal(t, 2, components[0].Factor.Width)
	assert.Equal(t, 2, components[0].Loading.Width)
}

func TestSVDMask(t *testing.T) {
	stack := rankTwoStack()

	// Masking every pixel but one leaves a rank-1 problem; the second
	// singular component carries nothing.
	mask := []bool{true, false, false, false}
	components, err := SVD(stack, mask, 2)
	require.NoError(t, err)

	for i := range components[1].Factor.Pixels {
		assert.InDelta(t, 0, components[1].Loading.Pixels[i], 1e-9)
	}
}

func TestSVDErrors(t *testing.T) {
	stack := rankTwoStack()

	_, err := SVD(stack, nil, 0)
	assert.Error(t, err)
	_, err = SVD(stack, nil, 100)
	assert.Error(t, err)
	_, err = SVD(stack, []bool{true}, 1)
	assert.Error(t, err)
}

func TestFactorsLoadings(t *testing.T) {
	components := []Component{
		{Factor: segment.New(2, 2), Loading: segment.New(3, 3)},
		{Factor: segment.New(2, 2), Loading: segment.New(3, 3)},
	}
	assert.Len(t, Factors(components), 2)
	assert.Equal(t, 3, Loadings(components)[0].Width)
}

func TestFilterByIntensity(t *testing.T) {
	strong := segment.New(2, 2)
	strong.Pixels = []float64{5, 5, 5, 5}
	weak := segment.New(2, 2)
	weak.Pixels = []float64{0.1, 0, 0, 0}

	groups := []segment.PairedGroup{
		{Members: []int{0}, Factor: segment.New(2, 2), Loading: strong},
		{Members: []int{1}, Factor: segment.New(2, 2), Loading: weak},
	}

	kept := FilterByIntensity(groups, 1.0)
	require.Len(t, kept, 1)
	assert.Equal(t, []int{0}, kept[0].Members)
}
