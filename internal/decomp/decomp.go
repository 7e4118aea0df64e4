// Package decomp exposes matrix decompositions of 4D diffraction data as
// paired factor patterns and loading maps. The solver is gonum's SVD; NMF
// results from external engines enter through the same Component type.
package decomp

import (
	"fmt"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/segment"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Component is one decomposition component: a detector-space factor pattern
// paired with the scan-space loading map that weights it.
type Component struct {
	Factor  *segment.Segment
	Loading *segment.Segment
}

// Factors collects the factor images of a component list into a batch.
func Factors(components []Component) segment.Batch {
	out := make(segment.Batch, len(components))
	for i, c := range components {
		out[i] = c.Factor
	}
	return out
}

// Loadings collects the loading maps of a component list into a batch.
func Loadings(components []Component) segment.Batch {
	out := make(segment.Batch, len(components))
	for i, c := range components {
		out[i] = c.Loading
	}
	return out
}

// SVD decomposes the stack into its first n singular components. The stack
// is flattened to a (scan positions × detector pixels) matrix; mask, when
// non-nil, zeroes masked detector pixels first (true = keep), which is how a
// direct-beam mask keeps the central disk from dominating the decomposition.
//
// Loadings absorb the singular values, so summing loading⊗factor over all
// min(rank) components reconstructs the masked data.
func SVD(stack *dataset.Stack, mask []bool, n int) ([]Component, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	frameLen := stack.DetWidth * stack.DetHeight
	if mask != nil && len(mask) != frameLen {
		return nil, errors.Errorf("mask has %d pixels, detector has %d", len(mask), frameLen)
	}
	positions := stack.Positions()
	maxN := positions
	if frameLen < maxN {
		maxN = frameLen
	}
	if n <= 0 || n > maxN {
		return nil, errors.Errorf("component count %d outside [1,%d]", n, maxN)
	}

	a := mat.NewDense(positions, frameLen, nil)
	for pos := 0; pos < positions; pos++ {
		frame := stack.PatternAt(pos)
		for i, v := range frame {
			if mask != nil && !mask[i] {
				continue
			}
			a.Set(pos, i, float64(v))
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	components := make([]Component, n)
	for k := 0; k < n; k++ {
		factor := segment.New(stack.DetWidth, stack.DetHeight)
		for i := 0; i < frameLen; i++ {
			factor.Pixels[i] = v.At(i, k)
		}
		loading := segment.New(stack.ScanWidth, stack.ScanHeight)
		for pos := 0; pos < positions; pos++ {
			loading.Pixels[pos] = u.At(pos, k) * values[k]
		}

		// Sign convention: the factor's largest-magnitude pixel is positive.
		// SVD signs are otherwise arbitrary and would flip between runs of
		// different BLAS backends.
		if dominantNegative(factor.Pixels) {
			negate(factor.Pixels)
			negate(loading.Pixels)
		}

		components[k] = Component{Factor: factor, Loading: loading}
	}

	fmt.Printf("[Decomp] SVD kept %d/%d components (leading value %.3g)\n",
		n, len(values), values[0])

	return components, nil
}

// FilterByIntensity drops merged component groups whose summed loading
// intensity falls below minSum — the post-merge cut that removes components
// without meaningful real-space support.
func FilterByIntensity(groups []segment.PairedGroup, minSum float64) []segment.PairedGroup {
	out := make([]segment.PairedGroup, 0, len(groups))
	for _, g := range groups {
		if g.Loading.Sum() >= minSum {
			out = append(out, g)
		}
	}
	return out
}

func dominantNegative(pixels []float64) bool {
	var maxAbs, at float64
	for _, v := range pixels {
		a := v
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
			at = v
		}
	}
	return at < 0
}

func negate(pixels []float64) {
	for i := range pixels {
		pixels[i] = -pixels[i]
	}
}
