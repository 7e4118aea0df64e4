package dataset

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// CenterOfMass returns the intensity-weighted centroid of a detector frame.
// With an unblanked direct beam this is a good first estimate of the pattern
// center.
func CenterOfMass(frame []float64, width, height int) (cx, cy float64) {
	var sum, sumX, sumY float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := frame[y*width+x]
			sum += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if sum == 0 {
		return float64(width) / 2, float64(height) / 2
	}
	return sumX / sum, sumY / sum
}

// EstimateCenter refines the stack calibration's beam center from the mean
// pattern and stores it back on the stack.
func EstimateCenter(stack *Stack) (cx, cy float64) {
	mean := stack.MeanPattern()
	cx, cy = CenterOfMass(mean, stack.DetWidth, stack.DetHeight)
	stack.Calib.CenterX = cx
	stack.Calib.CenterY = cy
	fmt.Printf("[Preprocess] Beam center estimate (%.2f, %.2f)\n", cx, cy)
	return cx, cy
}

// radialMedian computes the median intensity per integer radius ring around
// (cx, cy). Rings beyond the detector corner are empty and stay zero.
func radialMedian(frame []float32, width, height int, cx, cy float64) []float64 {
	maxR := int(math.Hypot(float64(width), float64(height))) + 1
	rings := make([][]float64, maxR)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := int(math.Hypot(float64(x)-cx, float64(y)-cy))
			if r < maxR {
				rings[r] = append(rings[r], float64(frame[y*width+x]))
			}
		}
	}
	med := make([]float64, maxR)
	for r, ring := range rings {
		if len(ring) == 0 {
			continue
		}
		sort.Float64s(ring)
		mid := len(ring) / 2
		if len(ring)%2 == 1 {
			med[r] = ring[mid]
		} else {
			med[r] = (ring[mid-1] + ring[mid]) / 2
		}
	}
	return med
}

// SubtractBackground removes the radially symmetric diffuse background from
// every frame in place. For each frame the per-ring median around the beam
// center is taken as background; intensities clamp at zero so frames stay
// non-negative. Frames are independent and processed in parallel.
func SubtractBackground(stack *Stack, workers int) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	cx, cy := stack.Calib.CenterX, stack.Calib.CenterY
	if cx == 0 && cy == 0 {
		cx, cy = EstimateCenter(stack)
	}

	w, h := stack.DetWidth, stack.DetHeight

	var g errgroup.Group
	g.SetLimit(workers)
	for pos := 0; pos < stack.Positions(); pos++ {
		pos := pos
		g.Go(func() error {
			frame := stack.PatternAt(pos)
			med := radialMedian(frame, w, h, cx, cy)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					r := int(math.Hypot(float64(x)-cx, float64(y)-cy))
					if r >= len(med) {
						continue
					}
					v := float64(frame[y*w+x]) - med[r]
					if v < 0 {
						v = 0
					}
					frame[y*w+x] = float32(v)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("[Preprocess] Background subtracted over %d frames\n", stack.Positions())
	return nil
}
