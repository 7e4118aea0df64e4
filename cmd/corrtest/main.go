// Command corrtest runs the segment correlator on a synthetic batch and
// prints the correlation matrix and merge decisions, for threshold tuning.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"crystal-mapper/internal/segment"
)

func main() {
	n := flag.Int("n", 6, "Number of synthetic segments")
	size := flag.Int("size", 32, "Segment image edge length in pixels")
	threshold := flag.Float64("corr", 0.7, "Correlation merge threshold")
	vecThreshold := flag.Int("vectors", 0, "Minimum union vector count")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	batch := syntheticBatch(*n, *size, *seed)

	corr, err := segment.Correlate(batch, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Correlation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Correlation matrix (%d segments):\n      ", corr.Len())
	for j := 0; j < corr.Len(); j++ {
		fmt.Printf("%6d", j)
	}
	fmt.Println()
	for i := 0; i < corr.Len(); i++ {
		fmt.Printf("%4d  ", i)
		for j := 0; j < corr.Len(); j++ {
			fmt.Printf("%6.2f", corr.At(i, j))
		}
		fmt.Println()
	}

	groups, err := segment.Merge(batch, segment.Params{
		CorrThreshold:   *threshold,
		VectorThreshold: *vecThreshold,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d groups at threshold %.2f:\n", len(groups), *threshold)
	for i, g := range groups {
		fmt.Printf("  group %d: members %v, %d vectors, intensity %.1f\n",
			i, g.Members, g.Segment.VectorCount(), g.Segment.Sum())
	}
}

// syntheticBatch builds overlapping Gaussian blobs: consecutive pairs share a
// center so some pairs correlate strongly and others not at all.
func syntheticBatch(n, size int, seed int64) segment.Batch {
	rng := rand.New(rand.NewSource(seed))

	batch := make(segment.Batch, n)
	var cx, cy float64
	for i := range batch {
		// Every second segment reuses the previous center with noise, the
		// rest land somewhere new.
		if i%2 == 0 {
			cx = rng.Float64() * float64(size)
			cy = rng.Float64() * float64(size)
		}
		sigma := 2 + rng.Float64()*3

		s := segment.New(size, size)
		s.Vectors = []int{i}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				d2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
				s.Set(x, y, math.Exp(-d2/(2*sigma*sigma))+rng.Float64()*0.01)
			}
		}
		batch[i] = s
	}
	return batch
}
