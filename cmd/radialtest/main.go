// Command radialtest azimuthally integrates one frame of a dataset and
// prints the 1D profile, for checking detector geometry against known rings.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/radial"
)

func main() {
	dataPath := flag.String("dataset", "", "Path to raw stack (.bin or .bin.zst)")
	sx := flag.Int("sx", 0, "Scan position x")
	sy := flag.Int("sy", 0, "Scan position y")
	bins := flag.Int("bins", 100, "Number of q bins")
	pixelSize := flag.Float64("pixel", 55e-6, "Detector pixel size (m)")
	distance := flag.Float64("distance", 0.25, "Sample-to-detector distance (m)")
	wavelength := flag.Float64("wavelength", 0.0251, "Electron wavelength (Å)")
	flag.Parse()

	if *dataPath == "" {
		fmt.Println("Usage: radialtest -dataset <stack.bin> [-sx 0 -sy 0] [-bins 100]")
		os.Exit(1)
	}

	stack, err := dataset.Load(*dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load dataset: %v\n", err)
		os.Exit(1)
	}
	if *sx < 0 || *sx >= stack.ScanWidth || *sy < 0 || *sy >= stack.ScanHeight {
		fmt.Fprintf(os.Stderr, "Scan position (%d,%d) outside %dx%d scan\n",
			*sx, *sy, stack.ScanWidth, stack.ScanHeight)
		os.Exit(1)
	}

	cx, cy := stack.Calib.CenterX, stack.Calib.CenterY
	if cx == 0 && cy == 0 {
		cx, cy = dataset.EstimateCenter(stack)
	}

	geom := radial.Geometry{
		OriginX:    cx,
		OriginY:    cy,
		PixelSize:  *pixelSize,
		Distance:   *distance,
		Wavelength: *wavelength,
	}

	profile, err := radial.Integrate(stack.Pattern(*sx, *sy), stack.DetWidth, stack.DetHeight, geom, *bins)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Integration failed: %v\n", err)
		os.Exit(1)
	}

	maxI := 0.0
	for _, v := range profile.Intensity {
		if v > maxI {
			maxI = v
		}
	}

	fmt.Printf("Profile at scan (%d,%d), origin (%.1f,%.1f):\n", *sx, *sy, cx, cy)
	fmt.Printf("%10s %12s\n", "q (Å⁻¹)", "intensity")
	for b := range profile.Q {
		bar := ""
		if maxI > 0 {
			bar = strings.Repeat("#", int(profile.Intensity[b]/maxI*40))
		}
		fmt.Printf("%10.4f %12.2f %s\n", profile.Q[b], profile.Intensity[b], bar)
	}
}
