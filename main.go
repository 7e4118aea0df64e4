// Command crystal-mapper segments overlapping nanocrystals in 4D scanning
// electron diffraction data. The VDF workflow finds diffraction peaks, forms
// a virtual dark-field image per unique vector, watershed-splits the images
// into grain segments and merges correlated segments into per-crystal maps.
// The decomposition workflow reaches the same maps through SVD factor/loading
// pairs and the dual-criterion merge.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"crystal-mapper/internal/dataset"
	"crystal-mapper/internal/decomp"
	"crystal-mapper/internal/peaks"
	"crystal-mapper/internal/project"
	"crystal-mapper/internal/render"
	"crystal-mapper/internal/segment"
	"crystal-mapper/internal/vdf"
	"crystal-mapper/internal/version"
	"crystal-mapper/internal/watershed"
)

func main() {
	projectPath := flag.String("project", "", "Path to experiment file (.sedproj)")
	outDir := flag.String("out", "results", "Output directory for rendered maps")
	svdComponents := flag.Int("svd", 0, "Run the SVD workflow with this many components instead of the VDF workflow")
	refresh := flag.Bool("refresh", false, "Ignore the cached unique-vector list and re-run peak finding")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *projectPath == "" {
		fmt.Println("Usage: crystal-mapper -project <run.sedproj> [-out results] [-svd N] [-refresh]")
		os.Exit(1)
	}

	exp, err := project.Load(*projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load experiment: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Experiment %s (%s)\n", exp.Name, exp.ID)

	tuning := project.DefaultTuning()
	if tuningPath := exp.GetTuningPath(*projectPath); tuningPath != "" {
		tuning, err = project.LoadTuning(tuningPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load tuning: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Tuning from %s\n", filepath.Base(tuningPath))
	}

	stack, err := dataset.Load(exp.GetDatasetPath(*projectPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load dataset: %v\n", err)
		os.Exit(1)
	}

	if err := dataset.SubtractBackground(stack, 0); err != nil {
		fmt.Fprintf(os.Stderr, "Background subtraction failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	if *svdComponents > 0 {
		runDecomposition(stack, exp, *projectPath, tuning, *svdComponents, *outDir)
		return
	}
	runVDF(stack, exp, *projectPath, tuning, *refresh, *outDir)
}

// runVDF executes the virtual dark-field workflow end to end.
func runVDF(stack *dataset.Stack, exp *project.File, projectPath string,
	tuning project.Tuning, refresh bool, outDir string) {

	cachePath := exp.GetVectorCachePath(projectPath)
	var vectors []peaks.Vector
	if !refresh {
		if cached, err := peaks.LoadVectors(cachePath); err == nil {
			vectors = cached
			fmt.Printf("Loaded %d cached vectors from %s\n", len(vectors), filepath.Base(cachePath))
		}
	}

	if vectors == nil {
		finder := peaks.NewMaximaFinder(tuning.Peaks.Maxima)
		maxImg := stack.MaxPattern()
		found, err := finder.Find(maxImg, stack.DetWidth, stack.DetHeight)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Peak finding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Found %d peak candidates\n", len(found))

		vectors = peaks.Unique(peaks.Calibrate(found, stack.Calib), tuning.Peaks.Tolerance)
		fmt.Printf("Reduced to %d unique vectors\n", len(vectors))

		if err := peaks.SaveVectors(vectors, cachePath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: vector cache not written: %v\n", err)
		}
	}

	images, err := vdf.Generate(stack, vectors, tuning.VDF.DiskRadius, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "VDF generation failed: %v\n", err)
		os.Exit(1)
	}

	grains, err := watershed.SegmentBatch(images, tuning.Watershed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segmentation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Segmentation produced %d grain segments\n", len(grains))

	groups, err := segment.Merge(grains, tuning.Merge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d crystals after merging (corr >= %.2f, vectors >= %d):\n",
		len(groups), tuning.Merge.CorrThreshold, tuning.Merge.VectorThreshold)
	fmt.Printf("%-8s %10s %10s %12s\n", "Crystal", "Segments", "Vectors", "Intensity")
	for i, g := range groups {
		fmt.Printf("%-8d %10d %10d %12.1f\n", i, len(g.Members), g.Segment.VectorCount(), g.Segment.Sum())
	}

	merged := make(segment.Batch, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, g.Segment)
	}
	writeMaps(merged, outDir, "crystal")

	// Virtual diffraction pattern per crystal.
	for i, g := range groups {
		pattern, err := vdf.SimulatePattern(stack, g.Segment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: crystal %d pattern: %v\n", i, err)
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("crystal_%02d_pattern.png", i))
		if err := render.SavePNG(render.Heatmap(pattern), path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	fmt.Printf("\nMaps written to %s\n", outDir)
}

// runDecomposition executes the SVD workflow with the dual-criterion merge.
func runDecomposition(stack *dataset.Stack, exp *project.File, projectPath string,
	tuning project.Tuning, n int, outDir string) {

	var mask []bool
	if maskPath := exp.GetMaskPath(projectPath); maskPath != "" {
		loaded, w, h, err := render.LoadMask(maskPath, 128)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load mask: %v\n", err)
			os.Exit(1)
		}
		if w != stack.DetWidth || h != stack.DetHeight {
			fmt.Fprintf(os.Stderr, "Mask is %dx%d, detector is %dx%d\n",
				w, h, stack.DetWidth, stack.DetHeight)
			os.Exit(1)
		}
		mask = loaded
	}

	components, err := decomp.SVD(stack, mask, n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Decomposition failed: %v\n", err)
		os.Exit(1)
	}

	groups, err := segment.MergePaired(decomp.Factors(components), decomp.Loadings(components), tuning.Paired)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d component groups after dual-criterion merge\n", len(groups))

	loadings := make(segment.Batch, 0, len(groups))
	factors := make(segment.Batch, 0, len(groups))
	for _, g := range groups {
		loadings = append(loadings, g.Loading)
		factors = append(factors, g.Factor)
	}
	writeMaps(loadings, outDir, "loading")
	writeMaps(factors, outDir, "factor")

	fmt.Printf("\nMaps written to %s\n", outDir)
}

// writeMaps renders per-segment heatmaps plus a combined label map.
func writeMaps(batch segment.Batch, outDir, prefix string) {
	for i, seg := range batch {
		path := filepath.Join(outDir, fmt.Sprintf("%s_%02d.png", prefix, i))
		if err := render.SavePNG(render.Heatmap(seg), path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if labels, err := render.LabelMap(batch); err == nil {
		if err := render.SavePNG(labels, filepath.Join(outDir, prefix+"_labels.png")); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
}
