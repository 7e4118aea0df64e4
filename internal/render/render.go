// Package render turns segments, loadings and patterns into image files for
// inspection. Plotting proper stays external; these are the flat artifacts a
// pipeline run leaves behind.
package render

import (
	"image"
	_ "image/jpeg"
	"image/png"
	"os"

	"crystal-mapper/internal/segment"
	"crystal-mapper/pkg/colorutil"

	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"
)

// Heatmap renders a segment as a min-max normalized grayscale image.
// A constant segment renders black.
func Heatmap(seg *segment.Segment) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, seg.Width, seg.Height))

	lo, hi := seg.Pixels[0], seg.Pixels[0]
	for _, v := range seg.Pixels {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo

	for y := 0; y < seg.Height; y++ {
		for x := 0; x < seg.Width; x++ {
			v := 0.0
			if span > 0 {
				v = (seg.At(x, y) - lo) / span
			}
			img.Set(x, y, colorutil.Grayscale(v))
		}
	}
	return img
}

// LabelMap paints each pixel with the color of the strongest segment at that
// position, black where no segment has positive intensity. Segment order in
// the batch fixes label numbering.
func LabelMap(batch segment.Batch) (*image.RGBA, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	w, h := batch[0].Width, batch[0].Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := 0
			best := 0.0
			for i, seg := range batch {
				if v := seg.At(x, y); v > best {
					best = v
					label = i + 1
				}
			}
			img.Set(x, y, colorutil.LabelColor(label))
		}
	}
	return img, nil
}

// Montage lays a batch's heatmaps out on a grid with the given column count
// and a 1-pixel white separator.
func Montage(batch segment.Batch, cols int) (*image.RGBA, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if cols < 1 {
		cols = 1
	}
	rows := (len(batch) + cols - 1) / cols
	w, h := batch[0].Width, batch[0].Height

	img := image.NewRGBA(image.Rect(0, 0, cols*(w+1)-1, rows*(h+1)-1))
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			img.Set(x, y, colorutil.White)
		}
	}

	for i, seg := range batch {
		tile := Heatmap(seg)
		ox := (i % cols) * (w + 1)
		oy := (i / cols) * (h + 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(ox+x, oy+y, tile.At(x, y))
			}
		}
	}
	return img, nil
}

// SavePNG writes an image to disk.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating image file")
	}
	defer f.Close()
	return errors.Wrap(png.Encode(f, img), "encoding png")
}

// LoadMask reads a PNG/TIFF/JPEG image as a boolean detector mask: pixels
// with luminance at or above threshold are kept. Returns the mask with the
// image dimensions.
func LoadMask(path string, threshold uint8) ([]bool, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "opening mask image")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "decoding mask image")
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Rec. 601 luma on 16-bit channels.
			lum := (299*r + 587*g + 114*b) / 1000
			mask[y*w+x] = uint8(lum>>8) >= threshold
		}
	}
	return mask, w, h, nil
}
