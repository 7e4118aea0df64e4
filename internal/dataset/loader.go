package dataset

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// metadata is the sidecar description of a raw stack file.
type metadata struct {
	Version     int         `json:"version"`
	ScanWidth   int         `json:"scan_width"`
	ScanHeight  int         `json:"scan_height"`
	DetWidth    int         `json:"det_width"`
	DetHeight   int         `json:"det_height"`
	DType       string      `json:"dtype"` // only "float32" supported
	Calibration Calibration `json:"calibration"`
}

// metadataPath returns the sidecar path for a stack file: the data path with
// compression suffix stripped and extension replaced by .json.
func metadataPath(dataPath string) string {
	p := strings.TrimSuffix(dataPath, ".zst")
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".json"
}

// Load reads a raw little-endian float32 stack plus its JSON sidecar.
// Files ending in .zst are decompressed transparently.
func Load(path string) (*Stack, error) {
	metaRaw, err := os.ReadFile(metadataPath(path))
	if err != nil {
		return nil, errors.Wrap(err, "reading stack metadata")
	}
	var meta metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, errors.Wrap(err, "parsing stack metadata")
	}
	if meta.DType != "" && meta.DType != "float32" {
		return nil, errors.Errorf("unsupported dtype %q", meta.DType)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening stack data")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "opening zstd stream")
		}
		defer zr.Close()
		r = zr
	}

	stack := NewStack(meta.ScanWidth, meta.ScanHeight, meta.DetWidth, meta.DetHeight)
	stack.Calib = meta.Calibration

	buf := make([]byte, 4*len(stack.Data))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "reading stack data")
	}
	for i := range stack.Data {
		stack.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}

	if err := stack.Validate(); err != nil {
		return nil, err
	}

	fmt.Printf("[Dataset] Loaded %dx%d scan of %dx%d frames from %s\n",
		stack.ScanWidth, stack.ScanHeight, stack.DetWidth, stack.DetHeight,
		filepath.Base(path))

	return stack, nil
}

// Save writes the stack as raw little-endian float32 with a JSON sidecar.
// A .zst path enables zstd compression, which raw diffraction stacks take
// well (large dark regions between spots).
func Save(stack *Stack, path string) error {
	if err := stack.Validate(); err != nil {
		return err
	}

	meta := metadata{
		Version:     1,
		ScanWidth:   stack.ScanWidth,
		ScanHeight:  stack.ScanHeight,
		DetWidth:    stack.DetWidth,
		DetHeight:   stack.DetHeight,
		DType:       "float32",
		Calibration: stack.Calib,
	}
	metaRaw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(metadataPath(path), metaRaw, 0644); err != nil {
		return errors.Wrap(err, "writing stack metadata")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating stack data file")
	}
	defer f.Close()

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			return errors.Wrap(err, "opening zstd writer")
		}
		w = zw
	}

	buf := make([]byte, 4*len(stack.Data))
	for i, v := range stack.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "writing stack data")
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "finishing zstd stream")
		}
	}
	return nil
}
