// Package project provides experiment file handling and persistence.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// File represents a crystal-mapper experiment file (.sedproj). It ties a raw
// dataset to the artifacts derived from it so a run can be resumed without
// redoing peak finding.
type File struct {
	Version     int       `json:"version"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Paths relative to the experiment file.
	DatasetPath     string `json:"dataset,omitempty"`
	VectorCachePath string `json:"vector_cache,omitempty"`
	TuningPath      string `json:"tuning,omitempty"`
	MaskPath        string `json:"mask,omitempty"`
}

// New creates a new experiment file with a fresh identity.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  1,
		ID:       uuid.NewString(),
		Name:     name,
		Created:  now,
		Modified: now,
	}
}

// Load loads an experiment from a .sedproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading experiment file")
	}

	var exp File
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, errors.Wrap(err, "parsing experiment file")
	}
	return &exp, nil
}

// Save saves the experiment to a file, bumping the modified stamp.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing experiment file")
}

// SetDatasetPath stores the dataset path relative to the experiment file.
func (p *File) SetDatasetPath(projectPath, datasetPath string) {
	p.DatasetPath = relativize(projectPath, datasetPath)
	p.Modified = time.Now()
}

// GetDatasetPath returns the absolute path to the raw dataset.
func (p *File) GetDatasetPath(projectPath string) string {
	return absolutize(projectPath, p.DatasetPath)
}

// GetVectorCachePath returns the absolute path to the cached unique-vector
// list, defaulting next to the experiment file.
func (p *File) GetVectorCachePath(projectPath string) string {
	if p.VectorCachePath == "" {
		base := projectPath[:len(projectPath)-len(filepath.Ext(projectPath))]
		return base + "_vectors.json"
	}
	return absolutize(projectPath, p.VectorCachePath)
}

// GetTuningPath returns the absolute path to the TOML tuning file, empty when
// none is configured.
func (p *File) GetTuningPath(projectPath string) string {
	if p.TuningPath == "" {
		return ""
	}
	return absolutize(projectPath, p.TuningPath)
}

// GetMaskPath returns the absolute path to the detector mask image, empty
// when none is configured.
func (p *File) GetMaskPath(projectPath string) string {
	if p.MaskPath == "" {
		return ""
	}
	return absolutize(projectPath, p.MaskPath)
}

func relativize(projectPath, target string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), target)
	if err != nil {
		return target
	}
	return rel
}

func absolutize(projectPath, stored string) string {
	if stored == "" {
		return ""
	}
	if filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(filepath.Dir(projectPath), stored)
}
