package domain

import (
	"path/filepath"
	"time"
)

type ModelState string

const (
	ModelStateUnloaded ModelState = "UNLOADED"
	ModelStateLoading  ModelState = "LOADING"
	ModelStateLoaded   ModelState = "LOADED"
	ModelStateFailed   ModelState = "FAILED"
)

// ModelArtifacts holds the four files every load validates before any model
// is constructed.
type ModelArtifacts struct {
	SegmentationConfig  string
	SegmentationWeights string
	DetectionConfig     string
	DetectionWeights    string
}

// ArtifactsFor lays out the expected artifact paths under modelsDir.
func ArtifactsFor(modelsDir string) ModelArtifacts {
	return ModelArtifacts{
		SegmentationConfig:  filepath.Join(modelsDir, "deeplab", "config.yaml"),
		SegmentationWeights: filepath.Join(modelsDir, "deeplab", "model.pth"),
		DetectionConfig:     filepath.Join(modelsDir, "yolo", "config.yaml"),
		DetectionWeights:    filepath.Join(modelsDir, "yolo", "model.pt"),
	}
}

// Ordered returns the paths in validation order, so the first missing one is
// deterministic.
func (a ModelArtifacts) Ordered() []string {
	return []string{
		a.SegmentationConfig,
		a.SegmentationWeights,
		a.DetectionConfig,
		a.DetectionWeights,
	}
}

// ModelInfo is the manifest metadata read from a model's config.yaml.
type ModelInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Classes     []string `json:"classes,omitempty" yaml:"classes"`
	ConfigPath  string   `json:"config_path" yaml:"-"`
	WeightsPath string   `json:"weights_path" yaml:"-"`
}

// ModelSet describes a successfully loaded pair of models. The debug flag is
// baked in at load time and applies to every later inference.
type ModelSet struct {
	Segmentation ModelInfo `json:"segmentation"`
	Detection    ModelInfo `json:"detection"`
	Debug        bool      `json:"debug"`
	LoadedAt     time.Time `json:"loaded_at"`
}
