package ports

import (
	"context"

	"dental-inference-service/internal/core/domain"
)

type LoadRequest struct {
	Artifacts domain.ModelArtifacts
	Debug     bool
}

type StepRequest struct {
	ImagePath string
	OutputDir string
}

// StepResult identifies an in-runner intermediate result so a later step can
// refer back to it.
type StepResult struct {
	Ref string `json:"ref"`
}

type PostProcessRequest struct {
	SegmentationRef string
	DetectionRef    string
	OutputDir       string
}

// ModelRunner drives the process that actually executes the models. The
// pipeline decides ordering; the runner owns the pixels.
type ModelRunner interface {
	Load(ctx context.Context, req LoadRequest) error
	Segment(ctx context.Context, req StepRequest) (*StepResult, error)
	ReleaseMemory(ctx context.Context) error
	Detect(ctx context.Context, req StepRequest) (*StepResult, error)
	PostProcess(ctx context.Context, req PostProcessRequest) ([]domain.FindingEntry, error)
	Healthy(ctx context.Context) error
	// Describe reports how the runner is invoked, for error context.
	Describe() string
	Close() error
}
