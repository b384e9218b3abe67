package ports

import (
	"context"

	"dental-inference-service/internal/core/domain"
)

// RemoteComputeClient submits analysis jobs to a serverless GPU provider and
// tracks them to completion.
type RemoteComputeClient interface {
	// Configured reports whether credentials and an endpoint are present.
	Configured() bool
	Submit(ctx context.Context, input domain.JobInput) (string, error)
	Status(ctx context.Context, jobID string) (*domain.RemoteJob, error)
	// Wait polls until the job is terminal or the client's poll deadline
	// passes.
	Wait(ctx context.Context, jobID string) (*domain.RemoteJob, error)
	Cancel(ctx context.Context, jobID string) error
}
