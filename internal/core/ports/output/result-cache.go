package ports

import (
	"context"

	"dental-inference-service/internal/core/domain"
)

// ResultCache stores finished local analyses keyed by image digest and
// request parameters. A miss is (nil, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.LocalAnalysis, error)
	Set(ctx context.Context, key string, value *domain.LocalAnalysis) error
}
