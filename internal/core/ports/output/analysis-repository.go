package ports

import (
	"context"

	"github.com/google/uuid"

	"dental-inference-service/internal/core/domain"
)

type AnalysisListFilter struct {
	Mode   string
	Status string
	Limit  int
	Offset int
}

type AnalysisRepository interface {
	Save(ctx context.Context, record *domain.AnalysisRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error)
	List(ctx context.Context, filter AnalysisListFilter) ([]*domain.AnalysisRecord, int, error)
}
