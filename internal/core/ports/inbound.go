package ports

import (
	"context"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
)

// CropRecommender is the inbound contract for serving a recommendation.
type CropRecommender interface {
	Recommend(ctx context.Context, in domain.RawInput) (*domain.Recommendation, error)
}

// CategoryCatalog exposes the allowed categorical values and numeric ranges.
type CategoryCatalog interface {
	Categories() features.Table
}

// RecommendationReader is the inbound read model for served recommendations.
type RecommendationReader interface {
	GetByID(ctx context.Context, id string) (*domain.Recommendation, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Recommendation, error)
}
