package ports

import (
	"context"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

// Classifier is a loaded model artifact.
type Classifier interface {
	// Labels returns every class the model can predict.
	Labels() []string
	// NumFeatures is the vector width the model was fit on.
	NumFeatures() int
	// PredictProba returns a probability for every label.
	PredictProba(ctx context.Context, vector domain.FeatureVector) ([]domain.ClassProbability, error)
}

// MetadataLookup maps a crop label to descriptive information.
type MetadataLookup interface {
	Lookup(label string) (domain.CropInfo, bool)
}

// RecommendationStore persists served recommendations.
type RecommendationStore interface {
	Save(ctx context.Context, rec *domain.Recommendation) error
	GetByID(ctx context.Context, id string) (*domain.Recommendation, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Recommendation, error)
}

// RecommendationPublisher announces served recommendations to other services.
type RecommendationPublisher interface {
	PublishRecommendation(ctx context.Context, rec *domain.Recommendation) error
}
