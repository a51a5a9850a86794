package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
)

type RecommendUseCase struct {
	codec        *features.Codec
	builder      *features.Builder
	ranker       *Ranker
	modelVersion string

	store     ports.RecommendationStore
	publisher ports.RecommendationPublisher

	now   func() time.Time
	newID func() string
}

// RecommendOption configures the optional collaborators of RecommendUseCase.
type RecommendOption func(*RecommendUseCase)

// WithStore records every served recommendation. Failures are logged only.
func WithStore(store ports.RecommendationStore) RecommendOption {
	return func(uc *RecommendUseCase) { uc.store = store }
}

// WithPublisher announces every served recommendation. Failures are logged only.
func WithPublisher(publisher ports.RecommendationPublisher) RecommendOption {
	return func(uc *RecommendUseCase) { uc.publisher = publisher }
}

func NewRecommendUseCase(
	codec *features.Codec,
	ranker *Ranker,
	modelVersion string,
	opts ...RecommendOption,
) *RecommendUseCase {
	uc := &RecommendUseCase{
		codec:        codec,
		builder:      features.NewBuilder(codec),
		ranker:       ranker,
		modelVersion: modelVersion,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *RecommendUseCase) Recommend(ctx context.Context, in domain.RawInput) (*domain.Recommendation, error) {
	vector, err := uc.builder.Build(in)
	if err != nil {
		return nil, err
	}

	result, err := uc.ranker.Rank(ctx, vector)
	if err != nil {
		return nil, err
	}

	sample, err := uc.builder.Sample(vector)
	if err != nil {
		return nil, err
	}

	rec := &domain.Recommendation{
		ID:           uc.newID(),
		Prediction:   *result,
		Input:        sample,
		ModelVersion: uc.modelVersion,
		CreatedAt:    uc.now(),
	}

	uc.record(ctx, rec)
	return rec, nil
}

// Categories returns the codec table for rendering input forms.
func (uc *RecommendUseCase) Categories() features.Table {
	return uc.codec.Table()
}

func (uc *RecommendUseCase) record(ctx context.Context, rec *domain.Recommendation) {
	if uc.store != nil {
		if err := uc.store.Save(ctx, rec); err != nil {
			slog.Warn("recommendation_store_failed", "id", rec.ID, "error", err)
		}
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishRecommendation(ctx, rec); err != nil {
			slog.Warn("recommendation_publish_failed", "id", rec.ID, "error", err)
		}
	}
}
