package usecase

import (
	"context"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
)

// BatchOutcome is the result of scoring one input of a batch.
type BatchOutcome struct {
	Recommendation *domain.Recommendation
	Err            error
}

// BatchSummary counts outcomes by result.
type BatchSummary struct {
	Scored   int
	Rejected int
	ByCrop   map[string]int
}

type BatchUseCase struct {
	recommender ports.CropRecommender
}

func NewBatchUseCase(recommender ports.CropRecommender) *BatchUseCase {
	return &BatchUseCase{recommender: recommender}
}

// Score runs every input independently; a rejected input never stops the batch.
// Only a model outage or a cancelled context aborts early.
func (uc *BatchUseCase) Score(ctx context.Context, inputs []domain.RawInput) ([]BatchOutcome, BatchSummary, error) {
	outcomes := make([]BatchOutcome, 0, len(inputs))
	summary := BatchSummary{ByCrop: make(map[string]int)}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return outcomes, summary, err
		}

		rec, err := uc.recommender.Recommend(ctx, in)
		if err != nil {
			if domain.IsKind(err, domain.ErrModelUnavailable) {
				return outcomes, summary, err
			}
			summary.Rejected++
			outcomes = append(outcomes, BatchOutcome{Err: err})
			continue
		}
		summary.Scored++
		summary.ByCrop[rec.Prediction.Primary.Label]++
		outcomes = append(outcomes, BatchOutcome{Recommendation: rec})
	}
	return outcomes, summary, nil
}
