package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
)

// probabilityTolerance bounds how far a distribution may drift from summing to 1.
// float32 model runtimes accumulate error in the 1e-6 range.
const probabilityTolerance = 1e-3

type Ranker struct {
	model    ports.Classifier
	metadata ports.MetadataLookup
}

func NewRanker(model ports.Classifier, metadata ports.MetadataLookup) *Ranker {
	return &Ranker{model: model, metadata: metadata}
}

// Rank orders the model's distribution for vector and enriches the top entries.
// The primary is the head of the sorted list, never a separate argmax.
func (r *Ranker) Rank(ctx context.Context, vector domain.FeatureVector) (*domain.PredictionResult, error) {
	if r.model == nil {
		return nil, &domain.ModelUnavailableError{Reason: "model is not loaded"}
	}

	dist, err := r.model.PredictProba(ctx, vector)
	if err != nil {
		var unavailable *domain.ModelUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("predict proba: %w", err)
	}

	ranked, err := sortDistribution(dist)
	if err != nil {
		return nil, err
	}

	result := &domain.PredictionResult{
		Primary:      r.enrich(ranked[0]),
		Alternatives: make([]domain.RankedCrop, 0, domain.MaxAlternatives),
	}
	for _, p := range ranked[1:min(len(ranked), domain.MaxAlternatives+1)] {
		result.Alternatives = append(result.Alternatives, r.enrich(p))
	}
	return result, nil
}

func (r *Ranker) enrich(p domain.ClassProbability) domain.RankedCrop {
	info := domain.UnknownCropInfo(p.Label)
	if r.metadata != nil {
		if found, ok := r.metadata.Lookup(p.Label); ok {
			info = found
			info.Known = true
			if info.DisplayName == "" {
				info.DisplayName = domain.DisplayName(p.Label)
			}
		}
	}
	return domain.RankedCrop{Label: p.Label, Probability: p.Probability, Info: info}
}

// sortDistribution validates dist, sorts it by probability descending with label
// order as tie-break, and drops repeated labels after their best entry.
func sortDistribution(dist []domain.ClassProbability) ([]domain.ClassProbability, error) {
	if len(dist) == 0 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "rank", errors.New("model returned an empty distribution"))
	}

	sum := 0.0
	for _, p := range dist {
		if math.IsNaN(p.Probability) || p.Probability < 0 || p.Probability > 1 {
			return nil, domain.WrapError(domain.ErrCorruptArtifact, "rank",
				fmt.Errorf("probability %v for %q is outside [0,1]", p.Probability, p.Label))
		}
		sum += p.Probability
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "rank",
			fmt.Errorf("probabilities sum to %v", sum))
	}

	sorted := make([]domain.ClassProbability, len(dist))
	copy(sorted, dist)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Probability != sorted[j].Probability {
			return sorted[i].Probability > sorted[j].Probability
		}
		return sorted[i].Label < sorted[j].Label
	})

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, p := range sorted {
		if _, dup := seen[p.Label]; dup {
			continue
		}
		seen[p.Label] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
