package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type HistoryUseCase struct {
	store ports.RecommendationStore
}

func NewHistoryUseCase(store ports.RecommendationStore) *HistoryUseCase {
	return &HistoryUseCase{store: store}
}

func (uc *HistoryUseCase) GetByID(ctx context.Context, id string) (*domain.Recommendation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get recommendation", errors.New("id is required"))
	}
	return uc.store.GetByID(ctx, id)
}

func (uc *HistoryUseCase) ListRecent(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return uc.store.ListRecent(ctx, limit)
}
