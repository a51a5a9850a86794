package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
)

type storeFake struct {
	saved []*domain.Recommendation
	byID  map[string]*domain.Recommendation
	limit int
	err   error
}

func (f *storeFake) Save(_ context.Context, rec *domain.Recommendation) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *storeFake) GetByID(_ context.Context, id string) (*domain.Recommendation, error) {
	if rec, ok := f.byID[id]; ok {
		return rec, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get recommendation", errors.New(id))
}

func (f *storeFake) ListRecent(_ context.Context, limit int) ([]domain.Recommendation, error) {
	f.limit = limit
	return nil, f.err
}

type publisherFake struct {
	published []string
	err       error
}

func (f *publisherFake) PublishRecommendation(_ context.Context, rec *domain.Recommendation) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, rec.ID)
	return nil
}

func newUsecaseCodec(t *testing.T) *features.Codec {
	t.Helper()
	codec, err := features.NewCodec(features.Table{
		domain.FieldState:      {"Assam", "Punjab"},
		domain.FieldSeason:     {"Kharif", "Rabi"},
		domain.FieldSoilType:   {"Clay", "Loam"},
		domain.FieldIrrigation: {"Drip", "Flood"},
		domain.FieldFarmSize:   {"Large", "Medium", "Small"},
	})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

func validInput() domain.RawInput {
	return domain.RawInput{
		N:           domain.NumberValue(90),
		P:           domain.NumberValue(42),
		K:           domain.NumberValue(43),
		Temperature: domain.NumberValue(28),
		Humidity:    domain.NumberValue(80),
		PH:          domain.TextValue("6.5"),
		Rainfall:    domain.NumberValue(200),
		State:       domain.TextValue("Punjab"),
		Season:      domain.TextValue("Kharif"),
		SoilType:    domain.TextValue("Clay"),
		Irrigation:  domain.TextValue("Flood"),
		FarmSize:    domain.TextValue("Medium"),
	}
}

func riceModel() *classifierFake {
	return &classifierFake{dist: []domain.ClassProbability{
		{Label: "rice", Probability: 0.82},
		{Label: "jute", Probability: 0.10},
		{Label: "maize", Probability: 0.08},
	}}
}

func TestRecommendUseCaseServesRankedPrediction(t *testing.T) {
	model := riceModel()
	store := &storeFake{}
	publisher := &publisherFake{}
	uc := NewRecommendUseCase(newUsecaseCodec(t), NewRanker(model, testMetadata()), "rf-2024.1",
		WithStore(store), WithPublisher(publisher))
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return fixed }
	uc.newID = func() string { return "rec-1" }

	rec, err := uc.Recommend(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if rec.ID != "rec-1" || rec.ModelVersion != "rf-2024.1" || !rec.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected envelope: %+v", rec)
	}
	if rec.Prediction.Primary.Label != "rice" {
		t.Fatalf("expected rice primary, got %s", rec.Prediction.Primary.Label)
	}
	wantVector := domain.FeatureVector{90, 42, 43, 28, 80, 6.5, 200, 1, 0, 0, 1, 1}
	if diff := cmp.Diff(wantVector, model.last); diff != "" {
		t.Fatalf("vector mismatch (-want +got):\n%s", diff)
	}
	if rec.Input.PH != 6.5 || rec.Input.State != "Punjab" {
		t.Fatalf("unexpected echoed input: %+v", rec.Input)
	}
	if len(store.saved) != 1 || store.saved[0] != rec {
		t.Fatalf("expected recommendation to be stored once, got %d", len(store.saved))
	}
	if diff := cmp.Diff([]string{"rec-1"}, publisher.published); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommendUseCaseInvalidInputSkipsModel(t *testing.T) {
	model := riceModel()
	store := &storeFake{}
	uc := NewRecommendUseCase(newUsecaseCodec(t), NewRanker(model, testMetadata()), "v1", WithStore(store))

	in := validInput()
	in.State = domain.TextValue("Atlantis")
	_, err := uc.Recommend(context.Background(), in)
	var unknown *domain.UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCategoryError, got %v", err)
	}
	if model.calls != 0 {
		t.Fatalf("classifier must not be called for invalid input, got %d calls", model.calls)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(store.saved))
	}
}

func TestRecommendUseCaseModelUnavailable(t *testing.T) {
	uc := NewRecommendUseCase(newUsecaseCodec(t), NewRanker(nil, testMetadata()), "v1")
	_, err := uc.Recommend(context.Background(), validInput())
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}

func TestRecommendUseCaseSideEffectFailuresDoNotFailRequest(t *testing.T) {
	uc := NewRecommendUseCase(newUsecaseCodec(t), NewRanker(riceModel(), testMetadata()), "v1",
		WithStore(&storeFake{err: errors.New("db down")}),
		WithPublisher(&publisherFake{err: errors.New("nats down")}))

	rec, err := uc.Recommend(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if rec.Prediction.Primary.Label != "rice" {
		t.Fatalf("unexpected primary: %s", rec.Prediction.Primary.Label)
	}
}

func TestRecommendUseCaseCategoriesCopiesCodec(t *testing.T) {
	uc := NewRecommendUseCase(newUsecaseCodec(t), NewRanker(riceModel(), nil), "v1")
	table := uc.Categories()
	table[domain.FieldState][0] = "Mutated"
	if got := uc.Categories()[domain.FieldState][0]; got != "Assam" {
		t.Fatalf("categories aliased codec storage, got %s", got)
	}
}

func TestHistoryUseCaseClampsLimit(t *testing.T) {
	store := &storeFake{}
	uc := NewHistoryUseCase(store)

	for _, tc := range []struct{ in, want int }{{0, 20}, {-3, 20}, {5, 5}, {1000, 200}} {
		if _, err := uc.ListRecent(context.Background(), tc.in); err != nil {
			t.Fatalf("ListRecent(%d) error = %v", tc.in, err)
		}
		if store.limit != tc.want {
			t.Fatalf("ListRecent(%d): expected limit %d, got %d", tc.in, tc.want, store.limit)
		}
	}
}

func TestHistoryUseCaseGetByID(t *testing.T) {
	rec := &domain.Recommendation{ID: "rec-7"}
	uc := NewHistoryUseCase(&storeFake{byID: map[string]*domain.Recommendation{"rec-7": rec}})

	got, err := uc.GetByID(context.Background(), " rec-7 ")
	if err != nil || got != rec {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if _, err := uc.GetByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := uc.GetByID(context.Background(), "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank id, got %v", err)
	}
}
