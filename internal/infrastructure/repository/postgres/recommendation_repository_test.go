package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*RecommendationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewRecommendationRepository(db), mock, func() { _ = db.Close() }
}

func sampleRecommendation() *domain.Recommendation {
	return &domain.Recommendation{
		ID: "rec-1",
		Prediction: domain.PredictionResult{
			Primary: domain.RankedCrop{
				Label:       "rice",
				Probability: 0.8215,
				Info:        domain.CropInfo{DisplayName: "Rice", Season: "Kharif", Yield: "4500 kg/ha", ProfitMargin: "₹45000/ha", Known: true},
			},
			Alternatives: []domain.RankedCrop{
				{Label: "jute", Probability: 0.1, Info: domain.CropInfo{DisplayName: "Jute", Known: true}},
			},
		},
		Input: domain.Sample{
			N: 90, P: 42, K: 43, Temperature: 28, Humidity: 80, PH: 6.5, Rainfall: 200,
			State: "Punjab", Season: "Kharif", SoilType: "Clay", Irrigation: "Flood", FarmSize: "Medium",
		},
		ModelVersion: "rf-2024.1",
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func recommendationRow(t *testing.T, rec *domain.Recommendation) *sqlmock.Rows {
	t.Helper()
	prediction, err := json.Marshal(rec.Prediction)
	if err != nil {
		t.Fatalf("marshal prediction: %v", err)
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	return sqlmock.NewRows([]string{"id", "prediction", "input", "model_version", "created_at"}).
		AddRow(rec.ID, prediction, input, rec.ModelVersion, rec.CreatedAt)
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS recommendations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaRollsBackOnDDLFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS recommendations").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	if err := repo.EnsureSchema(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveInsertsPrimaryColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	rec := sampleRecommendation()

	mock.ExpectExec("INSERT INTO recommendations").
		WithArgs("rec-1", "rice", 0.8215, sqlmock.AnyArg(), sqlmock.AnyArg(), "rf-2024.1", rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDRoundTripsStoredJSON(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	want := sampleRecommendation()

	mock.ExpectQuery("SELECT id, prediction, input, model_version, created_at").
		WithArgs("rec-1").
		WillReturnRows(recommendationRow(t, want))

	got, err := repo.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("recommendation mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, prediction, input").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentOrdersAndLimits(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	rec := sampleRecommendation()

	mock.ExpectQuery("ORDER BY created_at DESC, id LIMIT").
		WithArgs(5).
		WillReturnRows(recommendationRow(t, rec))

	out, err := repo.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != "rec-1" {
		t.Fatalf("unexpected rows: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
