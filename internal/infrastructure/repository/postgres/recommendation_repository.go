package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

type RecommendationRepository struct {
	db *sql.DB
}

func NewRecommendationRepository(db *sql.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

func (r *RecommendationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS recommendations (
	id TEXT PRIMARY KEY,
	crop TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	prediction JSONB NOT NULL,
	input JSONB NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_recommendations_crop ON recommendations(crop);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RecommendationRepository) Save(ctx context.Context, rec *domain.Recommendation) error {
	predictionJSON, err := json.Marshal(rec.Prediction)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO recommendations (id, crop, confidence, prediction, input, model_version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`,
		rec.ID, rec.Prediction.Primary.Label, rec.Prediction.Primary.Probability,
		predictionJSON, inputJSON, rec.ModelVersion, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

const selectRecommendation = `
SELECT id, prediction, input, model_version, created_at
FROM recommendations
`

func (r *RecommendationRepository) GetByID(ctx context.Context, id string) (*domain.Recommendation, error) {
	row := r.db.QueryRowContext(ctx, selectRecommendation+`WHERE id = $1`, id)

	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get recommendation", fmt.Errorf("recommendation %s", id))
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecommendationRepository) ListRecent(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	rows, err := r.db.QueryContext(ctx, selectRecommendation+`ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row scanner) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var predictionRaw, inputRaw []byte

	if err := row.Scan(&rec.ID, &predictionRaw, &inputRaw, &rec.ModelVersion, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan recommendation: %w", err)
	}
	if err := json.Unmarshal(predictionRaw, &rec.Prediction); err != nil {
		return nil, fmt.Errorf("unmarshal prediction: %w", err)
	}
	if err := json.Unmarshal(inputRaw, &rec.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
