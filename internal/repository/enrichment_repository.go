package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"newspulse/internal/model"
)

// ErrResultNotPending is returned when a patch targets a row that already
// reached a terminal status.
var ErrResultNotPending = errors.New("enrichment result is not pending")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var resultColumns = []string{
	"id", "article_id", "reference_article_id", "kind", "model", "status",
	"prompt_tokens", "completion_tokens", "latency_ms", "payload", "computed_score",
	"error_message", "created_at", "completed_at",
}

type EnrichmentRepository struct {
	db *sql.DB
}

func NewEnrichmentRepository(db *sql.DB) *EnrichmentRepository {
	return &EnrichmentRepository{db: db}
}

// CreatePending records an attempt before the upstream call is made.
func (r *EnrichmentRepository) CreatePending(ctx context.Context, result *model.EnrichmentResult) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO enrichment_result(article_id, reference_article_id, kind, model, status)
		VALUES($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, result.ArticleID, result.ReferenceArticleID, result.Kind, result.Model, model.StatusPending).
		Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending result: %w", err)
	}

	result.Status = model.StatusPending
	return nil
}

// Finish patches a pending row to its terminal status. Rows that are no
// longer pending are left untouched.
func (r *EnrichmentRepository) Finish(ctx context.Context, result *model.EnrichmentResult) error {
	if !result.Terminal() {
		return fmt.Errorf("finish result %d: status %q is not terminal", result.ID, result.Status)
	}

	var payload interface{}
	if len(result.Payload) > 0 {
		payload = string(result.Payload)
	}

	var completedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		UPDATE enrichment_result
		SET status = $1,
			model = $2,
			prompt_tokens = $3,
			completion_tokens = $4,
			latency_ms = $5,
			payload = $6::jsonb,
			computed_score = $7,
			error_message = $8,
			completed_at = NOW()
		WHERE id = $9 AND status = $10
		RETURNING completed_at
	`, result.Status, result.Model, result.PromptTokens, result.CompletionTokens, result.LatencyMs,
		payload, result.ComputedScore, result.ErrorMessage, result.ID, model.StatusPending).Scan(&completedAt)

	if err == sql.ErrNoRows {
		return ErrResultNotPending
	}

	if err != nil {
		return fmt.Errorf("patch result %d: %w", result.ID, err)
	}

	result.CompletedAt = &completedAt
	return nil
}

// LookupComplete returns the newest complete result of the given kind for
// each article that has one.
func (r *EnrichmentRepository) LookupComplete(ctx context.Context, articleIDs []int64, kind string) (map[int64]model.EnrichmentResult, error) {
	results := make(map[int64]model.EnrichmentResult)
	if len(articleIDs) == 0 {
		return results, nil
	}

	query, args, err := psql.Select(resultColumns...).
		Options("DISTINCT ON (article_id)").
		From("enrichment_result").
		Where(sq.Expr("article_id = ANY(?)", pq.Array(articleIDs))).
		Where(sq.Eq{"kind": kind, "status": model.StatusComplete}).
		OrderBy("article_id", "created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup complete results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results[res.ArticleID] = *res
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func scanResult(row rowScanner) (*model.EnrichmentResult, error) {
	var res model.EnrichmentResult
	var reference sql.NullInt64
	var payload []byte
	var score sql.NullFloat64
	var completedAt sql.NullTime

	err := row.Scan(&res.ID, &res.ArticleID, &reference, &res.Kind, &res.Model, &res.Status,
		&res.PromptTokens, &res.CompletionTokens, &res.LatencyMs, &payload, &score,
		&res.ErrorMessage, &res.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if reference.Valid {
		res.ReferenceArticleID = &reference.Int64
	}
	if payload != nil {
		res.Payload = payload
	}
	if score.Valid {
		res.ComputedScore = &score.Float64
	}
	if completedAt.Valid {
		res.CompletedAt = &completedAt.Time
	}

	return &res, nil
}
