package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newspulse/internal/model"
)

type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const articleColumns = `id, url, title, source_name, content, description, published_at, created_at, updated_at`

// UpsertArticles inserts new URLs and refreshes the display fields of known
// ones inside a single transaction. Rows come back in input order with
// their identifiers; on any failure nothing is committed.
func (r *ArticleRepository) UpsertArticles(ctx context.Context, inputs []model.ArticleInput) ([]model.Article, error) {
	inputs = model.DedupeInputs(inputs)
	if len(inputs) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO article(url, title, source_name, content, description, published_at)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE
		SET title = EXCLUDED.title,
			content = EXCLUDED.content,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING `+articleColumns)
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	articles := make([]model.Article, 0, len(inputs))
	for _, in := range inputs {
		a, err := scanArticle(stmt.QueryRowContext(ctx,
			in.URL, in.Title, in.SourceName, in.Content, in.Description, nullTime(in.PublishedAt)))
		if err != nil {
			return nil, fmt.Errorf("upsert article %s: %w", in.URL, err)
		}
		articles = append(articles, *a)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepository) GetArticleByID(ctx context.Context, id int64) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, `
		SELECT `+articleColumns+`
		FROM article
		WHERE id = $1
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return a, nil
}

func (r *ArticleRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var a model.Article
	var publishedAt sql.NullTime

	err := row.Scan(&a.ID, &a.URL, &a.Title, &a.SourceName, &a.Content, &a.Description,
		&publishedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		a.PublishedAt = publishedAt.Time
	}

	return &a, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
