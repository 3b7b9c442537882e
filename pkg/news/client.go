package news

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"newspulse/internal/model"
)

var ErrEmptyQuery = errors.New("search query is empty")

// UpstreamError is a non-200 reply from a news provider.
type UpstreamError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Source, e.StatusCode, e.Body)
}

type Source interface {
	Name() string
	Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error)
	TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error)
}

func normalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	return query, nil
}

func capArticles(articles []model.ArticleInput, max int) []model.ArticleInput {
	if max > 0 && len(articles) > max {
		return articles[:max]
	}
	return articles
}
