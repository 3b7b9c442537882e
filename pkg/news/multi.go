package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newspulse/internal/model"
)

// Multi queries every configured source in turn. A failing source is logged
// and skipped; the call fails only when all of them do.
type Multi struct {
	sources []Source
}

func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources}
}

func (m *Multi) Name() string {
	return "Multi"
}

func (m *Multi) Len() int {
	return len(m.sources)
}

func (m *Multi) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	if _, err := normalizeQuery(query); err != nil {
		return nil, err
	}
	return m.collect(max, func(s Source) ([]model.ArticleInput, error) {
		return s.Search(ctx, query, max)
	})
}

func (m *Multi) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	return m.collect(max, func(s Source) ([]model.ArticleInput, error) {
		return s.TopHeadlines(ctx, max)
	})
}

func (m *Multi) collect(max int, fetch func(Source) ([]model.ArticleInput, error)) ([]model.ArticleInput, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no news sources configured")
	}

	var all []model.ArticleInput
	var errs []error

	for _, source := range m.sources {
		articles, err := fetch(source)
		if err != nil {
			slog.Error("error fetching articles", "source", source.Name(), "error", err)
			errs = append(errs, err)
			continue
		}

		slog.Info("fetched articles", "source", source.Name(), "count", len(articles))
		all = append(all, articles...)
	}

	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}

	return capArticles(all, max), nil
}
