package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"newspulse/internal/model"
)

type AlphaVantageClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewAlphaVantageClient(apiKey string) *AlphaVantageClient {
	return &AlphaVantageClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *AlphaVantageClient) Name() string {
	return "AlphaVantage"
}

func (c *AlphaVantageClient) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	return c.fetch(ctx, "", max)
}

// Search treats the query as a comma separated ticker list.
func (c *AlphaVantageClient) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, query, max)
}

func (c *AlphaVantageClient) fetch(ctx context.Context, tickers string, max int) ([]model.ArticleInput, error) {
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("limit", fmt.Sprint(max))
	params.Set("sort", "LATEST")
	params.Set("apikey", c.apiKey)
	if tickers != "" {
		params.Set("tickers", tickers)
	}

	var raw avResponse
	if err := getJSON(ctx, c.httpClient, c.Name(), "https://www.alphavantage.co/query?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	articles := make([]model.ArticleInput, 0, len(raw.Feed))
	for _, item := range raw.Feed {
		publishedAt, err := time.Parse("20060102T150405", item.TimePublished)
		if err != nil {
			publishedAt = time.Time{}
		}

		articles = append(articles, model.ArticleInput{
			URL:         item.URL,
			Title:       item.Title,
			SourceName:  item.Source,
			Description: item.Summary,
			PublishedAt: publishedAt,
		})
	}

	return capArticles(articles, max), nil
}

type avResponse struct {
	Feed []avFeedItem `json:"feed"`
}

type avFeedItem struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	URL           string `json:"url"`
	Source        string `json:"source"`
	TimePublished string `json:"time_published"`
}
