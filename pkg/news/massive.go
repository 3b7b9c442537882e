package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"newspulse/internal/model"
)

type MassiveClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewMassiveClient(apiKey string) *MassiveClient {
	return &MassiveClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MassiveClient) Name() string {
	return "Massive"
}

func (c *MassiveClient) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	return c.fetch(ctx, "", max)
}

// Search treats the query as a single ticker.
func (c *MassiveClient) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, query, max)
}

func (c *MassiveClient) fetch(ctx context.Context, ticker string, max int) ([]model.ArticleInput, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(max))
	params.Set("order", "desc")
	params.Set("sort", "published_utc")
	params.Set("apiKey", c.apiKey)
	if ticker != "" {
		params.Set("ticker", ticker)
	}

	var raw massiveResponse
	if err := getJSON(ctx, c.httpClient, c.Name(), "https://api.massive.com/v2/reference/news?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	articles := make([]model.ArticleInput, 0, len(raw.Results))
	for _, item := range raw.Results {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedUTC)
		if err != nil {
			publishedAt = time.Time{}
		}

		articles = append(articles, model.ArticleInput{
			URL:         item.ArticleURL,
			Title:       item.Title,
			SourceName:  item.Publisher.Name,
			Description: item.Description,
			PublishedAt: publishedAt,
		})
	}

	return capArticles(articles, max), nil
}

type massiveResponse struct {
	Results []massiveResult `json:"results"`
}

type massiveResult struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	ArticleURL   string           `json:"article_url"`
	PublishedUTC string           `json:"published_utc"`
	Publisher    massivePublisher `json:"publisher"`
}

type massivePublisher struct {
	Name string `json:"name"`
}
