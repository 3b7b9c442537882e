package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"newspulse/internal/model"
)

const (
	newsAPIBaseURL     = "https://newsapi.org"
	newsAPIMaxPageSize = 100
	newsAPIMaxPages    = 5
)

// NewsAPIClient pages through newsapi.org until max articles are collected
// or the upstream runs out.
type NewsAPIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewNewsAPIClient(apiKey string) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:     apiKey,
		baseURL:    newsAPIBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *NewsAPIClient) Name() string {
	return "NewsAPI"
}

func (c *NewsAPIClient) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	return c.paginate(ctx, "/v2/everything", params, max)
}

func (c *NewsAPIClient) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	params := url.Values{}
	params.Set("language", "en")
	return c.paginate(ctx, "/v2/top-headlines", params, max)
}

func (c *NewsAPIClient) paginate(ctx context.Context, path string, params url.Values, max int) ([]model.ArticleInput, error) {
	if max <= 0 {
		max = 20
	}

	pageSize := max
	if pageSize > newsAPIMaxPageSize {
		pageSize = newsAPIMaxPageSize
	}

	header := http.Header{}
	header.Set("X-Api-Key", c.apiKey)

	var articles []model.ArticleInput
	for page := 1; page <= newsAPIMaxPages && len(articles) < max; page++ {
		params.Set("pageSize", fmt.Sprint(pageSize))
		params.Set("page", fmt.Sprint(page))

		var raw newsAPIResponse
		if err := getJSON(ctx, c.httpClient, c.Name(), c.baseURL+path+"?"+params.Encode(), header, &raw); err != nil {
			return nil, err
		}
		if raw.Status == "error" {
			return nil, &UpstreamError{Source: c.Name(), StatusCode: http.StatusOK, Body: raw.Message}
		}

		for _, item := range raw.Articles {
			publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
			if err != nil {
				publishedAt = time.Time{}
			}

			articles = append(articles, model.ArticleInput{
				URL:         item.URL,
				Title:       item.Title,
				SourceName:  item.Source.Name,
				Content:     item.Content,
				Description: item.Description,
				PublishedAt: publishedAt,
			})
		}

		if len(raw.Articles) < pageSize || len(articles) >= raw.TotalResults {
			break
		}
	}

	return capArticles(articles, max), nil
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}
