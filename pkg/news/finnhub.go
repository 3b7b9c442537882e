package news

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"newspulse/internal/model"
)

const finnhubSearchWindow = 7 * 24 * time.Hour

type FinnHubClient struct {
	client *finnhub.DefaultApiService
	now    func() time.Time
}

func NewFinnHubClient(apiKey string) *FinnHubClient {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	client := finnhub.NewAPIClient(cfg).DefaultApi
	return &FinnHubClient{client: client, now: time.Now}
}

func (c *FinnHubClient) Name() string {
	return "FinnHub"
}

func (c *FinnHubClient) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	res, resp, err := c.client.MarketNews(ctx).Category("general").Execute()
	if err != nil {
		return nil, c.wrap(resp, err)
	}

	articles := make([]model.ArticleInput, 0, len(res))
	for _, news := range res {
		articles = append(articles, finnhubArticle(news.Headline, news.Summary, news.Url, news.Source, news.Datetime))
	}

	return capArticles(articles, max), nil
}

// Search reads the query as a ticker symbol and returns that company's news
// from the last week.
func (c *FinnHubClient) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	to := c.now().UTC()
	from := to.Add(-finnhubSearchWindow)

	res, resp, err := c.client.CompanyNews(ctx).
		Symbol(strings.ToUpper(query)).
		From(from.Format("2006-01-02")).
		To(to.Format("2006-01-02")).
		Execute()
	if err != nil {
		return nil, c.wrap(resp, err)
	}

	articles := make([]model.ArticleInput, 0, len(res))
	for _, news := range res {
		articles = append(articles, finnhubArticle(news.Headline, news.Summary, news.Url, news.Source, news.Datetime))
	}

	return capArticles(articles, max), nil
}

func (c *FinnHubClient) wrap(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode != http.StatusOK {
		return &UpstreamError{Source: c.Name(), StatusCode: resp.StatusCode, Body: err.Error()}
	}
	return fmt.Errorf("finnhub fetch: %w", err)
}

func finnhubArticle(headline, summary, url, source *string, datetime *int64) model.ArticleInput {
	var a model.ArticleInput

	if headline != nil {
		a.Title = *headline
	}

	if summary != nil {
		a.Description = *summary
	}

	if url != nil {
		a.URL = *url
	}

	if source != nil {
		a.SourceName = *source
	}

	if datetime != nil {
		a.PublishedAt = time.Unix(*datetime, 0)
	}

	return a
}
