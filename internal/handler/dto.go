package handler

import (
	"encoding/json"
	"time"

	"newspulse/internal/model"
	"newspulse/internal/pipeline"
)

type ArticleResponse struct {
	ID          int64           `json:"id"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	SourceName  string          `json:"source_name"`
	Description string          `json:"description"`
	PublishedAt string          `json:"published_at,omitempty"`
	Status      string          `json:"status"`
	Score       *float64        `json:"score"`
	Label       string          `json:"label,omitempty"`
	Result      *ResultResponse `json:"result,omitempty"`
}

type ResultResponse struct {
	ID                 int64           `json:"id"`
	ArticleID          int64           `json:"article_id"`
	ReferenceArticleID *int64          `json:"reference_article_id,omitempty"`
	Kind               string          `json:"kind"`
	Model              string          `json:"model"`
	Status             string          `json:"status"`
	PromptTokens       int             `json:"prompt_tokens"`
	CompletionTokens   int             `json:"completion_tokens"`
	LatencyMs          int64           `json:"latency_ms"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Score              *float64        `json:"score"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          string          `json:"created_at"`
	CompletedAt        string          `json:"completed_at,omitempty"`
}

// SnapshotResponse is the first event of a stream: every article with its
// status at the time of the request.
type SnapshotResponse struct {
	BatchID  string            `json:"batch_id"`
	Articles []ArticleResponse `json:"articles"`
	Pending  int               `json:"pending"`
}

type UpdateResponse struct {
	BatchID   string          `json:"batch_id"`
	ArticleID int64           `json:"article_id"`
	Status    string          `json:"status"`
	Score     *float64        `json:"score"`
	Label     string          `json:"label,omitempty"`
	Result    *ResultResponse `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type DoneResponse struct {
	BatchID  string `json:"batch_id"`
	Complete int    `json:"complete"`
	Errors   int    `json:"errors"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toResultResponse(r *model.EnrichmentResult) *ResultResponse {
	if r == nil {
		return nil
	}

	res := &ResultResponse{
		ID:                 r.ID,
		ArticleID:          r.ArticleID,
		ReferenceArticleID: r.ReferenceArticleID,
		Kind:               r.Kind,
		Model:              r.Model,
		Status:             r.Status,
		PromptTokens:       r.PromptTokens,
		CompletionTokens:   r.CompletionTokens,
		LatencyMs:          r.LatencyMs,
		Payload:            r.Payload,
		Score:              r.ComputedScore,
		Error:              r.ErrorMessage,
		CreatedAt:          formatTime(r.CreatedAt),
	}
	if r.CompletedAt != nil {
		res.CompletedAt = formatTime(*r.CompletedAt)
	}
	return res
}

func toArticleResponse(a pipeline.ArticleWithStatus) ArticleResponse {
	return ArticleResponse{
		ID:          a.Article.ID,
		URL:         a.Article.URL,
		Title:       a.Article.Title,
		SourceName:  a.Article.SourceName,
		Description: a.Article.Description,
		PublishedAt: formatTime(a.Article.PublishedAt),
		Status:      a.Status,
		Score:       a.Score,
		Label:       a.Label,
		Result:      toResultResponse(a.Result),
	}
}

func toSnapshotResponse(b *pipeline.Batch) SnapshotResponse {
	res := SnapshotResponse{
		BatchID:  b.ID,
		Articles: make([]ArticleResponse, 0, len(b.Articles)),
		Pending:  b.Pending(),
	}
	for _, a := range b.Articles {
		res.Articles = append(res.Articles, toArticleResponse(a))
	}
	return res
}

func toUpdateResponse(u pipeline.Update) UpdateResponse {
	res := UpdateResponse{
		BatchID:   u.BatchID,
		ArticleID: u.ArticleID,
		Status:    u.Status,
		Score:     u.Score,
		Label:     u.Label,
		Result:    toResultResponse(u.Result),
	}
	if u.Err != nil {
		res.Error = u.Err.Error()
	}
	return res
}
