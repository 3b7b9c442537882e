package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"newspulse/internal/model"
	"newspulse/internal/pipeline"
	"newspulse/pkg/news"
)

type fakeSource struct {
	articles []model.ArticleInput
	err      error
	queries  []string
	max      int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Search(ctx context.Context, query string, max int) ([]model.ArticleInput, error) {
	f.queries = append(f.queries, query)
	f.max = max
	return f.articles, f.err
}

func (f *fakeSource) TopHeadlines(ctx context.Context, max int) ([]model.ArticleInput, error) {
	f.max = max
	return f.articles, f.err
}

type fakeEnricher struct {
	batch      *pipeline.Batch
	updates    []pipeline.Update
	result     *model.EnrichmentResult
	err        error
	dispatcher pipeline.Dispatcher
	inputs     []model.ArticleInput
	kind       string
	reference  *int64
}

func (f *fakeEnricher) Enrich(ctx context.Context, inputs []model.ArticleInput, dispatcher pipeline.Dispatcher) (*pipeline.Batch, error) {
	f.inputs = inputs
	f.dispatcher = dispatcher
	if f.err != nil {
		return nil, f.err
	}

	ch := make(chan pipeline.Update, len(f.updates))
	for _, u := range f.updates {
		ch <- u
	}
	close(ch)

	batch := *f.batch
	batch.Updates = ch
	return &batch, nil
}

func (f *fakeEnricher) Analyse(ctx context.Context, kind string, articleID int64, referenceID *int64) (*model.EnrichmentResult, error) {
	f.kind = kind
	f.reference = referenceID
	return f.result, f.err
}

type fakeHealth struct{ err error }

func (f *fakeHealth) Ping(ctx context.Context) error { return f.err }

func newTestRouter(source news.Source, enricher Enricher, health HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	feed := NewFeedHandler(source, enricher, health, DispatchSettings{Workers: 5})
	analysis := NewAnalysisHandler(enricher)
	r.GET("/search", feed.Search)
	r.GET("/headlines", feed.Headlines)
	r.GET("/health", feed.GetHealth)
	r.POST("/articles/:id/rhetoric", analysis.Rhetoric)
	r.POST("/articles/:id/compare/:ref", analysis.Compare)
	return r
}

type sseEvent struct {
	name string
	data string
}

func parseEvents(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.name = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				ev.data = strings.TrimPrefix(line, "data:")
			}
		}
		if ev.name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func sampleBatch() (*pipeline.Batch, []pipeline.Update) {
	score := 0.35
	cached := model.EnrichmentResult{ID: 7, ArticleID: 3, Kind: model.KindSentiment, Status: model.StatusComplete, ComputedScore: &score}

	batch := &pipeline.Batch{
		ID: "batch-1",
		Articles: []pipeline.ArticleWithStatus{
			{Article: model.Article{ID: 1, Title: "a"}, Status: model.StatusPending},
			{Article: model.Article{ID: 2, Title: "b"}, Status: model.StatusPending},
			{Article: model.Article{ID: 3, Title: "c"}, Status: model.StatusComplete, Result: &cached, Score: &score, Label: "Positive"},
		},
	}

	fresh := -0.5
	updates := []pipeline.Update{
		{BatchID: "batch-1", ArticleID: 2, Status: model.StatusComplete, Score: &fresh, Label: "Negative",
			Result: &model.EnrichmentResult{ID: 9, ArticleID: 2, Status: model.StatusComplete, ComputedScore: &fresh}},
		{BatchID: "batch-1", ArticleID: 1, Status: model.StatusError, Err: pipeline.ErrTimeout,
			Result: &model.EnrichmentResult{ID: 8, ArticleID: 1, Status: model.StatusError, ErrorMessage: pipeline.ErrTimeout.Error()}},
	}
	return batch, updates
}

func TestSearch_StreamsSnapshotUpdatesDone(t *testing.T) {
	batch, updates := sampleBatch()
	source := &fakeSource{articles: []model.ArticleInput{{URL: "https://x/1"}}}
	enricher := &fakeEnricher{batch: batch, updates: updates}
	r := newTestRouter(source, enricher, &fakeHealth{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/search?q=%20rates%20&max=5", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, []string{"rates"}, source.queries)
	assert.Equal(t, 5, source.max)
	assert.Equal(t, 1, len(enricher.inputs))

	events := parseEvents(w.Body.String())
	assert.Equal(t, 4, len(events))
	assert.Equal(t, "snapshot", events[0].name)
	assert.Equal(t, "update", events[1].name)
	assert.Equal(t, "update", events[2].name)
	assert.Equal(t, "done", events[3].name)

	var snapshot SnapshotResponse
	json.Unmarshal([]byte(events[0].data), &snapshot)
	assert.Equal(t, "batch-1", snapshot.BatchID)
	assert.Equal(t, 2, snapshot.Pending)
	assert.Equal(t, 3, len(snapshot.Articles))
	assert.Equal(t, model.StatusComplete, snapshot.Articles[2].Status)
	assert.Equal(t, 0.35, *snapshot.Articles[2].Score)
	assert.Equal(t, true, snapshot.Articles[0].Score == nil)

	var failed UpdateResponse
	json.Unmarshal([]byte(events[2].data), &failed)
	assert.Equal(t, int64(1), failed.ArticleID)
	assert.Equal(t, model.StatusError, failed.Status)
	assert.Equal(t, true, failed.Score == nil)
	assert.Equal(t, pipeline.ErrTimeout.Error(), failed.Error)

	var done DoneResponse
	json.Unmarshal([]byte(events[3].data), &done)
	assert.Equal(t, 1, done.Complete)
	assert.Equal(t, 1, done.Errors)
}

func TestSearch_EmptyQueryRejectedBeforeIO(t *testing.T) {
	source := &fakeSource{}
	enricher := &fakeEnricher{}
	r := newTestRouter(source, enricher, &fakeHealth{})

	for _, url := range []string{"/search", "/search?q=", "/search?q=%20%20"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", url, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	assert.Equal(t, 0, len(source.queries))
	assert.Equal(t, true, enricher.inputs == nil)
}

func TestSearch_PolicySelection(t *testing.T) {
	batch, _ := sampleBatch()

	tests := []struct {
		policy string
		code   int
		want   string
	}{
		{"", http.StatusOK, "*pipeline.FanOut"},
		{"fanout", http.StatusOK, "*pipeline.FanOut"},
		{"trickle", http.StatusOK, "*pipeline.Trickle"},
		{"bogus", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			enricher := &fakeEnricher{batch: batch}
			r := newTestRouter(&fakeSource{}, enricher, &fakeHealth{})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/headlines?policy="+tt.policy, nil))

			assert.Equal(t, tt.code, w.Code)
			if tt.want != "" {
				assert.Equal(t, tt.want, typeName(enricher.dispatcher))
			}
		})
	}
}

func typeName(d pipeline.Dispatcher) string {
	switch d.(type) {
	case *pipeline.FanOut:
		return "*pipeline.FanOut"
	case *pipeline.Trickle:
		return "*pipeline.Trickle"
	}
	return ""
}

func TestHeadlines_SourceError(t *testing.T) {
	source := &fakeSource{err: &news.UpstreamError{Source: "NewsAPI", StatusCode: 429}}
	r := newTestRouter(source, &fakeEnricher{}, &fakeHealth{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/headlines", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHeadlines_EnrichError(t *testing.T) {
	enricher := &fakeEnricher{err: errors.New("upsert articles: connection reset")}
	r := newTestRouter(&fakeSource{}, enricher, &fakeHealth{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/headlines?max=500", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetQueryMax_Clamps(t *testing.T) {
	batch, _ := sampleBatch()

	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"max=abc", 20},
		{"max=0", 20},
		{"max=7", 7},
		{"max=500", 100},
	}

	for _, tt := range tests {
		source := &fakeSource{}
		r := newTestRouter(source, &fakeEnricher{batch: batch}, &fakeHealth{})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/headlines?"+tt.query, nil))
		assert.Equal(t, tt.want, source.max)
	}
}

func TestGetHealth_Healthy(t *testing.T) {
	r := newTestRouter(&fakeSource{}, &fakeEnricher{}, &fakeHealth{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	var res map[string]string
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", res["status"])
}

func TestGetHealth_Unhealthy(t *testing.T) {
	r := newTestRouter(&fakeSource{}, &fakeEnricher{}, &fakeHealth{err: errors.New("DB down")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var res map[string]string
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, "unhealthy", res["status"])
}
