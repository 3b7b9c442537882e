package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"newspulse/internal/model"
	"newspulse/pkg/llm"
	"newspulse/pkg/sentiment"
)

type fakeArticles struct {
	mu     sync.Mutex
	byURL  map[string]model.Article
	nextID int64
	err    error
}

func newFakeArticles() *fakeArticles {
	return &fakeArticles{byURL: make(map[string]model.Article)}
}

func (f *fakeArticles) UpsertArticles(ctx context.Context, inputs []model.ArticleInput) ([]model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var out []model.Article
	for _, in := range model.DedupeInputs(inputs) {
		a, ok := f.byURL[in.URL]
		if !ok {
			f.nextID++
			a = model.Article{ID: f.nextID, URL: in.URL, CreatedAt: time.Now()}
		}
		a.Title = in.Title
		a.Content = in.Content
		a.UpdatedAt = time.Now()
		f.byURL[in.URL] = a
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeArticles) GetArticleByID(ctx context.Context, id int64) (*model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.byURL {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

type fakeResults struct {
	mu     sync.Mutex
	rows   map[int64]model.EnrichmentResult
	nextID int64

	// finishErr fails Finish; hangFinish blocks it until its context ends.
	finishErr  error
	hangFinish bool
}

func newFakeResults() *fakeResults {
	return &fakeResults{rows: make(map[int64]model.EnrichmentResult)}
}

func (f *fakeResults) CreatePending(ctx context.Context, r *model.EnrichmentResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	r.ID = f.nextID
	r.Status = model.StatusPending
	r.CreatedAt = time.Now()
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeResults) Finish(ctx context.Context, r *model.EnrichmentResult) error {
	if f.hangFinish {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finishErr != nil {
		return f.finishErr
	}
	if f.rows[r.ID].Status != model.StatusPending {
		return errors.New("not pending")
	}
	now := time.Now()
	r.CompletedAt = &now
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeResults) forArticle(articleID int64) []model.EnrichmentResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.EnrichmentResult
	for _, r := range f.rows {
		if r.ArticleID == articleID {
			out = append(out, r)
		}
	}
	return out
}

type fakeCache struct {
	mu         sync.Mutex
	complete   map[string]map[int64]model.EnrichmentResult
	remembered []model.EnrichmentResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{complete: make(map[string]map[int64]model.EnrichmentResult)}
}

func (f *fakeCache) put(r model.EnrichmentResult) {
	if f.complete[r.Kind] == nil {
		f.complete[r.Kind] = make(map[int64]model.EnrichmentResult)
	}
	f.complete[r.Kind][r.ArticleID] = r
}

func (f *fakeCache) LookupComplete(ctx context.Context, ids []int64, kind string) (map[int64]model.EnrichmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[int64]model.EnrichmentResult)
	for _, id := range ids {
		if r, ok := f.complete[kind][id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (f *fakeCache) Remember(ctx context.Context, r model.EnrichmentResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.remembered = append(f.remembered, r)
	f.put(r)
}

type fakeScorer struct {
	calls int32
	fn    func(ctx context.Context, text string) (*llm.SentimentResult, error)
}

func (f *fakeScorer) AnalyseSentiment(ctx context.Context, text string) (*llm.SentimentResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, text)
}

func positiveResult() *llm.SentimentResult {
	return &llm.SentimentResult{
		Analysis: sentiment.Analysis{
			Tone:     sentiment.TonePositive,
			Emotions: &sentiment.Emotions{Joy: 0.8, Trust: 0.6},
		},
		Model:            "gpt-4o-mini-2024-07-18",
		PromptTokens:     100,
		CompletionTokens: 50,
	}
}

type fakeStructured struct {
	calls   int32
	payload string
	err     error
}

func (f *fakeStructured) AnalyseRhetoric(ctx context.Context, text string) (*llm.StructuredResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.StructuredResult{Payload: []byte(f.payload), Model: "gpt-4.1", PromptTokens: 10, CompletionTokens: 5}, nil
}

func (f *fakeStructured) CompareArticles(ctx context.Context, text, reference string) (*llm.StructuredResult, error) {
	return f.AnalyseRhetoric(ctx, text+reference)
}

// gatedDispatcher holds every job until release is closed.
type gatedDispatcher struct {
	release chan struct{}
	next    Dispatcher
}

func (g *gatedDispatcher) Dispatch(ctx context.Context, jobs []Job) {
	<-g.release
	g.next.Dispatch(ctx, jobs)
}

func collect(updates <-chan Update) []Update {
	var out []Update
	for u := range updates {
		out = append(out, u)
	}
	return out
}
