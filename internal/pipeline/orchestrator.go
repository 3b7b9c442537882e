package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newspulse/internal/model"
	"newspulse/pkg/llm"
	"newspulse/pkg/sentiment"
)

var (
	ErrTimeout          = errors.New("enrichment timed out")
	ErrArticleNotFound  = errors.New("article not found")
	ErrUnsupportedKind  = errors.New("unsupported analysis kind")
	ErrNoAnalyzer       = errors.New("no analyzer configured")
	ErrSelfComparison   = errors.New("article cannot be compared with itself")
	ErrMissingReference = errors.New("comparison needs a reference article")
)

const DefaultStoreTimeout = 5 * time.Second

type ArticleStore interface {
	UpsertArticles(ctx context.Context, inputs []model.ArticleInput) ([]model.Article, error)
	GetArticleByID(ctx context.Context, id int64) (*model.Article, error)
}

type ResultStore interface {
	CreatePending(ctx context.Context, result *model.EnrichmentResult) error
	Finish(ctx context.Context, result *model.EnrichmentResult) error
}

// ResultCache is the read path for already complete results.
type ResultCache interface {
	LookupComplete(ctx context.Context, articleIDs []int64, kind string) (map[int64]model.EnrichmentResult, error)
	Remember(ctx context.Context, result model.EnrichmentResult)
}

type Deps struct {
	Articles   ArticleStore
	Results    ResultStore
	Cache      ResultCache
	Sentiment  llm.SentimentScorer
	Structured llm.StructuredAnalyzer

	// Model names recorded on pending rows until the upstream reports its own.
	SentimentModel  string
	StructuredModel string

	// UnitTimeout bounds a single rhetoric or comparison call.
	UnitTimeout time.Duration

	// StoreTimeout bounds each result write. Writes outlive the unit deadline
	// so a timed-out unit can still record its error row.
	StoreTimeout time.Duration
}

type Orchestrator struct {
	deps Deps
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.UnitTimeout <= 0 {
		deps.UnitTimeout = DefaultUnitTimeout
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = DefaultStoreTimeout
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.deps.StoreTimeout)
}

func (o *Orchestrator) createPending(ctx context.Context, row *model.EnrichmentResult) error {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	return o.deps.Results.CreatePending(ctx, row)
}

func (o *Orchestrator) finish(ctx context.Context, row *model.EnrichmentResult) error {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	return o.deps.Results.Finish(ctx, row)
}

func (o *Orchestrator) remember(ctx context.Context, row model.EnrichmentResult) {
	ctx, cancel := o.storeContext(ctx)
	defer cancel()
	o.deps.Cache.Remember(ctx, row)
}

// ArticleWithStatus is an article as first reported to the caller: either
// complete with its cached result, or pending.
type ArticleWithStatus struct {
	Article model.Article
	Status  string
	Result  *model.EnrichmentResult
	Score   *float64
	Label   string
}

// Update is emitted once per pending article when its unit finishes.
type Update struct {
	BatchID   string
	ArticleID int64
	Status    string
	Result    *model.EnrichmentResult
	Score     *float64
	Label     string
	Err       error
}

// Batch holds the immediate snapshot of an Enrich call. Updates receives
// one value per pending article and is closed after the last one.
type Batch struct {
	ID       string
	Articles []ArticleWithStatus
	Updates  <-chan Update
}

// Pending counts the articles that will produce an update.
func (b *Batch) Pending() int {
	n := 0
	for _, a := range b.Articles {
		if a.Status == model.StatusPending {
			n++
		}
	}
	return n
}

// Enrich upserts the articles, reports the cached and pending split at once
// and hands pending articles to the dispatcher in the background. Only
// storage failures fail the batch.
//
// Units keep running if ctx is cancelled after Enrich returns; each one is
// bounded by the dispatcher's unit timeout.
func (o *Orchestrator) Enrich(ctx context.Context, inputs []model.ArticleInput, dispatcher Dispatcher) (*Batch, error) {
	if dispatcher == nil {
		dispatcher = NewFanOut(DefaultWorkers, DefaultUnitTimeout)
	}

	articles, err := o.deps.Articles.UpsertArticles(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("upsert articles: %w", err)
	}

	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	cached, err := o.deps.Cache.LookupComplete(ctx, ids, model.KindSentiment)
	if err != nil {
		return nil, fmt.Errorf("lookup cached results: %w", err)
	}

	batch := &Batch{
		ID:       uuid.NewString(),
		Articles: make([]ArticleWithStatus, 0, len(articles)),
	}

	for _, a := range articles {
		if result, ok := cached[a.ID]; ok {
			item := ArticleWithStatus{Article: a, Status: model.StatusComplete, Result: &result}
			if result.ComputedScore != nil {
				item.Score = result.ComputedScore
				item.Label = sentiment.Label(*result.ComputedScore)
			}
			batch.Articles = append(batch.Articles, item)
			continue
		}
		batch.Articles = append(batch.Articles, ArticleWithStatus{Article: a, Status: model.StatusPending})
	}

	// Buffered so units never block on a slow or absent reader.
	updates := make(chan Update, batch.Pending())
	batch.Updates = updates

	jobs := make([]Job, 0, batch.Pending())
	for _, item := range batch.Articles {
		if item.Status != model.StatusPending {
			continue
		}
		article := item.Article
		jobs = append(jobs, func(unitCtx context.Context) {
			updates <- o.scoreArticle(unitCtx, batch.ID, article)
		})
	}

	slog.Info("enrichment batch started",
		"batch_id", batch.ID,
		"articles", len(batch.Articles),
		"cached", len(batch.Articles)-len(jobs),
		"pending", len(jobs),
	)

	background := context.WithoutCancel(ctx)
	go func() {
		defer close(updates)
		if len(jobs) > 0 {
			dispatcher.Dispatch(background, jobs)
		}
		slog.Info("enrichment batch finished", "batch_id", batch.ID)
	}()

	return batch, nil
}

type sentimentOutcome struct {
	result *llm.SentimentResult
	err    error
}

// scoreArticle runs one sentiment unit: pending row first, then the call,
// then the terminal patch. ctx carries the unit deadline.
func (o *Orchestrator) scoreArticle(ctx context.Context, batchID string, article model.Article) Update {
	update := Update{BatchID: batchID, ArticleID: article.ID, Status: model.StatusError}

	row := &model.EnrichmentResult{
		ArticleID: article.ID,
		Kind:      model.KindSentiment,
		Model:     o.deps.SentimentModel,
	}
	if err := o.createPending(ctx, row); err != nil {
		slog.Error("error creating pending result", "batch_id", batchID, "article_id", article.ID, "error", err)
		update.Err = err
		return update
	}

	start := time.Now()
	done := make(chan sentimentOutcome, 1)
	go func() {
		r, err := o.deps.Sentiment.AnalyseSentiment(ctx, article.Text())
		done <- sentimentOutcome{result: r, err: err}
	}()

	var out sentimentOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = unitError(ctx)
	}
	row.LatencyMs = time.Since(start).Milliseconds()

	if out.err == nil {
		out.err = fillSentiment(row, out.result)
	}

	if out.err != nil {
		row.Status = model.StatusError
		row.ComputedScore = nil
		row.ErrorMessage = out.err.Error()
		slog.Warn("article enrichment failed", "batch_id", batchID, "article_id", article.ID, "error", out.err)
	}

	if err := o.finish(ctx, row); err != nil {
		slog.Error("error finishing result",
			"batch_id", batchID,
			"article_id", article.ID,
			"result_id", row.ID,
			"error", err,
		)
		// the stored row may still be pending; report what the caller can rely on
		failed := *row
		failed.Status = model.StatusError
		failed.ComputedScore = nil
		failed.ErrorMessage = err.Error()
		update.Result = &failed
		update.Err = err
		return update
	}

	update.Status = row.Status
	update.Result = row
	update.Err = out.err

	if row.Status == model.StatusComplete {
		update.Score = row.ComputedScore
		update.Label = sentiment.Label(*row.ComputedScore)
		o.remember(ctx, *row)
	}

	return update
}

func fillSentiment(row *model.EnrichmentResult, result *llm.SentimentResult) error {
	payload, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	score := sentiment.Score(result.Analysis)

	row.Status = model.StatusComplete
	row.Payload = payload
	row.ComputedScore = &score
	row.PromptTokens = result.PromptTokens
	row.CompletionTokens = result.CompletionTokens
	if result.Model != "" {
		row.Model = result.Model
	}
	return nil
}

func unitError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// Analyse runs one rhetoric or comparison analysis with the same
// pending-first lifecycle as the sentiment units. A complete rhetoric
// result is served from the cache. Analysis failures come back as an
// error-status result, not as an error.
func (o *Orchestrator) Analyse(ctx context.Context, kind string, articleID int64, referenceID *int64) (*model.EnrichmentResult, error) {
	if kind != model.KindRhetoric && kind != model.KindComparison {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if o.deps.Structured == nil {
		return nil, ErrNoAnalyzer
	}

	article, err := o.article(ctx, articleID)
	if err != nil {
		return nil, err
	}

	var reference *model.Article
	if kind == model.KindComparison {
		if referenceID == nil {
			return nil, ErrMissingReference
		}
		if *referenceID == articleID {
			return nil, ErrSelfComparison
		}
		if reference, err = o.article(ctx, *referenceID); err != nil {
			return nil, err
		}
	} else {
		referenceID = nil

		cached, err := o.deps.Cache.LookupComplete(ctx, []int64{articleID}, kind)
		if err != nil {
			return nil, fmt.Errorf("lookup cached results: %w", err)
		}
		if result, ok := cached[articleID]; ok {
			return &result, nil
		}
	}

	row := &model.EnrichmentResult{
		ArticleID:          articleID,
		ReferenceArticleID: referenceID,
		Kind:               kind,
		Model:              o.deps.StructuredModel,
	}
	if err := o.createPending(ctx, row); err != nil {
		return nil, err
	}

	unitCtx, cancel := context.WithTimeout(ctx, o.deps.UnitTimeout)
	defer cancel()

	start := time.Now()
	result, err := o.runStructured(unitCtx, kind, article, reference)
	row.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		row.Status = model.StatusError
		row.ErrorMessage = err.Error()
		slog.Warn("structured analysis failed", "kind", kind, "article_id", articleID, "error", err)
	} else {
		row.Status = model.StatusComplete
		row.Payload = result.Payload
		row.PromptTokens = result.PromptTokens
		row.CompletionTokens = result.CompletionTokens
		if result.Model != "" {
			row.Model = result.Model
		}
	}

	if err := o.finish(ctx, row); err != nil {
		slog.Error("error finishing result", "kind", kind, "article_id", articleID, "result_id", row.ID, "error", err)
		return nil, err
	}

	if kind == model.KindRhetoric {
		o.remember(ctx, *row)
	}

	return row, nil
}

func (o *Orchestrator) runStructured(ctx context.Context, kind string, article, reference *model.Article) (*llm.StructuredResult, error) {
	type outcome struct {
		result *llm.StructuredResult
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		var r *llm.StructuredResult
		var err error
		if kind == model.KindComparison {
			r, err = o.deps.Structured.CompareArticles(ctx, article.Text(), reference.Text())
		} else {
			r, err = o.deps.Structured.AnalyseRhetoric(ctx, article.Text())
		}
		done <- outcome{result: r, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, unitError(ctx)
	}
}

func (o *Orchestrator) article(ctx context.Context, id int64) (*model.Article, error) {
	article, err := o.deps.Articles.GetArticleByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	if article == nil {
		return nil, fmt.Errorf("%w: %d", ErrArticleNotFound, id)
	}
	return article, nil
}
