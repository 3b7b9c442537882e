package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"newspulse/db"
	"newspulse/internal/app"
	"newspulse/internal/config"
	"newspulse/internal/model"
	"newspulse/internal/pipeline"
	"newspulse/pkg/news"
)

// enricher pulls top headlines plus every configured topic and scores them
// one by one under the trickle policy, logging each result as it lands.
func main() {

	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	ctx := context.Background()

	err = app.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("error connecting to DB: %v", err)
	}
	defer app.Close()

	sources := app.Sources(cfg.Sources)
	if sources.Len() == 0 {
		slog.Error("no news source API keys configured")
		return
	}

	orchestrator := app.Orchestrator(cfg, db.DB, db.Redis)
	trickle := pipeline.NewTrickle(cfg.Dispatch.TrickleDelay, cfg.Dispatch.UnitTimeout)

	articles := collect(ctx, sources, cfg.Topics, cfg.MaxArticles)
	if len(articles) == 0 {
		slog.Warn("no articles fetched")
		return
	}

	batch, err := orchestrator.Enrich(ctx, articles, trickle)
	if err != nil {
		log.Fatalf("error starting enrichment: %v", err)
	}

	var complete, failed int
	for u := range batch.Updates {
		if u.Status != model.StatusComplete {
			failed++
			slog.Error("article enrichment failed", "batch_id", u.BatchID, "article_id", u.ArticleID, "error", u.Err)
			continue
		}

		complete++
		slog.Info("article enriched", "batch_id", u.BatchID, "article_id", u.ArticleID, "score", *u.Score, "label", u.Label)
	}

	slog.Info("enrichment complete",
		"batch_id", batch.ID,
		"articles", len(batch.Articles),
		"cached", len(batch.Articles)-batch.Pending(),
		"complete", complete,
		"errors", failed,
	)
}

func collect(ctx context.Context, sources news.Source, topics []string, max int) []model.ArticleInput {
	var articles []model.ArticleInput

	headlines, err := sources.TopHeadlines(ctx, max)
	if err != nil {
		slog.Error("error fetching headlines", "error", err)
	}
	articles = append(articles, headlines...)

	for _, topic := range topics {
		found, err := sources.Search(ctx, topic, max)
		if err != nil {
			slog.Error("error searching topic", "topic", topic, "error", err)
			continue
		}
		articles = append(articles, found...)
	}

	return articles
}
