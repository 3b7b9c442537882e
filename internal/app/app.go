// Package app wires configuration into the concrete stores, clients and
// pipeline shared by the commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"newspulse/db"
	"newspulse/internal/cache"
	"newspulse/internal/config"
	"newspulse/internal/handler"
	"newspulse/internal/pipeline"
	"newspulse/internal/repository"
	"newspulse/pkg/llm"
	"newspulse/pkg/news"
)

// Connect opens Postgres, applies migrations and tries Redis. Without Redis
// the pipeline still runs, reading completed results from Postgres only.
func Connect(ctx context.Context, cfg config.Config) error {
	pool := db.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	if err := db.Connect(cfg.DatabaseURL, pool); err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.Migrate(db.DB); err != nil {
		return err
	}

	if err := db.ConnectRedis(ctx, cfg.RedisURL); err != nil {
		slog.Warn("redis unavailable, caching disabled", "error", err)
		db.CloseRedis()
		db.Redis = nil
	}

	return nil
}

func Close() {
	db.CloseRedis()
	db.Close()
}

// Sources builds one client per configured API key.
func Sources(cfg config.SourcesConfig) *news.Multi {
	var sources []news.Source
	if cfg.NewsAPIKey != "" {
		sources = append(sources, news.NewNewsAPIClient(cfg.NewsAPIKey))
	}
	if cfg.FinnhubKey != "" {
		sources = append(sources, news.NewFinnHubClient(cfg.FinnhubKey))
	}
	if cfg.AlphaVantageKey != "" {
		sources = append(sources, news.NewAlphaVantageClient(cfg.AlphaVantageKey))
	}
	if cfg.MassiveKey != "" {
		sources = append(sources, news.NewMassiveClient(cfg.MassiveKey))
	}
	return news.NewMulti(sources...)
}

// Structured returns the configured tool-calling backend and the model name
// it will use, or nil when the provider has no API key.
func Structured(cfg config.StructuredConfig) (llm.StructuredAnalyzer, string) {
	sc := llm.StructuredConfig{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, ""
		}
		sc.APIKey = cfg.AnthropicAPIKey
		return llm.NewAnthropicClient(sc), modelOr(cfg.Model, llm.DefaultAnthropicStructuredModel)
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil, ""
		}
		sc.APIKey = cfg.OpenAIAPIKey
		return llm.NewOpenAIClient(sc), modelOr(cfg.Model, llm.DefaultOpenAIStructuredModel)
	}
}

func Sentiment(cfg config.SentimentConfig) *llm.SentimentClient {
	return llm.NewSentimentClient(llm.SentimentConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		MaxChars:    cfg.MaxChars,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
}

func Orchestrator(cfg config.Config, conn *sql.DB, rdb *redis.Client) *pipeline.Orchestrator {
	results := repository.NewEnrichmentRepository(conn)
	structured, structuredModel := Structured(cfg.Structured)

	deps := pipeline.Deps{
		Articles:        repository.NewArticleRepository(conn),
		Results:         results,
		Cache:           cache.NewRedisCache(rdb, results, cfg.Cache.TTL),
		Sentiment:       Sentiment(cfg.Sentiment),
		SentimentModel:  modelOr(cfg.Sentiment.Model, llm.DefaultSentimentModel),
		Structured:      structured,
		StructuredModel: structuredModel,
		UnitTimeout:     cfg.Dispatch.UnitTimeout,
	}

	return pipeline.NewOrchestrator(deps)
}

func DispatchSettings(cfg config.DispatchConfig) handler.DispatchSettings {
	return handler.DispatchSettings{
		Workers:      cfg.Workers,
		UnitTimeout:  cfg.UnitTimeout,
		TrickleDelay: cfg.TrickleDelay,
	}
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
