package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newspulse/internal/model"
	"newspulse/internal/pipeline"
	"newspulse/pkg/news"
)

type Enricher interface {
	Enrich(ctx context.Context, inputs []model.ArticleInput, dispatcher pipeline.Dispatcher) (*pipeline.Batch, error)
	Analyse(ctx context.Context, kind string, articleID int64, referenceID *int64) (*model.EnrichmentResult, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DispatchSettings parameterises the per-request dispatch policies.
type DispatchSettings struct {
	Workers      int
	UnitTimeout  time.Duration
	TrickleDelay time.Duration
}

const (
	PolicyFanOut  = "fanout"
	PolicyTrickle = "trickle"
)

type FeedHandler struct {
	source   news.Source
	enricher Enricher
	health   HealthChecker
	dispatch DispatchSettings
}

func NewFeedHandler(source news.Source, enricher Enricher, health HealthChecker, dispatch DispatchSettings) *FeedHandler {
	return &FeedHandler{source: source, enricher: enricher, health: health, dispatch: dispatch}
}

func (h *FeedHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	dispatcher, ok := h.dispatcher(c)
	if !ok {
		return
	}

	articles, err := h.source.Search(c.Request.Context(), query, getQueryMax(c))
	if err != nil {
		h.sourceError(c, err)
		return
	}

	h.stream(c, articles, dispatcher)
}

func (h *FeedHandler) Headlines(c *gin.Context) {
	dispatcher, ok := h.dispatcher(c)
	if !ok {
		return
	}

	articles, err := h.source.TopHeadlines(c.Request.Context(), getQueryMax(c))
	if err != nil {
		h.sourceError(c, err)
		return
	}

	h.stream(c, articles, dispatcher)
}

func (h *FeedHandler) GetHealth(c *gin.Context) {
	if err := h.health.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

// stream writes a snapshot event, one update event per pending article as it
// lands, then a done event.
func (h *FeedHandler) stream(c *gin.Context, articles []model.ArticleInput, dispatcher pipeline.Dispatcher) {
	batch, err := h.enricher.Enrich(c.Request.Context(), articles, dispatcher)
	if err != nil {
		slog.Error("error enriching articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", toSnapshotResponse(batch))
	c.Writer.Flush()

	done := DoneResponse{BatchID: batch.ID}
	for {
		select {
		case <-c.Request.Context().Done():
			slog.Info("client left before batch finished", "batch_id", batch.ID)
			return
		case u, ok := <-batch.Updates:
			if !ok {
				c.SSEvent("done", done)
				c.Writer.Flush()
				return
			}

			if u.Status == model.StatusComplete {
				done.Complete++
			} else {
				done.Errors++
			}

			c.SSEvent("update", toUpdateResponse(u))
			c.Writer.Flush()
		}
	}
}

func (h *FeedHandler) dispatcher(c *gin.Context) (pipeline.Dispatcher, bool) {
	switch c.Query("policy") {
	case "", PolicyFanOut:
		return pipeline.NewFanOut(h.dispatch.Workers, h.dispatch.UnitTimeout), true
	case PolicyTrickle:
		return pipeline.NewTrickle(h.dispatch.TrickleDelay, h.dispatch.UnitTimeout), true
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown dispatch policy"})
	return nil, false
}

func (h *FeedHandler) sourceError(c *gin.Context, err error) {
	if errors.Is(err, news.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	slog.Error("error fetching articles", "source", h.source.Name(), "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "News source error"})
}

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	paramValue := c.Query(name)

	if paramValue == "" {
		return defaultValue
	}

	parsedValue, err := strconv.Atoi(paramValue)
	if err != nil {
		slog.Warn("invalid query parameter, using default", "param", name, "value", paramValue, "error", err)
		return defaultValue
	}

	return parsedValue
}

func getQueryMax(c *gin.Context) int {
	const (
		defaultMax = 20
		maxMax     = 100
	)

	max := getQueryInt("max", defaultMax, c)
	if max < 1 {
		slog.Warn("invalid query parameter, using default", "param", "max", "value", max, "default", defaultMax)
		return defaultMax
	}

	if max > maxMax {
		slog.Warn("query parameter exceeds max, clamping", "param", "max", "value", max, "max", maxMax)
		return maxMax
	}

	return max
}
