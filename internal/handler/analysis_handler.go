package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"newspulse/internal/model"
	"newspulse/internal/pipeline"
)

type AnalysisHandler struct {
	enricher Enricher
}

func NewAnalysisHandler(enricher Enricher) *AnalysisHandler {
	return &AnalysisHandler{enricher: enricher}
}

func (h *AnalysisHandler) Rhetoric(c *gin.Context) {
	articleID, ok := parseID(c, "id")
	if !ok {
		return
	}

	h.analyse(c, model.KindRhetoric, articleID, nil)
}

func (h *AnalysisHandler) Compare(c *gin.Context) {
	articleID, ok := parseID(c, "id")
	if !ok {
		return
	}

	referenceID, ok := parseID(c, "ref")
	if !ok {
		return
	}

	h.analyse(c, model.KindComparison, articleID, &referenceID)
}

func (h *AnalysisHandler) analyse(c *gin.Context, kind string, articleID int64, referenceID *int64) {
	result, err := h.enricher.Analyse(c.Request.Context(), kind, articleID, referenceID)

	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrArticleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	case errors.Is(err, pipeline.ErrSelfComparison),
		errors.Is(err, pipeline.ErrMissingReference),
		errors.Is(err, pipeline.ErrUnsupportedKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, pipeline.ErrNoAnalyzer):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analysis unavailable"})
		return
	default:
		slog.Error("error running analysis", "kind", kind, "article_id", articleID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if result.Status == model.StatusError {
		c.JSON(http.StatusBadGateway, toResultResponse(result))
		return
	}

	c.JSON(http.StatusOK, toResultResponse(result))
}

func parseID(c *gin.Context, param string) (int64, bool) {
	raw := c.Param(param)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		slog.Error("invalid article id", "id", raw, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid article id"})
		return 0, false
	}

	return id, true
}
