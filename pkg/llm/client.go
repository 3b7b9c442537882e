package llm

import (
	"context"
	"encoding/json"

	"newspulse/pkg/sentiment"
)

type SentimentResult struct {
	Analysis         sentiment.Analysis
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type StructuredResult struct {
	Payload          json.RawMessage
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// SentimentScorer asks for a JSON-only reply and parses the raw content.
type SentimentScorer interface {
	AnalyseSentiment(ctx context.Context, text string) (*SentimentResult, error)
}

// StructuredAnalyzer uses forced tool calls for the rhetoric and comparison
// analyses.
type StructuredAnalyzer interface {
	AnalyseRhetoric(ctx context.Context, text string) (*StructuredResult, error)
	CompareArticles(ctx context.Context, text, reference string) (*StructuredResult, error)
}
