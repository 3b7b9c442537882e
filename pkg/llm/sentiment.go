package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"newspulse/pkg/sentiment"
)

const (
	DefaultSentimentBaseURL = "https://api.openai.com/v1/"
	DefaultSentimentModel   = "gpt-4o-mini"

	defaultSentimentMaxTokens = 512
)

const sentimentSystemPrompt = `You are a media analyst. Analyse the tone, emotion, rhetoric and certainty of the news article you receive.

Respond with a single JSON object and nothing else: no prose, no markdown, no code fences.
Every field must be present. Every number is between 0.0 and 1.0.

{
  "tone": "positive" | "neutral" | "negative",
  "emotions": {
    "joy": 0.0, "trust": 0.0, "fear": 0.0, "anger": 0.0,
    "sadness": 0.0, "anticipation": 0.0, "disgust": 0.0, "surprise": 0.0
  },
  "rhetoric": {
    "analytical": 0.0, "supportive": 0.0, "persuasive": 0.0,
    "alarmist": 0.0, "dismissive": 0.0, "sarcastic": 0.0
  },
  "loaded_language": 0.0,
  "certainty": { "certainty": 0.0, "speculation": 0.0 }
}`

type SentimentConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	MaxChars    int
	MaxAttempts int
	RetryDelay  time.Duration
	HTTPClient  *http.Client
}

// SentimentClient asks an OpenAI-compatible chat model for a plain JSON
// reply. The content is parsed directly instead of going through tool calling.
type SentimentClient struct {
	client    *openai.Client
	model     openai.ChatModel
	maxTokens int
	maxChars  int
	retry     retryPolicy
}

var _ SentimentScorer = (*SentimentClient)(nil)

func NewSentimentClient(cfg SentimentConfig) *SentimentClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSentimentBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultSentimentModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultSentimentMaxTokens
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return &SentimentClient{
		client:    &client,
		model:     openai.ChatModel(cfg.Model),
		maxTokens: cfg.MaxTokens,
		maxChars:  cfg.MaxChars,
		retry:     newRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
	}
}

func (c *SentimentClient) AnalyseSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(sentimentSystemPrompt),
			openai.UserMessage(truncate(text, c.maxChars)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	var result *SentimentResult
	err := c.retry.do(ctx, "sentiment", func(ctx context.Context) error {
		r, err := c.send(ctx, params)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *SentimentClient) send(ctx context.Context, params openai.ChatCompletionNewParams) (*SentimentResult, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, openAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)

	var analysis sentiment.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		slog.Debug("unparseable sentiment content", "content", content, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}
	analysis.Normalize()

	model := resp.Model
	if model == "" {
		model = string(c.model)
	}

	return &SentimentResult{
		Analysis:         analysis,
		Model:            model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
