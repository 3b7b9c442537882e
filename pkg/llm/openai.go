package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultOpenAIStructuredModel = "gpt-4.1"

type StructuredConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	MaxChars    int
	MaxAttempts int
	RetryDelay  time.Duration
}

func (cfg *StructuredConfig) applyDefaults(model string) {
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultStructuredMaxTokens
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
}

// OpenAIClient runs the structured analyses as forced function calls.
type OpenAIClient struct {
	client    *openai.Client
	model     openai.ChatModel
	maxTokens int
	maxChars  int
	retry     retryPolicy
}

var _ StructuredAnalyzer = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg StructuredConfig) *OpenAIClient {
	cfg.applyDefaults(DefaultOpenAIStructuredModel)

	// Retries are handled by retryPolicy so the budget is counted once.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:    &client,
		model:     openai.ChatModel(cfg.Model),
		maxTokens: cfg.MaxTokens,
		maxChars:  cfg.MaxChars,
		retry:     newRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
	}
}

func (c *OpenAIClient) AnalyseRhetoric(ctx context.Context, text string) (*StructuredResult, error) {
	return runTool(ctx, c.retry, c.callTool, rhetoricTool, truncate(text, c.maxChars))
}

func (c *OpenAIClient) CompareArticles(ctx context.Context, text, reference string) (*StructuredResult, error) {
	return runTool(ctx, c.retry, c.callTool, comparisonTool, comparisonPrompt(text, reference, c.maxChars))
}

func (c *OpenAIClient) callTool(ctx context.Context, tool toolSpec, user string) (*toolOutput, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(tool.System),
			openai.UserMessage(user),
		},
		Tools: []openai.ChatCompletionToolParam{
			{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.schema()),
				},
			},
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tool.Name},
			},
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return nil, openAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from openai", ErrMalformedResponse)
	}

	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name != tool.Name {
			continue
		}
		return &toolOutput{
			Arguments:        []byte(call.Function.Arguments),
			Model:            resp.Model,
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		}, nil
	}

	return nil, fmt.Errorf("%w: openai reply has no %s call", ErrMalformedResponse, tool.Name)
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("openai API error: %w", err)
	}

	if apiErr.Message != "" {
		return &APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	if msg, ok := errorMessage([]byte(apiErr.RawJSON())); ok {
		return &APIError{Provider: "openai", StatusCode: apiErr.StatusCode, Message: msg}
	}

	return fmt.Errorf("%w: openai status %d with unparseable body", ErrMalformedResponse, apiErr.StatusCode)
}
