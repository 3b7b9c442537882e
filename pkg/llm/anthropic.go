package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicStructuredModel = "claude-sonnet-4-5"

// AnthropicClient runs the structured analyses as forced tool use.
type AnthropicClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
	maxChars  int
	retry     retryPolicy
}

var _ StructuredAnalyzer = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg StructuredConfig) *AnthropicClient {
	cfg.applyDefaults(DefaultAnthropicStructuredModel)

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		maxChars:  cfg.MaxChars,
		retry:     newRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay),
	}
}

func (c *AnthropicClient) AnalyseRhetoric(ctx context.Context, text string) (*StructuredResult, error) {
	return runTool(ctx, c.retry, c.callTool, rhetoricTool, truncate(text, c.maxChars))
}

func (c *AnthropicClient) CompareArticles(ctx context.Context, text, reference string) (*StructuredResult, error) {
	return runTool(ctx, c.retry, c.callTool, comparisonTool, comparisonPrompt(text, reference, c.maxChars))
}

func (c *AnthropicClient) callTool(ctx context.Context, tool toolSpec, user string) (*toolOutput, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: tool.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        tool.Name,
					Description: anthropic.String(tool.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: tool.Properties,
						Required:   tool.Required,
					},
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: tool.Name},
		},
	})
	if err != nil {
		return nil, anthropicError(err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != tool.Name {
			continue
		}
		return &toolOutput{
			Arguments:        block.Input,
			Model:            string(resp.Model),
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		}, nil
	}

	return nil, fmt.Errorf("%w: anthropic reply has no %s tool use", ErrMalformedResponse, tool.Name)
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic API error: %w", err)
	}

	if msg, ok := errorMessage([]byte(apiErr.RawJSON())); ok {
		return &APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Message: msg}
	}

	return fmt.Errorf("%w: anthropic status %d with unparseable body", ErrMalformedResponse, apiErr.StatusCode)
}
