package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"newspulse/pkg/sentiment"
)

const DefaultStructuredMaxTokens = 1024

type RhetoricAnalysis struct {
	DominantStyle  string             `json:"dominant_style"`
	Styles         sentiment.Rhetoric `json:"styles"`
	LoadedLanguage float64            `json:"loaded_language"`
	Devices        []string           `json:"devices"`
	Summary        string             `json:"summary"`
}

type ComparisonAnalysis struct {
	FramingDifference string   `json:"framing_difference"`
	ToneDifference    float64  `json:"tone_difference"`
	SharedFacts       []string `json:"shared_facts"`
	DivergentClaims   []string `json:"divergent_claims"`
	Summary           string   `json:"summary"`
}

// toolSpec describes one forced tool call: what we ask for and how the
// returned arguments are checked.
type toolSpec struct {
	Name        string
	Description string
	System      string
	Properties  map[string]any
	Required    []string
	decode      func(raw []byte) (json.RawMessage, error)
}

func (t toolSpec) schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": t.Properties,
		"required":   t.Required,
	}
}

type toolOutput struct {
	Arguments        []byte
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// toolCaller performs a single request; implementations map provider
// errors onto *APIError or ErrMalformedResponse.
type toolCaller func(ctx context.Context, tool toolSpec, user string) (*toolOutput, error)

func unitNumber(desc string) map[string]any {
	return map[string]any{"type": "number", "minimum": 0, "maximum": 1, "description": desc}
}

func stringList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

var rhetoricStyles = []string{"analytical", "supportive", "persuasive", "alarmist", "dismissive", "sarcastic"}

var rhetoricTool = toolSpec{
	Name:        "record_rhetoric_analysis",
	Description: "Record the rhetorical profile of a news article.",
	System: `You are a media analyst specialising in rhetoric. Read the article and record its rhetorical profile with the record_rhetoric_analysis tool.
Score each style from 0.0 to 1.0, list the rhetorical devices actually used, and summarise the framing in two sentences.`,
	Properties: map[string]any{
		"dominant_style": map[string]any{"type": "string", "enum": rhetoricStyles},
		"styles": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"analytical": unitNumber("reasoned, evidence-led"),
				"supportive": unitNumber("endorsing its subject"),
				"persuasive": unitNumber("arguing for a position"),
				"alarmist":   unitNumber("stoking fear or urgency"),
				"dismissive": unitNumber("belittling a view or actor"),
				"sarcastic":  unitNumber("ironic or mocking"),
			},
			"required": rhetoricStyles,
		},
		"loaded_language": unitNumber("intensity of emotionally loaded wording"),
		"devices":         stringList("rhetorical devices used, e.g. appeal to fear, false dichotomy"),
		"summary":         map[string]any{"type": "string"},
	},
	Required: []string{"dominant_style", "styles", "loaded_language", "devices", "summary"},
	decode: func(raw []byte) (json.RawMessage, error) {
		var a RhetoricAnalysis
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if strings.TrimSpace(a.Summary) == "" {
			return nil, fmt.Errorf("%w: rhetoric summary missing", ErrInvalidAnalysis)
		}
		return json.Marshal(a)
	},
}

var comparisonTool = toolSpec{
	Name:        "record_article_comparison",
	Description: "Record how two news articles on the same story differ.",
	System: `You are a media analyst. You receive two articles covering the same story: ARTICLE and REFERENCE.
Compare their framing with the record_article_comparison tool. tone_difference runs from -1.0 (ARTICLE far more negative) to 1.0 (ARTICLE far more positive).`,
	Properties: map[string]any{
		"framing_difference": map[string]any{"type": "string"},
		"tone_difference":    map[string]any{"type": "number", "minimum": -1, "maximum": 1},
		"shared_facts":       stringList("facts both articles report"),
		"divergent_claims":   stringList("claims only one article makes, or that conflict"),
		"summary":            map[string]any{"type": "string"},
	},
	Required: []string{"framing_difference", "tone_difference", "shared_facts", "divergent_claims", "summary"},
	decode: func(raw []byte) (json.RawMessage, error) {
		var a ComparisonAnalysis
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if strings.TrimSpace(a.Summary) == "" {
			return nil, fmt.Errorf("%w: comparison summary missing", ErrInvalidAnalysis)
		}
		if a.ToneDifference < -1 {
			a.ToneDifference = -1
		} else if a.ToneDifference > 1 {
			a.ToneDifference = 1
		}
		return json.Marshal(a)
	},
}

func comparisonPrompt(text, reference string, maxChars int) string {
	return fmt.Sprintf("ARTICLE:\n%s\n\nREFERENCE:\n%s", truncate(text, maxChars), truncate(reference, maxChars))
}

// runTool is the retry skeleton shared by every structured backend.
func runTool(ctx context.Context, retry retryPolicy, call toolCaller, tool toolSpec, user string) (*StructuredResult, error) {
	var result *StructuredResult

	err := retry.do(ctx, tool.Name, func(ctx context.Context) error {
		out, err := call(ctx, tool, user)
		if err != nil {
			return err
		}

		payload, err := tool.decode(out.Arguments)
		if err != nil {
			return err
		}

		result = &StructuredResult{
			Payload:          payload,
			Model:            out.Model,
			PromptTokens:     out.PromptTokens,
			CompletionTokens: out.CompletionTokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
