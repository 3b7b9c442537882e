package model

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusError    = "error"
)

const (
	KindSentiment  = "sentiment"
	KindRhetoric   = "rhetoric"
	KindComparison = "comparison"
)

// ArticleInput is a raw article as handed over by a news source.
type ArticleInput struct {
	URL         string
	Title       string
	SourceName  string
	Content     string
	Description string
	PublishedAt time.Time
}

type Article struct {
	ID          int64
	URL         string
	Title       string
	SourceName  string
	Content     string
	Description string
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Text is what gets sent for analysis: the body when present, otherwise
// whatever short copy the source gave us.
func (a Article) Text() string {
	parts := make([]string, 0, 3)
	if a.Title != "" {
		parts = append(parts, a.Title)
	}
	switch {
	case strings.TrimSpace(a.Content) != "":
		parts = append(parts, a.Content)
	case strings.TrimSpace(a.Description) != "":
		parts = append(parts, a.Description)
	}
	return strings.Join(parts, "\n\n")
}

// EnrichmentResult is one analysis attempt. Status moves from pending to
// complete or error exactly once.
type EnrichmentResult struct {
	ID                 int64
	ArticleID          int64
	ReferenceArticleID *int64
	Kind               string
	Model              string
	Status             string
	PromptTokens       int
	CompletionTokens   int
	LatencyMs          int64
	Payload            json.RawMessage
	ComputedScore      *float64
	ErrorMessage       string
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

func (r EnrichmentResult) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusError
}

func ValidKind(kind string) bool {
	switch kind {
	case KindSentiment, KindRhetoric, KindComparison:
		return true
	}
	return false
}

// NormalizeURL returns the identity key for an article URL, or "" when the
// input cannot be used as one.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	return u.String()
}

// DedupeInputs normalises URLs and collapses repeats, keeping the last
// occurrence in the position of the first.
func DedupeInputs(inputs []ArticleInput) []ArticleInput {
	index := make(map[string]int, len(inputs))
	out := make([]ArticleInput, 0, len(inputs))

	for _, in := range inputs {
		key := NormalizeURL(in.URL)
		if key == "" {
			continue
		}
		in.URL = key

		if i, ok := index[key]; ok {
			out[i] = in
			continue
		}
		index[key] = len(out)
		out = append(out, in)
	}

	return out
}
