package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "NEWSPULSE_CONFIG"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is read from defaults, then the YAML file named by
// NEWSPULSE_CONFIG, then the environment. Later sources win.
type Config struct {
	Port        string   `yaml:"port"`
	FrontendURL string   `yaml:"frontendUrl"`
	DatabaseURL string   `yaml:"databaseUrl"`
	RedisURL    string   `yaml:"redisUrl"`
	Topics      []string `yaml:"topics"`
	MaxArticles int      `yaml:"maxArticles"`

	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Structured StructuredConfig `yaml:"structured"`
	Sources    SourcesConfig    `yaml:"sources"`
}

// DatabaseConfig sizes the Postgres connection pool.
type DatabaseConfig struct {
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type DispatchConfig struct {
	Workers      int           `yaml:"workers"`
	UnitTimeout  time.Duration `yaml:"unitTimeout"`
	TrickleDelay time.Duration `yaml:"trickleDelay"`
}

type SentimentConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"apiKey"`
	MaxTokens   int           `yaml:"maxTokens"`
	MaxChars    int           `yaml:"maxChars"`
	MaxAttempts int           `yaml:"maxAttempts"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

// StructuredConfig selects the backend for rhetoric and comparison
// analyses. An empty Model means the backend's default.
type StructuredConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"baseUrl"`
	OpenAIAPIKey    string        `yaml:"openaiApiKey"`
	AnthropicAPIKey string        `yaml:"anthropicApiKey"`
	MaxTokens       int           `yaml:"maxTokens"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
}

type SourcesConfig struct {
	NewsAPIKey      string `yaml:"newsapiKey"`
	FinnhubKey      string `yaml:"finnhubKey"`
	AlphaVantageKey string `yaml:"alphaVantageKey"`
	MassiveKey      string `yaml:"massiveKey"`
}

func Default() Config {
	return Config{
		Port:        "8080",
		FrontendURL: "http://localhost:3000",
		RedisURL:    "localhost:6379",
		MaxArticles: 20,
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{TTL: 24 * time.Hour},
		Dispatch: DispatchConfig{
			Workers:      5,
			UnitTimeout:  30 * time.Second,
			TrickleDelay: 300 * time.Millisecond,
		},
		Sentiment: SentimentConfig{
			BaseURL:     "https://api.openai.com/v1/",
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			MaxChars:    4000,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
		},
		Structured: StructuredConfig{
			Provider:    ProviderOpenAI,
			MaxTokens:   1024,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
		},
	}
}

func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.FrontendURL, "FRONTEND_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Sentiment.APIKey = v
		c.Structured.OpenAIAPIKey = v
	}
	setString(&c.Sentiment.BaseURL, "SENTIMENT_ENDPOINT")
	setString(&c.Sentiment.Model, "SENTIMENT_MODEL")

	setString(&c.Structured.Provider, "STRUCTURED_PROVIDER")
	setString(&c.Structured.Model, "STRUCTURED_MODEL")
	setString(&c.Structured.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setString(&c.Sources.NewsAPIKey, "NEWSAPI_KEY")
	setString(&c.Sources.FinnhubKey, "FINNHUB_API_KEY")
	setString(&c.Sources.AlphaVantageKey, "ALPHA_VANTAGE_API_KEY")
	setString(&c.Sources.MassiveKey, "MASSIVE_API_KEY")

	if v := os.Getenv("ENRICH_TOPICS"); v != "" {
		c.Topics = splitList(v)
	}

	for _, f := range []struct {
		dst *int
		key string
	}{
		{&c.MaxArticles, "MAX_ARTICLES"},
		{&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS"},
		{&c.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS"},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("DB_CONN_MAX_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DB_CONN_MAX_LIFETIME: %w", err)
		}
		c.Database.ConnMaxLifetime = d
	}

	return nil
}

func (c *Config) validate() error {
	c.Structured.Provider = strings.ToLower(strings.TrimSpace(c.Structured.Provider))
	switch c.Structured.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown structured provider %q", c.Structured.Provider)
	}

	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch workers must be positive, got %d", c.Dispatch.Workers)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database maxOpenConns must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.MaxArticles < 1 {
		return fmt.Errorf("maxArticles must be positive, got %d", c.MaxArticles)
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
