// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Completion provider settings
	LLMProvider     string // gemini | openai | anthropic
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string // set for Groq or other OpenAI compatible gateways
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMMaxAttempts  int
	LLMMaxTokens    int
	TokensPerWindow int
	TokenWindow     time.Duration
	ExtractMaxInput int // characters of page text sent for extraction

	// Embedding / classification settings
	HFAPIToken                 string
	HFEndpoint                 string
	SentimentModel             string
	CategoryEmbedder           string // huggingface | gemini | openai | none
	CategoryEmbeddingModel     string
	MainCategoryEmbedder       string
	MainCategoryEmbeddingModel string
	RequireEmbeddings          bool

	// Storage settings
	StorageDriver string // postgres | sqlite | file
	DatabaseURL   string
	SQLitePath    string
	StoreFilePath string

	// Cache settings
	CacheBackend string // memory | redis
	RedisURL     string
	CacheTTL     time.Duration

	// Scheduler settings
	Schedule         string
	SchedulerEnabled bool
	Timezone         string

	// RSS / batch settings
	FeedsConfigPath   string
	MaxArticlesPerRun int
	FetchTimeout      time.Duration
	ItemDelay         time.Duration
	MaxContentChars   int
	SummaryThreshold  int

	// Admin API
	AdminAddr  string
	AdminToken string

	// Telegram alerts (optional)
	TelegramToken  string
	TelegramChatID string

	// App settings
	Debug     bool
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		LLMProvider:     strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  os.Getenv("ANTHROPIC_MODEL"),
		LLMMaxAttempts:  getEnvIntOrDefault("LLM_MAX_ATTEMPTS", 5),
		LLMMaxTokens:    getEnvIntOrDefault("LLM_MAX_TOKENS", 1024),
		TokensPerWindow: getEnvIntOrDefault("LLM_TOKENS_PER_WINDOW", 30000),
		TokenWindow:     getEnvDurationOrDefault("LLM_TOKEN_WINDOW", time.Minute),
		ExtractMaxInput: getEnvIntOrDefault("EXTRACT_MAX_INPUT_CHARS", 12000),

		HFAPIToken:                 os.Getenv("HF_API_TOKEN"),
		HFEndpoint:                 getEnvOrDefault("HF_ENDPOINT", "https://api-inference.huggingface.co"),
		SentimentModel:             getEnvOrDefault("SENTIMENT_MODEL", "cardiffnlp/twitter-roberta-base-sentiment-latest"),
		CategoryEmbedder:           strings.ToLower(getEnvOrDefault("CATEGORY_EMBEDDER", "huggingface")),
		CategoryEmbeddingModel:     getEnvOrDefault("CATEGORY_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		MainCategoryEmbedder:       strings.ToLower(getEnvOrDefault("MAIN_CATEGORY_EMBEDDER", "huggingface")),
		MainCategoryEmbeddingModel: getEnvOrDefault("MAIN_CATEGORY_EMBEDDING_MODEL", "sentence-transformers/all-mpnet-base-v2"),
		RequireEmbeddings:          getEnvBoolOrDefault("CLASSIFIER_REQUIRE_EMBEDDINGS", false),

		StorageDriver: strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", "sqlite")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "enrich.db"),
		StoreFilePath: getEnvOrDefault("STORE_FILE_PATH", "enriched_articles.json"),

		CacheBackend: strings.ToLower(getEnvOrDefault("CACHE_BACKEND", "memory")),
		RedisURL:     os.Getenv("REDIS_URL"),
		CacheTTL:     getEnvDurationOrDefault("CACHE_TTL", time.Hour),

		Schedule:         getEnvOrDefault("SCHEDULE", "@hourly"),
		SchedulerEnabled: getEnvBoolOrDefault("SCHEDULER_ENABLED", true),
		Timezone:         getEnvOrDefault("TIMEZONE", "UTC"),

		FeedsConfigPath:   getEnvOrDefault("FEEDS_CONFIG_PATH", "configs/feeds.yaml"),
		MaxArticlesPerRun: getEnvIntOrDefault("MAX_ARTICLES_PER_RUN", 10),
		FetchTimeout:      getEnvDurationOrDefault("FETCH_TIMEOUT", 15*time.Second),
		ItemDelay:         getEnvDurationOrDefault("ITEM_DELAY", 3*time.Second),
		MaxContentChars:   getEnvIntOrDefault("MAX_CONTENT_CHARS", 5000),
		SummaryThreshold:  getEnvIntOrDefault("SUMMARY_THRESHOLD", 200),

		AdminAddr:  getEnvOrDefault("ADMIN_ADDR", ":8080"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),

		Debug:     os.Getenv("DEBUG") == "true",
		LogFormat: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// AlertsEnabled reports whether Telegram failure alerts are configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be 'gemini', 'openai' or 'anthropic'")
	}

	for name, e := range map[string]string{
		"CATEGORY_EMBEDDER":      c.CategoryEmbedder,
		"MAIN_CATEGORY_EMBEDDER": c.MainCategoryEmbedder,
	} {
		switch e {
		case "huggingface", "gemini", "openai", "none":
		default:
			return fmt.Errorf("%s must be 'huggingface', 'gemini', 'openai' or 'none'", name)
		}
	}

	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case "sqlite", "file":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be 'postgres', 'sqlite' or 'file'")
	}

	switch c.CacheBackend {
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'memory' or 'redis'")
	}

	if c.TokensPerWindow <= 0 || c.TokenWindow <= 0 {
		return fmt.Errorf("LLM_TOKENS_PER_WINDOW and LLM_TOKEN_WINDOW must be positive")
	}
	if c.LLMMaxAttempts <= 0 {
		return fmt.Errorf("LLM_MAX_ATTEMPTS must be positive")
	}
	if c.MaxContentChars <= 0 {
		return fmt.Errorf("MAX_CONTENT_CHARS must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
