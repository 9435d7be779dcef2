package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Storage layout
	DataDir    string
	RawDir     string `validate:"required"`
	OutputPath string `validate:"required"`
	StoreKind  string `validate:"oneof=file sqlite memory pathstore"`

	// Pathstore connection
	PathstoreURL    string `validate:"omitempty,url"`
	PathstoreAPIKey string

	// Segmentation
	MinQuestionChars int `validate:"gte=1"`
	Directives       []string

	// Topic matching
	TopicThreshold float64 `validate:"gte=0"`
	TermWeight     float64 `validate:"gte=0"`
	SynonymWeight  float64 `validate:"gte=0"`
	PhraseBonus    float64 `validate:"gte=0"`
	Synonyms       map[string][]string

	// Enhancement
	EnhanceProvider    string `validate:"oneof=openai anthropic"`
	OpenAIAPIKey       string
	OpenAIBaseURL      string `validate:"omitempty,url"`
	OpenAIModel        string
	AnthropicAPIKey    string
	AnthropicModel     string
	EnhanceTimeout     time.Duration `validate:"gt=0"`
	EnhanceBatchTokens int           `validate:"gt=0"`
	DuplicateThreshold float64       `validate:"gt=0,lte=1"`
	EnhanceCacheDir    string

	// Acquisition
	SearchURLs     []string      `validate:"dive,required"`
	AcquireTimeout time.Duration `validate:"gt=0"`
	ListingTimeout time.Duration `validate:"gt=0"`
	AcquireRPS     float64       `validate:"gte=0"`
	MaxPerListing  int           `validate:"gt=0"`
	MaxBytes       int64         `validate:"gt=0"`
	UserAgent      string

	// Pipeline
	Parallelism int `validate:"gte=1"`

	// Server
	Port           string
	APIKey         string
	WorkerCount    int
	MaxQueueSize   int
	RunTTL         time.Duration
	MaxUploadBytes int64

	// PDF
	PDFFallbackPdftotext bool
}

// DefaultSearchURLs are the built-in listing templates.
var DefaultSearchURLs = []string{
	"https://example-academic-site.com/search?q={subject}+{topic}+exam",
	"https://papers.example.com/search?subject={subject}&topic={topic}",
}

func Load() Config {
	dataDir := envOr("PAPERGEST_DATA_DIR", "data")
	cfg := Config{
		DataDir:    dataDir,
		RawDir:     envOr("PAPERGEST_RAW_DIR", filepath.Join(dataDir, "raw_papers")),
		OutputPath: envOr("PAPERGEST_OUTPUT", "outputs/questions.json"),
		StoreKind:  envOr("PAPERGEST_STORE", "file"),

		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		MinQuestionChars: envInt("SEGMENT_MIN_QUESTION_CHARS", 6),

		TopicThreshold: envFloat("TOPIC_MATCH_THRESHOLD", 1),
		TermWeight:     envFloat("TOPIC_TERM_WEIGHT", 1),
		SynonymWeight:  envFloat("TOPIC_SYNONYM_WEIGHT", 1),
		PhraseBonus:    envFloat("TOPIC_PHRASE_BONUS", 1),

		EnhanceProvider:    envOr("ENHANCE_PROVIDER", "openai"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        envOr("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:     envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		EnhanceTimeout:     envDuration("ENHANCE_TIMEOUT", 30*time.Second),
		EnhanceBatchTokens: envInt("ENHANCE_BATCH_TOKENS", 1200),
		DuplicateThreshold: envFloat("ENHANCE_DUPLICATE_THRESHOLD", 0.92),
		EnhanceCacheDir:    os.Getenv("ENHANCE_CACHE_DIR"),

		SearchURLs:     envList("ACQUIRE_SEARCH_URLS", DefaultSearchURLs),
		AcquireTimeout: envDuration("ACQUIRE_TIMEOUT", 30*time.Second),
		ListingTimeout: envDuration("ACQUIRE_LISTING_TIMEOUT", 10*time.Second),
		AcquireRPS:     envFloat("ACQUIRE_RPS", 1),
		MaxPerListing:  envInt("ACQUIRE_MAX_PER_LISTING", 5),
		MaxBytes:       envInt64("ACQUIRE_MAX_BYTES", 52428800), // 50MB
		UserAgent:      os.Getenv("ACQUIRE_USER_AGENT"),

		Parallelism: envInt("PIPELINE_PARALLELISM", 1),

		Port:           envOr("PORT", "8090"),
		APIKey:         os.Getenv("PAPERGEST_API_KEY"),
		WorkerCount:    envInt("WORKER_COUNT", 2),
		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 100),
		RunTTL:         envDuration("RUN_TTL", 1*time.Hour),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 1 * time.Hour
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings every command depends on.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateServe additionally checks what the HTTP server needs.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("PAPERGEST_API_KEY is required")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}

// EnhanceConfigured reports whether the selected provider has credentials.
func (c Config) EnhanceConfigured() bool {
	switch c.EnhanceProvider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return c.OpenAIAPIKey != "" || c.OpenAIBaseURL != ""
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
