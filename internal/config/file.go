package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig is the config file schema. Unset fields leave the
// environment-derived value alone. Durations are strings such as "30s".
type FileConfig struct {
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	RawDir  string `yaml:"raw_dir" toml:"raw_dir" json:"raw_dir"`
	Output  string `yaml:"output" toml:"output" json:"output"`
	Store   string `yaml:"store" toml:"store" json:"store"`

	Pathstore struct {
		URL    string `yaml:"url" toml:"url" json:"url"`
		APIKey string `yaml:"api_key" toml:"api_key" json:"api_key"`
	} `yaml:"pathstore" toml:"pathstore" json:"pathstore"`

	Segment struct {
		MinQuestionChars int      `yaml:"min_question_chars" toml:"min_question_chars" json:"min_question_chars"`
		Directives       []string `yaml:"directives" toml:"directives" json:"directives"`
	} `yaml:"segment" toml:"segment" json:"segment"`

	Topic struct {
		Threshold     *float64            `yaml:"threshold" toml:"threshold" json:"threshold"`
		TermWeight    *float64            `yaml:"term_weight" toml:"term_weight" json:"term_weight"`
		SynonymWeight *float64            `yaml:"synonym_weight" toml:"synonym_weight" json:"synonym_weight"`
		PhraseBonus   *float64            `yaml:"phrase_bonus" toml:"phrase_bonus" json:"phrase_bonus"`
		Synonyms      map[string][]string `yaml:"synonyms" toml:"synonyms" json:"synonyms"`
	} `yaml:"topic" toml:"topic" json:"topic"`

	Enhance struct {
		Provider           string   `yaml:"provider" toml:"provider" json:"provider"`
		Timeout            string   `yaml:"timeout" toml:"timeout" json:"timeout"`
		BatchTokens        int      `yaml:"batch_tokens" toml:"batch_tokens" json:"batch_tokens"`
		DuplicateThreshold *float64 `yaml:"duplicate_threshold" toml:"duplicate_threshold" json:"duplicate_threshold"`
		CacheDir           string   `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir"`
		OpenAI             struct {
			APIKey  string `yaml:"api_key" toml:"api_key" json:"api_key"`
			BaseURL string `yaml:"base_url" toml:"base_url" json:"base_url"`
			Model   string `yaml:"model" toml:"model" json:"model"`
		} `yaml:"openai" toml:"openai" json:"openai"`
		Anthropic struct {
			APIKey string `yaml:"api_key" toml:"api_key" json:"api_key"`
			Model  string `yaml:"model" toml:"model" json:"model"`
		} `yaml:"anthropic" toml:"anthropic" json:"anthropic"`
	} `yaml:"enhance" toml:"enhance" json:"enhance"`

	Acquire struct {
		SearchURLs     []string `yaml:"search_urls" toml:"search_urls" json:"search_urls"`
		Timeout        string   `yaml:"timeout" toml:"timeout" json:"timeout"`
		ListingTimeout string   `yaml:"listing_timeout" toml:"listing_timeout" json:"listing_timeout"`
		RPS            *float64 `yaml:"rps" toml:"rps" json:"rps"`
		MaxPerListing  int      `yaml:"max_per_listing" toml:"max_per_listing" json:"max_per_listing"`
		MaxBytes       int64    `yaml:"max_bytes" toml:"max_bytes" json:"max_bytes"`
		UserAgent      string   `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	} `yaml:"acquire" toml:"acquire" json:"acquire"`

	Pipeline struct {
		Parallelism int `yaml:"parallelism" toml:"parallelism" json:"parallelism"`
	} `yaml:"pipeline" toml:"pipeline" json:"pipeline"`

	Server struct {
		Port           string `yaml:"port" toml:"port" json:"port"`
		APIKey         string `yaml:"api_key" toml:"api_key" json:"api_key"`
		Workers        int    `yaml:"workers" toml:"workers" json:"workers"`
		QueueSize      int    `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
		RunTTL         string `yaml:"run_ttl" toml:"run_ttl" json:"run_ttl"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes" json:"max_upload_bytes"`
	} `yaml:"server" toml:"server" json:"server"`

	PDF struct {
		FallbackPdftotext *bool `yaml:"fallback_pdftotext" toml:"fallback_pdftotext" json:"fallback_pdftotext"`
	} `yaml:"pdf" toml:"pdf" json:"pdf"`
}

// LoadFile reads a YAML, TOML or JSON config file, chosen by extension.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse toml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		return fc, fmt.Errorf("unsupported config format %q", ext)
	}
	return fc, nil
}

// Apply overlays every value set in fc onto cfg.
func (fc FileConfig) Apply(cfg *Config) error {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.RawDir, fc.RawDir)
	setString(&cfg.OutputPath, fc.Output)
	setString(&cfg.StoreKind, fc.Store)

	setString(&cfg.PathstoreURL, fc.Pathstore.URL)
	setString(&cfg.PathstoreAPIKey, fc.Pathstore.APIKey)

	setInt(&cfg.MinQuestionChars, fc.Segment.MinQuestionChars)
	if len(fc.Segment.Directives) > 0 {
		cfg.Directives = append([]string(nil), fc.Segment.Directives...)
	}

	setFloat(&cfg.TopicThreshold, fc.Topic.Threshold)
	setFloat(&cfg.TermWeight, fc.Topic.TermWeight)
	setFloat(&cfg.SynonymWeight, fc.Topic.SynonymWeight)
	setFloat(&cfg.PhraseBonus, fc.Topic.PhraseBonus)
	if len(fc.Topic.Synonyms) > 0 {
		if cfg.Synonyms == nil {
			cfg.Synonyms = make(map[string][]string, len(fc.Topic.Synonyms))
		}
		for k, v := range fc.Topic.Synonyms {
			cfg.Synonyms[strings.ToLower(k)] = v
		}
	}

	setString(&cfg.EnhanceProvider, fc.Enhance.Provider)
	setInt(&cfg.EnhanceBatchTokens, fc.Enhance.BatchTokens)
	setFloat(&cfg.DuplicateThreshold, fc.Enhance.DuplicateThreshold)
	setString(&cfg.EnhanceCacheDir, fc.Enhance.CacheDir)
	setString(&cfg.OpenAIAPIKey, fc.Enhance.OpenAI.APIKey)
	setString(&cfg.OpenAIBaseURL, fc.Enhance.OpenAI.BaseURL)
	setString(&cfg.OpenAIModel, fc.Enhance.OpenAI.Model)
	setString(&cfg.AnthropicAPIKey, fc.Enhance.Anthropic.APIKey)
	setString(&cfg.AnthropicModel, fc.Enhance.Anthropic.Model)

	if len(fc.Acquire.SearchURLs) > 0 {
		cfg.SearchURLs = append([]string(nil), fc.Acquire.SearchURLs...)
	}
	setFloat(&cfg.AcquireRPS, fc.Acquire.RPS)
	setInt(&cfg.MaxPerListing, fc.Acquire.MaxPerListing)
	if fc.Acquire.MaxBytes > 0 {
		cfg.MaxBytes = fc.Acquire.MaxBytes
	}
	setString(&cfg.UserAgent, fc.Acquire.UserAgent)

	setInt(&cfg.Parallelism, fc.Pipeline.Parallelism)

	setString(&cfg.Port, fc.Server.Port)
	setString(&cfg.APIKey, fc.Server.APIKey)
	setInt(&cfg.WorkerCount, fc.Server.Workers)
	setInt(&cfg.MaxQueueSize, fc.Server.QueueSize)
	if fc.Server.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.Server.MaxUploadBytes
	}

	if fc.PDF.FallbackPdftotext != nil {
		cfg.PDFFallbackPdftotext = *fc.PDF.FallbackPdftotext
	}

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"enhance.timeout", fc.Enhance.Timeout, &cfg.EnhanceTimeout},
		{"acquire.timeout", fc.Acquire.Timeout, &cfg.AcquireTimeout},
		{"acquire.listing_timeout", fc.Acquire.ListingTimeout, &cfg.ListingTimeout},
		{"server.run_ttl", fc.Server.RunTTL, &cfg.RunTTL},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

// LoadWithFile is Load followed by the file at path, when path is set.
func LoadWithFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		path = os.Getenv("PAPERGEST_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}
	fc, err := LoadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := fc.Apply(&cfg); err != nil {
		return cfg, fmt.Errorf("apply config %s: %w", path, err)
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
