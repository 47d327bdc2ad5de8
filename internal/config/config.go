// Package config loads the service configuration from YAML with
// TONEBRIDGE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tonebridge configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Tier      TierConfig      `yaml:"tier"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP/SSE boundary.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LLMConfig configures the model tiers. The analysis model runs the
// cheap classification and gating calls, the final model the streamed
// generation, the fallback model the label diversity retry.
type LLMConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	OpenAIAPIKey string `yaml:"openai_api_key"`

	FinalModel    string `yaml:"final_model"`
	AnalysisModel string `yaml:"analysis_model"`
	FallbackModel string `yaml:"fallback_model"`

	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	MaxTokensPaid int     `yaml:"max_tokens_paid"`
	// RequestTimeout is the wall-clock budget for one whole rewrite;
	// CallTimeout bounds a single provider HTTP call.
	RequestTimeout string `yaml:"request_timeout"`
	CallTimeout    string `yaml:"call_timeout"`
}

// SegmenterConfig tunes the deterministic splitter.
type SegmenterConfig struct {
	MaxSegmentLength         int `yaml:"max_segment_length"`
	DiscourseMarkerMinLength int `yaml:"discourse_marker_min_length"`
	EnumerationMinLength     int `yaml:"enumeration_min_length"`
	RefineMinLength          int `yaml:"refine_min_length"`
}

// TierConfig sets per-tier input length limits.
type TierConfig struct {
	FreeMaxTextLength int `yaml:"free_max_text_length"`
	PaidMaxTextLength int `yaml:"paid_max_text_length"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tonebridge",
		Version: "1.0.0",

		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},

		LLM: LLMConfig{
			FinalModel:     "gemini-2.5-flash",
			AnalysisModel:  "gemini-2.5-flash-lite",
			FallbackModel:  "gpt-4o-mini",
			Temperature:    0.85,
			MaxTokens:      2000,
			MaxTokensPaid:  4000,
			RequestTimeout: "120s",
			CallTimeout:    "30s",
		},

		Segmenter: SegmenterConfig{
			MaxSegmentLength:         180,
			DiscourseMarkerMinLength: 80,
			EnumerationMinLength:     60,
			RefineMinLength:          30,
		},

		Tier: TierConfig{
			FreeMaxTextLength: 300,
			PaidMaxTextLength: 2000,
		},

		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies TONEBRIDGE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TONEBRIDGE_GEMINI_API_KEY"); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.GeminiAPIKey == "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("TONEBRIDGE_OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.OpenAIAPIKey == "" {
		c.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("TONEBRIDGE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TONEBRIDGE_FINAL_MODEL"); v != "" {
		c.LLM.FinalModel = v
	}
	if v := os.Getenv("TONEBRIDGE_ANALYSIS_MODEL"); v != "" {
		c.LLM.AnalysisModel = v
	}
	if v := os.Getenv("TONEBRIDGE_FALLBACK_MODEL"); v != "" {
		c.LLM.FallbackModel = v
	}
	if v := os.Getenv("TONEBRIDGE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
	if v := os.Getenv("TONEBRIDGE_FREE_MAX_TEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tier.FreeMaxTextLength = n
		}
	}
	if v := os.Getenv("TONEBRIDGE_PAID_MAX_TEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tier.PaidMaxTextLength = n
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.LLM.FinalModel == "" {
		return fmt.Errorf("llm.final_model must be set")
	}
	if c.LLM.AnalysisModel == "" {
		return fmt.Errorf("llm.analysis_model must be set")
	}
	if c.Segmenter.MaxSegmentLength <= 0 {
		return fmt.Errorf("segmenter.max_segment_length must be positive")
	}
	if c.Tier.FreeMaxTextLength <= 0 || c.Tier.PaidMaxTextLength <= 0 {
		return fmt.Errorf("tier text length limits must be positive")
	}
	if c.Tier.PaidMaxTextLength < c.Tier.FreeMaxTextLength {
		return fmt.Errorf("tier.paid_max_text_length must be >= tier.free_max_text_length")
	}
	return nil
}

// RequestTimeout returns the whole-request wall-clock budget.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.RequestTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// CallTimeout returns the per-call provider HTTP timeout.
func (c *Config) CallTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.CallTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ShutdownTimeout returns the server shutdown timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// MaxTextLength returns the input limit for a tier name ("FREE"/"PAID").
func (c *Config) MaxTextLength(tier string) int {
	if tier == "PAID" {
		return c.Tier.PaidMaxTextLength
	}
	return c.Tier.FreeMaxTextLength
}
