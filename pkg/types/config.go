// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// ConfigError reports an invalid or incomplete configuration. Startup
// aborts on the first one found (prd007-config R1.3).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperdex/0.1"). Per prd003-resolution R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// LLMCost holds per-model pricing in USD per one million tokens.
// Per prd004-summaries R4.2.
type LLMCost struct {
	Input  float64 `json:"input" yaml:"input" mapstructure:"input"`
	Output float64 `json:"output" yaml:"output" mapstructure:"output"`
}

// LLMProfile describes one named model endpoint. Profiles point at any
// OpenAI-compatible /chat/completions server. Per prd007-config R2.1.
type LLMProfile struct {
	// BaseURL is the API root (e.g. "https://openrouter.ai/api/v1").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is the bearer token; may come from the secrets directory.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier sent in requests.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxTokens caps the completion length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retry attempts for rate-limited API
	// calls (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Cost is the USD price per 1M input/output tokens, used for accounting.
	Cost LLMCost `json:"cost" yaml:"cost" mapstructure:"cost"`
}

// StageProfiles maps each LLM-backed pipeline stage to a profile name.
// Per prd007-config R2.2.
type StageProfiles struct {
	FormatInput string `json:"format_input" yaml:"format_input" mapstructure:"format_input"`
	SelectMatch string `json:"select_match" yaml:"select_match" mapstructure:"select_match"`
	Summarize   string `json:"summarize" yaml:"summarize" mapstructure:"summarize"`
}

// SearchConfig holds settings for the paper search backends.
// Per prd003-resolution R2.1, R5.1-R5.3.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is the per-backend result cap (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// CandidateLimit caps the merged candidate list handed to match
	// selection (default 8).
	CandidateLimit int `json:"candidate_limit" yaml:"candidate_limit" mapstructure:"candidate_limit"`

	// EnableArxiv controls whether the arXiv backend is used.
	EnableArxiv bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`

	// EnableOpenAlex controls whether the OpenAlex backend is used.
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex" mapstructure:"enable_openalex"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`
}

// SummaryConfig holds settings for PDF fetch and summary generation.
// Per prd004-summaries R1.2, R5.1.
type SummaryConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxPDFBytes is the download size ceiling (default 5 MiB).
	MaxPDFBytes int64 `json:"max_pdf_bytes" yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes"`

	// MaxTextChars caps the extracted PDF text sent to the model (default 60000).
	MaxTextChars int `json:"max_text_chars" yaml:"max_text_chars" mapstructure:"max_text_chars"`

	// StorageDir is the root for per-paper artifacts
	// (summaries/<date>/<key>/summary.md + metadata.yaml).
	StorageDir string `json:"storage_dir" yaml:"storage_dir" mapstructure:"storage_dir"`
}

// CacheConfig holds settings for the paper cache.
type CacheConfig struct {
	// Path is the JSON mapping file (default "storage/cache/papers.json").
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// StoreConfig holds settings for the task store.
type StoreConfig struct {
	// Path is the SQLite database file (default "storage/tasks.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// SchedulerConfig holds settings for the background task scheduler.
// Per prd005-tasks R5.1-R5.3.
type SchedulerConfig struct {
	// Interval is the tick period (default 5s).
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// MaxSearch caps concurrently searching subtasks (default 3).
	MaxSearch int `json:"max_search" yaml:"max_search" mapstructure:"max_search"`

	// MaxAnalysis caps concurrently analyzing subtasks (default 2).
	MaxAnalysis int `json:"max_analysis" yaml:"max_analysis" mapstructure:"max_analysis"`

	// StageTimeout bounds one search or analysis attempt (default 5m).
	StageTimeout time.Duration `json:"stage_timeout" yaml:"stage_timeout" mapstructure:"stage_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	Port int    `json:"port" yaml:"port" mapstructure:"port"`
}

// LogConfig holds process log settings (separate from per-task logs).
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// File is the rotated log file path; empty logs to stderr only.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// Config groups all paperdex settings.
type Config struct {
	LLMs      map[string]LLMProfile `json:"llms" yaml:"llms" mapstructure:"llms"`
	Stages    StageProfiles         `json:"stages" yaml:"stages" mapstructure:"stages"`
	Search    SearchConfig          `json:"search" yaml:"search" mapstructure:"search"`
	Summary   SummaryConfig         `json:"summary" yaml:"summary" mapstructure:"summary"`
	Cache     CacheConfig           `json:"cache" yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig           `json:"store" yaml:"store" mapstructure:"store"`
	Scheduler SchedulerConfig       `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig          `json:"server" yaml:"server" mapstructure:"server"`
	Log       LogConfig             `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the baseline configuration applied before file and
// environment overrides.
func DefaultConfig() Config {
	return Config{
		LLMs: map[string]LLMProfile{},
		Search: SearchConfig{
			HTTPConfig:     HTTPConfig{Timeout: 30 * time.Second, UserAgent: "paperdex/0.1"},
			MaxResults:     10,
			CandidateLimit: 8,
			EnableArxiv:    true,
			EnableOpenAlex: true,
		},
		Summary: SummaryConfig{
			HTTPConfig:   HTTPConfig{Timeout: 60 * time.Second, UserAgent: "paperdex/0.1"},
			MaxPDFBytes:  5 * 1024 * 1024,
			MaxTextChars: 60000,
			StorageDir:   "storage/summaries",
		},
		Cache: CacheConfig{Path: "storage/cache/papers.json"},
		Store: StoreConfig{Path: "storage/tasks.db"},
		Scheduler: SchedulerConfig{
			Interval:     5 * time.Second,
			MaxSearch:    3,
			MaxAnalysis:  2,
			StageTimeout: 5 * time.Minute,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8000},
		Log:    LogConfig{Level: "info"},
	}
}

// ProfileFor resolves the profile assigned to a stage field value.
func (c *Config) ProfileFor(name string) (LLMProfile, error) {
	p, ok := c.LLMs[name]
	if !ok {
		return LLMProfile{}, &ConfigError{Field: "llms." + name, Reason: "profile not defined"}
	}
	return p, nil
}

// Validate checks that every stage maps to a defined, usable profile and
// that the storage settings are present. It returns the first problem
// found as a *ConfigError.
func (c *Config) Validate() error {
	stages := map[string]string{
		"stages.format_input": c.Stages.FormatInput,
		"stages.select_match": c.Stages.SelectMatch,
		"stages.summarize":    c.Stages.Summarize,
	}
	for field, name := range stages {
		if name == "" {
			return &ConfigError{Field: field, Reason: "no profile assigned"}
		}
		p, ok := c.LLMs[name]
		if !ok {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("profile %q not defined under llms", name)}
		}
		if p.BaseURL == "" {
			return &ConfigError{Field: "llms." + name + ".base_url", Reason: "required"}
		}
		if p.Model == "" {
			return &ConfigError{Field: "llms." + name + ".model", Reason: "required"}
		}
	}

	if c.Cache.Path == "" {
		return &ConfigError{Field: "cache.path", Reason: "required"}
	}
	if c.Store.Path == "" {
		return &ConfigError{Field: "store.path", Reason: "required"}
	}
	if c.Summary.StorageDir == "" {
		return &ConfigError{Field: "summary.storage_dir", Reason: "required"}
	}
	if c.Scheduler.Interval <= 0 {
		return &ConfigError{Field: "scheduler.interval", Reason: "must be positive"}
	}
	if c.Scheduler.MaxSearch <= 0 || c.Scheduler.MaxAnalysis <= 0 {
		return &ConfigError{Field: "scheduler", Reason: "concurrency limits must be positive"}
	}
	if !c.Search.EnableArxiv && !c.Search.EnableOpenAlex {
		return &ConfigError{Field: "search", Reason: "at least one backend must be enabled"}
	}
	return nil
}
