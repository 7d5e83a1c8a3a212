// Package am loads dealflow configuration ("am" as in "I am configured").
//
// Sources, lowest to highest precedence: /etc/dealflow/am.toml,
// ~/.dealflow/am.toml, the nearest am.toml walking up from the working
// directory, then DEALFLOW_* environment variables.
package am

import "time"

// Config represents the dealflow configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" toml:"pipeline" json:"pipeline" yaml:"pipeline"`
	Pulse      PulseConfig      `mapstructure:"pulse" toml:"pulse" json:"pulse" yaml:"pulse"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter" toml:"openrouter" json:"openrouter" yaml:"openrouter"`
	Server     ServerConfig     `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Intake     IntakeConfig     `mapstructure:"intake" toml:"intake" json:"intake" yaml:"intake"`
	GitHub     GitHubConfig     `mapstructure:"github" toml:"github" json:"github" yaml:"github"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// PipelineConfig bounds the analysis pipeline. Every task runs under a deadline.
type PipelineConfig struct {
	// Default per-task deadline
	TaskTimeoutSeconds       int `mapstructure:"task_timeout_seconds" toml:"task_timeout_seconds" json:"task_timeout_seconds" yaml:"task_timeout_seconds"`
	// Deck extraction deadline
	ExtractionTimeoutSeconds int `mapstructure:"extraction_timeout_seconds" toml:"extraction_timeout_seconds" json:"extraction_timeout_seconds" yaml:"extraction_timeout_seconds"`
	// Report and insights deadline
	ComposeTimeoutSeconds    int `mapstructure:"compose_timeout_seconds" toml:"compose_timeout_seconds" json:"compose_timeout_seconds" yaml:"compose_timeout_seconds"`
	// Tasks in flight per stage, 0 = unbounded
	MaxConcurrency           int `mapstructure:"max_concurrency" toml:"max_concurrency" json:"max_concurrency" yaml:"max_concurrency"`
}

// TaskTimeout returns the per-task deadline as a duration.
func (p PipelineConfig) TaskTimeout() time.Duration {
	return time.Duration(p.TaskTimeoutSeconds) * time.Second
}

// ExtractionTimeout returns the extraction deadline as a duration.
func (p PipelineConfig) ExtractionTimeout() time.Duration {
	return time.Duration(p.ExtractionTimeoutSeconds) * time.Second
}

// ComposeTimeout returns the compose deadline as a duration.
func (p PipelineConfig) ComposeTimeout() time.Duration {
	return time.Duration(p.ComposeTimeoutSeconds) * time.Second
}

// PulseConfig configures the background job workers
type PulseConfig struct {
	// Concurrent job workers (0 = disabled)
	Workers             int `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`
	// Queue poll interval
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" toml:"poll_interval_seconds" json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey            string   `mapstructure:"api_key" toml:"api_key" json:"-" yaml:"-"`
	Model             string   `mapstructure:"model" toml:"model" json:"model" yaml:"model"`
	// Nil = default 0.2
	Temperature       *float64 `mapstructure:"temperature" toml:"temperature" json:"temperature" yaml:"temperature"`
	// Nil = default 4000
	MaxTokens         *int     `mapstructure:"max_tokens" toml:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	// Nil = DefaultServerPort, 0 is invalid
	Port           *int     `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// IntakeConfig configures where decks arrive and where they wait for a worker.
type IntakeConfig struct {
	// Watched drop folder ("" = disabled)
	InboxDir    string `mapstructure:"inbox_dir" toml:"inbox_dir" json:"inbox_dir" yaml:"inbox_dir"`
	// Materialized uploads
	SpoolDir    string `mapstructure:"spool_dir" toml:"spool_dir" json:"spool_dir" yaml:"spool_dir"`
	// Upload size cap
	MaxUploadMB int    `mapstructure:"max_upload_mb" toml:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`
}

// GitHubConfig configures the GitHub enrichment source
type GitHubConfig struct {
	Token   string `mapstructure:"token" toml:"token" json:"-" yaml:"-"`
	BaseURL string `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url"`
}

// Server port constants
const (
	DefaultServerPort = 8477
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
