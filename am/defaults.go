package am

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "dealflow.db")

	v.SetDefault("pipeline.task_timeout_seconds", 90)
	v.SetDefault("pipeline.extraction_timeout_seconds", 180)
	v.SetDefault("pipeline.compose_timeout_seconds", 180)
	v.SetDefault("pipeline.max_concurrency", 0)

	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_seconds", 1)

	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 4000)
	v.SetDefault("openrouter.requests_per_minute", 60)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	v.SetDefault("intake.inbox_dir", "")
	v.SetDefault("intake.spool_dir", filepath.Join(os.TempDir(), "dealflow-spool"))
	v.SetDefault("intake.max_upload_mb", 50)

	v.SetDefault("github.base_url", "https://api.github.com")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("openrouter.api_key", "DEALFLOW_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("github.token", "DEALFLOW_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("database.path", "DEALFLOW_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "dealflow.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	return c.Server.AllowedOrigins
}

// GetMaxUploadBytes returns the upload cap in bytes
func (c *Config) GetMaxUploadBytes() int64 {
	mb := c.Intake.MaxUploadMB
	if mb <= 0 {
		mb = 50
	}
	return int64(mb) << 20
}
