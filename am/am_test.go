package am

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "dealflow.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.Equal(t, 1, cfg.Pulse.Workers)
	assert.Equal(t, 90, cfg.Pipeline.TaskTimeoutSeconds)
	assert.Equal(t, 180, cfg.Pipeline.ExtractionTimeoutSeconds)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
	require.NotNil(t, cfg.OpenRouter.Temperature)
	assert.InDelta(t, 0.2, *cfg.OpenRouter.Temperature, 1e-9)
	assert.Equal(t, int64(50)<<20, cfg.GetMaxUploadBytes())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Pipeline: PipelineConfig{TaskTimeoutSeconds: 1, ExtractionTimeoutSeconds: 1, ComposeTimeoutSeconds: 1}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"minimal config", func(*Config) {}, false},
		{"zero workers disables pulse", func(c *Config) { c.Pulse.Workers = 0 }, false},
		{"negative workers", func(c *Config) { c.Pulse.Workers = -1 }, true},
		{"zero port", func(c *Config) { c.Server.Port = intPtr(0) }, true},
		{"explicit port", func(c *Config) { c.Server.Port = intPtr(9000) }, false},
		{"zero task timeout", func(c *Config) { c.Pipeline.TaskTimeoutSeconds = 0 }, true},
		{"zero compose timeout", func(c *Config) { c.Pipeline.ComposeTimeoutSeconds = 0 }, true},
		{"negative concurrency", func(c *Config) { c.Pipeline.MaxConcurrency = -2 }, true},
		{"temperature too hot", func(c *Config) { c.OpenRouter.Temperature = floatPtr(3) }, true},
		{"zero max tokens", func(c *Config) { c.OpenRouter.MaxTokens = intPtr(0) }, true},
		{"negative upload cap", func(c *Config) { c.Intake.MaxUploadMB = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/var/lib/dealflow/cases.db"

[pipeline]
task_timeout_seconds = 30
max_concurrency = 4

[intake]
inbox_dir = "/srv/decks"
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/dealflow/cases.db", cfg.Database.Path)
	assert.Equal(t, 30, cfg.Pipeline.TaskTimeoutSeconds)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, 180, cfg.Pipeline.ExtractionTimeoutSeconds, "unset keys keep defaults")
	assert.Equal(t, "/srv/decks", cfg.Intake.InboxDir)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\ntask_timeout_seconds = 0\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestMergeConfigFilesPrecedence(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.toml")
	project := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(system, []byte("[pulse]\nworkers = 2\npoll_interval_seconds = 5\n"), 0o600))
	require.NoError(t, os.WriteFile(project, []byte("[pulse]\nworkers = 8\n"), 0o600))

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{system, filepath.Join(dir, "missing.toml"), project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pulse.Workers)
	assert.Equal(t, 5, cfg.Pulse.PollIntervalSeconds)
}

func TestRenderFormatsMaskSecrets(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.OpenRouter.APIKey = "sk-or-secret"

	tomlOut, err := Render(cfg, "toml")
	require.NoError(t, err)
	assert.Contains(t, string(tomlOut), "task_timeout_seconds = 90")
	assert.NotContains(t, string(tomlOut), "sk-or-secret")

	jsonOut, err := Render(cfg, "json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(jsonOut, &decoded))
	assert.Contains(t, decoded, "pipeline")
	assert.NotContains(t, string(jsonOut), "sk-or-secret")

	yamlOut, err := Render(cfg, "yaml")
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(yamlOut, &fromYAML))
	assert.Contains(t, fromYAML, "intake")

	_, err = Render(cfg, "xml")
	assert.Error(t, err)
	assert.Equal(t, "sk-or-secret", cfg.OpenRouter.APIKey, "render must not mutate the config")
}

func TestWriteFileRoundTripsAndBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "am.toml")
	cfg := defaultConfig(t)
	cfg.Pulse.Workers = 3
	cfg.OpenRouter.APIKey = "sk-never-on-disk"

	require.NoError(t, WriteFile(cfg, path))
	require.NoError(t, WriteFile(cfg, path))

	_, err := os.Stat(path + ".back1")
	assert.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-never-on-disk")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Pulse.Workers)
}
