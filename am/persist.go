package am

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dealflow/errors"
)

// Render serializes the config as toml, json or yaml. Secrets are masked.
func Render(c *Config, format string) ([]byte, error) {
	masked := *c
	if masked.OpenRouter.APIKey != "" {
		masked.OpenRouter.APIKey = "********"
	}
	if masked.GitHub.Token != "" {
		masked.GitHub.Token = "********"
	}

	switch strings.ToLower(format) {
	case "", "toml":
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(masked); err != nil {
			return nil, errors.Wrap(err, "failed to encode toml")
		}
		return buf.Bytes(), nil
	case "json":
		out, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode json")
		}
		return append(out, '\n'), nil
	case "yaml", "yml":
		out, err := yaml.Marshal(masked)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode yaml")
		}
		return out, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown format %q (want toml, json or yaml)", format)
	}
}

// WriteFile saves c as TOML at path, keeping the previous file as path.back1.
// The API key is never written; it belongs in the environment.
func WriteFile(c *Config, path string) error {
	clean := *c
	clean.OpenRouter.APIKey = ""
	clean.GitHub.Token = ""

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(clean); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := backup(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func backup(path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(path+".back1", content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
