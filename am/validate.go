package am

import "github.com/teranos/dealflow/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d (omit for default %d)", *c.Server.Port, DefaultServerPort)
	}

	// Every task runs under a deadline, so zero is not a valid timeout
	if c.Pipeline.TaskTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.task_timeout_seconds must be > 0, got %d", c.Pipeline.TaskTimeoutSeconds)
	}
	if c.Pipeline.ExtractionTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.extraction_timeout_seconds must be > 0, got %d", c.Pipeline.ExtractionTimeoutSeconds)
	}
	if c.Pipeline.ComposeTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.compose_timeout_seconds must be > 0, got %d", c.Pipeline.ComposeTimeoutSeconds)
	}
	if c.Pipeline.MaxConcurrency < 0 {
		return errors.Newf("pipeline.max_concurrency must be >= 0, got %d", c.Pipeline.MaxConcurrency)
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalSeconds < 0 {
		return errors.Newf("pulse.poll_interval_seconds must be >= 0, got %d", c.Pulse.PollIntervalSeconds)
	}

	if c.OpenRouter.Temperature != nil && (*c.OpenRouter.Temperature < 0 || *c.OpenRouter.Temperature > 2) {
		return errors.Newf("openrouter.temperature must be within [0, 2], got %f", *c.OpenRouter.Temperature)
	}
	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return errors.Newf("openrouter.max_tokens must be > 0, got %d (omit for default)", *c.OpenRouter.MaxTokens)
	}
	if c.OpenRouter.RequestsPerMinute < 0 {
		return errors.Newf("openrouter.requests_per_minute must be >= 0, got %d", c.OpenRouter.RequestsPerMinute)
	}

	if c.Intake.MaxUploadMB < 0 {
		return errors.Newf("intake.max_upload_mb must be >= 0, got %d", c.Intake.MaxUploadMB)
	}

	return nil
}
