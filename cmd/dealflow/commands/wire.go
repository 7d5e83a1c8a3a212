package commands

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/dealflow/agents"
	"github.com/teranos/dealflow/ai/openrouter"
	"github.com/teranos/dealflow/am"
	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/status"
)

// services are the long-lived pieces every case-running command needs.
type services struct {
	deal   *deal.Service
	status *status.Recorder
}

// newServices wires config into the deal service. Runs are recorded in
// database.
func newServices(cfg *am.Config, database *sql.DB) (*services, error) {
	client := openrouter.NewClient(openrouter.Config{
		APIKey:            cfg.OpenRouter.APIKey,
		Model:             cfg.OpenRouter.Model,
		Temperature:       cfg.OpenRouter.Temperature,
		MaxTokens:         cfg.OpenRouter.MaxTokens,
		RequestsPerMinute: cfg.OpenRouter.RequestsPerMinute,
		Timeout:           cfg.Pipeline.ComposeTimeout(),
		Logger:            logger.Logger.Named("openrouter"),
	})
	if !client.IsConfigured() {
		return nil, errors.WithHint(
			errors.New("OpenRouter API key is not set"),
			"export OPENROUTER_API_KEY or set openrouter.api_key in am.toml")
	}

	executor := pipeline.NewExecutor(pipeline.ExecutorConfig{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		TaskTimeout:    cfg.Pipeline.TaskTimeout(),
	}, logger.Logger.Named("executor"))

	collaborators := agents.NewCollaborators(agents.Config{
		Generator:        client,
		GitHubBaseURL:    cfg.GitHub.BaseURL,
		GitHubToken:      cfg.GitHub.Token,
		Executor:         executor,
		ComponentTimeout: cfg.Pipeline.TaskTimeout(),
		Logger:           logger.Logger.Named("agents"),
	})

	recorder := statusRecorder(database)
	service, err := deal.NewService(collaborators, deal.Timeouts{
		Task:       cfg.Pipeline.TaskTimeout(),
		Extraction: cfg.Pipeline.ExtractionTimeout(),
		Compose:    cfg.Pipeline.ComposeTimeout(),
	},
		deal.WithExecutor(executor),
		deal.WithStatusSink(recorder),
		deal.WithServiceLogger(logger.Logger.Named("deal")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build deal service")
	}
	return &services{deal: service, status: recorder}, nil
}

// newWorkerPool creates the Pulse pool with the analysis handler registered.
func newWorkerPool(ctx context.Context, cfg *am.Config, database *sql.DB, svc *services, workers int) *async.WorkerPool {
	poolCfg := async.DefaultWorkerPoolConfig()
	poolCfg.Workers = workers
	if cfg.Pulse.PollIntervalSeconds > 0 {
		poolCfg.PollInterval = time.Duration(cfg.Pulse.PollIntervalSeconds) * time.Second
	}

	pool := async.NewWorkerPool(ctx, database, poolCfg, logger.Logger)
	pool.Registry().Register(deal.NewAnalyzeHandler(svc.deal, pool.Queue(), logger.Logger.Named("deal.job")))
	return pool
}

func statusRecorder(database *sql.DB) *status.Recorder {
	return status.NewRecorder(database, logger.Logger.Named("status"))
}
