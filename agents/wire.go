package agents

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/internal/httpclient"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/scoring"
	"github.com/teranos/dealflow/version"
)

// Config wires the agents together.
type Config struct {
	Generator Generator
	// HTTP is used for website crawls and GitHub. Nil gets a SaferClient.
	HTTP             *httpclient.SaferClient
	GitHubBaseURL    string
	GitHubToken      string
	CrawlConcurrency int
	// Executor runs the scoring components. Nil gets the defaults.
	Executor *pipeline.Executor
	// ComponentTimeout bounds each scoring component. Zero uses the
	// executor's task timeout.
	ComponentTimeout time.Duration
	Logger           *zap.SugaredLogger
}

// NewCollaborators builds every deal collaborator from cfg.
func NewCollaborators(cfg Config) deal.Collaborators {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.HTTP == nil {
		cfg.HTTP = httpclient.New(httpclient.Options{UserAgent: version.UserAgent()})
	}
	crawler := NewCrawler(cfg.HTTP, cfg.CrawlConcurrency)

	enrichers := []deal.Enricher{
		NewWebsiteEnricher(crawler),
		NewWebsiteIntelligence(cfg.Generator, crawler),
		NewWebsiteDueDiligence(cfg.Generator, crawler),
		NewGitHub(cfg.HTTP, cfg.GitHubBaseURL, cfg.GitHubToken),
	}
	for _, r := range NewResearchSources(cfg.Generator) {
		enrichers = append(enrichers, r)
	}
	var analysts []deal.Analyst
	for _, a := range NewAnalysts(cfg.Generator) {
		analysts = append(analysts, a)
	}

	engineOpts := []scoring.EngineOption{
		scoring.WithThesisWriter(NewThesisWriter(cfg.Generator)),
		scoring.WithEngineLogger(cfg.Logger.Named("scoring")),
	}
	if cfg.ComponentTimeout > 0 {
		engineOpts = append(engineOpts, scoring.WithComponentTimeout(cfg.ComponentTimeout))
	}
	engine := scoring.NewEngine(
		scoring.WithDeterministicSignals(NewRubrics(cfg.Generator)...),
		cfg.Executor,
		engineOpts...,
	)

	return deal.Collaborators{
		Extractor: NewDeckExtractor(cfg.Generator, cfg.Logger.Named("extractor")),
		Enrichers: enrichers,
		Analysts:  analysts,
		Scorer:    engine,
		Reporter:  NewReportComposer(cfg.Generator),
		Insights:  NewInsightComposer(cfg.Generator),
	}
}
