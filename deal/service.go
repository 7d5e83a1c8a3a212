package deal

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/scoring"
)

// Result is a terminal run plus the typed outputs a caller usually wants.
// Report and Insights are nil when their degradable stage failed.
type Result struct {
	pipeline.Result
	Extraction *casefile.Extraction `json:"extraction,omitempty"`
	Score      *scoring.Result      `json:"score,omitempty"`
	Report     *Report              `json:"report,omitempty"`
	Insights   *Insights            `json:"insights,omitempty"`
}

// Unavailable lists the tasks whose output a consumer should render as
// "not available".
func (r *Result) Unavailable() []string {
	keys := r.Degraded()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

// Service runs cases through the deal plan.
type Service struct {
	plan     *pipeline.Plan
	executor *pipeline.Executor
	status   pipeline.StatusSink
	progress pipeline.ProgressSink
	logger   *zap.SugaredLogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStatusSink records state changes (and runs, when the sink also records them).
func WithStatusSink(sink pipeline.StatusSink) ServiceOption {
	return func(s *Service) { s.status = sink }
}

// WithProgressSink receives progress for every run.
func WithProgressSink(sink pipeline.ProgressSink) ServiceOption {
	return func(s *Service) { s.progress = sink }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithExecutor sets the executor shared by every stage.
func WithExecutor(e *pipeline.Executor) ServiceOption {
	return func(s *Service) { s.executor = e }
}

// NewService validates the collaborators and builds the plan once.
func NewService(c Collaborators, t Timeouts, opts ...ServiceOption) (*Service, error) {
	plan, err := NewPlan(c, t)
	if err != nil {
		return nil, err
	}
	s := &Service{plan: plan, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = pipeline.NewExecutor(pipeline.ExecutorConfig{}, s.logger)
	}
	return s, nil
}

// Plan returns the service's plan.
func (s *Service) Plan() *pipeline.Plan { return s.plan }

// Analyze runs one case to a terminal state. The artifact, if any, is released
// before Analyze returns. Extra sinks receive this run's progress only.
func (s *Service) Analyze(ctx context.Context, in Input, artifact pipeline.Artifact, sinks ...pipeline.ProgressSink) *Result {
	if artifact != nil && in.ArtifactPath == "" {
		in.ArtifactPath = artifact.Path()
	}

	all := make([]pipeline.ProgressSink, 0, len(sinks)+1)
	if s.progress != nil {
		all = append(all, s.progress)
	}
	all = append(all, sinks...)

	opts := []pipeline.Option{pipeline.WithLogger(s.logger.Named("pipeline"))}
	if len(all) > 0 {
		opts = append(opts, pipeline.WithProgress(pipeline.MultiProgress(all...)))
	}
	if s.status != nil {
		opts = append(opts, pipeline.WithStatus(s.status))
	}

	runner := pipeline.NewRunner(s.plan, s.executor, opts...)
	res := collect(runner.Run(ctx, pipeline.Request{CaseID: in.CaseID, Input: in, Artifact: artifact}))

	if res.Succeeded() {
		s.logger.Infow("Case analyzed",
			logger.FieldCaseID, in.CaseID,
			logger.FieldRunID, res.RunID,
			"unavailable", res.Unavailable())
	} else {
		s.logger.Warnw("Case analysis failed",
			logger.FieldCaseID, in.CaseID,
			logger.FieldRunID, res.RunID,
			logger.FieldError, res.Error)
	}
	return res
}

func collect(pr *pipeline.Result) *Result {
	res := &Result{Result: *pr}
	snap := pr.Context
	if r, ok := snap.Lookup(StageExtraction, TaskExtract); ok {
		res.Extraction, _ = pipeline.PayloadAs[*casefile.Extraction](r)
	}
	if r, ok := snap.Lookup(StageScoring, TaskScore); ok {
		res.Score, _ = pipeline.PayloadAs[*scoring.Result](r)
	}
	if r, ok := snap.Lookup(StageReport, TaskComposeReport); ok {
		res.Report, _ = pipeline.PayloadAs[*Report](r)
	}
	if r, ok := snap.Lookup(StageInsights, TaskComposeInsights); ok {
		res.Insights, _ = pipeline.PayloadAs[*Insights](r)
	}
	return res
}
