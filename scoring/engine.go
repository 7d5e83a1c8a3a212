package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/pipeline"
)

// Component assesses one dimension of a dossier.
type Component interface {
	Dimension() string
	Assess(ctx context.Context, d *casefile.Dossier) (Assessment, error)
}

// ThesisWriter writes the recommendation for a scored case.
type ThesisWriter interface {
	WriteThesis(ctx context.Context, d *casefile.Dossier, r *Result) (Thesis, error)
}

// Engine runs every component concurrently and compiles the result. A failed
// or missing component contributes its dimension's default, so Score always
// returns a result.
type Engine struct {
	components map[string]Component
	executor   *pipeline.Executor
	thesis     ThesisWriter
	timeout    time.Duration
	logger     *zap.SugaredLogger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithThesisWriter sets the thesis writer; without one the fallback thesis is used.
func WithThesisWriter(w ThesisWriter) EngineOption { return func(e *Engine) { e.thesis = w } }

// WithComponentTimeout bounds each component.
func WithComponentTimeout(d time.Duration) EngineOption { return func(e *Engine) { e.timeout = d } }

// WithEngineLogger sets the logger.
func WithEngineLogger(l *zap.SugaredLogger) EngineOption { return func(e *Engine) { e.logger = l } }

// NewEngine creates an engine. Later components replace earlier ones for the
// same dimension.
func NewEngine(components []Component, executor *pipeline.Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		components: make(map[string]Component, len(components)),
		executor:   executor,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.executor == nil {
		e.executor = pipeline.NewExecutor(pipeline.ExecutorConfig{}, e.logger)
	}
	for _, c := range components {
		e.components[c.Dimension()] = c
	}
	return e
}

// WithDeterministicSignals appends the built-in components that read
// enrichment data directly and need no model calls.
func WithDeterministicSignals(components ...Component) []Component {
	return append([]Component{
		WebsiteIntelligenceSignal{},
		LinkedInSignal{},
		FundingSignal{},
		WebGrowthSignal{},
		WebsiteDueDiligenceSignal{},
	}, components...)
}

// Score assesses d across every dimension. When ctx carries a deadline the
// components and the thesis are fitted inside it, so Score returns a result
// before the caller gives up on it.
func (e *Engine) Score(ctx context.Context, d *casefile.Dossier) *Result {
	componentTimeout, thesisCtx, cancel := e.budget(ctx)
	defer cancel()

	tasks := make([]pipeline.Task, 0, len(e.components))
	for _, dim := range Dimensions {
		c, ok := e.components[dim.Name]
		if !ok {
			continue
		}
		tasks = append(tasks, pipeline.Task{
			Name:    dim.Name,
			Timeout: componentTimeout,
			Run: func(ctx context.Context, _ pipeline.Snapshot) (any, error) {
				return c.Assess(ctx, d)
			},
		})
	}

	results, err := e.executor.Execute(ctx, tasks, pipeline.NewBag(d).Snapshot(), componentTimeout)
	if err != nil {
		e.logger.Warnw("Scoring fan-out rejected, using defaults", "error", err)
		results = nil
	}

	res := &Result{}
	confidences := make([]Confidence, 0, len(Dimensions))
	for _, dim := range Dimensions {
		line := ComponentScore{Dimension: dim.Name, Weight: dim.Weight}
		r, ran := results[dim.Name]
		assessment, ok := pipeline.PayloadAs[Assessment](r)

		if ran && ok {
			line.Raw = assessment.Raw
			line.Assessment = assessment
			line.Reasoning = assessment.Reasoning
			line.Confidence = assessment.Confidence
			if line.Confidence == "" {
				line.Confidence = Medium
			}
		} else {
			line.Raw = dim.DefaultRaw
			line.Defaulted = true
			line.Confidence = Medium
			switch {
			case !ran:
				line.Error = "no component"
			case r.Reason != "":
				line.Error = r.Reason
			default:
				line.Error = "component returned no assessment"
			}
			if ran {
				e.logger.Debugw("Component defaulted", "dimension", dim.Name, "reason", line.Error)
			}
		}

		line.Weighted = round1(dim.Weighted(line.Raw))
		res.Total += dim.Weighted(line.Raw)
		confidences = append(confidences, line.Confidence)
		res.Components = append(res.Components, line)
	}

	res.Total = round1(res.Total)
	res.Tier = ClassifyTier(res.Total)
	res.TierLabel = res.Tier.Label()
	res.Confidence = AggregateConfidence(confidences)
	res.Thesis = e.writeThesis(thesisCtx, d, res)

	e.logger.Infow("Case scored",
		"case_id", d.CaseID,
		"total", res.Total,
		"tier", res.Tier,
		"confidence", res.Confidence)
	return res
}

// componentShare is the part of a deadline-bound budget the components may
// use; the thesis gets the rest.
const componentShare = 2.0 / 3.0

// budget splits the time left on ctx. Components get at most their own
// timeout and never more than componentShare of what remains. The thesis
// context ends a margin before ctx so the compiled result is returned while
// the caller still waits for it.
func (e *Engine) budget(ctx context.Context) (time.Duration, context.Context, context.CancelFunc) {
	componentTimeout := e.timeout
	if componentTimeout <= 0 {
		componentTimeout = e.executor.TaskTimeout()
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		thesisCtx, cancel := context.WithTimeout(ctx, componentTimeout)
		return componentTimeout, thesisCtx, cancel
	}

	remaining := time.Until(deadline)
	margin := min(max(remaining/10, 5*time.Millisecond), 2*time.Second)
	usable := remaining - margin
	if share := time.Duration(float64(usable) * componentShare); share < componentTimeout {
		componentTimeout = max(share, time.Millisecond)
	}
	thesisCtx, cancel := context.WithDeadline(ctx, deadline.Add(-margin))
	return componentTimeout, thesisCtx, cancel
}

// writeThesis runs the thesis writer until ctx ends. Any failure, including
// running out of time, yields the fallback thesis.
func (e *Engine) writeThesis(ctx context.Context, d *casefile.Dossier, res *Result) Thesis {
	if e.thesis == nil {
		return FallbackThesis()
	}
	task := pipeline.Task{
		Name: "thesis",
		Run: func(ctx context.Context, _ pipeline.Snapshot) (any, error) {
			return e.thesis.WriteThesis(ctx, d, res)
		},
	}
	r := pipeline.RunTask(ctx, task, pipeline.NewBag(d).Snapshot(), 0)
	thesis, ok := pipeline.PayloadAs[Thesis](r)
	if !ok || thesis.Recommendation == "" {
		e.logger.Warnw("Thesis generation failed, using fallback", "case_id", d.CaseID, "reason", r.Reason)
		return FallbackThesis()
	}
	return thesis
}
