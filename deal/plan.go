package deal

import (
	"context"
	"time"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/scoring"
)

// ErrNoArtifact is returned when a case has neither a deck nor an extraction.
var ErrNoArtifact = errors.New("case has no deck to extract")

// ErrNoExtraction is returned by builders that run before extraction succeeded.
var ErrNoExtraction = errors.New("extraction result missing")

// Timeouts bounds each kind of task.
type Timeouts struct {
	Task       time.Duration
	Extraction time.Duration
	Compose    time.Duration
}

// DefaultTimeouts are used for any zero field.
var DefaultTimeouts = Timeouts{
	Task:       pipeline.DefaultTaskTimeout,
	Extraction: 180 * time.Second,
	Compose:    180 * time.Second,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Task <= 0 {
		t.Task = DefaultTimeouts.Task
	}
	if t.Extraction <= 0 {
		t.Extraction = DefaultTimeouts.Extraction
	}
	if t.Compose <= 0 {
		t.Compose = DefaultTimeouts.Compose
	}
	return t
}

// NewPlan builds the six-stage case plan. Extraction and scoring are
// required. Enrichment and analysis fail the run only when they had tasks and
// none succeeded; a case with no applicable sources moves on. The report and
// insights stages are degradable.
func NewPlan(c Collaborators, t Timeouts) (*pipeline.Plan, error) {
	switch {
	case c.Extractor == nil:
		return nil, errors.New("deal plan needs an extractor")
	case c.Scorer == nil:
		return nil, errors.New("deal plan needs a scorer")
	case c.Reporter == nil:
		return nil, errors.New("deal plan needs a reporter")
	case c.Insights == nil:
		return nil, errors.New("deal plan needs an insight writer")
	}
	t = t.withDefaults()

	return pipeline.NewPlan(
		pipeline.Stage{
			Name:        StageExtraction,
			State:       StateExtracting,
			Policy:      pipeline.Required,
			Build:       extractionTasks(c.Extractor, t.Extraction),
			TaskTimeout: t.Extraction,
		},
		pipeline.Stage{
			Name:        StageEnrichment,
			State:       StateEnriching,
			Policy:      pipeline.RequiredIfTasks,
			Build:       enrichmentTasks(c.Enrichers),
			TaskTimeout: t.Task,
		},
		pipeline.Stage{
			Name:        StageAnalysis,
			State:       StateAnalyzing,
			Policy:      pipeline.RequiredIfTasks,
			Build:       analysisTasks(c.Analysts),
			TaskTimeout: t.Task,
		},
		pipeline.Stage{
			Name:   StageScoring,
			State:  StateScoring,
			Policy: pipeline.Required,
			Build:  scoringTasks(c.Scorer),
			// The engine fits its components and thesis inside this deadline.
			TaskTimeout: 2 * t.Task,
		},
		pipeline.Stage{
			Name:        StageReport,
			State:       StateComposingReport,
			Policy:      pipeline.Degradable,
			Build:       reportTasks(c.Reporter),
			TaskTimeout: t.Compose,
		},
		pipeline.Stage{
			Name:        StageInsights,
			State:       StateComposingInsight,
			Policy:      pipeline.Degradable,
			Build:       insightTasks(c.Insights),
			TaskTimeout: t.Compose,
		},
	)
}

func extractionTasks(x Extractor, timeout time.Duration) pipeline.Builder {
	return func(pipeline.Snapshot) []pipeline.Task {
		return []pipeline.Task{{
			Name:    TaskExtract,
			Timeout: timeout,
			Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
				in, _ := pipeline.InputAs[Input](snap)
				extraction := in.Extraction
				if extraction == nil {
					if in.ArtifactPath == "" {
						return nil, ErrNoArtifact
					}
					var err error
					if extraction, err = x.Extract(ctx, in); err != nil {
						return nil, err
					}
				}
				if err := extraction.Validate(); err != nil {
					return nil, err
				}
				return extraction, nil
			},
		}}
	}
}

func enrichmentTasks(enrichers []Enricher) pipeline.Builder {
	return func(snap pipeline.Snapshot) []pipeline.Task {
		base, err := DossierFrom(snap)
		if err != nil {
			return nil
		}
		var tasks []pipeline.Task
		for _, e := range enrichers {
			if !RequirementFor(e.Name()).Met(base) {
				continue
			}
			tasks = append(tasks, pipeline.Task{
				Name: e.Name(),
				Kind: kindFor(e.Name()),
				Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
					d, err := DossierFrom(snap)
					if err != nil {
						return nil, err
					}
					return checkFinding(e.Enrich(ctx, d))
				},
			})
		}
		return tasks
	}
}

func analysisTasks(analysts []Analyst) pipeline.Builder {
	return func(pipeline.Snapshot) []pipeline.Task {
		tasks := make([]pipeline.Task, 0, len(analysts))
		for _, a := range analysts {
			tasks = append(tasks, pipeline.Task{
				Name: a.Name(),
				Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
					d, err := DossierFrom(snap)
					if err != nil {
						return nil, err
					}
					return checkFinding(a.Analyze(ctx, d))
				},
			})
		}
		return tasks
	}
}

func scoringTasks(s Scorer) pipeline.Builder {
	return func(pipeline.Snapshot) []pipeline.Task {
		return []pipeline.Task{{
			Name: TaskScore,
			Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
				d, err := DossierFrom(snap)
				if err != nil {
					return nil, err
				}
				res := s.Score(ctx, d)
				if res == nil {
					return nil, errors.New("scorer returned no result")
				}
				return res, nil
			},
		}}
	}
}

func reportTasks(r Reporter) pipeline.Builder {
	return func(pipeline.Snapshot) []pipeline.Task {
		return []pipeline.Task{{
			Name: TaskComposeReport,
			Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
				d, score, err := scoredDossier(snap)
				if err != nil {
					return nil, err
				}
				return r.ComposeReport(ctx, d, score)
			},
		}}
	}
}

func insightTasks(w InsightWriter) pipeline.Builder {
	return func(pipeline.Snapshot) []pipeline.Task {
		return []pipeline.Task{{
			Name: TaskComposeInsights,
			Run: func(ctx context.Context, snap pipeline.Snapshot) (any, error) {
				d, score, err := scoredDossier(snap)
				if err != nil {
					return nil, err
				}
				return w.ComposeInsights(ctx, d, score)
			},
		}}
	}
}

func kindFor(source string) pipeline.Kind {
	if RequirementFor(source) == Always {
		return pipeline.KindExpected
	}
	return pipeline.KindOptional
}

// checkFinding turns a finding that reports its own error into a task failure.
func checkFinding(f casefile.Finding, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, pipeline.ErrNotApplicable
	}
	if f.HasError() {
		return nil, errors.Newf("%s", f.String("error"))
	}
	return f, nil
}

// DossierFrom assembles a dossier from everything a snapshot holds so far.
// Failed and not-applicable sources are listed as unavailable.
func DossierFrom(snap pipeline.Snapshot) (*casefile.Dossier, error) {
	in, _ := pipeline.InputAs[Input](snap)
	r, ok := snap.Lookup(StageExtraction, TaskExtract)
	if !ok {
		return nil, ErrNoExtraction
	}
	extraction, ok := pipeline.PayloadAs[*casefile.Extraction](r)
	if !ok || extraction == nil {
		return nil, ErrNoExtraction
	}

	d := casefile.NewDossier(in.CaseID, extraction, in.Website)
	for name, res := range snap.Stage(StageEnrichment) {
		if f, ok := pipeline.PayloadAs[casefile.Finding](res); ok {
			d.Enrichment[name] = f
		} else {
			d.MarkUnavailable(name)
		}
	}
	for name, res := range snap.Stage(StageAnalysis) {
		if f, ok := pipeline.PayloadAs[casefile.Finding](res); ok {
			d.Analysis[name] = f
		}
	}
	return d, nil
}

func scoredDossier(snap pipeline.Snapshot) (*casefile.Dossier, *scoring.Result, error) {
	d, err := DossierFrom(snap)
	if err != nil {
		return nil, nil, err
	}
	r, _ := snap.Lookup(StageScoring, TaskScore)
	score, ok := pipeline.PayloadAs[*scoring.Result](r)
	if !ok {
		return nil, nil, errors.New("score missing")
	}
	return d, score, nil
}
