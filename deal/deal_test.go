package deal

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/scoring"
)

type stubExtractor struct {
	extraction *casefile.Extraction
	err        error
	calls      atomic.Int32
}

func (s *stubExtractor) Extract(context.Context, Input) (*casefile.Extraction, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.extraction, nil
}

type stubEnricher struct {
	name  string
	err   error
	calls *atomic.Int32
}

func (s stubEnricher) Name() string { return s.name }

func (s stubEnricher) Enrich(_ context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return casefile.Finding{"source": s.name, "company": d.CompanyName()}, nil
}

type stubAnalyst struct {
	name  string
	err   error
	calls *atomic.Int32
	seen  *sync.Map
}

func (s stubAnalyst) Name() string { return s.name }

func (s stubAnalyst) Analyze(_ context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	s.calls.Add(1)
	if s.seen != nil {
		s.seen.Store(s.name, d.EnrichmentNames())
	}
	if s.err != nil {
		return nil, s.err
	}
	return casefile.Finding{"analysis": s.name}, nil
}

type stubReporter struct{ err error }

func (s stubReporter) ComposeReport(_ context.Context, d *casefile.Dossier, score *scoring.Result) (*Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Report{Title: d.CompanyName() + " memo", Summary: score.TierLabel}, nil
}

type stubInsights struct{ err error }

func (s stubInsights) ComposeInsights(context.Context, *casefile.Dossier, *scoring.Result) (*Insights, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Insights{Strengths: []string{"team"}, Questions: []string{"why now?"}}, nil
}

// counted wraps the last three collaborators so tests can prove they were
// never reached.
type countedScorer struct {
	Scorer
	calls *atomic.Int32
}

func (c countedScorer) Score(ctx context.Context, d *casefile.Dossier) *scoring.Result {
	c.calls.Add(1)
	return c.Scorer.Score(ctx, d)
}

type countedReporter struct {
	Reporter
	calls *atomic.Int32
}

func (c countedReporter) ComposeReport(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*Report, error) {
	c.calls.Add(1)
	return c.Reporter.ComposeReport(ctx, d, score)
}

type countedInsights struct {
	InsightWriter
	calls *atomic.Int32
}

func (c countedInsights) ComposeInsights(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*Insights, error) {
	c.calls.Add(1)
	return c.InsightWriter.ComposeInsights(ctx, d, score)
}

type fixedComponent struct {
	dimension string
	raw       float64
}

func (f fixedComponent) Dimension() string { return f.dimension }

func (f fixedComponent) Assess(context.Context, *casefile.Dossier) (scoring.Assessment, error) {
	return scoring.Assessment{Raw: f.raw, Confidence: scoring.High}, nil
}

type recordingStatus struct {
	mu     sync.Mutex
	states []pipeline.State
}

func (r *recordingStatus) Update(_ context.Context, _ string, state pipeline.State, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

type fixture struct {
	extractor      *stubExtractor
	enricherCalls  atomic.Int32
	analystCalls   atomic.Int32
	analystSeen    sync.Map
	scorerCalls    atomic.Int32
	reporterCalls  atomic.Int32
	insightCalls   atomic.Int32
	noEnrichers    bool
	noAnalysts     bool
	collaborators  Collaborators
	status         *recordingStatus
	failingSources map[string]bool
}

func acmeExtraction(website string) *casefile.Extraction {
	return &casefile.Extraction{
		Company:  casefile.Company{Name: "Acme Robotics", Website: website},
		Founders: []casefile.Founder{{Name: "Ash Ketchum", LinkedIn: "not_mentioned"}},
	}
}

func allSources() []string {
	return []string{
		SourceGitHub, SourceNews, SourceCompetitors, SourceMarket, SourceGlassdoor,
		SourceCompanyProfile, SourceFundingHistory, SourceSocialSignals,
		SourceLinkedIn, SourceFounderProfiles,
		SourceWebTraffic, SourceWebsite, SourceWebsiteIntelligence, SourceWebsiteDueDiligence,
	}
}

func newFixture(extraction *casefile.Extraction) *fixture {
	f := &fixture{
		extractor:      &stubExtractor{extraction: extraction},
		status:         &recordingStatus{},
		failingSources: map[string]bool{},
	}
	return f
}

func (f *fixture) build(t *testing.T) Collaborators {
	t.Helper()
	var enrichers []Enricher
	for _, name := range allSources() {
		var err error
		if f.failingSources[name] {
			err = errors.Newf("%s is down", name)
		}
		enrichers = append(enrichers, stubEnricher{name: name, err: err, calls: &f.enricherCalls})
	}
	var analysts []Analyst
	for _, name := range []string{AnalysisMarketSizing, AnalysisGTM, AnalysisCompetitiveLandscape, AnalysisMilestones} {
		var err error
		if f.failingSources[name] {
			err = errors.Newf("%s could not be analyzed", name)
		}
		analysts = append(analysts, stubAnalyst{name: name, err: err, calls: &f.analystCalls, seen: &f.analystSeen})
	}

	if f.noEnrichers {
		enrichers = nil
	}
	if f.noAnalysts {
		analysts = nil
	}

	c := f.collaborators
	c.Extractor = f.extractor
	c.Enrichers = enrichers
	c.Analysts = analysts
	if c.Scorer == nil {
		c.Scorer = scoring.NewEngine(nil, nil)
	}
	if c.Reporter == nil {
		c.Reporter = stubReporter{}
	}
	if c.Insights == nil {
		c.Insights = stubInsights{}
	}
	c.Scorer = countedScorer{Scorer: c.Scorer, calls: &f.scorerCalls}
	c.Reporter = countedReporter{Reporter: c.Reporter, calls: &f.reporterCalls}
	c.Insights = countedInsights{InsightWriter: c.Insights, calls: &f.insightCalls}
	return c
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(f.build(t), Timeouts{Task: 2 * time.Second}, WithStatusSink(f.status))
	require.NoError(t, err)
	return svc
}

func deck(t *testing.T) *pipeline.TempFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 pretend deck"), 0o600))
	return pipeline.NewTempFile(path)
}

func enrichmentKeys(res *Result) []string {
	var keys []string
	for name := range res.Context.Stage(StageEnrichment) {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

func TestNewPlanStages(t *testing.T) {
	f := newFixture(acmeExtraction(""))
	plan, err := NewPlan(f.build(t), Timeouts{})
	require.NoError(t, err)

	var names []string
	for _, s := range plan.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageExtraction, StageEnrichment, StageAnalysis, StageScoring, StageReport, StageInsights}, names)
	assert.Equal(t, stageCount, plan.Len())

	stages := plan.Stages()
	assert.Equal(t, pipeline.Required, stages[0].Policy)
	assert.Equal(t, pipeline.RequiredIfTasks, stages[1].Policy)
	assert.Equal(t, pipeline.RequiredIfTasks, stages[2].Policy)
	assert.Equal(t, pipeline.Required, stages[3].Policy)
	assert.Equal(t, pipeline.Degradable, stages[4].Policy)
	assert.Equal(t, pipeline.Degradable, stages[5].Policy)
	assert.Equal(t, DefaultTimeouts.Extraction, stages[0].TaskTimeout)

	_, err = NewPlan(Collaborators{}, Timeouts{})
	assert.Error(t, err)
}

func TestAnalyzeWithWebsite(t *testing.T) {
	t.Log("Misty pitches Acme Robotics with a working website")
	f := newFixture(acmeExtraction("acme.io"))
	svc := f.service(t)
	artifact := deck(t)

	res := svc.Analyze(context.Background(), Input{CaseID: "case-misty"}, artifact)

	require.True(t, res.Succeeded(), res.Error)
	assert.NoError(t, res.Err())
	assert.Equal(t, 1, artifact.Releases())

	keys := enrichmentKeys(res)
	assert.Len(t, keys, 14)
	assert.Contains(t, keys, SourceWebTraffic)
	assert.Contains(t, keys, SourceWebsiteIntelligence)
	assert.Contains(t, keys, SourceLinkedIn, "a domain is enough for linkedin")

	require.NotNil(t, res.Extraction)
	assert.Equal(t, "Acme Robotics", res.Extraction.Company.Name)
	require.NotNil(t, res.Score)
	require.NotNil(t, res.Report)
	assert.Equal(t, "Acme Robotics memo", res.Report.Title)
	require.NotNil(t, res.Insights)
	assert.Empty(t, res.Unavailable())

	assert.Equal(t, []pipeline.State{
		StateExtracting, StateEnriching, StateAnalyzing, StateScoring,
		StateComposingReport, StateComposingInsight, pipeline.StateCompleted,
	}, f.status.states)

	seen, ok := f.analystSeen.Load(AnalysisMarketSizing)
	require.True(t, ok)
	assert.Len(t, seen, 14, "analysts see every enrichment finding")
}

func TestAnalyzeWithoutWebsite(t *testing.T) {
	t.Log("Brock's deck has no website and no LinkedIn links")
	f := newFixture(acmeExtraction("not_mentioned"))
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-brock"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	keys := enrichmentKeys(res)
	assert.Len(t, keys, 8)
	for _, absent := range []string{SourceWebTraffic, SourceWebsite, SourceWebsiteIntelligence, SourceWebsiteDueDiligence, SourceLinkedIn, SourceFounderProfiles} {
		assert.NotContains(t, keys, absent)
	}
	assert.Equal(t, int32(8), f.enricherCalls.Load())
}

func TestAnalyzeLinkedInWithoutWebsite(t *testing.T) {
	extraction := acmeExtraction("")
	extraction.Founders[0].LinkedIn = "https://linkedin.com/in/ash"
	f := newFixture(extraction)
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-ash"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	keys := enrichmentKeys(res)
	assert.Contains(t, keys, SourceLinkedIn)
	assert.Contains(t, keys, SourceFounderProfiles)
	assert.NotContains(t, keys, SourceWebTraffic)
}

func TestWebsiteOverride(t *testing.T) {
	f := newFixture(acmeExtraction(""))
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-override", Website: "acme.dev"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	assert.Contains(t, enrichmentKeys(res), SourceWebsite)
}

func TestExtractionFailureStopsRun(t *testing.T) {
	t.Log("Team Rocket sends a deck nobody can read")
	f := newFixture(nil)
	f.extractor.err = errors.New("unreadable deck")
	artifact := deck(t)

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-rocket"}, artifact)

	assert.Equal(t, pipeline.StateFailed, res.FinalState)
	assert.ErrorIs(t, res.Err(), pipeline.ErrStageFailed)
	assert.Contains(t, res.Error, "unreadable deck")
	assert.Equal(t, int32(0), f.enricherCalls.Load())
	assert.Equal(t, int32(0), f.analystCalls.Load())
	assert.Equal(t, int32(0), f.scorerCalls.Load())
	assert.Equal(t, int32(0), f.reporterCalls.Load())
	assert.Equal(t, int32(0), f.insightCalls.Load())
	assert.Nil(t, res.Score)
	assert.Equal(t, 1, artifact.Releases())
	_, err := os.Stat(artifact.Path())
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, []pipeline.State{StateExtracting, pipeline.StateFailed}, f.status.states)
	enrichment, ok := res.Stage(StageEnrichment)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageSkipped, enrichment.Status)
}

func TestExtractionWithoutCompanyNameFails(t *testing.T) {
	f := newFixture(&casefile.Extraction{Company: casefile.Company{Name: "Unknown"}})
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-nameless"}, deck(t))

	assert.Equal(t, pipeline.StateFailed, res.FinalState)
	assert.Contains(t, res.Error, casefile.ErrNoCompanyName.Error())
}

func TestProvidedExtractionSkipsExtractor(t *testing.T) {
	t.Log("Professor Oak forwards an email that was already read")
	f := newFixture(nil)
	in := Input{CaseID: "case-oak", Source: "email", Extraction: acmeExtraction("acme.io")}

	res := f.service(t).Analyze(context.Background(), in, nil)

	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, int32(0), f.extractor.calls.Load())
	assert.Equal(t, "Acme Robotics", res.Extraction.Company.Name)
}

func TestNoDeckAndNoExtractionFails(t *testing.T) {
	f := newFixture(acmeExtraction(""))
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-empty"}, nil)

	assert.Equal(t, pipeline.StateFailed, res.FinalState)
	assert.Contains(t, res.Error, ErrNoArtifact.Error())
}

func TestPartialEnrichmentAndAnalysisFailuresDegrade(t *testing.T) {
	t.Log("Glassdoor is down and the milestones analyst is confused, the run goes on")
	f := newFixture(acmeExtraction("acme.io"))
	f.failingSources[SourceGlassdoor] = true
	f.failingSources[AnalysisMilestones] = true

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-partial"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)

	analysis := res.Context.Stage(StageAnalysis)
	require.Len(t, analysis, 4)
	succeeded := 0
	for _, r := range analysis {
		if r.OK() {
			succeeded++
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.True(t, analysis[AnalysisMilestones].Failed())

	status, _ := res.Stage(StageAnalysis)
	assert.Equal(t, pipeline.StageDegraded, status.Status)
	assert.ElementsMatch(t, []string{"enrichment/glassdoor", "analysis/milestones"}, res.Unavailable())

	seen, _ := f.analystSeen.Load(AnalysisGTM)
	assert.NotContains(t, seen, SourceGlassdoor)
}

func TestAllEnrichmentFailingFailsRun(t *testing.T) {
	f := newFixture(acmeExtraction(""))
	for _, name := range allSources() {
		f.failingSources[name] = true
	}
	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-dark"}, deck(t))

	assert.Equal(t, pipeline.StateFailed, res.FinalState)
	assert.Contains(t, res.Error, "stage enrichment failed")
	assert.Equal(t, int32(0), f.analystCalls.Load())
	assert.Equal(t, int32(0), f.scorerCalls.Load())
}

func TestNoEnrichmentSourcesStillCompletes(t *testing.T) {
	t.Log("Ditto shows up with no sources configured; the case is scored on the deck alone")
	f := newFixture(acmeExtraction("acme.io"))
	f.noEnrichers = true

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-ditto"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	enrichment, ok := res.Stage(StageEnrichment)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageSkipped, enrichment.Status)
	assert.Empty(t, enrichmentKeys(res))
	assert.Equal(t, int32(4), f.analystCalls.Load())
	assert.Equal(t, int32(1), f.scorerCalls.Load())
	assert.NotNil(t, res.Score)
	assert.NotNil(t, res.Report)
}

func TestNoAnalystsStillCompletes(t *testing.T) {
	f := newFixture(acmeExtraction("acme.io"))
	f.noAnalysts = true

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-no-analysts"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	analysis, ok := res.Stage(StageAnalysis)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageSkipped, analysis.Status)
	assert.Empty(t, res.Context.Stage(StageAnalysis))
	assert.Equal(t, int32(1), f.scorerCalls.Load())
	assert.Equal(t, int32(1), f.reporterCalls.Load())
	assert.Equal(t, int32(1), f.insightCalls.Load())
}

func TestReportFailureStillCompletes(t *testing.T) {
	t.Log("Psyduck forgets how to write the memo")
	f := newFixture(acmeExtraction("acme.io"))
	f.collaborators.Reporter = stubReporter{err: errors.New("model refused")}

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-psyduck"}, deck(t))

	require.True(t, res.Succeeded())
	assert.NoError(t, res.Err())
	assert.Nil(t, res.Report)
	assert.NotNil(t, res.Insights)

	r, ok := res.Context.Lookup(StageReport, TaskComposeReport)
	require.True(t, ok)
	assert.True(t, r.Failed())
	assert.Contains(t, r.Reason, "model refused")
	assert.Equal(t, []string{"report/compose_report"}, res.Unavailable())
}

func TestScoreTotalSeventyThreeIsTierTwo(t *testing.T) {
	f := newFixture(acmeExtraction("acme.io"))
	f.collaborators.Scorer = scoring.NewEngine([]scoring.Component{
		fixedComponent{dimension: scoring.FounderQuality, raw: 30},
		fixedComponent{dimension: scoring.MarketOpportunity, raw: 20},
		fixedComponent{dimension: scoring.TechnicalMoat, raw: 20},
		fixedComponent{dimension: scoring.Traction, raw: 20},
		fixedComponent{dimension: scoring.FundingQuality, raw: 2},
		fixedComponent{dimension: scoring.BusinessModel, raw: 0},
		fixedComponent{dimension: scoring.WebsiteIntelligence, raw: 0},
		fixedComponent{dimension: scoring.LinkedInEnrichment, raw: 0},
		fixedComponent{dimension: scoring.WebGrowthSignals, raw: 0},
	}, nil)

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-73"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	require.NotNil(t, res.Score)
	assert.Equal(t, 73.0, res.Score.Total)
	assert.Equal(t, scoring.Tier2, res.Score.Tier)
	assert.Equal(t, "Strong Investment (70-84)", res.Report.Summary)
}

type stalledComponent struct{ dimension string }

func (s stalledComponent) Dimension() string { return s.dimension }

func (s stalledComponent) Assess(ctx context.Context, _ *casefile.Dossier) (scoring.Assessment, error) {
	<-ctx.Done()
	return scoring.Assessment{}, ctx.Err()
}

type stalledThesis struct{}

func (stalledThesis) WriteThesis(ctx context.Context, _ *casefile.Dossier, _ *scoring.Result) (scoring.Thesis, error) {
	<-ctx.Done()
	return scoring.Thesis{}, ctx.Err()
}

func TestSlowScoringStillYieldsScore(t *testing.T) {
	t.Log("The judges doze off mid-contest; Acme still leaves with a scorecard")

	const task = 300 * time.Millisecond
	executor := pipeline.NewExecutor(pipeline.ExecutorConfig{TaskTimeout: task}, nil)
	f := newFixture(acmeExtraction("acme.io"))
	f.collaborators.Scorer = scoring.NewEngine(
		[]scoring.Component{stalledComponent{dimension: scoring.FounderQuality}},
		executor,
		scoring.WithThesisWriter(stalledThesis{}),
	)

	svc, err := NewService(f.build(t), Timeouts{Task: task}, WithExecutor(executor), WithStatusSink(f.status))
	require.NoError(t, err)
	res := svc.Analyze(context.Background(), Input{CaseID: "case-dozing"}, deck(t))

	require.True(t, res.Succeeded(), res.Error)
	require.NotNil(t, res.Score)
	assert.Equal(t, scoring.FallbackThesis(), res.Score.Thesis)
	founder, _ := res.Score.Component(scoring.FounderQuality)
	assert.True(t, founder.Defaulted)
	scoringStage, _ := res.Stage(StageScoring)
	assert.Equal(t, pipeline.StageCompleted, scoringStage.Status)
	assert.NotNil(t, res.Report)
}

func TestRerunsAreDeterministic(t *testing.T) {
	f := newFixture(acmeExtraction("acme.io"))
	svc := f.service(t)

	first := svc.Analyze(context.Background(), Input{CaseID: "case-twice"}, deck(t))
	second := svc.Analyze(context.Background(), Input{CaseID: "case-twice"}, deck(t))

	assert.Equal(t, first.FinalState, second.FinalState)
	assert.Equal(t, first.Context.Keys(), second.Context.Keys())
	assert.Equal(t, first.Score.Total, second.Score.Total)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestProgressSinksReceiveEveryStage(t *testing.T) {
	f := newFixture(acmeExtraction(""))
	var mu sync.Mutex
	var percentages []int
	sink := pipeline.ProgressFunc(func(_ context.Context, e pipeline.ProgressEvent) error {
		mu.Lock()
		defer mu.Unlock()
		percentages = append(percentages, e.Percentage)
		return nil
	})

	res := f.service(t).Analyze(context.Background(), Input{CaseID: "case-progress"}, deck(t), sink)

	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, []int{17, 33, 50, 67, 83, 100}, percentages)
}

func TestRequirementMet(t *testing.T) {
	bare := casefile.NewDossier("c", acmeExtraction(""), "")
	assert.True(t, Always.Met(bare))
	assert.False(t, NeedsWebsite.Met(bare))
	assert.False(t, NeedsLinkedIn.Met(bare))

	withSite := casefile.NewDossier("c", acmeExtraction("https://www.acme.io"), "")
	assert.True(t, NeedsWebsite.Met(withSite))
	assert.True(t, NeedsLinkedIn.Met(withSite))

	assert.Equal(t, NeedsWebsite, RequirementFor(SourceWebsiteDueDiligence))
	assert.Equal(t, Always, RequirementFor("crunchbase"))
}
