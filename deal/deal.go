// Package deal wires the case-analysis workflow onto the pipeline engine:
// extraction, enrichment, analysis, scoring, then the report and insights.
package deal

import (
	"context"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/scoring"
)

// Stage names, in run order.
const (
	StageExtraction = "extraction"
	StageEnrichment = "enrichment"
	StageAnalysis   = "analysis"
	StageScoring    = "scoring"
	StageReport     = "report"
	StageInsights   = "insights"
)

// Case states, one per stage.
const (
	StateExtracting       pipeline.State = "extracting"
	StateEnriching        pipeline.State = "enriching"
	StateAnalyzing        pipeline.State = "analyzing"
	StateScoring          pipeline.State = "scoring"
	StateComposingReport  pipeline.State = "composing_report"
	StateComposingInsight pipeline.State = "composing_insights"
)

// Single-task stage task names.
const (
	TaskExtract         = "extract"
	TaskScore           = "score"
	TaskComposeReport   = "compose_report"
	TaskComposeInsights = "compose_insights"
)

// Enrichment sources.
const (
	SourceGitHub              = "github"
	SourceNews                = "news"
	SourceCompetitors         = "competitors"
	SourceMarket              = "market"
	SourceGlassdoor           = "glassdoor"
	SourceCompanyProfile      = "company_profile"
	SourceFundingHistory      = "funding_history"
	SourceSocialSignals       = "social_signals"
	SourceLinkedIn            = "linkedin"
	SourceFounderProfiles     = "founder_profiles"
	SourceWebTraffic          = "web_traffic"
	SourceWebsite             = "website"
	SourceWebsiteIntelligence = "website_intelligence"
	SourceWebsiteDueDiligence = "website_due_diligence"
)

// Analysis tasks.
const (
	AnalysisMarketSizing         = "market_sizing"
	AnalysisGTM                  = "gtm_analysis"
	AnalysisCompetitiveLandscape = "competitive_landscape"
	AnalysisMilestones           = "milestones"
)

// Requirement says what a case must carry for an enrichment source to run.
type Requirement int

const (
	Always Requirement = iota
	// NeedsLinkedIn runs when a founder LinkedIn URL or a company domain exists.
	NeedsLinkedIn
	// NeedsWebsite runs when a company website resolved.
	NeedsWebsite
)

var requirements = map[string]Requirement{
	SourceLinkedIn:            NeedsLinkedIn,
	SourceFounderProfiles:     NeedsLinkedIn,
	SourceWebTraffic:          NeedsWebsite,
	SourceWebsite:             NeedsWebsite,
	SourceWebsiteIntelligence: NeedsWebsite,
	SourceWebsiteDueDiligence: NeedsWebsite,
}

// RequirementFor returns the gating rule for an enrichment source. Unknown
// sources always run.
func RequirementFor(source string) Requirement {
	return requirements[source]
}

// Met reports whether d satisfies the requirement.
func (r Requirement) Met(d *casefile.Dossier) bool {
	switch r {
	case NeedsLinkedIn:
		if d.Domain != "" {
			return true
		}
		return d.Extraction != nil && len(d.Extraction.FounderLinkedInURLs()) > 0
	case NeedsWebsite:
		return d.Website != ""
	default:
		return true
	}
}

// Input is what a case starts from.
type Input struct {
	CaseID string `json:"case_id"`
	// upload, inbox, url or email
	Source       string `json:"source"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	// Website overrides whatever the deck says.
	Website string `json:"website,omitempty"`
	// Extraction is set when the case arrived already extracted.
	Extraction *casefile.Extraction `json:"extraction,omitempty"`
}

// Report is the investment memo.
type Report struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
	Markdown string    `json:"markdown,omitempty"`
}

// Section is one headed part of a report.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Insights are the talking points for a first call with the founders.
type Insights struct {
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Risks       []string `json:"risks"`
	Questions   []string `json:"questions"`
	IceBreakers []string `json:"ice_breakers"`
	// Share of known sources that returned data, 0-100.
	DataCompleteness float64            `json:"data_completeness"`
	ConfidenceLevel  scoring.Confidence `json:"confidence_level"`
}

// Extractor reads a deck into structured case data.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*casefile.Extraction, error)
}

// Enricher researches one source for a case.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error)
}

// Analyst produces one analysis from an enriched dossier.
type Analyst interface {
	Name() string
	Analyze(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error)
}

// Scorer scores a dossier. It always returns a result.
type Scorer interface {
	Score(ctx context.Context, d *casefile.Dossier) *scoring.Result
}

// Reporter writes the investment memo.
type Reporter interface {
	ComposeReport(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*Report, error)
}

// InsightWriter writes the founder-call insights.
type InsightWriter interface {
	ComposeInsights(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*Insights, error)
}

// Collaborators are the workers behind each stage. Enrichers and Analysts
// with duplicate names are rejected when the plan runs.
type Collaborators struct {
	Extractor Extractor
	Enrichers []Enricher
	Analysts  []Analyst
	Scorer    Scorer
	Reporter  Reporter
	Insights  InsightWriter
}
