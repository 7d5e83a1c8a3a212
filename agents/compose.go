package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/scoring"
)

const reportPrompt = `Write an investment memo for %s. Every claim must come from the data below;
cite the section it came from as [SOURCE: name].

%s
DECK: %s

ENRICHMENT:
%s
ANALYSIS:
%s
SCORE: %.1f/100, %s, confidence %s
RECOMMENDATION: %s. %s
RED FLAGS: %s
GREEN FLAGS: %s

Return JSON:
{"title": "", "summary": "", "sections": [{"heading": "", "body": ""}]}
Sections, in order: Executive Summary, Team, Problem & Solution, Market, Traction,
Business Model, Competition, Risks, Recommendation.`

// ReportComposer writes the investment memo.
type ReportComposer struct {
	gen Generator
}

// NewReportComposer creates a report composer.
func NewReportComposer(gen Generator) *ReportComposer { return &ReportComposer{gen: gen} }

// ComposeReport implements deal.Reporter.
func (c *ReportComposer) ComposeReport(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*deal.Report, error) {
	red, green := score.Flags(8)
	prompt := fmt.Sprintf(reportPrompt,
		d.CompanyName(), companyBrief(d),
		clip(d.Extraction, extractionBudget), enrichmentDigest(d, enrichmentBudget), analysisDigest(d),
		score.Total, score.TierLabel, score.Confidence,
		score.Thesis.Recommendation, score.Thesis.InvestmentThesis,
		strings.Join(red, "; "), strings.Join(green, "; "))

	var report deal.Report
	if err := c.gen.GenerateJSON(ctx, chat(analystSystem, prompt), &report); err != nil {
		return nil, err
	}
	if len(report.Sections) == 0 {
		return nil, errors.Wrap(ErrMalformedOutput, "memo has no sections")
	}
	if report.Title == "" {
		report.Title = d.CompanyName() + " Investment Memo"
	}
	report.Markdown = RenderMarkdown(&report, score, d.Unavailable)
	return &report, nil
}

// RenderMarkdown renders a memo with its score header. Unavailable sources
// are listed at the end.
func RenderMarkdown(r *deal.Report, score *scoring.Result, unavailable []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	if score != nil {
		fmt.Fprintf(&b, "**Score:** %.1f/100 · **Tier:** %s · **Confidence:** %s · **Recommendation:** %s\n\n",
			score.Total, score.TierLabel, score.Confidence, score.Thesis.Recommendation)
	}
	if r.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Summary)
	}
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Heading, strings.TrimSpace(s.Body))
	}
	if len(unavailable) > 0 {
		fmt.Fprintf(&b, "_Not available: %s_\n", strings.Join(unavailable, ", "))
	}
	return b.String()
}

const insightsPrompt = `Prepare a partner for a first call with the founders of %s.

%s
DECK: %s

ENRICHMENT:
%s
ANALYSIS:
%s
SCORE: %.1f/100 (%s)

Return JSON:
{"summary": "", "strengths": [], "risks": [], "questions": [], "ice_breakers": []}
Give 3-5 strengths, 3-5 risks, 5-8 sharp diligence questions and 2-3 ice breakers.`

// completenessSources are the findings insights expect to have.
var completenessSources = []string{
	"linkedin", "funding_history", "web_traffic", "social_signals", "market",
	"website_intelligence", "github", "news", "founder_profiles", "glassdoor",
	"market_sizing", "competitive_landscape", "milestones", "gtm_analysis",
}

// InsightComposer writes the founder-call insights.
type InsightComposer struct {
	gen Generator
}

// NewInsightComposer creates an insight composer.
func NewInsightComposer(gen Generator) *InsightComposer { return &InsightComposer{gen: gen} }

// ComposeInsights implements deal.InsightWriter.
func (c *InsightComposer) ComposeInsights(ctx context.Context, d *casefile.Dossier, score *scoring.Result) (*deal.Insights, error) {
	prompt := fmt.Sprintf(insightsPrompt,
		d.CompanyName(), companyBrief(d),
		clip(d.Extraction, extractionBudget), enrichmentDigest(d, enrichmentBudget), analysisDigest(d),
		score.Total, score.TierLabel)

	var insights deal.Insights
	if err := c.gen.GenerateJSON(ctx, chat(analystSystem, prompt), &insights); err != nil {
		return nil, err
	}
	if len(insights.Strengths) == 0 && len(insights.Risks) == 0 && len(insights.Questions) == 0 {
		return nil, errors.Wrap(ErrMalformedOutput, "insights are empty")
	}
	insights.DataCompleteness = DataCompleteness(d)
	switch {
	case insights.DataCompleteness >= 70:
		insights.ConfidenceLevel = scoring.High
	case insights.DataCompleteness >= 40:
		insights.ConfidenceLevel = scoring.Medium
	default:
		insights.ConfidenceLevel = scoring.Low
	}
	return &insights, nil
}

// DataCompleteness is the percentage of expected findings that are present.
func DataCompleteness(d *casefile.Dossier) float64 {
	have := 0
	for _, name := range completenessSources {
		if f := d.Source(name); len(f) > 0 && !f.HasError() {
			have++
			continue
		}
		if f := d.Analyzed(name); len(f) > 0 && !f.HasError() {
			have++
		}
	}
	return math.Round(float64(have)/float64(len(completenessSources))*1000) / 10
}
