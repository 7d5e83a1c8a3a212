package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/scoring"
)

// Rubric is a model-scored dimension.
type Rubric struct {
	dimension string
	max       float64
	criteria  string
	gen       Generator
}

// Dimension implements scoring.Component.
func (r *Rubric) Dimension() string { return r.dimension }

type rubricReply struct {
	Score      float64        `json:"score"`
	Reasoning  string         `json:"reasoning"`
	Confidence string         `json:"confidence"`
	RedFlags   []string       `json:"red_flags"`
	GreenFlags []string       `json:"green_flags"`
	Breakdown  map[string]any `json:"breakdown"`
}

// Assess implements scoring.Component. Scores outside the scale are clamped.
func (r *Rubric) Assess(ctx context.Context, d *casefile.Dossier) (scoring.Assessment, error) {
	prompt := fmt.Sprintf(`Score %s for this company on a 0-%.0f scale.

%s
CRITERIA:
%s

DECK: %s

ENRICHMENT:
%s
ANALYSIS:
%s
Return JSON: {"score": 0, "reasoning": "", "confidence": "HIGH|MEDIUM|LOW", "red_flags": [], "green_flags": [], "breakdown": {}}`,
		strings.ReplaceAll(r.dimension, "_", " "), r.max, companyBrief(d), r.criteria,
		clip(d.Extraction, extractionBudget), enrichmentDigest(d, enrichmentBudget), analysisDigest(d))

	var reply rubricReply
	if err := r.gen.GenerateJSON(ctx, chat(analystSystem, prompt), &reply); err != nil {
		return scoring.Assessment{}, err
	}
	if reply.Reasoning == "" {
		return scoring.Assessment{}, errors.Wrapf(ErrMalformedOutput, "%s reply has no reasoning", r.dimension)
	}

	raw := reply.Score
	if raw < 0 {
		raw = 0
	}
	if raw > r.max {
		raw = r.max
	}
	return scoring.Assessment{
		Raw:        raw,
		Reasoning:  reply.Reasoning,
		Confidence: confidence(reply.Confidence),
		RedFlags:   reply.RedFlags,
		GreenFlags: reply.GreenFlags,
		Details:    reply.Breakdown,
	}, nil
}

func confidence(s string) scoring.Confidence {
	switch scoring.Confidence(strings.ToUpper(strings.TrimSpace(s))) {
	case scoring.High:
		return scoring.High
	case scoring.Low:
		return scoring.Low
	default:
		return scoring.Medium
	}
}

// NewRubrics returns the model-scored components: founder quality, market
// opportunity, technical moat, traction and business model.
func NewRubrics(gen Generator) []scoring.Component {
	scale := map[string]float64{}
	for _, dim := range scoring.Dimensions {
		scale[dim.Name] = dim.MaxRaw
	}
	rubric := func(dimension, criteria string) scoring.Component {
		return &Rubric{dimension: dimension, max: scale[dimension], criteria: criteria, gen: gen}
	}
	return []scoring.Component{
		rubric(scoring.FounderQuality,
			"Domain expertise 0-10, prior startup experience and exits 0-8, team completeness 0-7, execution evidence 0-5."),
		rubric(scoring.MarketOpportunity,
			"Market size 0-8, growth rate 0-6, timing and tailwinds 0-6."),
		rubric(scoring.TechnicalMoat,
			"Technology defensibility 0-8, proprietary data or IP 0-6, switching costs and network effects 0-6."),
		rubric(scoring.Traction,
			"Revenue or usage 0-8, growth rate 0-7, customer quality and retention 0-5. Pre-revenue companies score on pilots and waitlists."),
		rubric(scoring.BusinessModel,
			"Revenue model clarity 0-4, unit economics 0-3, scalability 0-3."),
	}
}

const thesisPrompt = `Write the investment recommendation for this company.

%s
SCORE: %.1f/100 (%s), confidence %s
COMPONENTS:
%s
Return JSON: {"recommendation": "STRONG_BUY|BUY|HOLD|PASS", "investment_thesis": "", "top_reasons": [], "top_risks": [], "expected_return": ""}`

// ThesisWriter writes the recommendation that accompanies a score.
type ThesisWriter struct {
	gen Generator
}

// NewThesisWriter creates a thesis writer.
func NewThesisWriter(gen Generator) *ThesisWriter { return &ThesisWriter{gen: gen} }

// WriteThesis implements scoring.ThesisWriter.
func (w *ThesisWriter) WriteThesis(ctx context.Context, d *casefile.Dossier, r *scoring.Result) (scoring.Thesis, error) {
	var lines strings.Builder
	for _, c := range r.Components {
		fmt.Fprintf(&lines, "- %s: %.1f/%.0f", c.Dimension, c.Weighted, c.Weight)
		if c.Reasoning != "" {
			fmt.Fprintf(&lines, " (%s)", c.Reasoning)
		}
		if c.Defaulted {
			lines.WriteString(" [defaulted]")
		}
		lines.WriteString("\n")
	}

	var thesis scoring.Thesis
	prompt := fmt.Sprintf(thesisPrompt, companyBrief(d), r.Total, r.TierLabel, r.Confidence, lines.String())
	if err := w.gen.GenerateJSON(ctx, chat(analystSystem, prompt), &thesis); err != nil {
		return scoring.Thesis{}, err
	}
	thesis.Recommendation = strings.ToUpper(strings.TrimSpace(thesis.Recommendation))
	return thesis, nil
}
