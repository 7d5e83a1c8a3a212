package scoring

import "math"

// Dimension names.
const (
	FounderQuality      = "founder_quality"
	MarketOpportunity   = "market_opportunity"
	TechnicalMoat       = "technical_moat"
	Traction            = "traction"
	BusinessModel       = "business_model"
	WebsiteIntelligence = "website_intelligence"
	LinkedInEnrichment  = "linkedin_enrichment"
	FundingQuality      = "funding_quality"
	WebGrowthSignals    = "web_growth_signals"
	WebsiteDueDiligence = "website_due_diligence"
)

// Dimension is one scored aspect. A component reports a raw score on
// [0, MaxRaw]; the dimension contributes Raw*Weight/MaxRaw, clamped to
// [0, Weight]. DefaultRaw stands in when the component fails.
type Dimension struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	MaxRaw     float64 `json:"max_raw"`
	DefaultRaw float64 `json:"default_raw"`
}

// Weighted converts a raw score into its weighted contribution.
func (d Dimension) Weighted(raw float64) float64 {
	if d.Weight == 0 || d.MaxRaw == 0 {
		return 0
	}
	return math.Min(d.Weight, math.Max(0, raw*d.Weight/d.MaxRaw))
}

// Dimensions is the scoring rubric; weights sum to 100. Website due
// diligence is reported but carries no weight.
var Dimensions = []Dimension{
	{Name: FounderQuality, Weight: 22, MaxRaw: 30, DefaultRaw: 11},
	{Name: MarketOpportunity, Weight: 18, MaxRaw: 20, DefaultRaw: 9},
	{Name: TechnicalMoat, Weight: 18, MaxRaw: 20, DefaultRaw: 9},
	{Name: Traction, Weight: 13, MaxRaw: 20, DefaultRaw: 7},
	{Name: BusinessModel, Weight: 9, MaxRaw: 10, DefaultRaw: 5},
	{Name: WebsiteIntelligence, Weight: 8, MaxRaw: 10, DefaultRaw: 4},
	{Name: LinkedInEnrichment, Weight: 5, MaxRaw: 5, DefaultRaw: 0},
	{Name: FundingQuality, Weight: 4, MaxRaw: 4, DefaultRaw: 0},
	{Name: WebGrowthSignals, Weight: 3, MaxRaw: 3, DefaultRaw: 0},
	{Name: WebsiteDueDiligence, Weight: 0, MaxRaw: 10, DefaultRaw: 0},
}

// Weights returns the rubric as name -> weight for weighted dimensions.
func Weights() map[string]float64 {
	w := make(map[string]float64, len(Dimensions))
	for _, d := range Dimensions {
		if d.Weight > 0 {
			w[d.Name] = d.Weight
		}
	}
	return w
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
