package scoring

// Assessment is what a component concluded for one dimension.
type Assessment struct {
	Raw        float64        `json:"raw"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Confidence Confidence     `json:"confidence,omitempty"`
	RedFlags   []string       `json:"red_flags,omitempty"`
	GreenFlags []string       `json:"green_flags,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// ComponentScore is one dimension's line in a Result.
type ComponentScore struct {
	Dimension  string     `json:"dimension"`
	Weight     float64    `json:"weight"`
	Raw        float64    `json:"raw"`
	Weighted   float64    `json:"weighted"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Defaulted  bool       `json:"defaulted,omitempty"`
	Error      string     `json:"error,omitempty"`
	Assessment Assessment `json:"assessment"`
}

// Thesis is the written recommendation that accompanies a score.
type Thesis struct {
	Recommendation   string   `json:"recommendation"`
	InvestmentThesis string   `json:"investment_thesis"`
	TopReasons       []string `json:"top_reasons"`
	TopRisks         []string `json:"top_risks"`
	ExpectedReturn   string   `json:"expected_return"`
}

// FallbackThesis is used when no thesis could be written.
func FallbackThesis() Thesis {
	return Thesis{
		Recommendation:   "HOLD",
		InvestmentThesis: "Thesis generation failed. Numeric scores are still valid.",
		TopReasons:       []string{},
		TopRisks:         []string{"Thesis could not be generated, manual review recommended"},
		ExpectedReturn:   "N/A",
	}
}

// Result is the compiled score for a case.
type Result struct {
	Total      float64          `json:"total"`
	Tier       Tier             `json:"tier"`
	TierLabel  string           `json:"tier_label"`
	Confidence Confidence       `json:"confidence"`
	Components []ComponentScore `json:"components"`
	Thesis     Thesis           `json:"thesis"`
}

// Component returns the score line for a dimension.
func (r *Result) Component(dimension string) (ComponentScore, bool) {
	for _, c := range r.Components {
		if c.Dimension == dimension {
			return c, true
		}
	}
	return ComponentScore{}, false
}

// Flags collects red and green flags across components, first max of each.
func (r *Result) Flags(max int) (red, green []string) {
	for _, c := range r.Components {
		red = append(red, c.Assessment.RedFlags...)
		green = append(green, c.Assessment.GreenFlags...)
	}
	if max > 0 {
		if len(red) > max {
			red = red[:max]
		}
		if len(green) > max {
			green = green[:max]
		}
	}
	return red, green
}
