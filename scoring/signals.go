package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/teranos/dealflow/casefile"
)

// The signals below read enrichment findings directly. A missing or
// self-reported-failed finding yields the low-confidence floor rather than
// an error, mirroring how an absent source is "not available".

// WebsiteIntelligenceSignal scores the deep-crawl summary on a 0-10 scale.
type WebsiteIntelligenceSignal struct{}

func (WebsiteIntelligenceSignal) Dimension() string { return WebsiteIntelligence }

func (WebsiteIntelligenceSignal) Assess(_ context.Context, d *casefile.Dossier) (Assessment, error) {
	summary := d.Source("website_intelligence").Object("intelligence_summary")
	if len(summary) == 0 || summary.HasError() {
		return Assessment{Raw: 5, Reasoning: "Website intelligence data not available or incomplete", Confidence: Low}, nil
	}

	overall := 50.0
	if summary.Has("overall_score") {
		overall = summary.Float("overall_score")
	}
	conf := Low
	switch {
	case overall > 70:
		conf = High
	case overall > 40:
		conf = Medium
	}
	return Assessment{
		Raw:        math.Min(10, math.Max(0, math.Round(overall/10))),
		Reasoning:  summary.String("one_line_verdict"),
		Confidence: conf,
		RedFlags:   summary.Strings("red_flags"),
		GreenFlags: summary.Strings("green_flags"),
		Details:    map[string]any{"overall_raw_score": overall},
	}, nil
}

// LinkedInSignal scores founder and company LinkedIn data on a 0-5 scale.
type LinkedInSignal struct{}

func (LinkedInSignal) Dimension() string { return LinkedInEnrichment }

func (LinkedInSignal) Assess(_ context.Context, d *casefile.Dossier) (Assessment, error) {
	li := d.Source("linkedin")
	if len(li) == 0 || li.HasError() {
		return Assessment{Raw: 0, Reasoning: "No LinkedIn data", Confidence: Low}, nil
	}

	score := 0.0
	var reasons []string

	founders := li.List("founders")
	if len(founders) == 0 {
		founders = li.List("found_profiles")
	}
	exits, topTier := 0, 0
	for _, f := range founders {
		if f.Bool("prior_exits") {
			exits++
		}
		if f.Bool("education_top_tier") {
			topTier++
		}
	}
	if exits > 0 {
		score += math.Min(2, float64(exits))
		reasons = append(reasons, fmt.Sprintf("%d founder(s) with prior exits", exits))
	}

	switch followers := li.Float("follower_count"); {
	case followers > 10000:
		score += 1
		reasons = append(reasons, fmt.Sprintf("%.0f LinkedIn followers", followers))
	case followers > 1000:
		score += 0.5
	}

	if topTier > 0 {
		score += 1
		reasons = append(reasons, fmt.Sprintf("%d founder(s) with top-tier education", topTier))
	}

	switch employees := li.Float("employee_count"); {
	case employees > 50:
		score += 1
		reasons = append(reasons, fmt.Sprintf("%.0f employees on LinkedIn", employees))
	case employees > 10:
		score += 0.5
	}

	return Assessment{
		Raw:        math.Min(5, round1(score)),
		Reasoning:  joinReasons(reasons, "LinkedIn data available but limited signals"),
		Confidence: confidenceAbove(score, 3, 1),
	}, nil
}

// FundingSignal scores investor quality and round history on a 0-4 scale.
type FundingSignal struct{}

func (FundingSignal) Dimension() string { return FundingQuality }

func (FundingSignal) Assess(_ context.Context, d *casefile.Dossier) (Assessment, error) {
	funding := d.Source("funding_history")
	if len(funding) == 0 || funding.HasError() {
		return Assessment{Raw: 0, Reasoning: "No funding data", Confidence: Low}, nil
	}

	score := 0.0
	var reasons []string

	if tier := funding.Float("investor_tier_score"); tier > 0 {
		score += math.Min(2, tier/5)
		if tier >= 5 {
			reasons = append(reasons, fmt.Sprintf("High-quality investors (tier %.0f/10)", tier))
		}
	}

	switch total := funding.Float("total_raised_usd"); {
	case total >= 10_000_000:
		score += 1
		reasons = append(reasons, fmt.Sprintf("$%.0f total raised", total))
	case total >= 1_000_000:
		score += 0.5
	}

	switch rounds := funding.Len("all_rounds"); {
	case rounds >= 3:
		score += 1
		reasons = append(reasons, fmt.Sprintf("%d funding rounds", rounds))
	case rounds >= 2:
		score += 0.5
	}

	return Assessment{
		Raw:        math.Min(4, round1(score)),
		Reasoning:  joinReasons(reasons, "Funding data available"),
		Confidence: confidenceAbove(score, 2.5, 1),
	}, nil
}

// WebGrowthSignal scores traffic and social presence on a 0-3 scale.
type WebGrowthSignal struct{}

func (WebGrowthSignal) Dimension() string { return WebGrowthSignals }

func (WebGrowthSignal) Assess(_ context.Context, d *casefile.Dossier) (Assessment, error) {
	traffic := d.Source("web_traffic")
	social := d.Source("social_signals")
	if nested := social.Object("data"); len(nested) > 0 {
		social = nested
	}

	score := 0.0
	var reasons []string

	switch visits := traffic.Float("monthly_visits"); {
	case visits > 100_000:
		score += 1.5
		reasons = append(reasons, fmt.Sprintf("%.0f monthly visits", visits))
	case visits > 10_000:
		score += 1
		reasons = append(reasons, fmt.Sprintf("%.0f monthly visits", visits))
	case visits > 1_000:
		score += 0.5
	}

	if strings.EqualFold(traffic.String("monthly_visits_trend"), "UP") {
		score += 0.5
		reasons = append(reasons, "Traffic trending up")
	}

	switch presence := social.Float("social_presence_score"); {
	case presence >= 7:
		score += 1
		reasons = append(reasons, fmt.Sprintf("Strong social presence (%.0f/10)", presence))
	case presence >= 4:
		score += 0.5
	}

	return Assessment{
		Raw:        math.Min(3, round1(score)),
		Reasoning:  joinReasons(reasons, "Limited web/social data"),
		Confidence: confidenceAbove(score, 2, 1),
	}, nil
}

// WebsiteDueDiligenceSignal applies the 10-point website diligence rubric:
// product clarity 3, pricing and GTM 2, customer proof 2, technical
// credibility 2, trust and compliance 1.
type WebsiteDueDiligenceSignal struct{}

func (WebsiteDueDiligenceSignal) Dimension() string { return WebsiteDueDiligence }

func (WebsiteDueDiligenceSignal) Assess(_ context.Context, d *casefile.Dossier) (Assessment, error) {
	dd := d.Source("website_due_diligence")
	if len(dd) == 0 || dd.String("status") == "incomplete" {
		return Assessment{
			Raw:        0,
			Reasoning:  "Website due diligence not available or incomplete",
			Confidence: Low,
			RedFlags:   []string{"Website data unavailable"},
		}, nil
	}

	ex := dd.Object("extraction")
	product := ex.Object("product_signals")
	business := ex.Object("business_model_signals")
	customers := ex.Object("customer_validation_signals")
	trust := ex.Object("trust_compliance_signals")

	var red, green []string
	var productScore, pricingScore, customerScore, technicalScore, trustScore float64

	if mentioned(product.String("product_description")) {
		productScore += 1.5
		green = append(green, "Clear product description")
	} else {
		red = append(red, "No clear product description")
	}
	if n := product.Len("key_features"); n > 0 {
		productScore++
		green = append(green, fmt.Sprintf("%d key features documented", n))
	} else {
		red = append(red, "No key features listed")
	}
	api := product.Bool("api_available")
	if api {
		productScore += 0.5
		technicalScore++
		green = append(green, "API available")
	}

	if model := business.String("pricing_model"); mentioned(model) && model != "unknown" {
		pricingScore++
		green = append(green, "Pricing model: "+model)
	} else {
		red = append(red, "No clear pricing model")
	}
	if business.Len("price_points") > 0 {
		pricingScore += 0.5
		green = append(green, "Pricing tiers visible")
	} else {
		red = append(red, "No pricing information")
	}
	if motion := business.String("sales_motion"); mentioned(motion) {
		pricingScore += 0.5
		green = append(green, "Sales motion: "+motion)
	}

	if logos := customers.Float("customer_logos_count"); logos > 0 {
		customerScore++
		green = append(green, fmt.Sprintf("%.0f customer logos displayed", logos))
	} else {
		red = append(red, "No customer logos")
	}
	if cases := customers.Float("case_study_count"); cases > 0 {
		customerScore += 0.5
		green = append(green, fmt.Sprintf("%.0f case studies", cases))
	}
	if n := customers.Len("named_customers"); n > 0 {
		customerScore += 0.5
		green = append(green, fmt.Sprintf("%d named customers", n))
	}

	if n := product.Len("integrations"); n > 0 {
		technicalScore += 0.5
		green = append(green, fmt.Sprintf("%d integrations", n))
	}
	certs := trust.Strings("certifications")
	if len(certs) > 0 {
		technicalScore += 0.5
		trustScore += 0.25
		if len(certs) > 3 {
			certs = certs[:3]
		}
		green = append(green, "Certifications: "+strings.Join(certs, ", "))
	}

	if trust.Bool("security_page_exists") {
		trustScore += 0.5
		green = append(green, "Security page exists")
	} else {
		red = append(red, "No security page")
	}
	if trust.Bool("privacy_policy_exists") {
		trustScore += 0.25
		green = append(green, "Privacy policy exists")
	}

	red = append(red, firstN(ex.Strings("red_flags"), 3)...)
	green = append(green, firstN(ex.Strings("green_flags"), 3)...)

	total := math.Min(10, productScore+pricingScore+customerScore+technicalScore+trustScore)
	pages := dd.Float("pages_crawled")

	return Assessment{
		Raw:        round1(total),
		Reasoning:  fmt.Sprintf("Website DD Score: %.1f/10 based on %.0f pages crawled", round1(total), pages),
		Confidence: confidenceAbove(pages, 10, 5),
		RedFlags:   firstN(dedupe(red), 5),
		GreenFlags: firstN(dedupe(green), 8),
		Details: map[string]any{
			"product_clarity":       round1(productScore),
			"pricing_gtm_clarity":   round1(pricingScore),
			"customer_proof":        round1(customerScore),
			"technical_credibility": round1(technicalScore),
			"trust_compliance":      round1(trustScore),
			"pages_analyzed":        pages,
		},
	}, nil
}

func mentioned(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "not_mentioned"
}

func joinReasons(reasons []string, fallback string) string {
	if len(reasons) == 0 {
		return fallback
	}
	return strings.Join(reasons, "; ")
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func dedupe(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
