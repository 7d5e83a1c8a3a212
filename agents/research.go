package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/dealflow/casefile"
)

// Research is an enrichment source answered by the model from public
// knowledge and the deck. Each source asks for the fields scoring reads.
type Research struct {
	name   string
	ask    string
	shape  string
	extras func(d *casefile.Dossier) string
	gen    Generator
}

func (r *Research) Name() string { return r.name }

// Enrich implements deal.Enricher.
func (r *Research) Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	var b strings.Builder
	b.WriteString(companyBrief(d))
	if r.extras != nil {
		b.WriteString(r.extras(d))
	}
	fmt.Fprintf(&b, "\n%s\nReturn JSON:\n%s\nUse null or \"not_mentioned\" for anything you cannot support.", r.ask, r.shape)

	f, err := generateFinding(ctx, r.gen, analystSystem, b.String())
	if err != nil {
		return nil, err
	}
	f["source"] = r.name
	return f, nil
}

func productLine(d *casefile.Dossier) string {
	desc := d.Extraction.Solution.String("product_description")
	if desc == "" {
		desc = d.Extraction.Company.Description
	}
	if desc == "" {
		return ""
	}
	return "Product: " + desc + "\n"
}

func foundersLine(d *casefile.Dossier) string {
	var b strings.Builder
	for _, f := range d.Extraction.Founders {
		fmt.Fprintf(&b, "Founder: %s, %s", f.Name, f.Role)
		if f.LinkedIn != "" {
			fmt.Fprintf(&b, ", LinkedIn %s", f.LinkedIn)
		}
		if len(f.PreviousCompanies) > 0 {
			fmt.Fprintf(&b, ", previously %s", strings.Join(f.PreviousCompanies, ", "))
		}
		if f.Education != "" {
			fmt.Fprintf(&b, ", %s", f.Education)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func domainLine(d *casefile.Dossier) string {
	if d.Domain == "" {
		return ""
	}
	return "Domain: " + d.Domain + "\n"
}

func deckSection(name string, f casefile.Finding) func(*casefile.Dossier) string {
	return func(*casefile.Dossier) string {
		if len(f) == 0 {
			return ""
		}
		return name + " (from deck): " + f.JSON(findingBudget) + "\n"
	}
}

// NewResearchSources returns the model-backed enrichment sources.
func NewResearchSources(gen Generator) []*Research {
	return []*Research{
		{
			name:   "news",
			ask:    "List recent press coverage and announcements about this company.",
			shape:  `{"articles": [{"title": "", "source": "", "date": "", "sentiment": "positive|neutral|negative"}], "total_results": 0}`,
			extras: domainLine,
			gen:    gen,
		},
		{
			name:   "competitors",
			ask:    "Identify direct and indirect competitors.",
			shape:  `{"competitors": [{"name": "", "url": "", "description": "", "funding": "", "threat_level": "high|medium|low"}]}`,
			extras: productLine,
			gen:    gen,
		},
		{
			name:  "market",
			ask:   "Summarize the market this company operates in: size, growth and trends.",
			shape: `{"market_size": "", "growth_rate": "", "trends": [], "sources": []}`,
			extras: func(d *casefile.Dossier) string {
				return deckSection("Market", d.Extraction.Market)(d)
			},
			gen: gen,
		},
		{
			name:  "glassdoor",
			ask:   "Summarize employer reputation and employee sentiment.",
			shape: `{"rating": 0, "review_count": 0, "ceo_approval": "", "culture_signals": [], "concerns": []}`,
			gen:   gen,
		},
		{
			name:   "company_profile",
			ask:    "Build a company profile: headcount, location, founding year and description.",
			shape:  `{"employee_count": 0, "founded_year": "", "headquarters": "", "description": "", "industry_tags": []}`,
			extras: domainLine,
			gen:    gen,
		},
		{
			name:  "funding_history",
			ask:   "Reconstruct the funding history and rate investor quality from 0 to 10.",
			shape: `{"total_raised_usd": 0, "all_rounds": [{"round": "", "amount_usd": 0, "date": "", "lead_investors": []}], "investor_tier_score": 0, "notable_investors": []}`,
			extras: func(d *casefile.Dossier) string {
				return deckSection("Funding", d.Extraction.Funding)(d)
			},
			gen: gen,
		},
		{
			name:   "social_signals",
			ask:    "Assess the company's social media presence and score it from 0 to 10.",
			shape:  `{"social_presence_score": 0, "platforms": {"twitter": "", "linkedin": "", "youtube": ""}, "engagement": "high|medium|low"}`,
			extras: domainLine,
			gen:    gen,
		},
		{
			name:   "linkedin",
			ask:    "Assess the founders' and company's LinkedIn footprint.",
			shape:  `{"founders": [{"name": "", "headline": "", "years_experience": 0, "prior_exits": false, "education_top_tier": false}], "follower_count": 0, "employee_count": 0}`,
			extras: func(d *casefile.Dossier) string { return domainLine(d) + foundersLine(d) },
			gen:    gen,
		},
		{
			name:   "founder_profiles",
			ask:    "Profile each founder: track record, domain expertise and founder-market fit.",
			shape:  `{"profiles": [{"name": "", "track_record": "", "domain_expertise": "", "founder_market_fit": "strong|moderate|weak", "red_flags": []}]}`,
			extras: foundersLine,
			gen:    gen,
		},
		{
			name:   "web_traffic",
			ask:    "Estimate website traffic and its trend.",
			shape:  `{"monthly_visits": 0, "monthly_visits_trend": "UP|FLAT|DOWN", "top_countries": [], "bounce_rate": ""}`,
			extras: domainLine,
			gen:    gen,
		},
	}
}

// Analyst produces one analysis from the enriched dossier.
type Analyst struct {
	name  string
	ask   string
	shape string
	gen   Generator
}

func (a *Analyst) Name() string { return a.name }

// Analyze implements deal.Analyst.
func (a *Analyst) Analyze(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	prompt := fmt.Sprintf("%s\nDECK: %s\n\nENRICHMENT:\n%s\n%s\nReturn JSON:\n%s",
		companyBrief(d), clip(d.Extraction, extractionBudget), enrichmentDigest(d, enrichmentBudget), a.ask, a.shape)
	return generateFinding(ctx, a.gen, analystSystem, prompt)
}

// NewAnalysts returns the four analysis agents.
func NewAnalysts(gen Generator) []*Analyst {
	return []*Analyst{
		{
			name:  "market_sizing",
			ask:   "Size the market bottom-up and top-down and compare with the deck's claims.",
			shape: `{"tam": {"value_usd": 0, "method": ""}, "sam": {"value_usd": 0}, "som": {"value_usd": 0}, "deck_claims_credible": true, "notes": ""}`,
			gen:   gen,
		},
		{
			name:  "gtm_analysis",
			ask:   "Evaluate the go-to-market strategy: channels, sales motion and scalability.",
			shape: `{"primary_channels": [], "sales_motion": "", "scalability": "high|medium|low", "risks": [], "score": 0}`,
			gen:   gen,
		},
		{
			name:  "competitive_landscape",
			ask:   "Map the competitive landscape and judge the company's moat.",
			shape: `{"positioning": "", "moat_type": "", "moat_strength": "strong|moderate|weak", "key_competitors": [], "differentiators": []}`,
			gen:   gen,
		},
		{
			name:  "milestones",
			ask:   "Lay out the milestones this round should fund and how realistic they are.",
			shape: `{"milestones": [{"milestone": "", "timeline": "", "feasibility": "high|medium|low"}], "runway_months": 0, "next_round_readiness": ""}`,
			gen:   gen,
		},
	}
}
