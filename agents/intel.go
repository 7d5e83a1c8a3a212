package agents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
)

// IntelligencePages are crawled for the website intelligence summary.
var IntelligencePages = []string{
	"/", "/about", "/product", "/features", "/pricing",
	"/customers", "/team", "/careers", "/blog", "/security",
}

// DueDiligencePages are crawled for website due diligence.
var DueDiligencePages = []string{
	"/", "/about", "/about-us", "/team", "/product", "/products", "/features", "/solutions",
	"/pricing", "/plans", "/enterprise", "/customers", "/case-studies", "/testimonials",
	"/blog", "/news", "/careers", "/docs", "/api", "/security", "/privacy", "/compliance",
}

const intelligencePrompt = `Analyze this company's website for venture due diligence.

%s
PAGES:
%s
Return JSON:
{
  "intelligence_summary": {
    "overall_score": 0-100,
    "one_line_verdict": "",
    "product_maturity": "early | growing | mature",
    "red_flags": [],
    "green_flags": []
  },
  "product": {"description": "", "key_features": []},
  "revenue_model": {"pricing_model": "", "tiers": []},
  "team": {"open_roles": "", "leadership": []},
  "traction": {"customer_mentions": [], "recent_announcements": []}
}`

const dueDiligencePrompt = `Perform website due diligence using ONLY facts stated on the pages below.
Cite the page path for every fact as [SOURCE: /path]. Use "not_mentioned" when absent.

WEBSITE: %s
PAGES:
%s
Return JSON:
{
  "product_signals": {"product_description": "", "key_features": [], "integrations": [], "api_available": true|false},
  "business_model_signals": {"pricing_model": "subscription | usage | enterprise | freemium | unknown", "price_points": [], "sales_motion": "Product-Led | Sales-Led | Hybrid | not_mentioned"},
  "customer_validation_signals": {"customer_logos_count": 0, "case_study_count": 0, "named_customers": []},
  "trust_compliance_signals": {"certifications": [], "security_page_exists": true|false, "privacy_policy_exists": true|false},
  "red_flags": [],
  "green_flags": [],
  "overall_assessment": ""
}`

// WebsiteIntelligence crawls the main pages and asks the model for a verdict.
type WebsiteIntelligence struct {
	gen     Generator
	crawler *Crawler
}

// NewWebsiteIntelligence creates the "website_intelligence" source.
func NewWebsiteIntelligence(gen Generator, crawler *Crawler) *WebsiteIntelligence {
	return &WebsiteIntelligence{gen: gen, crawler: crawler}
}

func (w *WebsiteIntelligence) Name() string { return "website_intelligence" }

// Enrich implements deal.Enricher. An unreachable site is an error.
func (w *WebsiteIntelligence) Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	pages := w.crawler.Crawl(ctx, d.Website, IntelligencePages)
	if len(pages) == 0 {
		return nil, errors.Wrapf(ErrSiteUnreachable, "%s", d.Website)
	}
	f, err := generateFinding(ctx, w.gen, analystSystem,
		fmt.Sprintf(intelligencePrompt, companyBrief(d), pageDigest(pages, 800)))
	if err != nil {
		return nil, err
	}
	f["pages_crawled"] = len(pages)
	f["technologies"] = pageTechnologies(pages)
	return f, nil
}

// WebsiteDueDiligence crawls the site broadly and extracts cited signals.
// An unreachable site yields an "incomplete" finding instead of an error, so
// the rubric can score it as missing.
type WebsiteDueDiligence struct {
	gen     Generator
	crawler *Crawler
	now     func() time.Time
}

// NewWebsiteDueDiligence creates the "website_due_diligence" source.
func NewWebsiteDueDiligence(gen Generator, crawler *Crawler) *WebsiteDueDiligence {
	return &WebsiteDueDiligence{gen: gen, crawler: crawler, now: time.Now}
}

func (w *WebsiteDueDiligence) Name() string { return "website_due_diligence" }

// Enrich implements deal.Enricher.
func (w *WebsiteDueDiligence) Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	pages := w.crawler.Crawl(ctx, d.Website, DueDiligencePages)
	if len(pages) == 0 {
		return casefile.Finding{
			"status":      "incomplete",
			"reason":      ErrSiteUnreachable.Error(),
			"website_url": d.Website,
		}, nil
	}

	extraction, err := generateFinding(ctx, w.gen,
		"You are a due diligence analyst. Extract only explicitly stated facts. Never guess.",
		fmt.Sprintf(dueDiligencePrompt, d.Website, pageDigest(pages, 1500)))
	if err != nil {
		return nil, err
	}

	citations := make([]casefile.Finding, 0, len(pages))
	paths := make([]string, 0, len(pages))
	for p := range pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		citations = append(citations, casefile.Finding{"page": p, "url": pages[p].URL})
	}

	return casefile.Finding{
		"status":          "completed",
		"website_url":     d.Website,
		"pages_crawled":   len(pages),
		"pages_attempted": len(DueDiligencePages),
		"extraction":      extraction,
		"citations":       citations,
		"crawled_at":      w.now().UTC().Format(time.RFC3339),
	}, nil
}
