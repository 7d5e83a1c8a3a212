package scoring

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dealflow/casefile"
)

func withSource(t *testing.T, name, raw string) *casefile.Dossier {
	t.Helper()
	d := dossier()
	var f casefile.Finding
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	d.Enrichment[name] = f
	return d
}

func TestLinkedInSignal(t *testing.T) {
	d := withSource(t, "linkedin", `{
		"founders": [
			{"name": "Ada", "prior_exits": true, "education_top_tier": true},
			{"name": "Grace", "prior_exits": true}
		],
		"follower_count": 12000,
		"employee_count": 25
	}`)
	a, err := LinkedInSignal{}.Assess(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 4.5, a.Raw) // 2 exits + 1 followers + 1 education + 0.5 employees
	assert.Equal(t, High, a.Confidence)

	empty, err := LinkedInSignal{}.Assess(context.Background(), dossier())
	require.NoError(t, err)
	assert.Zero(t, empty.Raw)
	assert.Equal(t, Low, empty.Confidence)
}

func TestFundingSignal(t *testing.T) {
	d := withSource(t, "funding_history", `{
		"investor_tier_score": 8,
		"total_raised_usd": 12000000,
		"all_rounds": [{}, {}]
	}`)
	a, err := FundingSignal{}.Assess(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 3.1, a.Raw) // 1.6 investors + 1 raised + 0.5 rounds
	assert.Equal(t, High, a.Confidence)
}

func TestWebGrowthSignal(t *testing.T) {
	d := withSource(t, "web_traffic", `{"monthly_visits": 50000, "monthly_visits_trend": "UP"}`)
	d.Enrichment["social_signals"] = casefile.Finding{"data": map[string]any{"social_presence_score": 8.0}}

	a, err := WebGrowthSignal{}.Assess(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2.5, a.Raw)
	assert.Equal(t, High, a.Confidence)
}

func TestWebsiteIntelligenceSignal(t *testing.T) {
	d := withSource(t, "website_intelligence", `{"intelligence_summary": {"overall_score": 76, "one_line_verdict": "Real product"}}`)
	a, err := WebsiteIntelligenceSignal{}.Assess(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 8.0, a.Raw)
	assert.Equal(t, High, a.Confidence)
	assert.Equal(t, "Real product", a.Reasoning)

	missing, err := WebsiteIntelligenceSignal{}.Assess(context.Background(), dossier())
	require.NoError(t, err)
	assert.Equal(t, 5.0, missing.Raw)
	assert.Equal(t, Low, missing.Confidence)
}

func TestWebsiteDueDiligenceRubric(t *testing.T) {
	d := withSource(t, "website_due_diligence", `{
		"pages_crawled": 6,
		"extraction": {
			"product_signals": {"product_description": "Ledger for robots", "key_features": ["a", "b"], "api_available": true, "integrations": ["slack"]},
			"business_model_signals": {"pricing_model": "subscription", "price_points": ["$49"], "sales_motion": "self-serve"},
			"customer_validation_signals": {"customer_logos_count": "12", "case_study_count": 0, "named_customers": ["Initech"]},
			"trust_compliance_signals": {"security_page_exists": true, "privacy_policy_exists": true, "certifications": ["SOC2"]},
			"red_flags": ["Stale blog"]
		}
	}`)
	a, err := WebsiteDueDiligenceSignal{}.Assess(context.Background(), d)
	require.NoError(t, err)

	// product 3, pricing 2, customers 1.5, technical 2, trust 1
	assert.Equal(t, 9.5, a.Raw)
	assert.Equal(t, Medium, a.Confidence)
	assert.Contains(t, a.RedFlags, "Stale blog")
	assert.Contains(t, a.GreenFlags, "API available")

	incomplete := withSource(t, "website_due_diligence", `{"status": "incomplete"}`)
	a, err = WebsiteDueDiligenceSignal{}.Assess(context.Background(), incomplete)
	require.NoError(t, err)
	assert.Zero(t, a.Raw)
	assert.Equal(t, []string{"Website data unavailable"}, a.RedFlags)
}
