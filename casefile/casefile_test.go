package casefile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.acme.io/about": "acme.io",
		"http://Acme.IO":            "acme.io",
		"www.acme.io":               "acme.io",
		"acme.io":                   "acme.io",
		"not_mentioned":             "",
		"":                          "",
		"localhost":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CompanyDomain(in), in)
	}
}

func TestExtractionValidate(t *testing.T) {
	assert.NoError(t, (&Extraction{Company: Company{Name: "Acme"}}).Validate())
	for _, bad := range []string{"", "Unknown Company", "null", " not_mentioned "} {
		assert.ErrorIs(t, (&Extraction{Company: Company{Name: bad}}).Validate(), ErrNoCompanyName, bad)
	}
}

func TestFounderLinkedInURLsSkipPlaceholders(t *testing.T) {
	e := &Extraction{Founders: []Founder{
		{Name: "Ada", LinkedIn: "https://linkedin.com/in/ada"},
		{Name: "Grace", LinkedIn: "not_mentioned"},
		{Name: "Linus"},
	}}
	assert.Equal(t, []string{"https://linkedin.com/in/ada"}, e.FounderLinkedInURLs())
	assert.Equal(t, []string{"Ada", "Grace", "Linus"}, e.FounderNames())
}

func TestWebsiteOverrideWins(t *testing.T) {
	e := &Extraction{Company: Company{Name: "Acme", Website: "acme.io"}}
	assert.Equal(t, "acme.dev", e.Website("acme.dev"))
	assert.Equal(t, "acme.io", e.Website(""))

	d := NewDossier("c1", e, "")
	assert.Equal(t, "https://acme.io", d.Website)
	assert.Equal(t, "acme.io", d.Domain)
}

func TestFindingAccessorsOnDecodedJSON(t *testing.T) {
	var f Finding
	require.NoError(t, json.Unmarshal([]byte(`{
		"monthly_visits": 120000,
		"total_raised_usd": "2,500,000",
		"api_available": "true",
		"key_features": ["sso", 4, "audit log"],
		"founders": [{"name": "Ada", "prior_exits": true}, "junk"],
		"summary": {"overall_score": 72},
		"error": null
	}`), &f))

	assert.Equal(t, 120000.0, f.Float("monthly_visits"))
	assert.Equal(t, 2500000.0, f.Float("total_raised_usd"))
	assert.True(t, f.Bool("api_available"))
	assert.Equal(t, []string{"sso", "audit log"}, f.Strings("key_features"))
	assert.Equal(t, 3, f.Len("key_features"))
	require.Len(t, f.List("founders"), 1)
	assert.True(t, f.List("founders")[0].Bool("prior_exits"))
	assert.Equal(t, 72.0, f.Object("summary").Float("overall_score"))
	assert.False(t, f.HasError(), "null error is no error")
	assert.Equal(t, "120000", f.String("monthly_visits"))
	assert.Empty(t, f.Object("missing"))
}

func TestDossierLookups(t *testing.T) {
	d := NewDossier("c1", &Extraction{Company: Company{Name: "Acme"}}, "")
	d.Enrichment["news"] = Finding{"headlines": []any{"Acme raises seed"}}
	d.MarkUnavailable("glassdoor")
	d.MarkUnavailable("github")

	assert.Equal(t, "Acme", d.CompanyName())
	assert.Equal(t, []string{"github", "glassdoor"}, d.Unavailable)
	assert.Equal(t, []string{"news"}, d.EnrichmentNames())
	assert.Empty(t, d.Source("github"))
	assert.Empty(t, d.Analyzed("milestones"))
	assert.Empty(t, d.Website)
}
