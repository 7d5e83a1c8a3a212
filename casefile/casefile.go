// Package casefile holds the case data that flows between pipeline stages:
// what was extracted from a deck, and what enrichment and analysis found.
package casefile

import (
	"net/url"
	"strings"

	"github.com/teranos/dealflow/errors"
)

// ErrNoCompanyName is returned when extraction could not identify the company.
var ErrNoCompanyName = errors.New("company name not extracted")

// notMentioned is the placeholder LLM extraction uses for absent values.
const notMentioned = "not_mentioned"

// Company is the extracted company profile.
type Company struct {
	Name        string `json:"name"`
	Tagline     string `json:"tagline,omitempty"`
	Founded     string `json:"founded,omitempty"`
	HQLocation  string `json:"hq_location,omitempty"`
	Website     string `json:"website,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Description string `json:"description,omitempty"`
}

// Founder is one founder as presented in the deck.
type Founder struct {
	Name              string   `json:"name"`
	Role              string   `json:"role,omitempty"`
	LinkedIn          string   `json:"linkedin,omitempty"`
	GitHub            string   `json:"github,omitempty"`
	PreviousCompanies []string `json:"previous_companies,omitempty"`
	Education         string   `json:"education,omitempty"`
}

// Extraction is the structured reading of a pitch deck.
type Extraction struct {
	Company               Company   `json:"company"`
	Founders              []Founder `json:"founders"`
	Problem               Finding   `json:"problem,omitempty"`
	Solution              Finding   `json:"solution,omitempty"`
	Market                Finding   `json:"market,omitempty"`
	Traction              Finding   `json:"traction,omitempty"`
	BusinessModel         Finding   `json:"business_model,omitempty"`
	Funding               Finding   `json:"funding,omitempty"`
	CompetitiveAdvantages []string  `json:"competitive_advantages,omitempty"`
	Risks                 []string  `json:"risks,omitempty"`
}

// Validate checks the minimum a usable extraction must carry.
func (e *Extraction) Validate() error {
	name := strings.TrimSpace(e.Company.Name)
	switch strings.ToLower(name) {
	case "", "unknown", "unknown company", "null", notMentioned:
		return ErrNoCompanyName
	}
	return nil
}

// Website returns the company website, preferring override when set.
func (e *Extraction) Website(override string) string {
	if w := usable(override); w != "" {
		return w
	}
	return usable(e.Company.Website)
}

// FounderLinkedInURLs returns the founders' LinkedIn URLs, skipping placeholders.
func (e *Extraction) FounderLinkedInURLs() []string {
	var urls []string
	for _, f := range e.Founders {
		if u := usable(f.LinkedIn); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// FounderNames returns the names of all founders.
func (e *Extraction) FounderNames() []string {
	names := make([]string, 0, len(e.Founders))
	for _, f := range e.Founders {
		if f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return names
}

func usable(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", notMentioned, "null", "n/a", "none":
		return ""
	}
	return s
}

// CompanyDomain derives the bare domain from a website URL:
// "https://www.acme.io/about" -> "acme.io". Returns "" when unparseable.
func CompanyDomain(website string) string {
	website = usable(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// NormalizeURL adds a scheme to bare hosts.
func NormalizeURL(website string) string {
	website = usable(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		return "https://" + website
	}
	return website
}
