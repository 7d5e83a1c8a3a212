package casefile

import "sort"

// Dossier is everything known about a case at one point in the pipeline:
// the extraction plus every finding that succeeded, keyed by task name.
type Dossier struct {
	CaseID      string             `json:"case_id"`
	Website     string             `json:"website,omitempty"`
	Domain      string             `json:"domain,omitempty"`
	Extraction  *Extraction        `json:"extraction"`
	Enrichment  map[string]Finding `json:"enrichment"`
	Analysis    map[string]Finding `json:"analysis"`
	Unavailable []string           `json:"unavailable,omitempty"`
}

// NewDossier creates an empty dossier for extraction.
func NewDossier(caseID string, extraction *Extraction, websiteOverride string) *Dossier {
	website := NormalizeURL(extraction.Website(websiteOverride))
	return &Dossier{
		CaseID:     caseID,
		Website:    website,
		Domain:     CompanyDomain(website),
		Extraction: extraction,
		Enrichment: make(map[string]Finding),
		Analysis:   make(map[string]Finding),
	}
}

// CompanyName is a shorthand for the extracted company name.
func (d *Dossier) CompanyName() string {
	if d.Extraction == nil {
		return ""
	}
	return d.Extraction.Company.Name
}

// Source returns an enrichment finding, or an empty one.
func (d *Dossier) Source(name string) Finding {
	if f, ok := d.Enrichment[name]; ok && f != nil {
		return f
	}
	return Finding{}
}

// Analyzed returns an analysis finding, or an empty one.
func (d *Dossier) Analyzed(name string) Finding {
	if f, ok := d.Analysis[name]; ok && f != nil {
		return f
	}
	return Finding{}
}

// MarkUnavailable records a source that produced nothing usable.
func (d *Dossier) MarkUnavailable(name string) {
	d.Unavailable = append(d.Unavailable, name)
	sort.Strings(d.Unavailable)
}

// EnrichmentNames returns the names of available enrichment findings, sorted.
func (d *Dossier) EnrichmentNames() []string {
	names := make([]string, 0, len(d.Enrichment))
	for name := range d.Enrichment {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
