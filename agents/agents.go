// Package agents implements the deal collaborators on top of a language model
// and a few direct HTTP sources.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/dealflow/ai/openrouter"
	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
)

// ErrMalformedOutput is returned when a model reply cannot be decoded.
var ErrMalformedOutput = openrouter.ErrMalformedOutput

// Generator asks a model for JSON and decodes the reply into out.
// *openrouter.Client satisfies it.
type Generator interface {
	GenerateJSON(ctx context.Context, req openrouter.ChatRequest, out any) error
}

const analystSystem = "You are a senior venture capital analyst. Use only the data provided. " +
	"When something is not in the data say \"not_mentioned\" instead of guessing. " +
	"Respond with a single JSON object and nothing else."

// Prompt budgets, in characters of JSON.
const (
	extractionBudget = 4000
	enrichmentBudget = 3000
	findingBudget    = 1500
)

// generateFinding asks gen for a JSON object and returns it as a finding.
func generateFinding(ctx context.Context, gen Generator, system, prompt string) (casefile.Finding, error) {
	var f casefile.Finding
	if err := gen.GenerateJSON(ctx, chat(system, prompt), &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.Wrap(ErrMalformedOutput, "model returned null")
	}
	return f, nil
}

func chat(system, user string) openrouter.ChatRequest {
	return openrouter.ChatRequest{SystemPrompt: system, UserPrompt: user}
}

// clip renders v as JSON cut to max characters.
func clip(v any, max int) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// companyBrief is the company header every prompt starts with.
func companyBrief(d *casefile.Dossier) string {
	var b strings.Builder
	c := d.Extraction.Company
	fmt.Fprintf(&b, "Company: %s\n", c.Name)
	if c.Tagline != "" {
		fmt.Fprintf(&b, "Tagline: %s\n", c.Tagline)
	}
	if c.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", c.Industry)
	}
	if c.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", c.Stage)
	}
	if d.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", d.Website)
	}
	if names := d.Extraction.FounderNames(); len(names) > 0 {
		fmt.Fprintf(&b, "Founders: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// enrichmentDigest renders the available enrichment findings for a prompt.
func enrichmentDigest(d *casefile.Dossier, budget int) string {
	if len(d.Enrichment) == 0 {
		return "No enrichment data available."
	}
	var b strings.Builder
	per := budget / len(d.Enrichment)
	if per < 200 {
		per = 200
	}
	for _, name := range d.EnrichmentNames() {
		fmt.Fprintf(&b, "[%s] %s\n", name, d.Enrichment[name].JSON(per))
	}
	if len(d.Unavailable) > 0 {
		fmt.Fprintf(&b, "Unavailable sources: %s\n", strings.Join(d.Unavailable, ", "))
	}
	return b.String()
}

// analysisDigest renders the analysis findings for a prompt.
func analysisDigest(d *casefile.Dossier) string {
	if len(d.Analysis) == 0 {
		return "No analysis available."
	}
	var b strings.Builder
	names := make([]string, 0, len(d.Analysis))
	for name := range d.Analysis {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "[%s] %s\n", name, d.Analysis[name].JSON(findingBudget))
	}
	return b.String()
}
