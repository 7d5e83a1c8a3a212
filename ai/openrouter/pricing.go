package openrouter

// ModelPricing is USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o":               {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":          {PromptPrice: 0.15, CompletionPrice: 0.60},
	"openai/gpt-4.1":              {PromptPrice: 2.00, CompletionPrice: 8.00},
	"openai/gpt-4.1-mini":         {PromptPrice: 0.40, CompletionPrice: 1.60},
	"anthropic/claude-3.5-sonnet": {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3-haiku":    {PromptPrice: 0.25, CompletionPrice: 1.25},
	"google/gemini-flash-1.5":     {PromptPrice: 0.075, CompletionPrice: 0.30},
	"google/gemini-pro-1.5":       {PromptPrice: 1.25, CompletionPrice: 5.00},
}

// fallbackPricing applies to unknown models.
var fallbackPricing = ModelPricing{PromptPrice: 3.00, CompletionPrice: 15.00}

// GetModelPricing returns pricing for a model and whether it is known.
func GetModelPricing(model string) (ModelPricing, bool) {
	p, ok := modelPricing[model]
	if !ok {
		return fallbackPricing, false
	}
	return p, true
}

// CalculateCost returns the USD cost of one call.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	p, _ := GetModelPricing(model)
	return float64(promptTokens)/1_000_000*p.PromptPrice +
		float64(completionTokens)/1_000_000*p.CompletionPrice
}
