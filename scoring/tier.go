// Package scoring turns a case dossier into a weighted investment score.
package scoring

// Tier buckets a total score.
type Tier string

const (
	Tier1 Tier = "TIER_1"
	Tier2 Tier = "TIER_2"
	Tier3 Tier = "TIER_3"
	Pass  Tier = "PASS"
)

// ClassifyTier maps a 0-100 total to its tier.
func ClassifyTier(total float64) Tier {
	switch {
	case total >= 85:
		return Tier1
	case total >= 70:
		return Tier2
	case total >= 55:
		return Tier3
	default:
		return Pass
	}
}

// Label is the human-readable tier description.
func (t Tier) Label() string {
	switch t {
	case Tier1:
		return "Generational Company (85-100)"
	case Tier2:
		return "Strong Investment (70-84)"
	case Tier3:
		return "Consider (55-69)"
	case Pass:
		return "Pass (<55)"
	default:
		return string(t)
	}
}

// Confidence is a coarse certainty level.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// AggregateConfidence is HIGH with at least five HIGH inputs, LOW with at
// most one, otherwise MEDIUM.
func AggregateConfidence(levels []Confidence) Confidence {
	high := 0
	for _, c := range levels {
		if c == High {
			high++
		}
	}
	switch {
	case high >= 5:
		return High
	case high <= 1:
		return Low
	default:
		return Medium
	}
}

func confidenceAbove(score, high, medium float64) Confidence {
	switch {
	case score >= high:
		return High
	case score >= medium:
		return Medium
	default:
		return Low
	}
}
