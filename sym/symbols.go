// Package sym defines the glyphs dealflow uses as log and CLI markers.
package sym

const (
	AM         = "≡" // configuration
	IX         = "⨳" // intake of decks
	DB         = "⊔" // database
	Pulse      = "꩜" // async job processing
	PulseOpen  = "✿" // worker pool starting
	PulseClose = "❀" // worker pool stopping
	Run        = "▶" // pipeline run
	Score      = "◆" // scoring
	Report     = "▤" // report and insights
)

// ForState returns the marker shown next to a run state in CLI output.
func ForState(state string) string {
	switch state {
	case "extracting":
		return IX
	case "scoring":
		return Score
	case "composing_report", "composing_insights":
		return Report
	case "completed":
		return "✓"
	case "failed":
		return "✗"
	default:
		return Run
	}
}
