package openrouter

import (
	"encoding/json"
	"strings"

	"github.com/teranos/dealflow/errors"
)

// ErrMalformedOutput means a model reply could not be parsed as the
// expected JSON.
var ErrMalformedOutput = errors.New("malformed model output")

// ExtractJSON pulls a JSON document out of a model reply: it strips
// markdown code fences, then falls back to the outermost {...} or [...].
func ExtractJSON(content string) (string, bool) {
	s := strings.TrimSpace(content)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// Drop the language tag line ("json").
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	if json.Valid([]byte(s)) {
		return s, true
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start >= 0 && end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}

// DecodeJSON extracts and unmarshals a model reply into out.
func DecodeJSON(content string, out any) error {
	doc, ok := ExtractJSON(content)
	if !ok {
		return errors.WithDetailf(ErrMalformedOutput, "reply starts: %.80q", content)
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode model output"), ErrMalformedOutput)
	}
	return nil
}
