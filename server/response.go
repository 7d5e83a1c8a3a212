package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/teranos/dealflow/errors"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return errors.Wrap(json.NewEncoder(w).Encode(body), "encode response")
}

func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}

// parseIntQueryParam falls back to def when the parameter is absent or not
// a number, and clamps anything else into [lo, hi].
func parseIntQueryParam(r *http.Request, name string, def, lo, hi int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return min(max(n, lo), hi)
}

// shortID keeps log lines readable; job and run IDs are UUIDs.
func shortID(id string) string {
	return id[:min(len(id), 8)]
}
