package server

import "net/http"

// setupHTTPRoutes registers every handler on the server's mux.
func (s *DealServer) setupHTTPRoutes() {
	s.mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	s.mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("POST /api/cases", s.corsMiddleware(s.HandleSubmitCase))
	s.mux.HandleFunc("GET /api/cases/{id}", s.corsMiddleware(s.HandleGetCase))
	s.mux.HandleFunc("GET /api/cases/{id}/runs", s.corsMiddleware(s.HandleListRuns))
	s.mux.HandleFunc("GET /api/cases/{id}/report", s.corsMiddleware(s.HandleGetReport))
	s.mux.HandleFunc("GET /api/runs/{id}", s.corsMiddleware(s.HandleGetRun))
	s.mux.HandleFunc("GET /api/jobs", s.corsMiddleware(s.HandleListJobs))
	s.mux.HandleFunc("GET /api/jobs/{id}", s.corsMiddleware(s.HandleGetJob))
	s.mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
}

// corsMiddleware sets CORS headers for allowed origins and answers preflight
// requests.
func (s *DealServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}
