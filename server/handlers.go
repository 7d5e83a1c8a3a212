package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/intake"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/version"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// HandleHealth reports version and queue statistics.
func (s *DealServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.GetStats()
	if err != nil {
		handleError(w, s.logger, err, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  stateString(s.getState()),
		"version": version.Get(),
		"queue":   stats,
		"clients": s.ClientCount(),
	})
}

// HandleSubmitCase accepts a multipart upload ("deck" file, optional
// "website") or a JSON body with a "deck_url" or a ready "extraction", and
// enqueues the case. It answers 202 with the case and job IDs.
func (s *DealServer) HandleSubmitCase(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var (
		in  deal.Input
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		in, err = s.inputFromJSON(r)
	} else {
		in, err = s.inputFromUpload(r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "deck exceeds upload limit")
			return
		}
		handleError(w, s.logger, err, "failed to accept case")
		return
	}

	caseID, jobID, err := deal.Submit(s.queue, in)
	if err != nil {
		if in.ArtifactPath != "" {
			intake.Discard(in.ArtifactPath)
		}
		if errors.Is(err, deal.ErrNoArtifact) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		handleError(w, s.logger, err, "failed to enqueue case")
		return
	}

	s.logger.Infow("Case submitted",
		logger.FieldCaseID, caseID,
		logger.FieldJobID, shortID(jobID),
		"source", in.Source,
		logger.FieldFile, in.FileName)
	writeJSON(w, http.StatusAccepted, SubmitResponse{CaseID: caseID, JobID: jobID})
}

func (s *DealServer) inputFromUpload(r *http.Request) (deal.Input, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return deal.Input{}, errors.Wrap(errors.Mark(err, errors.ErrInvalidRequest), "invalid multipart form")
	}
	file, header, err := r.FormFile("deck")
	if err != nil {
		return deal.Input{}, errors.NewInvalidRequestError("missing deck file")
	}
	defer file.Close()

	deck, err := intake.Materialize(file, header.Filename, s.spoolDir)
	if err != nil {
		return deal.Input{}, err
	}
	return deal.Input{
		CaseID:       r.FormValue("case_id"),
		Source:       "upload",
		ArtifactPath: deck.Path(),
		FileName:     header.Filename,
		Website:      r.FormValue("website"),
	}, nil
}

type submitRequest struct {
	CaseID     string               `json:"case_id"`
	DeckURL    string               `json:"deck_url"`
	Website    string               `json:"website"`
	Extraction *casefile.Extraction `json:"extraction"`
}

func (s *DealServer) inputFromJSON(r *http.Request) (deal.Input, error) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return deal.Input{}, errors.Wrap(errors.Mark(err, errors.ErrInvalidRequest), "invalid request body")
	}
	in := deal.Input{CaseID: req.CaseID, Website: req.Website}
	switch {
	case req.Extraction != nil:
		if err := req.Extraction.Validate(); err != nil {
			return in, errors.Mark(err, errors.ErrInvalidRequest)
		}
		in.Source = "api"
		in.Extraction = req.Extraction
	case req.DeckURL != "":
		deck, name, err := intake.Fetch(r.Context(), req.DeckURL, s.spoolDir)
		if err != nil {
			return in, err
		}
		in.Source = "url"
		in.ArtifactPath = deck.Path()
		in.FileName = name
	default:
		return in, errors.NewInvalidRequestError("need deck_url or extraction")
	}
	return in, nil
}

// HandleGetCase returns a case's state, its latest run and that run's task
// outcomes.
func (s *DealServer) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	cs, err := s.status.GetCaseState(r.Context(), caseID)
	if err != nil {
		handleError(w, s.logger, err, "failed to get case")
		return
	}
	resp := CaseResponse{CaseID: cs.CaseID, State: cs.State, UpdatedAt: cs.UpdatedAt}

	run, err := s.status.LatestRun(r.Context(), caseID)
	switch {
	case err == nil:
		resp.LatestRun = run
		records, err := s.status.TaskResults(r.Context(), run.ID)
		if err != nil {
			handleError(w, s.logger, err, "failed to get task results")
			return
		}
		resp.Results = summarize(records)
	case !errors.IsNotFoundError(err):
		handleError(w, s.logger, err, "failed to get latest run")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListRuns lists a case's runs, newest first.
func (s *DealServer) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit)
	runs, err := s.status.ListRuns(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		handleError(w, s.logger, err, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// HandleGetRun returns one run with every task result, payloads included.
func (s *DealServer) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.status.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get run")
		return
	}
	records, err := s.status.TaskResults(r.Context(), run.ID)
	if err != nil {
		handleError(w, s.logger, err, "failed to get task results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": run, "results": records})
}

// HandleGetReport returns the memo of the case's latest run. With
// ?format=markdown it answers text/markdown.
func (s *DealServer) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.status.LatestRun(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get latest run")
		return
	}
	rec, err := s.status.TaskResult(r.Context(), run.ID, deal.StageReport, deal.TaskComposeReport)
	if err != nil {
		handleError(w, s.logger, err, "failed to get report")
		return
	}
	if rec.Outcome != "success" || len(rec.Payload) == 0 {
		writeError(w, http.StatusNotFound, "no report for run "+run.ID)
		return
	}

	var report deal.Report
	if err := json.Unmarshal(rec.Payload, &report); err != nil {
		handleError(w, s.logger, err, "failed to decode report")
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(report.Markdown))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleListJobs lists analysis jobs, optionally filtered by ?status=.
func (s *DealServer) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter *async.JobStatus
	if v := r.URL.Query().Get("status"); v != "" {
		if !async.IsValidStatus(v) {
			writeError(w, http.StatusBadRequest, "unknown job status "+v)
			return
		}
		st := async.JobStatus(v)
		filter = &st
	}
	jobs, err := s.queue.ListJobs(filter, parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit))
	if err != nil {
		handleError(w, s.logger, err, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// HandleGetJob returns one job with its progress.
func (s *DealServer) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJob(r.PathValue("id"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
