package server

import (
	"time"

	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/status"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// ShutdownTimeout bounds graceful shutdown, including draining workers.
	ShutdownTimeout = 30 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// SubmitResponse is returned when a case is accepted for analysis.
type SubmitResponse struct {
	CaseID string `json:"case_id"`
	JobID  string `json:"job_id"`
}

// CaseResponse is the current view of a case.
type CaseResponse struct {
	CaseID    string         `json:"case_id"`
	State     pipeline.State `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
	LatestRun *pipeline.Run  `json:"latest_run,omitempty"`
	Results   []TaskSummary  `json:"results,omitempty"`
}

// TaskSummary is one task outcome of the latest run, without its payload.
type TaskSummary struct {
	Stage      string `json:"stage"`
	Task       string `json:"task"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func summarize(records []status.TaskRecord) []TaskSummary {
	out := make([]TaskSummary, len(records))
	for i, r := range records {
		out[i] = TaskSummary{
			Stage:      r.Stage,
			Task:       r.Task,
			Outcome:    r.Outcome,
			Reason:     r.Reason,
			DurationMS: r.DurationMS,
		}
	}
	return out
}

// JobUpdateMessage is pushed to WebSocket clients whenever a job changes.
type JobUpdateMessage struct {
	Type      string     `json:"type"` // "job_update"
	Job       *async.Job `json:"job"`
	Timestamp int64      `json:"timestamp"`
}

// HelloMessage is the first message a WebSocket client receives.
type HelloMessage struct {
	Type     string `json:"type"` // "hello"
	ClientID string `json:"client_id"`
	Version  string `json:"version"`
}
