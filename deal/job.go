package deal

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/pulse/async"
)

// HandlerName routes analysis jobs to AnalyzeHandler.
const HandlerName = "deal.analyze"

// stageCount is the number of stages in the deal plan, used as job progress total.
const stageCount = 6

// Submit enqueues a case for background analysis and returns the job ID
// immediately. A missing CaseID is generated.
func Submit(q *async.Queue, in Input) (caseID, jobID string, err error) {
	if in.CaseID == "" {
		in.CaseID = uuid.NewString()
	}
	if in.ArtifactPath == "" && in.Extraction == nil {
		return "", "", errors.Wrapf(ErrNoArtifact, "case %s", in.CaseID)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode case input")
	}
	source := in.FileName
	if source == "" {
		source = in.CaseID
	}
	job, err := async.NewJob(HandlerName, source, payload, stageCount)
	if err != nil {
		return "", "", err
	}
	if err := q.Enqueue(job); err != nil {
		return "", "", err
	}
	return in.CaseID, job.ID, nil
}

// AnalyzeHandler runs the deal pipeline for one queued job.
type AnalyzeHandler struct {
	service *Service
	queue   *async.Queue
	logger  *zap.SugaredLogger
}

// NewAnalyzeHandler creates the job handler.
func NewAnalyzeHandler(service *Service, queue *async.Queue, log *zap.SugaredLogger) *AnalyzeHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AnalyzeHandler{service: service, queue: queue, logger: log}
}

// Name implements async.JobHandler.
func (h *AnalyzeHandler) Name() string { return HandlerName }

// Execute implements async.JobHandler. A run that ends failed is a permanent
// job failure. A run interrupted by shutdown keeps its deck so the requeued
// job can start again; a cancelled one releases it.
func (h *AnalyzeHandler) Execute(ctx context.Context, job *async.Job) error {
	var in Input
	if err := json.Unmarshal(job.Payload, &in); err != nil {
		return async.Permanent(errors.Wrap(err, "invalid deal job payload"))
	}

	var deck *pipeline.TempFile
	var artifact pipeline.Artifact
	if in.ArtifactPath != "" {
		deck = pipeline.NewTempFile(in.ArtifactPath)
		artifact = &heldArtifact{path: in.ArtifactPath}
	}

	emitter := async.NewJobProgressEmitter(job, h.queue, h.logger)
	res := h.service.Analyze(ctx, in, artifact, emitter)

	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), async.ErrJobCancelled) {
			h.releaseDeck(job, deck)
		}
		return ctx.Err()
	}
	h.releaseDeck(job, deck)

	if !res.Succeeded() {
		stage := failedStage(res)
		emitter.EmitError(stage, res.Err())
		return async.Permanent(res.Err())
	}
	emitter.Finish(StageInsights)
	return nil
}

func (h *AnalyzeHandler) releaseDeck(job *async.Job, deck *pipeline.TempFile) {
	if deck == nil {
		return
	}
	if err := deck.Release(); err != nil {
		h.logger.Warnw("Failed to remove deck", logger.FieldJobID, job.ID, "error", err)
	}
}

// Cancel cancels an analysis job. A job that had not started gives back its
// spooled deck here; a running one releases it in its handler.
func Cancel(q *async.Queue, jobID, reason string) error {
	job, err := q.GetJob(jobID)
	if err != nil {
		return err
	}
	if err := q.CancelJob(jobID, reason); err != nil {
		return err
	}
	if job.HandlerName != HandlerName || job.Status != async.JobStatusQueued {
		return nil
	}
	var in Input
	if err := json.Unmarshal(job.Payload, &in); err != nil || in.ArtifactPath == "" {
		return nil
	}
	return pipeline.NewTempFile(in.ArtifactPath).Release()
}

func failedStage(res *Result) string {
	for _, s := range res.Stages {
		if s.Status == pipeline.StageFailed {
			return s.Name
		}
	}
	return ""
}

// heldArtifact satisfies the runner's release without deleting the deck; the
// handler decides once it knows the job will not run again.
type heldArtifact struct{ path string }

func (a *heldArtifact) Path() string   { return a.path }
func (a *heldArtifact) Release() error { return nil }
