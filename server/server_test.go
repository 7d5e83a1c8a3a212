package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dealflow/deal"
	dftest "github.com/teranos/dealflow/internal/testing"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/status"
)

type fixture struct {
	server *DealServer
	http   *httptest.Server
	queue  *async.Queue
	status *status.Recorder
	spool  string
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
	t.Helper()
	db := dftest.CreateMigratedDB(t)
	f := &fixture{
		queue:  async.NewQueue(db),
		status: status.NewRecorder(db, zap.NewNop().Sugar()),
		spool:  t.TempDir(),
	}
	s, err := New(Config{
		Queue:          f.queue,
		Status:         f.status,
		SpoolDir:       f.spool,
		MaxUploadBytes: maxUpload,
		Logger:         zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	s.StartBackground()
	f.server = s
	f.http = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.http.Close()
		s.Stop()
	})
	return f
}

func uploadBody(t *testing.T, fields map[string]string, fileName string, deck []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("deck", fileName)
		require.NoError(t, err)
		_, err = fw.Write(deck)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, fields map[string]string, fileName string, deck []byte) *http.Response {
	t.Helper()
	body, contentType := uploadBody(t, fields, fileName, deck)
	resp, err := http.Post(f.http.URL+"/api/cases", contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitCaseUpload(t *testing.T) {
	t.Log("Gary uploads his deck with a website override and gets a job ticket right away")
	f := newFixture(t, 0)

	resp := f.upload(t, map[string]string{"website": "raticate.io"}, "Raticate Ventures.pdf", []byte("%PDF-1.4 deck"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sub := decode[SubmitResponse](t, resp)
	assert.NotEmpty(t, sub.CaseID)

	job, err := f.queue.GetJob(sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, deal.HandlerName, job.HandlerName)
	assert.Equal(t, async.JobStatusQueued, job.Status)

	var in deal.Input
	require.NoError(t, json.Unmarshal(job.Payload, &in))
	assert.Equal(t, sub.CaseID, in.CaseID)
	assert.Equal(t, "upload", in.Source)
	assert.Equal(t, "raticate.io", in.Website)
	assert.Equal(t, "Raticate Ventures.pdf", in.FileName)
	assert.Equal(t, f.spool, filepath.Dir(in.ArtifactPath))
	data, err := os.ReadFile(in.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 deck", string(data))
}

func TestSubmitCaseRejections(t *testing.T) {
	f := newFixture(t, 1024)

	resp := f.upload(t, nil, "deck.exe", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.upload(t, map[string]string{"website": "x.io"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.upload(t, nil, "huge.pdf", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	entries, err := os.ReadDir(f.spool)
	require.NoError(t, err)
	assert.Empty(t, entries)

	jobs, err := f.queue.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitCaseWithExtraction(t *testing.T) {
	f := newFixture(t, 0)

	body := `{"case_id": "case-onix", "website": "onix.dev", "extraction": {"company": {"name": "Onix Rock Drills"}}}`
	resp, err := http.Post(f.http.URL+"/api/cases", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sub := decode[SubmitResponse](t, resp)
	assert.Equal(t, "case-onix", sub.CaseID)

	job, err := f.queue.GetJob(sub.JobID)
	require.NoError(t, err)
	var in deal.Input
	require.NoError(t, json.Unmarshal(job.Payload, &in))
	require.NotNil(t, in.Extraction)
	assert.Equal(t, "Onix Rock Drills", in.Extraction.Company.Name)
	assert.Empty(t, in.ArtifactPath)
}

func TestSubmitCaseJSONNeedsSomething(t *testing.T) {
	f := newFixture(t, 0)
	for _, body := range []string{`{}`, `{"extraction": {"company": {"name": ""}}}`, `not json`} {
		resp, err := http.Post(f.http.URL+"/api/cases", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func reportPlan(t *testing.T, reportFails bool) *pipeline.Plan {
	t.Helper()
	plan, err := pipeline.NewPlan(
		pipeline.Stage{
			Name:  deal.StageExtraction,
			State: deal.StateExtracting,
			Build: func(pipeline.Snapshot) []pipeline.Task {
				return []pipeline.Task{{Name: deal.TaskExtract, Run: func(context.Context, pipeline.Snapshot) (any, error) {
					return map[string]string{"company": "Cinnabar Labs"}, nil
				}}}
			},
		},
		pipeline.Stage{
			Name:   deal.StageReport,
			State:  deal.StateComposingReport,
			Policy: pipeline.Degradable,
			Build: func(pipeline.Snapshot) []pipeline.Task {
				return []pipeline.Task{{Name: deal.TaskComposeReport, Run: func(context.Context, pipeline.Snapshot) (any, error) {
					if reportFails {
						return nil, assert.AnError
					}
					return &deal.Report{Title: "Cinnabar Labs Investment Memo", Markdown: "# Cinnabar Labs Investment Memo\n"}, nil
				}}}
			},
		},
	)
	require.NoError(t, err)
	return plan
}

func TestGetCaseRunsAndReport(t *testing.T) {
	t.Log("Blaine's case finishes and the memo is waiting on the volcano")
	f := newFixture(t, 0)
	res := pipeline.NewRunner(reportPlan(t, false), nil, pipeline.WithStatus(f.status)).
		Run(context.Background(), pipeline.Request{CaseID: "case-blaine"})
	require.True(t, res.Succeeded())

	resp, err := http.Get(f.http.URL + "/api/cases/case-blaine")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cs := decode[CaseResponse](t, resp)
	assert.Equal(t, pipeline.StateCompleted, cs.State)
	require.NotNil(t, cs.LatestRun)
	assert.Equal(t, res.RunID, cs.LatestRun.ID)
	require.Len(t, cs.Results, 2)
	assert.Equal(t, "success", cs.Results[0].Outcome)

	resp, err = http.Get(f.http.URL + "/api/cases/case-blaine/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	runs := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, runs.Count)

	resp, err = http.Get(f.http.URL + "/api/cases/case-blaine/report?format=markdown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))
	var md bytes.Buffer
	_, err = md.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "# Cinnabar Labs Investment Memo\n", md.String())

	resp, err = http.Get(f.http.URL + "/api/runs/" + res.RunID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetReportMissingWhenDegraded(t *testing.T) {
	f := newFixture(t, 0)
	res := pipeline.NewRunner(reportPlan(t, true), nil, pipeline.WithStatus(f.status)).
		Run(context.Background(), pipeline.Request{CaseID: "case-koga"})
	require.True(t, res.Succeeded())

	resp, err := http.Get(f.http.URL + "/api/cases/case-koga/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, 0)
	for _, path := range []string{"/api/cases/missingno", "/api/jobs/missingno", "/api/runs/missingno", "/api/cases/missingno/report"} {
		resp, err := http.Get(f.http.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestListJobsFilter(t *testing.T) {
	f := newFixture(t, 0)
	f.upload(t, nil, "a.pdf", []byte("%PDF a"))

	resp, err := http.Get(f.http.URL + "/api/jobs?status=queued")
	require.NoError(t, err)
	defer resp.Body.Close()
	list := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, list.Count)

	resp, err = http.Get(f.http.URL + "/api/jobs?status=sleeping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketStreamsJobUpdates(t *testing.T) {
	t.Log("Nurse Joy watches the job board while a deck arrives")
	f := newFixture(t, 0)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello HelloMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	require.Eventually(t, func() bool { return f.server.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp := f.upload(t, nil, "chansey.md", []byte("# Chansey Health, care for every trainer"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sub := decode[SubmitResponse](t, resp)

	var update JobUpdateMessage
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "job_update", update.Type)
	require.NotNil(t, update.Job)
	assert.Equal(t, sub.JobID, update.Job.ID)
}

func TestCheckOrigin(t *testing.T) {
	s := &DealServer{allowedOrigins: []string{"https://deals.example.com"}}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://deals.example.com")
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(req))

	s.allowedOrigins = nil
	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, s.checkOrigin(req))
}

func TestSubmitRejectedWhileDraining(t *testing.T) {
	f := newFixture(t, 0)
	f.server.state.Store(int32(ServerStateDraining))
	resp := f.upload(t, nil, "late.pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
