package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/campusjobs/api"
	"github.com/dmitrymomot/campusjobs/pkg/httpserver"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

type fixture struct {
	storage  *queue.MemoryStorage
	registry *queue.Registry
	router   http.Handler
}

func newFixture(t *testing.T, checks ...httpserver.Check) *fixture {
	t.Helper()

	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	promReg := prometheus.NewRegistry()
	metrics, err := queue.NewMetrics(promReg)
	require.NoError(t, err)

	registry, err := queue.NewRegistry(storage, queue.WithRegistryMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, registry.RegisterDefaults())

	enqueuer, err := queue.NewEnqueuer(registry)
	require.NoError(t, err)

	router := api.Router(api.RouterOptions{
		Registry:  registry,
		Inspector: storage,
		Enqueuer:  enqueuer,
		Checks:    checks,
		Gatherer:  promReg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{storage: storage, registry: registry, router: router}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func (f *fixture) deadLetter(t *testing.T, q string, payload string) {
	t.Helper()

	handle, err := f.registry.Lookup(q)
	require.NoError(t, err)
	_, err = handle.Enqueue(context.Background(), json.RawMessage(payload))
	require.NoError(t, err)

	workerID := uuid.New()
	job, err := f.storage.ClaimJob(context.Background(), workerID, q, time.Minute)
	require.NoError(t, err)
	_, err = f.storage.MoveToDLQ(context.Background(), workerID, job.ID, "handler failed", 3)
	require.NoError(t, err)
}

func TestRouter_Probes(t *testing.T) {
	t.Parallel()

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		rec := newFixture(t).do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readiness follows broker checks", func(t *testing.T) {
		t.Parallel()

		down := httpserver.Check{Name: "redis", Probe: func(context.Context) error { return errors.New("dial tcp: refused") }}
		rec := newFixture(t, down).do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "refused")

		up := httpserver.Check{Name: "redis", Probe: func(context.Context) error { return nil }}
		rec = newFixture(t, up).do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouter_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("accepted job is stored", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/queues/student-queue/jobs",
			`{"payload":{"studentId":"S1","action":"enrolled"},"priority":75,"dedup_key":"student:S1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		var resp api.EnqueueResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "student-queue", resp.Queue)

		job, err := f.storage.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"studentId":"S1","action":"enrolled"}`, string(job.Payload))
		assert.Equal(t, queue.PriorityHigh, job.Priority)
		assert.Equal(t, "student:S1", job.DedupKey)

		dup := f.do(t, http.MethodPost, "/queues/student-queue/jobs",
			`{"payload":{"studentId":"S1","action":"enrolled"},"dedup_key":"student:S1"}`)
		require.Equal(t, http.StatusAccepted, dup.Code)
		var dupResp api.EnqueueResponse
		require.NoError(t, json.Unmarshal(dup.Body.Bytes(), &dupResp))
		assert.Equal(t, resp.JobID, dupResp.JobID)
	})

	t.Run("max attempts override is stored", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/queues/question-queue/jobs", `{"payload":{"questionId":"Q1"},"max_attempts":7}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		var resp api.EnqueueResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		job, err := f.storage.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, 7, job.MaxAttempts)
	})

	t.Run("delayed job is scheduled", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/queues/exam-queue/jobs", `{"payload":{"examId":"E1"},"delay":"1h"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		stats, err := f.storage.Stats(context.Background(), "exam-queue")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Scheduled)
	})

	tests := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"unknown queue", "/queues/nope-queue/jobs", `{"payload":{}}`, http.StatusNotFound},
		{"missing payload", "/queues/user-queue/jobs", `{}`, http.StatusBadRequest},
		{"null payload", "/queues/user-queue/jobs", `{"payload":null}`, http.StatusBadRequest},
		{"malformed body", "/queues/user-queue/jobs", `{"payload":`, http.StatusBadRequest},
		{"unknown field", "/queues/user-queue/jobs", `{"payload":{},"queue":"x"}`, http.StatusBadRequest},
		{"bad delay", "/queues/user-queue/jobs", `{"payload":{},"delay":"soon"}`, http.StatusBadRequest},
		{"priority out of range", "/queues/user-queue/jobs", `{"payload":{},"priority":300}`, http.StatusBadRequest},
		{"max attempts too high", "/queues/user-queue/jobs", `{"payload":{},"max_attempts":100}`, http.StatusBadRequest},
		{"max attempts zero", "/queues/user-queue/jobs", `{"payload":{},"max_attempts":0}`, http.StatusBadRequest},
		{"max attempts negative", "/queues/user-queue/jobs", `{"payload":{},"max_attempts":-2}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := newFixture(t).do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRouter_Queues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.do(t, http.MethodPost, "/queues/course-queue/jobs", `{"payload":{"courseId":"C1"}}`)
	f.deadLetter(t, "course-queue", `{"courseId":"C2"}`)

	rec := f.do(t, http.MethodGet, "/queues", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var all []struct {
		Queue           string `json:"queue"`
		Pending         int64  `json:"pending"`
		DeadLettered    int64  `json:"dead_lettered"`
		DeadLetterQueue string `json:"dead_letter_queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, len(queue.DefaultQueues))

	var found bool
	for _, s := range all {
		if s.Queue == "course-queue" {
			found = true
			assert.Equal(t, int64(1), s.Pending)
			assert.Equal(t, int64(1), s.DeadLettered)
			assert.Equal(t, "course-queue.dead", s.DeadLetterQueue)
		}
	}
	assert.True(t, found)

	rec = f.do(t, http.MethodGet, "/queues/course-queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":1`)

	rec = f.do(t, http.MethodGet, "/queues/unknown-queue", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_DeadLetters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deadLetter(t, "answer-script-queue", `{"n":1}`)
	f.deadLetter(t, "answer-script-queue", `{"n":2}`)

	rec := f.do(t, http.MethodGet, "/queues/answer-script-queue/dead-letters?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payload":{"n":2}`)

	var letters []queue.DeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	require.Len(t, letters, 1)
	assert.JSONEq(t, `{"n":2}`, string(letters[0].Payload))
	assert.Equal(t, "handler failed", letters[0].Reason)
	assert.Equal(t, 3, letters[0].Attempts)

	rec = f.do(t, http.MethodGet, "/queues/answer-script-queue/dead-letters", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &letters))
	assert.Len(t, letters, 2)

	rec = f.do(t, http.MethodGet, "/queues/batch-queue/dead-letters", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/queues/batch-queue/dead-letters?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/queues/institution-queue/jobs", `{"payload":{"institutionId":"I1"}}`)
	var resp api.EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodGet, "/jobs/"+resp.JobID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payload":{"institutionId":"I1"}`)
	var job queue.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, resp.JobID, job.ID)
	assert.Equal(t, queue.JobStatePending, job.State)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/jobs/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/jobs/not-a-uuid", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.do(t, http.MethodPost, "/queues/user-queue/jobs", `{"payload":{"userId":"U1"}}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `queue="user-queue"`)
}
