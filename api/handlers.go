package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

type handlers struct {
	opts RouterOptions
}

type queueSummary struct {
	queue.Stats
	DeadLetterQueue string `json:"dead_letter_queue"`
}

// EnqueueRequest is the body of POST /queues/{queue}/jobs.
type EnqueueRequest struct {
	Payload     json.RawMessage `json:"payload"`
	Delay       string          `json:"delay,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	DedupKey    string          `json:"dedup_key,omitempty"`
	MaxAttempts *int            `json:"max_attempts,omitempty"`
}

// EnqueueResponse is returned with 202 Accepted.
type EnqueueResponse struct {
	JobID uuid.UUID `json:"job_id"`
	Queue string    `json:"queue"`
}

func (h *handlers) listQueues(w http.ResponseWriter, r *http.Request) {
	names := h.opts.Registry.Names()
	out := make([]queueSummary, 0, len(names))
	for _, name := range names {
		stats, err := h.opts.Inspector.Stats(r.Context(), name)
		if err != nil {
			h.fail(w, r, http.StatusBadGateway, errors.Join(ErrStorageUnavailable, err))
			return
		}
		out = append(out, queueSummary{Stats: *stats, DeadLetterQueue: queue.DeadLetterQueueName(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) queueStats(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}
	stats, err := h.opts.Inspector.Stats(r.Context(), handle.Name())
	if err != nil {
		h.fail(w, r, http.StatusBadGateway, errors.Join(ErrStorageUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, queueSummary{Stats: *stats, DeadLetterQueue: handle.DeadLetterQueue()})
}

func (h *handlers) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit := DefaultDeadLetterLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(w, r, http.StatusBadRequest, ErrInvalidLimit)
			return
		}
		limit = n
	}

	letters, err := h.opts.Inspector.ListDeadLetters(r.Context(), handle.Name(), limit)
	if err != nil {
		h.fail(w, r, http.StatusBadGateway, errors.Join(ErrStorageUnavailable, err))
		return
	}
	if letters == nil {
		letters = []*queue.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, letters)
}

func (h *handlers) enqueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")

	var req EnqueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.fail(w, r, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		h.fail(w, r, http.StatusBadRequest, errors.Join(ErrInvalidRequest, queue.ErrPayloadNil))
		return
	}

	opts := make([]queue.EnqueueOption, 0, 4)
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			h.fail(w, r, http.StatusBadRequest, errors.Join(ErrInvalidRequest, ErrInvalidDelay))
			return
		}
		opts = append(opts, queue.WithDelay(d))
	}
	if req.Priority != nil {
		if *req.Priority < int(queue.PriorityMin) || *req.Priority > int(queue.PriorityMax) {
			h.fail(w, r, http.StatusBadRequest, queue.ErrInvalidPriority)
			return
		}
		opts = append(opts, queue.WithPriority(queue.Priority(*req.Priority)))
	}
	if req.DedupKey != "" {
		opts = append(opts, queue.WithDedupKey(req.DedupKey))
	}
	if req.MaxAttempts != nil {
		if !queue.ValidMaxAttempts(*req.MaxAttempts) {
			h.fail(w, r, http.StatusBadRequest, queue.ErrInvalidMaxAttempts)
			return
		}
		opts = append(opts, queue.WithMaxAttempts(*req.MaxAttempts))
	}

	id, err := h.opts.Enqueuer.Enqueue(r.Context(), name, req.Payload, opts...)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, EnqueueResponse{JobID: id, Queue: name})
	case errors.Is(err, queue.ErrQueueNotRegistered):
		h.fail(w, r, http.StatusNotFound, err)
	case errors.Is(err, queue.ErrInvalidPriority), errors.Is(err, queue.ErrPayloadMarshal):
		h.fail(w, r, http.StatusBadRequest, err)
	default:
		h.fail(w, r, http.StatusBadGateway, err)
	}
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, ErrInvalidJobID)
		return
	}

	job, err := h.opts.Inspector.GetJob(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, job)
	case errors.Is(err, queue.ErrJobNotFound):
		h.fail(w, r, http.StatusNotFound, err)
	default:
		h.fail(w, r, http.StatusBadGateway, errors.Join(ErrStorageUnavailable, err))
	}
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*queue.QueueHandle, bool) {
	handle, err := h.opts.Registry.Lookup(chi.URLParam(r, "queue"))
	if err != nil {
		h.fail(w, r, http.StatusNotFound, err)
		return nil, false
	}
	return handle, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.opts.Logger.ErrorContext(r.Context(), "operator api request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
