package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeadLetterSuffix is appended to a source queue name to build its dead-letter queue name.
const DeadLetterSuffix = ".dead"

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateInFlight  JobState = "in-flight"
	JobStateCompleted JobState = "completed"
	// JobStateRetryable is a failed job waiting for its backoff to elapse.
	// Once RunAt passes it is claimable exactly like a pending job.
	JobStateRetryable JobState = "failed-retryable"
	// JobStateExhausted is terminal: the job was routed to the dead-letter queue.
	JobStateExhausted JobState = "failed-exhausted"
)

// Terminal reports whether no further transitions are possible from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateExhausted
}

// Claimable reports whether a worker may pull a job in state s (subject to RunAt).
func (s JobState) Claimable() bool {
	return s == JobStatePending || s == JobStateRetryable
}

// Priority represents job priority (0-100, higher is more important)
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job is one unit of deferred work destined for exactly one queue.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	Payload     []byte     `json:"payload,omitempty"`
	State       JobState   `json:"state"`
	Priority    Priority   `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	DedupKey    string     `json:"dedup_key,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeadLetter is a job that exhausted its retries (or could never succeed),
// preserved for operator inspection.
type DeadLetter struct {
	JobID           uuid.UUID `json:"job_id"`
	Queue           string    `json:"queue"`
	DeadLetterQueue string    `json:"dead_letter_queue"`
	Payload         []byte    `json:"payload,omitempty"`
	Reason          string    `json:"reason"`
	Attempts        int       `json:"attempts"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
	FailedAt        time.Time `json:"failed_at"`
}

// MarshalJSON renders the payload as embedded JSON instead of base64.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias(j), payloadJSON(j.Payload)})
}

// UnmarshalJSON accepts the payload as embedded JSON.
func (j *Job) UnmarshalJSON(data []byte) error {
	type alias Job
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	j.Payload = aux.Payload
	return nil
}

// MarshalJSON renders the payload as embedded JSON instead of base64.
func (d DeadLetter) MarshalJSON() ([]byte, error) {
	type alias DeadLetter
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias(d), payloadJSON(d.Payload)})
}

// UnmarshalJSON accepts the payload as embedded JSON.
func (d *DeadLetter) UnmarshalJSON(data []byte) error {
	type alias DeadLetter
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Payload = aux.Payload
	return nil
}

// payloadJSON returns p unchanged when it is valid JSON. Bytes written around
// the enqueuer are quoted as a string so the record still encodes.
func payloadJSON(p []byte) json.RawMessage {
	if len(p) == 0 || json.Valid(p) {
		return p
	}
	b, _ := json.Marshal(string(p)) //nolint:errcheck // strings always marshal
	return b
}

// Stats is a point-in-time snapshot of a queue's backlog.
type Stats struct {
	Queue        string `json:"queue"`
	Pending      int64  `json:"pending"`
	Scheduled    int64  `json:"scheduled"`
	InFlight     int64  `json:"in_flight"`
	Completed    int64  `json:"completed"`
	DeadLettered int64  `json:"dead_lettered"`
}

// DeadLetterQueueName returns the deterministic dead-letter queue name for a source queue.
func DeadLetterQueueName(queue string) string {
	return queue + DeadLetterSuffix
}

// NewDeadLetter builds the dead-letter record for job.
func NewDeadLetter(job *Job, reason string, attempts int, failedAt time.Time) *DeadLetter {
	return &DeadLetter{
		JobID:           job.ID,
		Queue:           job.Queue,
		DeadLetterQueue: DeadLetterQueueName(job.Queue),
		Payload:         job.Payload,
		Reason:          reason,
		Attempts:        attempts,
		EnqueuedAt:      job.EnqueuedAt,
		FailedAt:        failedAt,
	}
}
