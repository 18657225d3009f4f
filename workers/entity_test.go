package workers_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
	"github.com/dmitrymomot/campusjobs/workers"
)

func TestEntities(t *testing.T) {
	t.Parallel()

	require.Len(t, workers.Entities, len(queue.DefaultQueues))
	for i, e := range workers.Entities {
		assert.Equal(t, queue.DefaultQueues[i], e.Queue, e.Name)
		assert.Equal(t, e.Name+".sync", e.Handler())
	}

	e, err := workers.Lookup("exam_submission")
	require.NoError(t, err)
	assert.Equal(t, "exam-submission-queue", e.Queue)

	_, err = workers.Lookup("library")
	assert.ErrorIs(t, err, workers.ErrUnknownEntity)
}

func TestEntity_Decode(t *testing.T) {
	t.Parallel()

	student, err := workers.Lookup("student")
	require.NoError(t, err)

	t.Run("canonical event", func(t *testing.T) {
		t.Parallel()

		ev, err := student.Decode(json.RawMessage(`{"entity_id":"S1","action":"updated","data":{"name":"Ada"}}`))
		require.NoError(t, err)
		assert.Equal(t, "S1", ev.EntityID)
		assert.Equal(t, "updated", ev.Action)
		assert.JSONEq(t, `{"name":"Ada"}`, string(ev.Data))
	})

	t.Run("flat event", func(t *testing.T) {
		t.Parallel()

		ev, err := student.Decode(json.RawMessage(`{"studentId":"S1","action":"enrolled","courseId":"C9"}`))
		require.NoError(t, err)
		assert.Equal(t, "S1", ev.EntityID)
		assert.Equal(t, "enrolled", ev.Action)
		assert.JSONEq(t, `{"courseId":"C9"}`, string(ev.Data))
	})

	t.Run("flat event without extra fields", func(t *testing.T) {
		t.Parallel()

		ev, err := student.Decode(json.RawMessage(`{"studentId":"S1","action":"enrolled"}`))
		require.NoError(t, err)
		assert.Empty(t, ev.Data)
	})

	tests := []struct {
		name    string
		payload string
		target  error
	}{
		{"not an object", `["S1"]`, nil},
		{"missing id", `{"action":"enrolled"}`, workers.ErrMissingEntityID},
		{"foreign id field", `{"examId":"E1","action":"graded"}`, workers.ErrMissingEntityID},
		{"missing action", `{"entity_id":"S1"}`, workers.ErrMissingAction},
		{"numeric id", `{"studentId":1,"action":"enrolled"}`, nil},
		{"null id", `{"entity_id":null,"action":"deleted"}`, workers.ErrMissingEntityID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := student.Decode(json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, queue.ErrPoisonPayload)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
