package workers

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// Entity describes one domain entity and where its events are queued.
type Entity struct {
	// Name is the entity key used in handler names, e.g. "student".
	Name string
	// IDField is the camel-case identifier field accepted as an alternative to
	// entity_id, e.g. "studentId".
	IDField string
	Queue   string
}

// Handler returns the catalog name of the entity's sync handler.
func (e Entity) Handler() string {
	return e.Name + ".sync"
}

// Entities lists every domain entity in queue.DefaultQueues order.
var Entities = []Entity{
	{Name: "batch", IDField: "batchId", Queue: "batch-queue"},
	{Name: "course", IDField: "courseId", Queue: "course-queue"},
	{Name: "department", IDField: "departmentId", Queue: "department-queue"},
	{Name: "semester", IDField: "semesterId", Queue: "semester-queue"},
	{Name: "teacher", IDField: "teacherId", Queue: "teacher-queue"},
	{Name: "answer_script", IDField: "answerScriptId", Queue: "answer-script-queue"},
	{Name: "class_section", IDField: "classSectionId", Queue: "class-section-queue"},
	{Name: "department_head", IDField: "departmentHeadId", Queue: "department-head-queue"},
	{Name: "exam", IDField: "examId", Queue: "exam-queue"},
	{Name: "exam_submission", IDField: "examSubmissionId", Queue: "exam-submission-queue"},
	{Name: "exam_type", IDField: "examTypeId", Queue: "exam-type-queue"},
	{Name: "institution", IDField: "institutionId", Queue: "institution-queue"},
	{Name: "question", IDField: "questionId", Queue: "question-queue"},
	{Name: "student", IDField: "studentId", Queue: "student-queue"},
	{Name: "enrollment", IDField: "enrollmentId", Queue: "enrollment-queue"},
	{Name: "user", IDField: "userId", Queue: "user-queue"},
}

// Lookup returns the entity with the given name.
func Lookup(name string) (Entity, error) {
	for _, e := range Entities {
		if e.Name == name {
			return e, nil
		}
	}
	return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
}

// EntityEvent is the payload carried by every entity queue.
type EntityEvent struct {
	EntityID string          `json:"entity_id"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Decode parses payload into an EntityEvent. Besides the canonical
// {entity_id, action, data} shape it accepts the flat form written by the
// request handlers, {"studentId": "S1", "action": "enrolled", ...}, where
// every other field becomes Data.
//
// Errors wrap queue.ErrPoisonPayload: a payload that fails here never
// succeeds on redelivery.
func (e Entity) Decode(payload json.RawMessage) (EntityEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return EntityEvent{}, fmt.Errorf("%w: %s event: %v", queue.ErrPoisonPayload, e.Name, err)
	}

	var ev EntityEvent
	if err := decodeString(fields, "action", &ev.Action); err != nil {
		return EntityEvent{}, fmt.Errorf("%w: %s event: %v", queue.ErrPoisonPayload, e.Name, err)
	}

	if _, canonical := fields["entity_id"]; canonical {
		if err := decodeString(fields, "entity_id", &ev.EntityID); err != nil {
			return EntityEvent{}, fmt.Errorf("%w: %s event: %v", queue.ErrPoisonPayload, e.Name, err)
		}
		ev.Data = fields["data"]
	} else {
		if err := decodeString(fields, e.IDField, &ev.EntityID); err != nil {
			return EntityEvent{}, fmt.Errorf("%w: %s event: %v", queue.ErrPoisonPayload, e.Name, err)
		}
		rest := maps.Clone(fields)
		delete(rest, e.IDField)
		delete(rest, "action")
		if len(rest) > 0 {
			data, err := json.Marshal(rest)
			if err != nil {
				return EntityEvent{}, fmt.Errorf("%w: %s event: %v", queue.ErrPoisonPayload, e.Name, err)
			}
			ev.Data = data
		}
	}

	switch {
	case ev.EntityID == "":
		return EntityEvent{}, fmt.Errorf("%w: %s event: %w", queue.ErrPoisonPayload, e.Name, ErrMissingEntityID)
	case ev.Action == "":
		return EntityEvent{}, fmt.Errorf("%w: %s event: %w", queue.ErrPoisonPayload, e.Name, ErrMissingAction)
	}
	return ev, nil
}

// decodeString leaves dst untouched when key is absent or null.
func decodeString(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}
