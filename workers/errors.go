package workers

import "errors"

var (
	ErrMissingEntityID = errors.New("event has no entity id")
	ErrMissingAction   = errors.New("event has no action")
	ErrUnknownEntity   = errors.New("unknown entity")
)
