package api

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request body")
	ErrInvalidDelay       = errors.New("delay must be a non-negative duration such as 30s")
	ErrInvalidLimit       = errors.New("limit must be a positive integer")
	ErrInvalidJobID       = errors.New("job id must be a UUID")
	ErrStorageUnavailable = errors.New("queue storage unavailable")
)
