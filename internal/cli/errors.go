package cli

import "errors"

var (
	ErrUnknownBackend = errors.New("unknown queue backend")
	ErrInvalidPayload = errors.New("payload must be valid JSON")
	ErrNoWorkers      = errors.New("no worker modules discovered")
)
