package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

func init() {
	if err := Register(queue.DefaultCatalog, nil); err != nil {
		panic(err)
	}
}

// Register adds the sync handler of every entity to c. Events go to sink, or
// to a LogSink on the discovery logger when sink is nil. Each handler is
// wrapped in queue.Idempotent with the guard from the build dependencies.
func Register(c *queue.Catalog, sink Sink) error {
	for _, e := range Entities {
		if err := c.Provide(e.Handler(), provider(e, sink)); err != nil {
			return err
		}
	}
	return nil
}

func provider(e Entity, sink Sink) queue.Provider {
	return func(deps queue.Deps) (queue.Handler, error) {
		s := sink
		if s == nil {
			s = LogSink{Logger: deps.Logger}
		}
		return queue.Idempotent(deps.Guard, syncHandler(e, s)), nil
	}
}

func syncHandler(e Entity, sink Sink) queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		ev, err := e.Decode(payload)
		if err != nil {
			return err
		}
		if err := sink.Apply(ctx, e.Name, ev); err != nil {
			return fmt.Errorf("%s: apply %s %s: %w", e.Handler(), ev.Action, ev.EntityID, err)
		}
		return nil
	})
}
