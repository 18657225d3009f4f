// Package api is the operator HTTP surface of the dispatch layer: probes,
// Prometheus metrics, queue statistics, dead-letter inspection and a producer
// endpoint for write paths that are not written in Go.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/campusjobs/pkg/httpserver"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// DefaultDeadLetterLimit caps dead-letter listings when no limit is given.
const DefaultDeadLetterLimit = 50

// RouterOptions wires the router to the running dispatch layer. Registry and
// Inspector are required; the rest is optional.
type RouterOptions struct {
	Registry  *queue.Registry
	Inspector queue.InspectorRepository
	// Enqueuer backs POST /queues/{queue}/jobs; the route is absent when nil.
	Enqueuer *queue.Enqueuer
	// Checks run on /readyz, typically the broker ping.
	Checks       []httpserver.Check
	ProbeTimeout time.Duration
	// Gatherer serves /metrics; the route is absent when nil.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// MaxBodyBytes bounds producer request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Router builds the operator router.
//
//	r := api.Router(api.RouterOptions{
//		Registry:  registry,
//		Inspector: store,
//		Enqueuer:  enqueuer,
//		Checks:    []httpserver.Check{{Name: "redis", Probe: broker.Healthcheck}},
//		Gatherer:  prometheus.DefaultGatherer,
//	})
func Router(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	h := &handlers{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(opts.Logger, opts.ProbeTimeout, opts.Checks...))
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", h.listQueues)
		r.Route("/{queue}", func(r chi.Router) {
			r.Get("/", h.queueStats)
			r.Get("/dead-letters", h.listDeadLetters)
			if opts.Enqueuer != nil {
				r.Post("/jobs", h.enqueue)
			}
		})
	})

	r.Get("/jobs/{id}", h.getJob)

	return r
}
