// Package httpserver runs the operator HTTP surface next to the workers.
//
// Server binds its listener, serves until the context is cancelled and then
// shuts down gracefully within a configurable deadline. Run returns a
// func() error so the server joins the same errgroup as the dispatcher:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(dispatcher.Run(ctx))
//	g.Go(srv.Run(ctx, router))
//
// LivenessHandler and ReadinessHandler back the /healthz and /readyz probes;
// readiness runs named checks such as the broker ping. Start and shutdown
// failures wrap ErrStart and ErrShutdown.
package httpserver
