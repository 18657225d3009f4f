// Package logger builds the process *slog.Logger and holds the attribute
// helpers used across the dispatch layer.
//
// New creates a JSON or text handler from functional options and wraps it with
// LogHandlerDecorator, which adds attributes pulled from the record's context.
// The worker runtime stores the job being handled in the handler context, so
// registering queue.LogJobContext as an extractor tags every line a handler
// logs with its job:
//
//	log := logger.New(
//		logger.WithEnvironment(app.Env, app.Name),
//		logger.WithContextExtractors(queue.LogJobContext),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "student synced", logger.EntityID(id), logger.Action("enrolled"))
//
// Error and Errors return an empty Attr for nil errors, so they can be passed
// unconditionally.
package logger
