// Package workers provides the entity sync handlers consumed from the
// per-entity queues.
//
// Each of the sixteen domain entities gets one handler, named "<entity>.sync",
// that decodes an EntityEvent and hands it to a Sink. The handlers are added
// to queue.DefaultCatalog from init, so importing the package for side effects
// is enough for discovery to resolve them:
//
//	import _ "github.com/dmitrymomot/campusjobs/workers"
//
// Manifests in the workers directory then bind each handler to its queue.
// Downstream effects are pluggable through Register with a custom Sink; the
// default sink writes one structured log line per event.
package workers
