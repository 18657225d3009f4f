// Package mongo manages the optional MongoDB connection that backs the
// long-term dead-letter archive.
//
// Broker-side dead-letter queues are bounded operational lists; the archive
// keeps every dead letter for later analysis. The connection is configured
// from MONGODB_* environment variables and retried on startup.
//
// # Usage
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//
//	archive := mongoarchive.New(client.Database(cfg.Database))
//	ready := mongo.Healthcheck(client)
//
// # Error Handling
//
// Connection failures wrap ErrFailedToConnectToMongo together with the last
// driver error; use errors.Is to check for it.
package mongo
