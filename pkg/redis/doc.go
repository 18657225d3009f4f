// Package redis manages the broker connection of the dispatch layer.
//
// It wraps the go-redis client and adds:
//
//   - Connect, which retries the initial ping using the supplied Config.
//   - Broker, the process-wide owner of the connection pool: Client is
//     idempotent and hands every caller the same *redis.Client, Close releases it once.
//   - Healthcheck helpers for readiness probes.
//
// Config fields are populated from environment variables via
// github.com/caarlos0/env (REDIS_URL, REDIS_RETRY_ATTEMPTS, REDIS_RETRY_INTERVAL,
// REDIS_CONNECT_TIMEOUT, REDIS_POOL_SIZE, REDIS_KEY_PREFIX).
//
// # Usage
//
//	broker := redis.NewBroker(cfg)
//	defer broker.Close()
//
//	client, err := broker.Client(ctx)
//	if err != nil {
//		// redis unreachable at startup: fatal for producers and workers
//	}
//
//	store := redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix))
//
// # Errors
//
// Sentinel errors (ErrRedisNotReady, ErrBrokerClosed, ...) wrap the underlying
// go-redis errors using errors.Join, so they can be matched with errors.Is.
package redis
