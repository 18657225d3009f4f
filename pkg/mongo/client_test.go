package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/campusjobs/pkg/mongo"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()

		_, err := mongo.New(context.Background(), mongo.Config{})
		assert.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
	})

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		_, err := mongo.New(ctx, mongo.Config{
			ConnectionURL:  "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100",
			ConnectTimeout: 100 * time.Millisecond,
			RetryAttempts:  2,
			RetryInterval:  time.Hour,
		})
		assert.ErrorIs(t, err, mongo.ErrFailedToConnectToMongo)
	})
}
