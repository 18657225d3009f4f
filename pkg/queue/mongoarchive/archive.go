// Package mongoarchive keeps a durable copy of every dead letter in MongoDB.
//
// Broker dead-letter queues are operational lists an operator drains; the
// archive is the long-term record. Plug it into the worker runtime with
// queue.WithDeadLetterHook(archive.Hook()).
package mongoarchive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

// DefaultCollection is the collection dead letters are written to.
const DefaultCollection = "dead_letters"

// Option configures the Archive.
type Option func(*Archive)

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(a *Archive) {
		if name != "" {
			a.collection = name
		}
	}
}

// WithLogger sets the logger used by Hook.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.logger = l
		}
	}
}

// Archive stores dead letters in a MongoDB collection.
type Archive struct {
	db         *mongo.Database
	collection string
	logger     *slog.Logger
}

// New creates an archive writing to db. The caller owns the client.
func New(db *mongo.Database, opts ...Option) *Archive {
	a := &Archive{
		db:         db,
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type deadLetterModel struct {
	ID              string    `bson:"_id"`
	Queue           string    `bson:"queue"`
	DeadLetterQueue string    `bson:"dead_letter_queue"`
	Payload         []byte    `bson:"payload"`
	Reason          string    `bson:"reason"`
	Attempts        int       `bson:"attempts"`
	EnqueuedAt      time.Time `bson:"enqueued_at"`
	FailedAt        time.Time `bson:"failed_at"`
}

func (a *Archive) coll() *mongo.Collection {
	return a.db.Collection(a.collection)
}

// EnsureIndexes creates the (queue, failed_at) index used by List.
func (a *Archive) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "failed_at", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("mongoarchive: create indexes: %w", err)
	}
	return nil
}

// Store archives dl. Archiving the same job twice keeps the first copy.
func (a *Archive) Store(ctx context.Context, dl *queue.DeadLetter) error {
	_, err := a.coll().InsertOne(ctx, deadLetterModel{
		ID:              dl.JobID.String(),
		Queue:           dl.Queue,
		DeadLetterQueue: dl.DeadLetterQueue,
		Payload:         dl.Payload,
		Reason:          dl.Reason,
		Attempts:        dl.Attempts,
		EnqueuedAt:      dl.EnqueuedAt,
		FailedAt:        dl.FailedAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongoarchive: store dead letter: %w", err)
	}
	return nil
}

// List returns up to limit archived dead letters of the source queue, newest
// first. A non-positive limit returns all of them.
func (a *Archive) List(ctx context.Context, q string, limit int) ([]*queue.DeadLetter, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := a.coll().Find(ctx, bson.M{"queue": q}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongoarchive: list dead letters: %w", err)
	}
	defer cursor.Close(ctx)

	var models []deadLetterModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongoarchive: decode dead letters: %w", err)
	}

	letters := make([]*queue.DeadLetter, 0, len(models))
	for i := range models {
		m := &models[i]
		jobID, err := uuid.Parse(m.ID)
		if err != nil {
			return nil, fmt.Errorf("mongoarchive: parse job id: %w", err)
		}
		letters = append(letters, &queue.DeadLetter{
			JobID:           jobID,
			Queue:           m.Queue,
			DeadLetterQueue: m.DeadLetterQueue,
			Payload:         m.Payload,
			Reason:          m.Reason,
			Attempts:        m.Attempts,
			EnqueuedAt:      m.EnqueuedAt,
			FailedAt:        m.FailedAt,
		})
	}
	return letters, nil
}

// Hook returns a dead-letter hook that archives every dead letter. Failures are
// logged; the broker copy is already durable.
func (a *Archive) Hook() queue.DeadLetterHook {
	return func(ctx context.Context, dl *queue.DeadLetter) {
		if err := a.Store(ctx, dl); err != nil {
			a.logger.ErrorContext(ctx, "failed to archive dead letter",
				slog.String("queue", dl.Queue),
				slog.String("job_id", dl.JobID.String()),
				slog.String("error", err.Error()))
		}
	}
}
