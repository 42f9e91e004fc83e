package deadletter

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"devpulse/internal/config"
	"devpulse/internal/logger"
	"devpulse/pkg/models"
)

// ArchivedEvent is the persisted shape of a dead-lettered event. The full
// event rides along so operators can inspect and replay it by hand.
type ArchivedEvent struct {
	Queue      string       `bson:"queue"`
	EventID    string       `bson:"event_id"`
	EventType  string       `bson:"event_type"`
	Severity   string       `bson:"severity"`
	ArchivedAt time.Time    `bson:"archived_at"`
	Event      models.Event `bson:"event"`
}

// MongoStore archives dead-lettered events to a MongoDB collection. Archive
// failures are logged and the batch is dropped; the dead-letter path never
// re-enters the retry loop.
type MongoStore struct {
	coll *mongo.Collection
	log  logger.Logger
}

func NewMongoStore(client *mongo.Client, cfg config.MongoDBConfig, log logger.Logger) *MongoStore {
	return &MongoStore{
		coll: client.Database(cfg.Database).Collection(cfg.Collection),
		log:  log,
	}
}

// Handle implements queue.FailedHandler.
func (s *MongoStore) Handle(ctx context.Context, queueName string, events []models.Event) {
	docs := make([]interface{}, len(events))
	now := time.Now()
	for i, evt := range events {
		docs[i] = ArchivedEvent{
			Queue:      queueName,
			EventID:    evt.ID,
			EventType:  evt.Type,
			Severity:   string(evt.Severity),
			ArchivedAt: now,
			Event:      evt,
		}
	}

	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		s.log.ErrorwCtx(ctx, "Failed to archive dead-lettered events, dropping batch",
			"failed_queue", queueName,
			"batch_size", len(events),
			"error", err,
		)
		return
	}

	s.log.InfowCtx(ctx, "Archived dead-lettered events",
		"failed_queue", queueName,
		"batch_size", len(events),
	)
}
