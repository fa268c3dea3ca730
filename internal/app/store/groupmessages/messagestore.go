// internal/app/store/groupmessages/messagestore.go
package groupmessagestore

import (
	"context"
	"time"

	"github.com/dalemusser/studyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_messages")}
}

// Insert stores m. An ID is assigned when m.ID is zero; the caller owns
// the timestamp.
func (s *Store) Insert(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error) {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.GroupMessage{}, err
	}
	return m, nil
}

// ListRecent returns up to limit messages of a group, newest first.
// When before is non-zero only messages strictly older than it are returned.
// Ties on timestamp are broken by _id so pages are stable; a non-zero
// beforeID narrows the cursor to (before, beforeID), so messages sharing
// before's millisecond with a smaller _id are still returned.
func (s *Store) ListRecent(ctx context.Context, groupID primitive.ObjectID, before time.Time, beforeID primitive.ObjectID, limit int) ([]models.GroupMessage, error) {
	filter := bson.M{"group_id": groupID}
	switch {
	case before.IsZero():
	case beforeID.IsZero():
		filter["timestamp"] = bson.M{"$lt": before}
	default:
		filter["$or"] = bson.A{
			bson.M{"timestamp": bson.M{"$lt": before}},
			bson.M{"timestamp": before, "_id": bson.M{"$lt": beforeID}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []models.GroupMessage{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CountByGroup returns the number of stored messages for a group.
func (s *Store) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}
