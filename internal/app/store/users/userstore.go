package userstore

import (
	"context"

	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store reads user profiles. Profiles are written by the identity service,
// never by this app.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Profiles loads the display fields (name, avatar) for the given user IDs in
// one query. IDs with no user document are simply absent from the result.
func (s *Store) Profiles(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User)
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return out, nil
	}

	proj := options.Find().SetProjection(bson.M{"_id": 1, "name": 1, "avatar": 1})
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, proj)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
