// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

// ErrAlreadyMember is returned by AddMember when the user is already in the group.
var ErrAlreadyMember = errors.New("user is already a member of this group")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// GetByID loads a group. Returns mongo.ErrNoDocuments if it does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts a new group with the creator seeded as its admin.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.NameCI = text.Fold(g.Name)
	if g.Privacy == "" {
		g.Privacy = models.PrivacyPublic
	}
	g.Members = []models.GroupMember{{
		UserID:   g.CreatedBy,
		Role:     models.RoleAdmin,
		JoinedAt: now,
	}}
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// List returns all groups, newest first.
func (s *Store) List(ctx context.Context) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	groups := []models.Group{}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMember appends userID with role to the group's member list and returns
// the updated group.
//
// The membership check and the append happen in one conditional update, so
// two concurrent joins for the same user produce exactly one member entry.
// Returns ErrAlreadyMember if the user is already present and
// mongo.ErrNoDocuments if the group does not exist.
func (s *Store) AddMember(ctx context.Context, groupID, userID primitive.ObjectID, role string) (models.Group, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":             groupID,
		"members.user_id": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$push": bson.M{"members": models.GroupMember{UserID: userID, Role: role, JoinedAt: now}},
		"$set":  bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var g models.Group
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&g)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, err
	}

	// Nothing matched: either the group is missing or the user is already in it.
	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": groupID})
	if cerr != nil {
		return models.Group{}, cerr
	}
	if n == 0 {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return models.Group{}, ErrAlreadyMember
}
