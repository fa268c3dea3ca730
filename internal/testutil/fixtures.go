package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a user profile with the given name and avatar.
func (f *Fixtures) CreateUser(ctx context.Context, name, avatar string) models.User {
	f.t.Helper()

	user := models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Avatar:    avatar,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateGroup creates a group owned by creator, who is seeded as its admin.
func (f *Fixtures) CreateGroup(ctx context.Context, name, privacy string, creator primitive.ObjectID) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	group := models.Group{
		ID:          primitive.NewObjectID(),
		Name:        name,
		NameCI:      text.Fold(name),
		Description: "Test group description",
		Privacy:     privacy,
		CreatedBy:   creator,
		Members: []models.GroupMember{
			{UserID: creator, Role: models.RoleAdmin, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("groups").InsertOne(ctx, group); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}

	return group
}

// CreateMessage inserts a message directly, bypassing the service.
func (f *Fixtures) CreateMessage(ctx context.Context, groupID, userID primitive.ObjectID, userName, content string, ts time.Time) models.GroupMessage {
	f.t.Helper()

	msg := models.GroupMessage{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Timestamp: ts,
	}

	if _, err := f.db.Collection("group_messages").InsertOne(ctx, msg); err != nil {
		f.t.Fatalf("failed to create test message: %v", err)
	}

	return msg
}
