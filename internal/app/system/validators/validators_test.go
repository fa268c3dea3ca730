package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/studyhub/internal/app/system/validators"
	"github.com/dalemusser/studyhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func ensure(t *testing.T) *testutil.Fixtures {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return testutil.NewFixtures(t, db)
}

func TestEnsureAll_Idempotent(t *testing.T) {
	f := ensure(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, f.DB(), zap.NewNop()); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	f := ensure(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	names, err := f.DB().ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := make(map[string]bool)
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{"groups", "group_messages"} {
		if !have[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

func TestGroupsValidator(t *testing.T) {
	f := ensure(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// fixture groups are valid
	f.CreateGroup(ctx, "Algebra", "public", primitive.NewObjectID())

	_, err := f.DB().Collection("groups").InsertOne(ctx, bson.M{"name": "No members"})
	if err == nil {
		t.Error("expected validation error for group missing required fields")
	}

	_, err = f.DB().Collection("groups").InsertOne(ctx, bson.M{
		"name":       "Bad privacy",
		"name_ci":    "bad privacy",
		"privacy":    "secret",
		"created_by": primitive.NewObjectID(),
		"members":    bson.A{},
	})
	if err == nil {
		t.Error("expected validation error for unknown privacy")
	}

	_, err = f.DB().Collection("groups").InsertOne(ctx, bson.M{
		"name":       "Bad role",
		"name_ci":    "bad role",
		"privacy":    "public",
		"created_by": primitive.NewObjectID(),
		"members":    bson.A{bson.M{"user_id": primitive.NewObjectID(), "role": "owner"}},
	})
	if err == nil {
		t.Error("expected validation error for unknown member role")
	}
}

func TestGroupMessagesValidator(t *testing.T) {
	f := ensure(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := f.DB().Collection("group_messages")
	base := bson.M{
		"group_id":  primitive.NewObjectID(),
		"user_id":   primitive.NewObjectID(),
		"user_name": "Ada",
		"timestamp": time.Now().UTC(),
	}
	with := func(content any) bson.M {
		doc := bson.M{"content": content}
		for k, v := range base {
			doc[k] = v
		}
		return doc
	}

	if _, err := coll.InsertOne(ctx, with("multi\nline")); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if _, err := coll.InsertOne(ctx, with("")); err == nil {
		t.Error("expected validation error for empty content")
	}
	if _, err := coll.InsertOne(ctx, with(" \n\t ")); err == nil {
		t.Error("expected validation error for whitespace content")
	}
	if _, err := coll.InsertOne(ctx, with(42)); err == nil {
		t.Error("expected validation error for non-string content")
	}
}
