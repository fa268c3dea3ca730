// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/studyhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the group collections (if missing) and tries to attach
// JSON-Schema validators. On servers that don't support collMod/validators
// (e.g. some DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, logger); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("groups", groupsSchema())
	ensure("group_messages", groupMessagesSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		logger.Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			logger.Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, logger *zap.Logger) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	logger.Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enumOf(values ...string) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "privacy", "created_by", "members"},
			"properties": bson.M{
				"name":        bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"name_ci":     bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"description": bson.M{"bsonType": "string"},
				"privacy":     bson.M{"enum": enumOf(models.PrivacyPublic, models.PrivacyPrivate)},
				"created_by":  bson.M{"bsonType": "objectId"},
				"members": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"user_id", "role"},
						"properties": bson.M{
							"user_id":   bson.M{"bsonType": "objectId"},
							"role":      bson.M{"enum": enumOf(models.RoleMember, models.RoleModerator, models.RoleAdmin)},
							"joined_at": bson.M{"bsonType": "date"},
						},
					},
				},
				"created_at": bson.M{"bsonType": "date"},
				"updated_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

// Messages must carry non-blank content; the service trims before insert.
func groupMessagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "user_id", "content", "timestamp"},
			"properties": bson.M{
				"group_id":  bson.M{"bsonType": "objectId"},
				"user_id":   bson.M{"bsonType": "objectId"},
				"user_name": bson.M{"bsonType": "string"},
				"content":   bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"timestamp": bson.M{"bsonType": "date"},
			},
		},
	}
}
