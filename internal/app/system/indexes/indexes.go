// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema at startup. Each ensure* function is
idempotent. Errors are aggregated so every problem is visible and startup can
fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string

	if err := ensureGroups(ctx, db, logger); err != nil {
		problems = append(problems, "groups: "+err.Error())
	}
	if err := ensureGroupMessages(ctx, db, logger); err != nil {
		problems = append(problems, "group_messages: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet creates each wanted index. An index with the same keys but a
// different name or uniqueness is dropped and recreated so the collection
// converges on the declared set.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, want []mongo.IndexModel, logger *zap.Logger) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// A collection that does not exist yet has no indexes to reconcile.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range want {
		name := *m.Options.Name
		unique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := logger.With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique))

		if ex, ok := existing[sig]; ok {
			if ex.Name == name && isUnique(ex.Unique) == unique {
				log.Debug("reusing existing index")
				continue
			}
			log.Info("replacing index with differing name or options", zap.String("existing", ex.Name))
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("index ensure failed", zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                             */
/* -------------------------------------------------------------------------- */

func ensureGroups(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	return ensureIndexSet(ctx, db.Collection("groups"), []mongo.IndexModel{
		// Name lookups (case/diacritics folded). Names are not unique.
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetName("idx_groups_nameci"),
		},
		// "Which groups is this user in" and the $ne guard of a join.
		{
			Keys:    bson.D{{Key: "members.user_id", Value: 1}},
			Options: options.Index().SetName("idx_groups_members_userid"),
		},
		// Group listing, newest first with a stable tiebreak.
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_groups_createdat__id"),
		},
	}, logger)
}

func ensureGroupMessages(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	return ensureIndexSet(ctx, db.Collection("group_messages"), []mongo.IndexModel{
		// Message pages: newest first within a group, `before` cursor on timestamp.
		{
			Keys: bson.D{
				{Key: "group_id", Value: 1},
				{Key: "timestamp", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_groupmsgs_group_ts__id"),
		},
	}, logger)
}
