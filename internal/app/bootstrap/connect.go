// internal/app/bootstrap/connect.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when configured, Redis.
// Either failing aborts startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Live:          &LiveDeps{},
	}

	if appCfg.RedisAddr == "" {
		logger.Info("redis not configured; live presence is process-local only")
		return deps, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     appCfg.RedisAddr,
		Password: appCfg.RedisPassword,
		DB:       appCfg.RedisDB,
	})
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("redis ping %s: %w", appCfg.RedisAddr, err)
	}
	logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr), zap.Int("db", appCfg.RedisDB))
	deps.Redis = rdb

	return deps, nil
}
