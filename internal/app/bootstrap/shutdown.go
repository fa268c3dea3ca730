// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the realtime router and limiters, then closes Redis and
// MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if live := deps.Live; live != nil {
		if live.Refresh != nil {
			live.Refresh.Stop()
		}
		if live.Router != nil {
			logger.Info("stopping realtime router")
			live.Router.Stop()
		}
		if live.Presence != nil {
			live.Presence.Close()
		}
		if live.MessageLimiter != nil {
			live.MessageLimiter.Stop()
		}
		if live.APILimiter != nil {
			live.APILimiter.Stop()
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
