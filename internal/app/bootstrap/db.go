// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/studyhub/internal/app/system/indexes"
	"github.com/dalemusser/studyhub/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// EnsureSchema creates the group collections with their JSON-Schema
// validators, then their indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		return fmt.Errorf("collection validators: %w", err)
	}
	return indexes.EnsureAll(ctx, deps.MongoDatabase, logger)
}
