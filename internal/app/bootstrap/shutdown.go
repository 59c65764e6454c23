// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratagate/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown is invoked during WAFFLE's shutdown phase, after the HTTP server
// has stopped accepting requests and in-flight ones have drained or timed
// out. The context carries the shutdown deadline.
//
// Errors are logged by WAFFLE but do not block exit; the first one is
// returned.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	// Stop background jobs first; the revocation retry job still writes to Mongo.
	// One last retry pass runs so queued revocations are not left for the
	// next process.
	if taskRunner != nil {
		logger.Info("stopping background task runner")
		if err := taskRunner.Stop(ctx); err != nil {
			logger.Warn("background task runner did not stop cleanly", zap.Error(err))
			keep(err)
		}
		if err := taskRunner.RunOnce(ctx, tasks.RevocationRetryJobName); err != nil {
			logger.Warn("final revocation retry failed", zap.Error(err))
		}
	}

	if deps.Postgres != nil {
		logger.Info("closing postgres token store")
		if err := deps.Postgres.Close(); err != nil {
			logger.Error("postgres close failed", zap.Error(err))
			keep(err)
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			keep(err)
		}
	}

	return firstErr
}
