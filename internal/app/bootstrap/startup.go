// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/audit"
	"github.com/dalemusser/stratagate/internal/app/store/revocations"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/auditlog"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/app/system/tasks"
	"github.com/dalemusser/stratagate/internal/app/system/throttle"
	"github.com/dalemusser/stratagate/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served. It applies
// the store deadlines, registers metrics, and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})
	effective := timeouts.Current()
	logger.Info("store deadlines",
		zap.Duration("short", effective.Short),
		zap.Duration("medium", effective.Medium),
		zap.Duration("long", effective.Long))
	metrics.Init()

	limiters = newLimiters(appCfg)
	startTaskRunner(appCfg, deps, newAuditLogger(appCfg, deps.MongoDatabase, logger), logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// rateLimiters are shared between the handlers that use them and the sweep
// job that trims idle buckets.
type rateLimiters struct {
	admin *throttle.Limiter
	login *throttle.Limiter
}

var limiters *rateLimiters

func newLimiters(appCfg AppConfig) *rateLimiters {
	return &rateLimiters{
		admin: throttle.New(float64(appCfg.AdminRateLimit), appCfg.AdminRateBurst),
		login: throttle.New(float64(appCfg.LoginRateLimit), appCfg.LoginRateBurst),
	}
}

func newAuditLogger(appCfg AppConfig, db *mongo.Database, logger *zap.Logger) *auditlog.Logger {
	return auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})
}

const disabledSweepInterval = 15 * time.Minute

// startTaskRunner registers and starts the background jobs.
func startTaskRunner(appCfg AppConfig, deps DBDeps, auditLogger *auditlog.Logger, logger *zap.Logger) {
	db := deps.MongoDatabase
	sessionsStore := sessions.New(db)

	taskRunner = tasks.New(logger)

	// Close sessions idle past the configured threshold (checked every 5 minutes)
	taskRunner.Register(tasks.InactiveSessionCleanupJob(sessionsStore, logger, appCfg.SessionIdleTimeout))

	// The Mongo token collection also has a TTL index; purging here keeps
	// the memory and Postgres backends bounded too.
	taskRunner.Register(tasks.ActionTokenPurgeJob(deps.ActionTokens, logger, appCfg.TokenPurgeInterval))

	taskRunner.Register(tasks.RevocationRetryJob(
		revocations.New(db),
		sessionsStore,
		auditLogger,
		logger,
		appCfg.RevocationRetryInterval,
	))

	users := userstore.New(db)
	taskRunner.Register(tasks.DisabledSessionSweepJob(
		func(ctx context.Context) (tasks.IDIterator, error) {
			cur, err := users.ListByStatus(ctx, true, "")
			if err != nil {
				return nil, err
			}
			return cur, nil
		},
		sessionsStore,
		logger,
		disabledSweepInterval,
	))

	taskRunner.Register(tasks.SweepJob("admin-throttle-sweep", limiters.admin, 10*time.Minute))
	taskRunner.Register(tasks.SweepJob("login-throttle-sweep", limiters.login, 10*time.Minute))

	taskRunner.Start()
	logger.Info("background task runner started", zap.Strings("jobs", taskRunner.Names()))
}
