// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratagate/internal/app/store/actiontokens"
	"github.com/dalemusser/stratagate/internal/app/store/pgtokens"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/authutil"
	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"github.com/dalemusser/stratagate/internal/app/system/mailer"
	"github.com/dalemusser/stratagate/internal/app/system/seeding"
	"github.com/dalemusser/stratagate/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when action tokens live there, to
// PostgreSQL. WAFFLE calls it after configuration is loaded and before
// EnsureSchema and Startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{MongoClient: client, MongoDatabase: db}

	tokens, pg, err := openTokenStore(ctx, appCfg, db)
	if err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, err
	}
	deps.ActionTokens = tokens
	deps.Postgres = pg
	logger.Info("action token store ready", zap.String("backend", appCfg.TokenStore))

	mailCfg := mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}
	if mailCfg.Enabled() {
		deps.Mailer = mailer.New(mailCfg, logger)
		logger.Info("initialized email mailer",
			zap.String("host", appCfg.MailSMTPHost),
			zap.Int("port", appCfg.MailSMTPPort),
		)
	} else {
		logger.Info("no SMTP host configured; status emails are off")
	}

	return deps, nil
}

// openTokenStore picks the action token backend. The memory store is only
// correct for a single instance.
func openTokenStore(ctx context.Context, appCfg AppConfig, db *mongo.Database) (actiontoken.Store, *pgtokens.Store, error) {
	switch appCfg.TokenStore {
	case TokenStoreMemory:
		return actiontoken.NewMemoryStore(), nil, nil
	case TokenStorePostgres:
		pg, err := pgtokens.Open(appCfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres token store: %w", err)
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("ping postgres token store: %w", err)
		}
		return pg, pg, nil
	default:
		return actiontokens.New(db), nil, nil
	}
}

// EnsureSchema attaches validators, reconciles indexes, creates the Postgres
// token table when used, and seeds default data.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Collections and validators first so indexes land on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db, logger); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	if deps.Postgres != nil {
		logger.Info("ensuring postgres token schema")
		if err := deps.Postgres.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure postgres schema", zap.Error(err))
			return err
		}
	}

	admin := seeding.Admin{LoginID: appCfg.SeedAdminLogin, Name: appCfg.SeedAdminName}
	if appCfg.SeedAdminLogin != "" && appCfg.SeedAdminPassword != "" {
		hash, err := authutil.HashPassword(appCfg.SeedAdminPassword)
		if err != nil {
			return fmt.Errorf("hash seed admin password: %w", err)
		}
		admin.PasswordHash = hash
	}

	logger.Info("seeding default data")
	if err := seeding.SeedAll(ctx, db, admin, logger); err != nil {
		logger.Error("failed to seed default data", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
