// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/authutil"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATAGATE"

// Token store backends.
const (
	TokenStoreMemory   = "memory"
	TokenStoreMongo    = "mongo"
	TokenStorePostgres = "postgres"
)

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: STRATAGATE_MONGO_URI, STRATAGATE_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratagate", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "stratagate-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session lifetime (e.g., 24h, 720h, 30m)"},
	{Name: "session_idle_timeout", Default: "30m", Desc: "Close tracked sessions idle this long"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Action tokens
	{Name: "action_token_ttl", Default: "24h", Desc: "Lifetime of enable/disable action tokens"},
	{Name: "token_store", Default: TokenStoreMongo, Desc: "Action token backend: 'memory', 'mongo' or 'postgres'"},
	{Name: "postgres_dsn", Default: "", Desc: "PostgreSQL DSN for the 'postgres' token store"},
	{Name: "token_purge_interval", Default: "15m", Desc: "How often expired action tokens are purged"},

	// Access gate
	{Name: "unknown_identity_policy", Default: "allow", Desc: "Login verdict for identities the store does not know: 'allow' or 'deny'"},
	{Name: "revoke_async", Default: false, Desc: "Revoke sessions in the background after a disable"},
	{Name: "revocation_retry_interval", Default: "1m", Desc: "How often failed session revocations are retried"},

	// Rate limiting
	{Name: "admin_rate_limit", Default: 60, Desc: "Admin actions per minute per actor (0 disables)"},
	{Name: "admin_rate_burst", Default: 20, Desc: "Admin action burst size"},
	{Name: "login_rate_limit", Default: 30, Desc: "Login attempts per minute per client IP (0 disables)"},
	{Name: "login_rate_burst", Default: 10, Desc: "Login attempt burst size"},
	{Name: "lockout_attempts", Default: 5, Desc: "Failed passwords before a login ID is locked (0 disables)"},
	{Name: "lockout_window", Default: "15m", Desc: "Time window for counting failed passwords"},
	{Name: "lockout_duration", Default: "15m", Desc: "Lockout duration after too many failures"},

	// Store call deadlines
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-document store calls"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for toggles and session revocation"},
	{Name: "timeout_long", Default: "30s", Desc: "Deadline for list pages and batch jobs"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank disables status emails)"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@example.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "StrataGate", Desc: "From display name"},
	{Name: "mail_contact", Default: "", Desc: "Contact address shown in account-disabled emails"},
	{Name: "notify_on_disable", Default: false, Desc: "Email users when their account is disabled"},
	{Name: "notify_on_enable", Default: false, Desc: "Email users when their account is enabled"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "Base URL for email links"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Super admin seeding configuration
	{Name: "seed_admin_login", Default: "", Desc: "Login ID of the super admin to guarantee on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of the seeded super admin"},
	{Name: "seed_admin_password", Default: "", Desc: "Password for a newly created super admin (blank = trust login, dev only)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATAGATE_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:           appValues.String("mongo_uri"),
		MongoDatabase:      appValues.String("mongo_database"),
		MongoMaxPoolSize:   uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize:   uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:         appValues.String("session_key"),
		SessionName:        appValues.String("session_name"),
		SessionDomain:      appValues.String("session_domain"),
		SessionMaxAge:      appValues.Duration("session_max_age", 24*time.Hour),
		SessionIdleTimeout: appValues.Duration("session_idle_timeout", 30*time.Minute),

		CSRFKey: appValues.String("csrf_key"),

		// Action tokens
		ActionTokenTTL:     appValues.Duration("action_token_ttl", 24*time.Hour),
		TokenStore:         appValues.String("token_store"),
		PostgresDSN:        appValues.String("postgres_dsn"),
		TokenPurgeInterval: appValues.Duration("token_purge_interval", 15*time.Minute),

		// Access gate
		UnknownIdentityPolicy:   appValues.String("unknown_identity_policy"),
		RevokeAsync:             appValues.Bool("revoke_async"),
		RevocationRetryInterval: appValues.Duration("revocation_retry_interval", time.Minute),

		// Rate limiting
		AdminRateLimit:  appValues.Int("admin_rate_limit"),
		AdminRateBurst:  appValues.Int("admin_rate_burst"),
		LoginRateLimit:  appValues.Int("login_rate_limit"),
		LoginRateBurst:  appValues.Int("login_rate_burst"),
		LockoutAttempts: appValues.Int("lockout_attempts"),
		LockoutWindow:   appValues.Duration("lockout_window", 15*time.Minute),
		LockoutDuration: appValues.Duration("lockout_duration", 15*time.Minute),

		// Deadlines
		TimeoutShort:  appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium: appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:   appValues.Duration("timeout_long", 30*time.Second),

		// Email/SMTP
		MailSMTPHost:    appValues.String("mail_smtp_host"),
		MailSMTPPort:    appValues.Int("mail_smtp_port"),
		MailSMTPUser:    appValues.String("mail_smtp_user"),
		MailSMTPPass:    appValues.String("mail_smtp_pass"),
		MailFrom:        appValues.String("mail_from"),
		MailFromName:    appValues.String("mail_from_name"),
		MailContact:     appValues.String("mail_contact"),
		NotifyOnDisable: appValues.Bool("notify_on_disable"),
		NotifyOnEnable:  appValues.Bool("notify_on_enable"),

		BaseURL: appValues.String("base_url"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		// Super admin seeding
		SeedAdminLogin:    appValues.String("seed_admin_login"),
		SeedAdminName:     appValues.String("seed_admin_name"),
		SeedAdminPassword: appValues.String("seed_admin_password"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateApp(coreCfg.Env, appCfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}

// validateApp checks the settings that do not need a live backend.
func validateApp(env string, appCfg AppConfig) error {
	var errs []error

	switch appCfg.TokenStore {
	case TokenStoreMemory, TokenStoreMongo:
	case TokenStorePostgres:
		if appCfg.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required when token_store is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("token_store must be memory, mongo or postgres, got %q", appCfg.TokenStore))
	}

	if _, err := accessgate.ParseUnknownIdentityPolicy(appCfg.UnknownIdentityPolicy); err != nil {
		errs = append(errs, err)
	}

	if appCfg.SeedAdminLogin != "" {
		switch {
		case appCfg.SeedAdminPassword != "":
			if err := authutil.ValidatePassword(appCfg.SeedAdminPassword); err != nil {
				errs = append(errs, fmt.Errorf("seed_admin_password: %w", err))
			}
		case env == "prod":
			errs = append(errs, errors.New("seed_admin_password is required in prod"))
		}
	}

	if appCfg.AdminRateLimit < 0 || appCfg.LoginRateLimit < 0 || appCfg.LockoutAttempts < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	return errors.Join(errs...)
}
