// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings: ports, TLS, logging, CORS and timeouts for
// connecting to databases.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey         string        // Secret key for signing session cookies (must be strong in production)
	SessionName        string        // Cookie name for sessions (default: stratagate-session)
	SessionDomain      string        // Cookie domain (blank means current host)
	SessionMaxAge      time.Duration // Cookie and tracked-session lifetime (default: 24h)
	SessionIdleTimeout time.Duration // Tracked sessions idle this long are closed (default: 30m)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Action tokens
	ActionTokenTTL     time.Duration // Lifetime of an issued enable/disable token (default: 24h)
	TokenStore         string        // "memory", "mongo" or "postgres"
	PostgresDSN        string        // Required when TokenStore is "postgres"
	TokenPurgeInterval time.Duration // How often expired tokens are deleted (default: 15m)

	// Access gate
	UnknownIdentityPolicy   string        // "allow" or "deny" at login for identities the store does not know
	RevokeAsync             bool          // Revoke sessions after the toggle returns
	RevocationRetryInterval time.Duration // How often failed revocations are retried (default: 1m)

	// Rate limiting
	AdminRateLimit  int           // Admin actions per minute per actor (0 disables)
	AdminRateBurst  int           // Admin action burst
	LoginRateLimit  int           // Login attempts per minute per client IP (0 disables)
	LoginRateBurst  int           // Login attempt burst
	LockoutAttempts int           // Failed passwords before a login id is locked (0 disables)
	LockoutWindow   time.Duration // Window for counting failed passwords
	LockoutDuration time.Duration // How long a locked login id stays locked

	// Store call deadlines
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (blank disables status emails)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string // SMTP username
	MailSMTPPass string // SMTP password
	MailFrom     string // From email address
	MailFromName string // From display name, also used as the app name in messages
	MailContact  string // Contact address printed in account-disabled emails

	// Status notifications; tenant settings can turn these on as well
	NotifyOnDisable bool
	NotifyOnEnable  bool

	// Base URL for links in emails
	BaseURL string

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth  string // Authentication events (login, logout, session checks)
	AuditLogAdmin string // Admin actions (toggles, settings changes)

	// Super admin seeding configuration
	SeedAdminLogin    string // Login ID of the super admin to guarantee on startup (if set)
	SeedAdminName     string // Name of the super admin
	SeedAdminPassword string // Password for a newly created super admin; blank means trust login (dev only)
}
