// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratagate/internal/app/store/audit"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/network"
	"github.com/dalemusser/stratagate/internal/app/system/requestid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (login, logout, session checks).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for admin action events (toggles, settings changes).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Logger writes audit events to MongoDB and zap according to Config.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// oid converts a hex id, returning nil when it is not one.
func oid(hex string) *primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil
	}
	return &id
}

func fromRequest(r *http.Request, ev audit.Event) audit.Event {
	if r == nil {
		return ev
	}
	ev.IP = network.GetClientIP(r)
	ev.UserAgent = r.UserAgent()
	if id := requestid.From(r.Context()); id != "" {
		if ev.Details == nil {
			ev.Details = map[string]string{}
		}
		ev.Details["request_id"] = id
	}
	return ev
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, authMethod, loginID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"auth_method": authMethod,
			"login_id":    loginID,
		},
	}))
}

// LoginFailedUserNotFound logs a failed login due to user not found.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, r *http.Request, attemptedLoginID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_login_id": attemptedLoginID},
	}))
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, userID primitive.ObjectID, loginID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		FailureReason: "wrong password",
		Details:       map[string]string{"login_id": loginID},
	}))
}

// LoginDenied logs a login turned away by the access gate after the
// credentials checked out.
func (l *Logger) LoginDenied(ctx context.Context, r *http.Request, userID primitive.ObjectID, loginID string, reason accessgate.Reason) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginDenied,
		UserID:        &userID,
		FailureReason: string(reason),
		Details:       map[string]string{"login_id": loginID},
	}))
}

// LoginRateLimited logs a login attempt rejected by the rate limiter.
func (l *Logger) LoginRateLimited(ctx context.Context, r *http.Request, loginID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginRateLimited,
		FailureReason: "rate limited",
		Details:       map[string]string{"attempted_login_id": loginID},
	}))
}

// Logout logs a user logout.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    oid(userID),
		Success:   true,
	}))
}

// SessionRejected logs an established session rejected by the access gate.
func (l *Logger) SessionRejected(ctx context.Context, r *http.Request, userID string, reason accessgate.Reason) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventSessionRejected,
		UserID:        oid(userID),
		FailureReason: string(reason),
	}))
}

// --- Admin Events ---

// UserToggled logs a successful enable or disable.
func (l *Logger) UserToggled(ctx context.Context, r *http.Request, actorID string, res accessgate.ToggleResult) {
	eventType := audit.EventUserEnabled
	if res.Action.Disables() {
		eventType = audit.EventUserDisabled
	}
	details := map[string]string{
		"changed":          strconv.FormatBool(res.Changed),
		"sessions_revoked": strconv.FormatInt(res.SessionsRevoked, 10),
	}
	if w := res.Warning(); w != "" {
		details["warning"] = w
	}
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		UserID:    oid(res.Identity.ID),
		ActorID:   oid(actorID),
		Success:   true,
		Details:   details,
	}))
}

// ToggleRejected logs a toggle the access gate refused.
func (l *Logger) ToggleRejected(ctx context.Context, r *http.Request, actorID, targetID string, action accessgate.Action, kind string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventToggleRejected,
		UserID:        oid(targetID),
		ActorID:       oid(actorID),
		FailureReason: kind,
		Details:       map[string]string{"action": string(action)},
	}))
}

// RevocationFailed logs a session revocation that did not complete.
func (l *Logger) RevocationFailed(ctx context.Context, userID string, attempts int, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAdmin,
		EventType:     audit.EventSessionRevocationFailed,
		UserID:        oid(userID),
		FailureReason: reason,
		Details:       map[string]string{"attempts": strconv.Itoa(attempts)},
	})
}

// RevocationRetried logs a queued revocation that finally succeeded.
func (l *Logger) RevocationRetried(ctx context.Context, userID string, attempts int, revoked int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSessionRevocationRetry,
		UserID:    oid(userID),
		Success:   true,
		Details: map[string]string{
			"attempts":         strconv.Itoa(attempts),
			"sessions_revoked": strconv.FormatInt(revoked, 10),
		},
	})
}

// SettingsUpdated logs a change to the user list settings of a tenant.
func (l *Logger) SettingsUpdated(ctx context.Context, r *http.Request, actorID, tenantID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSettingsUpdated,
		ActorID:   oid(actorID),
		Success:   true,
		Details:   map[string]string{"tenant_id": tenantID},
	}))
}
