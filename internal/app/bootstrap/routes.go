// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"
	"time"

	auditlogfeature "github.com/dalemusser/stratagate/internal/app/features/auditlog"
	errorsfeature "github.com/dalemusser/stratagate/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratagate/internal/app/features/health"
	loginfeature "github.com/dalemusser/stratagate/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratagate/internal/app/features/logout"
	useradminfeature "github.com/dalemusser/stratagate/internal/app/features/useradmin"
	usersettingsfeature "github.com/dalemusser/stratagate/internal/app/features/usersettings"
	"github.com/dalemusser/stratagate/internal/app/store/ratelimit"
	"github.com/dalemusser/stratagate/internal/app/store/revocations"
	"github.com/dalemusser/stratagate/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratagate/internal/app/store/users"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/mailer"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/app/system/requestid"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Paths that skip CSRF. The admin action endpoint and the REST toggles carry
// a one-shot action token bound to the signed-in admin, which serves as the
// nonce.
const (
	actionPath    = "/admin/users/action"
	apiUsersPath  = "/api/users"
	defaultLanded = "/admin/users"
)

// csrfExempt reports whether path is covered by action tokens instead.
func csrfExempt(path string) bool {
	return path == actionPath || strings.HasPrefix(path, apiUsersPath+"/")
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	if limiters == nil {
		limiters = newLimiters(appCfg)
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	auditLogger := newAuditLogger(appCfg, db, logger)
	sessionsStore := sessions.New(db)

	// ─────────────────────────────────────────────────────────────────────────────
	// Access gate
	// ─────────────────────────────────────────────────────────────────────────────
	policy, err := accessgate.ParseUnknownIdentityPolicy(appCfg.UnknownIdentityPolicy)
	if err != nil {
		return nil, err
	}
	tokens := actiontoken.NewIssuer(deps.ActionTokens, appCfg.ActionTokenTTL)
	logger.Info("action tokens", zap.String("store", appCfg.TokenStore), zap.Duration("ttl", tokens.TTL()))
	gate, err := accessgate.New(accessgate.Config{
		Statuses:        userstore.New(db),
		Sessions:        sessionsStore,
		Tokens:          tokens,
		Retry:           revocations.New(db),
		UnknownIdentity: policy,
		AsyncRevocation: appCfg.RevokeAsync,
		Observer:        metrics.GateObserver{},
		Logger:          logger,
	})
	if err != nil {
		logger.Error("access gate init failed", zap.Error(err))
		return nil, err
	}

	// Every cookie-authenticated request is checked against the gate, so a
	// disabled account loses access on its next request.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db, logger))
	sessionMgr.SetSessionGate(gate, func(r *http.Request, userID string, reason accessgate.Reason) {
		auditLogger.SessionRejected(r.Context(), r, userID, reason)
	})
	sessionMgr.SetActivityToucher(sessionsStore)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(requestid.Middleware)
	r.Use(metrics.Instrument)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if logged in and the
	// gate still allows the session.
	r.Use(sessionMgr.LoadSessionUser)

	// CSRF protection with a path-based exemption for action-token routes.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratagate_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			errorsfeature.NewHandler().Forbidden(w, req)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)
	r.Use(func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if csrfExempt(req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			protected.ServeHTTP(w, req)
		})
	})

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	if deps.Postgres != nil {
		healthHandler.Add("postgres", deps.Postgres)
	}
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, defaultLanded, http.StatusSeeOther)
	})

	// Sign in and out
	var lockouts *ratelimit.Store
	if appCfg.LockoutAttempts > 0 {
		lockouts = ratelimit.New(db, appCfg.LockoutAttempts, appCfg.LockoutWindow, appCfg.LockoutDuration)
	}
	loginHandler := loginfeature.NewHandler(db, sessionMgr, gate, limiters.login, lockouts, auditLogger, errLog,
		loginfeature.Options{
			TrustLogin:    coreCfg.Env == "dev",
			SessionTTL:    appCfg.SessionMaxAge,
			DefaultReturn: defaultLanded,
		}, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, sessionsStore, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	// User administration
	userAdmin := useradminfeature.NewHandler(db, gate, tokens, auditLogger, newNotifier(appCfg, deps, logger),
		useradminfeature.Options{
			NotifyOnDisable: appCfg.NotifyOnDisable,
			NotifyOnEnable:  appCfg.NotifyOnEnable,
		}, errLog, logger)
	r.Mount("/admin/users", useradminfeature.Routes(userAdmin, limiters.admin))
	r.Mount(apiUsersPath, useradminfeature.APIRoutes(userAdmin, limiters.admin))

	settingsHandler := usersettingsfeature.NewHandler(db, auditLogger, errLog, logger)
	r.Mount("/admin/settings/users", usersettingsfeature.Routes(settingsHandler))

	r.Mount("/admin/audit", auditlogfeature.Routes(auditlogfeature.NewHandler(db, errLog, logger)))

	errHandler := errorsfeature.NewHandler()
	r.NotFound(errHandler.NotFound)
	r.MethodNotAllowed(errHandler.MethodNotAllowed)

	return r, nil
}

// newNotifier returns the status mailer, or nil when mail is off.
func newNotifier(appCfg AppConfig, deps DBDeps, logger *zap.Logger) useradminfeature.Notifier {
	if deps.Mailer == nil {
		return nil
	}
	return mailer.NewStatusNotifier(deps.Mailer, appCfg.MailFromName, strings.TrimRight(appCfg.BaseURL, "/")+"/login", appCfg.MailContact, logger)
}
