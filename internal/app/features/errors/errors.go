// internal/app/features/errors/errors.go
package errors

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/requestid"
	"go.uber.org/zap"
)

// ErrorLogger wraps the zap logger for error logging.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

func requestFields(r *http.Request) []zap.Field {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	}
	if id := requestid.From(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

// Log logs an error with the given message and error.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.logger.Error(msg, append([]zap.Field{zap.Error(err)}, requestFields(r)...)...)
}

// LogWithFields logs an error with additional fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	all := append([]zap.Field{zap.Error(err)}, requestFields(r)...)
	e.logger.Error(msg, append(all, fields...)...)
}

// Handler serves the error pages. Browsers get a small HTML page, every
// other client a JSON body.
type Handler struct{}

// NewHandler creates a new error Handler.
func NewHandler() *Handler {
	return &Handler{}
}

type page struct {
	Status  int
	Title   string
	Message string
	Code    string
}

var pageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <main>
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
    <p><a href="/">Home</a></p>
  </main>
</body>
</html>`))

func render(w http.ResponseWriter, r *http.Request, p page) {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		jsonutil.Error(w, p.Status, p.Code)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(p.Status)
	_ = pageTmpl.Execute(w, p)
}

// Forbidden renders the 403 page.
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	render(w, r, page{http.StatusForbidden, "Access Denied", "You do not have permission to view this page.", "forbidden"})
}

// Unauthorized renders the 401 page.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	render(w, r, page{http.StatusUnauthorized, "Unauthorized", "Please sign in to continue.", "unauthorized"})
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	render(w, r, page{http.StatusNotFound, "Not Found", "The page you requested does not exist.", "not_found"})
}

// MethodNotAllowed renders the 405 page.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render(w, r, page{http.StatusMethodNotAllowed, "Method Not Allowed", "That method is not supported here.", "method_not_allowed"})
}

// InternalError renders the 500 page.
func (h *Handler) InternalError(w http.ResponseWriter, r *http.Request) {
	render(w, r, page{http.StatusInternalServerError, "Server Error", "Something went wrong. Please try again.", "internal_error"})
}
