// CLAUDE:SUMMARY Core API struct and routes — survey session lifecycle, public summary, admin deletion/recompute/export
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hazyhaar/redflag/internal/auth"
	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/export"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/session"
	"github.com/hazyhaar/redflag/internal/survey"
	"github.com/hazyhaar/redflag/pkg/audit"
	"github.com/hazyhaar/redflag/pkg/trace"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 64 * 1024

var timeNow = time.Now

type API struct {
	sessions   *session.Manager
	controller *session.Controller
	survey     *survey.Service
	exporter   *export.Exporter
	auth       *auth.Auth
	audit      audit.Logger

	limiter      *RateLimiter
	loginLimiter *RateLimiter
}

func New(sessions *session.Manager, controller *session.Controller, svc *survey.Service, exporter *export.Exporter, a *auth.Auth) *API {
	return &API{
		sessions:     sessions,
		controller:   controller,
		survey:       svc,
		exporter:     exporter,
		auth:         a,
		limiter:      NewRateLimiter(240, time.Minute),
		loginLimiter: NewRateLimiter(5, time.Minute),
	}
}

// SetAuditLogger enables the audit trail for admin mutations.
func (a *API) SetAuditLogger(l audit.Logger) {
	a.audit = l
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Survey sessions
	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/current", a.handleCurrent)
	mux.HandleFunc("POST /api/sessions/current/cycle", a.handleCycle)
	mux.HandleFunc("POST /api/sessions/current/new-round", a.handleNewRound)

	// Public statistics
	mux.HandleFunc("GET /api/summary", a.handleSummary)

	// Operators
	mux.HandleFunc("POST /api/admin/login", RateLimitMiddleware(a.loginLimiter, a.handleAdminLogin))
	mux.HandleFunc("DELETE /api/admin/sessions", a.admin(a.handleDeleteSession))
	mux.HandleFunc("POST /api/admin/summary/recompute", a.admin(a.handleRecompute))
	mux.HandleFunc("GET /api/admin/export", a.admin(a.handleExport))
}

// Handler returns the routes wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	var h http.Handler = RateLimitMiddleware(a.limiter, mux.ServeHTTP)
	h = AccessLog(h)
	h = trace.Middleware(h)
	return SecurityHeaders(h)
}

// admin rejects requests without an admin token and tags the context for
// the audit trail.
func (a *API) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.auth.ExtractClaims(r, auth.RoleAdmin) == nil {
			jsonError(w, messages.Unauthorized, http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(audit.WithActor(r.Context(), audit.TransportHTTP, auth.RoleAdmin)))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, messages.InvalidInput, http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, messages.InvalidInput, http.StatusBadRequest)
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes a message key and its English text. Raw internal errors
// never reach the client.
func jsonError(w http.ResponseWriter, key string, status int) {
	jsonErrorIn(w, key, catalog.EN, status)
}

func jsonErrorIn(w http.ResponseWriter, key string, lang catalog.Language, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": key, "message": messages.Text(key, lang)})
}
