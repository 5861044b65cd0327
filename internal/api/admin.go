package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hazyhaar/redflag/internal/auth"
	"github.com/hazyhaar/redflag/internal/export"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/summary"
	"github.com/hazyhaar/redflag/internal/survey"
	"github.com/hazyhaar/redflag/pkg/audit"
)

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := a.auth.AdminLogin(req.Password)
	switch {
	case err == nil:
		jsonResp(w, http.StatusOK, map[string]string{"token": token})
	case errors.Is(err, auth.ErrAdminDisabled):
		jsonError(w, messages.Unauthorized, http.StatusForbidden)
	case errors.Is(err, auth.ErrBadPassword):
		slog.Warn("admin login rejected", "ip", clientIP(r))
		jsonError(w, messages.Unauthorized, http.StatusUnauthorized)
	default:
		slog.Error("admin login", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
	}
}

// DeleteRequest names the pair whose round should be removed.
type DeleteRequest struct {
	UserID      string `json:"user_id"`
	PartnerName string `json:"partner_name"`
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.PartnerName) == "" {
		jsonError(w, messages.InvalidInput, http.StatusBadRequest)
		return
	}
	report, err := audit.Do(r.Context(), a.audit, "delete_session", req, func(ctx context.Context, req DeleteRequest) (survey.DeleteReport, error) {
		return a.survey.DeleteSession(ctx, req.UserID, req.PartnerName)
	})
	switch {
	case err == nil:
		jsonResp(w, http.StatusOK, report)
	case errors.Is(err, survey.ErrSessionNotFound):
		jsonError(w, messages.NotFound, http.StatusNotFound)
	case errors.Is(err, survey.ErrIdentityMismatch):
		jsonError(w, messages.InvalidInput, http.StatusConflict)
	default:
		slog.Error("deleting session", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
	}
}

type recomputeResponse struct {
	Summary summary.Summary `json:"summary"`
	Drifted bool            `json:"drifted"`
}

func (a *API) handleRecompute(w http.ResponseWriter, r *http.Request) {
	resp, err := audit.Do(r.Context(), a.audit, "recompute_summary", struct{}{}, func(ctx context.Context, _ struct{}) (recomputeResponse, error) {
		sum, drifted, err := a.survey.RecomputeSummary(ctx)
		return recomputeResponse{Summary: sum, Drifted: drifted}, err
	})
	if err != nil {
		slog.Error("recomputing summary", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// handleExport streams every finalized round as JSONL. Identifiers are
// anonymized unless raw=1.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	opts := export.Options{Raw: r.URL.Query().Get("raw") == "1"}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.jsonl"`)
	n, err := audit.Do(r.Context(), a.audit, "export", opts, func(ctx context.Context, opts export.Options) (int, error) {
		return a.exporter.Export(ctx, w, opts)
	})
	if err != nil {
		slog.Error("export failed", "error", err, "written", n)
		if n == 0 {
			jsonError(w, messages.Internal, http.StatusInternalServerError)
		}
		return
	}
	slog.Info("export complete", "sessions", n, "raw", opts.Raw)
}
