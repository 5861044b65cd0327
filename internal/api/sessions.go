package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/redflag/internal/auth"
	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/messages"
	"github.com/hazyhaar/redflag/internal/session"
)

type sessionResponse struct {
	Token  string       `json:"token,omitempty"`
	UserID string       `json:"user_id"`
	View   session.View `json:"view"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	handle, p := a.sessions.Create()
	token, err := a.auth.SessionToken(handle, p.User.ID)
	if err != nil {
		a.sessions.Delete(handle)
		slog.Error("issuing session token", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
		return
	}
	var view session.View
	_ = a.sessions.With(handle, func(p *session.Progress) error {
		view = a.controller.Current(r.Context(), p)
		return nil
	})
	jsonResp(w, http.StatusCreated, sessionResponse{Token: token, UserID: p.User.ID, View: view})
}

// withSession resolves the caller's session token and runs fn under the
// session lock.
func (a *API) withSession(w http.ResponseWriter, r *http.Request, fn func(p *session.Progress) error) bool {
	claims := a.auth.ExtractClaims(r, auth.RoleSession)
	if claims == nil {
		jsonError(w, messages.Unauthorized, http.StatusUnauthorized)
		return false
	}
	err := a.sessions.With(claims.Handle, fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrSessionNotFound):
		jsonError(w, messages.SessionExpired, http.StatusGone)
	default:
		slog.Error("session handler", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
	}
	return false
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	ok := a.withSession(w, r, func(p *session.Progress) error {
		resp = sessionResponse{UserID: p.User.ID, View: a.controller.Current(r.Context(), p)}
		return nil
	})
	if ok {
		jsonResp(w, http.StatusOK, resp)
	}
}

// handleCycle runs one render cycle. The body is the step's input; an empty
// body re-renders the current step.
func (a *API) handleCycle(w http.ResponseWriter, r *http.Request) {
	in, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		jsonError(w, messages.InvalidInput, http.StatusRequestEntityTooLarge)
		return
	}
	if len(bytes.TrimSpace(in)) > 0 && !json.Valid(in) {
		jsonError(w, messages.InvalidInput, http.StatusBadRequest)
		return
	}
	var resp sessionResponse
	ok := a.withSession(w, r, func(p *session.Progress) error {
		resp = sessionResponse{UserID: p.User.ID, View: a.controller.Cycle(r.Context(), p, session.Input(in))}
		return nil
	})
	if ok {
		jsonResp(w, http.StatusOK, resp)
	}
}

func (a *API) handleNewRound(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r, auth.RoleSession)
	if claims == nil {
		jsonError(w, messages.Unauthorized, http.StatusUnauthorized)
		return
	}
	var (
		resp sessionResponse
		lang = catalog.EN
	)
	err := a.sessions.With(claims.Handle, func(p *session.Progress) error {
		lang = p.User.Language
		if err := a.controller.NewRound(p, timeNow()); err != nil {
			return err
		}
		resp = sessionResponse{UserID: p.User.ID, View: a.controller.Current(r.Context(), p)}
		return nil
	})
	switch {
	case err == nil:
		jsonResp(w, http.StatusOK, resp)
	case errors.Is(err, session.ErrNewRoundNotAllowed):
		jsonErrorIn(w, messages.NewRoundLocked, lang, http.StatusConflict)
	case errors.Is(err, session.ErrSessionNotFound):
		jsonError(w, messages.SessionExpired, http.StatusGone)
	default:
		slog.Error("new round", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
	}
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.survey.LoadSummary(r.Context())
	if err != nil {
		slog.Error("loading summary", "error", err)
		jsonError(w, messages.Internal, http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, sum)
}
