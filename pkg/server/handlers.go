package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/auth"
	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/submit"
)

const (
	stateCookie   = "oauth_state"
	sessionCookie = "projectreg_session"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if conn.AppID == "" || conn.AppSecret == "" {
		WriteError(w, r, &submit.ConfigurationError{Missing: conn.Missing()})
		return
	}

	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	redirect := s.deps.PublicURL + "/auth/callback"
	http.Redirect(w, r, s.deps.Auth.AuthorizationURL(conn.AppID, redirect, state), http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		WriteProblem(w, r, http.StatusBadRequest, auth.ErrStateMismatch.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		WriteProblem(w, r, http.StatusBadRequest, "authorization code not found")
		return
	}

	conn, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	sess, err := auth.CompleteLogin(ctx, s.deps.Auth, conn, code)
	if err != nil {
		s.logger.Warn("login failed", "error", err)
		WriteError(w, r, err)
		return
	}
	id := auth.NewState()
	if err := s.deps.Sessions.SaveFor(r.Context(), id, sess); err != nil {
		WriteError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("user logged in", "name", sess.Name, "open_id", sess.OpenID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.ClearFor(r.Context(), sessionID(r)); err != nil {
		WriteError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.CurrentFor(r.Context(), sessionID(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Redacted())
}

// putSettings saves the connection override. An empty or masked appSecret
// keeps the current secret.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var conn config.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if conn.AppSecret == "" || conn.AppSecret == config.Mask(current.AppSecret) {
		conn.AppSecret = current.AppSecret
	}
	if err := s.deps.Sessions.SaveConnection(r.Context(), conn); err != nil {
		WriteError(w, r, err)
		return
	}
	s.logger.Info("connection settings saved", "app_id", conn.AppID, "schedule_table", conn.HasScheduleTable())
	writeJSON(w, http.StatusOK, conn.Redacted())
}

func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.ResetConnection(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Defaults.Redacted())
}

type submissionResponse struct {
	Result *submit.Result `json:"result"`
	// Form is the form to show next: the initial shape after success.
	Form *model.Form `json:"form"`
}

// createSubmission submits the form in the body. Without a schedule table the
// request must carry confirm_without_schedule=true.
func (s *Server) createSubmission(w http.ResponseWriter, r *http.Request) {
	form, err := model.ParseForm(r.Body)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm_without_schedule"))

	result, err := s.deps.Submitter.Submit(r.Context(), submit.Request{
		Connection: conn,
		Form:       form,
		Confirm: func(context.Context) (bool, error) {
			return confirmed, nil
		},
	})
	if err != nil {
		writeErrorResult(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusCreated, submissionResponse{Result: result, Form: form})
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 200)
	}
	subs, err := s.deps.History.ListSubmissions(r.Context(), limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) fields(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connection(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if missing := conn.Missing(); len(missing) > 0 {
		WriteError(w, r, &submit.ConfigurationError{Missing: missing})
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	schema, err := s.deps.Schema.Schema(ctx, conn)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}
