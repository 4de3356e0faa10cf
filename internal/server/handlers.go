package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tazhate/outlookcal/internal/domain"
	"github.com/tazhate/outlookcal/internal/ics"
)

type syncRequest struct {
	Action  domain.Action         `json:"action"`
	Records []domain.ChangeRecord `json:"records"`
}

type meResponse struct {
	SignedIn    bool   `json:"signedIn"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
	TimeFormat  string `json:"timeFormat,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleIndex is where the sign-in flow lands; the widget itself is
// served separately.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":  "outlookcal",
		"signedIn": s.session() != nil,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	svc := s.session()
	if svc == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, svc.Events())
}

// handleSync receives the widget's data-change callback. Display-only
// actions come through here too and are ignored by the reconciler.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	svc := s.session()
	if svc == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := svc.Apply(r.Context(), req.Action, req.Records); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Events())
}

// handleSave receives the widget's after-event-save callback.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	svc := s.session()
	if svc == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	var record domain.ChangeRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := svc.Save(r.Context(), record); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Events())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	svc := s.session()
	if svc == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	if err := svc.LoadWeek(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := svc.LoadSurrounding(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Events())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser()
	if user == nil {
		writeJSON(w, http.StatusOK, meResponse{SignedIn: false})
		return
	}

	resp := meResponse{
		SignedIn:    true,
		DisplayName: user.DisplayName,
		Email:       user.Email(),
		TimeFormat:  user.MailboxSettings.TimeFormat,
	}
	if svc := s.session(); svc != nil {
		resp.TimeZone = svc.Timezone()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"error": s.reporter.Current()})
}

func (s *Server) handleErrorClear(w http.ResponseWriter, r *http.Request) {
	s.reporter.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	svc := s.session()
	if svc == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	data, err := ics.Export(svc.Events())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	if _, err := w.Write(data); err != nil {
		log.Printf("Write ics: %v", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := newState()

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	http.Redirect(w, r, s.provider.AuthURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	expected := s.state
	s.state = ""
	s.mu.Unlock()

	if expected == "" || r.URL.Query().Get("state") != expected {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	if err := s.provider.Exchange(r.Context(), code); err != nil {
		s.reporter.Report("sign in", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.startSession(r.Context()); err != nil {
		s.reporter.Report("sign in", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession()
	if err := s.provider.SignOut(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
