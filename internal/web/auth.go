package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookieName = "rina_session"

func (s *WebState) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	_, hasPassword, _ := s.DB.GetAuthPasswordHash()
	jsonOK(w, map[string]any{
		"has_password": hasPassword,
		"bootstrap":    !hasPassword && (s.Config.WebAuthToken == nil || *s.Config.WebAuthToken == ""),
	})
}

func (s *WebState) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(body.Password) < 8 {
		jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	// Once set, the password can only be changed by an authenticated caller.
	_, hasPassword, _ := s.DB.GetAuthPasswordHash()
	if hasPassword && !s.sessionValid(r) {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.DB.UpsertAuthPasswordHash(string(hash)); err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]string{"status": "ok"})
}

func (s *WebState) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}

	hash, found, _ := s.DB.GetAuthPasswordHash()
	if !found {
		jsonError(w, "no password set", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)); err != nil {
		jsonError(w, "invalid password", http.StatusUnauthorized)
		return
	}

	sessionID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	if err := s.DB.CreateAuthSession(sessionID, expiresAt); err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})

	jsonOK(w, map[string]string{"status": "ok"})
}

func (s *WebState) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		s.DB.DeleteAuthSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	jsonOK(w, map[string]string{"status": "ok"})
}

func (s *WebState) sessionValid(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	valid, err := s.DB.ValidateAuthSession(cookie.Value)
	return err == nil && valid
}
