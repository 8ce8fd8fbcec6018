package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/session"
)

// AuthHandler exposes the session manager to the local UI process.
type AuthHandler struct {
	manager *session.Manager
}

func NewAuthHandler(manager *session.Manager) *AuthHandler {
	return &AuthHandler{manager: manager}
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if credentials.Username == "" || credentials.Password == "" {
		sendJSONError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := h.manager.Login(r.Context(), credentials.Username, credentials.Password); err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			sendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.FromContext(r.Context()).Error("Login failed", "error", err)
		sendJSONError(w, "Login failed, backend unreachable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": h.manager.State().String()})
}

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var profile session.RegisterProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if profile.Username == "" || profile.Password == "" {
		sendJSONError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := h.manager.Register(r.Context(), profile); err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			sendJSONError(w, "Registration rejected", http.StatusConflict)
			return
		}
		logger.FromContext(r.Context()).Error("Registration failed", "error", err)
		sendJSONError(w, "Registration failed, backend unreachable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"state": h.manager.State().String()})
}

func (h *AuthHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  h.manager.State().String(),
		"hasPin": h.manager.HasPin(),
	})
}

func (h *AuthHandler) SavePinHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Pin) < 4 {
		sendJSONError(w, "PIN must be at least 4 digits", http.StatusBadRequest)
		return
	}

	if err := h.manager.SavePin(body.Pin); err != nil {
		logger.FromContext(r.Context()).Error("Failed to save PIN", "error", err)
		sendJSONError(w, "Failed to save PIN", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.manager.State().String()})
}

func (h *AuthHandler) UnlockPinHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ok, err := h.manager.UnlockWithPin(body.Pin)
	if err != nil {
		if errors.Is(err, session.ErrNoPinConfigured) {
			sendJSONError(w, "No PIN configured", http.StatusConflict)
			return
		}
		logger.FromContext(r.Context()).Error("PIN unlock failed", "error", err)
		sendJSONError(w, "Unlock failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		sendJSONError(w, "Incorrect PIN", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.manager.State().String()})
}

func (h *AuthHandler) UnlockBiometricHandler(w http.ResponseWriter, r *http.Request) {
	ok, err := h.manager.UnlockWithBiometric(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("Biometric challenge failed", "error", err)
	}
	// Failure or cancellation leaves the session locked; PIN remains
	// the fallback, so this is not an error status.
	writeJSON(w, http.StatusOK, map[string]any{
		"unlocked": ok,
		"state":    h.manager.State().String(),
	})
}

func (h *AuthHandler) LockHandler(w http.ResponseWriter, r *http.Request) {
	h.manager.Lock()
	writeJSON(w, http.StatusOK, map[string]string{"state": h.manager.State().String()})
}

func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.manager.Logout()
	w.WriteHeader(http.StatusNoContent)
}
