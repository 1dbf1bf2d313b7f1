package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
)

type credentials struct {
	UserID   string `json:"userid"`
	Password string `json:"password"`
	TeamID   string `json:"teamid"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.UserID == "" || body.Password == "" || body.TeamID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := s.accounts.Signup(body.UserID, body.Password, body.TeamID); err != nil {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	s.logger.Info("user signed up", "user_id", body.UserID, "team_id", body.TeamID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"user_id": body.UserID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.UserID == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing userid or password")
		return
	}

	token, profile, err := s.accounts.Login(body.UserID, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   token,
		"user_id": profile.UserID,
		"team_id": profile.TeamID,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.accounts.Profile(bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":       profile,
		"conversations": []any{},
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.accounts.UpdateProfile(bearerToken(r), body)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}
