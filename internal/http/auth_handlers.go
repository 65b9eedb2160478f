package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/verification"
)

type riderSignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Rider   *models.Rider   `json:"rider,omitempty"`
	Captain *models.Captain `json:"captain,omitempty"`
}

func (s *Server) handleRiderSignup(w http.ResponseWriter, r *http.Request) {
	var req riderSignupRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "name, email and a password of at least 8 characters are required"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	rider := &models.Rider{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateRider(r.Context(), rider); err != nil {
		s.respondErr(w, err)
		return
	}
	token, err := s.tokens.Issue(rider.ID, auth.RoleRider)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, Rider: rider})
}

type captainSignupRequest struct {
	Name       string                   `json:"name"`
	Email      string                   `json:"email"`
	Phone      string                   `json:"phone"`
	Password   string                   `json:"password"`
	Vehicle    models.Vehicle           `json:"vehicle"`
	UPIAddress string                   `json:"upi_address"`
	Documents  []verification.Document  `json:"documents"`
}

type captainSignupResponse struct {
	Token        string                    `json:"token"`
	Captain      *models.Captain           `json:"captain"`
	Verification []verification.Result     `json:"verification"`
	Status       models.VerificationStatus `json:"status"`
}

// handleCaptainSignup creates the account whatever the screening outcome;
// a rejected captain can see the per-document reasons and resubmit, but
// cannot accept rides until approved.
func (s *Server) handleCaptainSignup(w http.ResponseWriter, r *http.Request) {
	var req captainSignupRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "name, email and a password of at least 8 characters are required"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	results, verr := s.verifier.Verify(req.Documents)
	status := verification.StatusFor(verr)

	captain := &models.Captain{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Vehicle:      req.Vehicle,
		UPIAddress:   req.UPIAddress,
		Verification: status,
		CreatedAt:    time.Now(),
		Updated:      time.Now(),
	}
	if err := s.store.CreateCaptain(r.Context(), captain); err != nil {
		s.respondErr(w, err)
		return
	}
	token, err := s.tokens.Issue(captain.ID, auth.RoleCaptain)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	code := http.StatusCreated
	if status == models.VerificationRejected {
		code = http.StatusUnprocessableEntity
	}
	respondJSON(w, code, captainSignupResponse{
		Token:        token,
		Captain:      captain,
		Verification: results,
		Status:       status,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	switch req.Role {
	case auth.RoleRider:
		rider, err := s.store.GetRiderByEmail(r.Context(), req.Email)
		if err != nil || auth.CheckPassword(rider.PasswordHash, req.Password) != nil {
			s.respondErr(w, auth.ErrInvalidCredentials)
			return
		}
		token, err := s.tokens.Issue(rider.ID, auth.RoleRider)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, authResponse{Token: token, Rider: rider})
	case auth.RoleCaptain:
		captain, err := s.store.GetCaptainByEmail(r.Context(), req.Email)
		if err != nil || auth.CheckPassword(captain.PasswordHash, req.Password) != nil {
			s.respondErr(w, auth.ErrInvalidCredentials)
			return
		}
		token, err := s.tokens.Issue(captain.ID, auth.RoleCaptain)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, authResponse{Token: token, Captain: captain})
	default:
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "role must be rider or captain"})
	}
}
