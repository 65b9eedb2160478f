package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/rides"
)

type estimateRequest struct {
	Pickup models.Coord `json:"pickup"`
	Drop   models.Coord `json:"drop"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(r, &req); err != nil || req.Pickup.Zero() || req.Drop.Zero() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "pickup and drop are required"})
		return
	}
	est, err := s.rides.EstimateRide(r.Context(), req.Pickup, req.Drop)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, est)
}

type rideRequest struct {
	Pickup  models.Coord         `json:"pickup"`
	Drop    models.Coord         `json:"drop"`
	Payment models.PaymentMethod `json:"payment_method"`
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	var req rideRequest
	if err := decode(r, &req); err != nil || req.Pickup.Zero() || req.Drop.Zero() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "pickup and drop are required"})
		return
	}
	switch req.Payment {
	case models.PayUPI, models.PayCard, models.PayCash:
	case "":
		req.Payment = models.PayCash
	default:
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "unknown payment method"})
		return
	}
	ride, err := s.rides.RequestRide(r.Context(), riderID, req.Pickup, req.Drop, req.Payment)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ride)
}

// handleGetRide serves the ride to its rider or its captain only.
func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerClaims(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	ride, err := s.store.GetRide(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if ride.RiderID != claims.Subject && ride.CaptainID != claims.Subject {
		s.respondErr(w, rides.ErrNotAuthorized)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	ride, err := s.rides.AcceptRide(r.Context(), captainID, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

func (s *Server) handleArrived(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	ride, err := s.rides.MarkArrived(r.Context(), captainID, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	ride, err := s.rides.StartRide(r.Context(), captainID, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	ride, err := s.rides.CompleteRide(r.Context(), captainID, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerClaims(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var req cancelRequest
	_ = decode(r, &req) // body optional
	ride, err := s.rides.CancelRide(r.Context(), claims.Subject, claims.Role, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}

type rateRequest struct {
	Stars int `json:"stars"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	var req rateRequest
	if err := decode(r, &req); err != nil || req.Stars < 1 || req.Stars > 5 {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "stars must be 1..5"})
		return
	}
	ride, err := s.rides.RateRide(r.Context(), riderID, mux.Vars(r)["id"], req.Stars)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}
