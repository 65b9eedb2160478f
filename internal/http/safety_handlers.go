package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
	"github.com/abhijeeth-g/boots-backend/internal/models"
)

type contactRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	var req contactRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	contact, err := s.safety.AddContact(r.Context(), riderID, req.Name, req.Phone, req.Relation)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	contacts, err := s.safety.ListContacts(r.Context(), riderID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	if err := s.safety.DeleteContact(r.Context(), riderID, mux.Vars(r)["id"]); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type alertRequest struct {
	RideID  string       `json:"ride_id"`
	Loc     models.Coord `json:"loc"`
	Message string       `json:"message"`
}

func (s *Server) handleRaiseAlert(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	var req alertRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	alert, err := s.safety.RaiseAlert(r.Context(), riderID, req.RideID, req.Loc, req.Message)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Warn("safety alert raised", "alert_id", alert.ID, "rider_id", riderID, "ride_id", req.RideID)
	respondJSON(w, http.StatusCreated, alert)
}

type resolveRequest struct {
	FalseAlarm bool `json:"false_alarm"`
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	riderID, ok := caller(r, auth.RoleRider)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "rider token required"})
		return
	}
	var req resolveRequest
	_ = decode(r, &req) // body optional
	if err := s.safety.ResolveAlert(r.Context(), riderID, mux.Vars(r)["id"], req.FalseAlarm); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerClaims(r); !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	alerts, err := s.safety.ActiveAlerts(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}
