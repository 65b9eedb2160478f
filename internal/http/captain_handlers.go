package httpapi

import (
	"net/http"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
	"github.com/abhijeeth-g/boots-backend/internal/geo"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/observability"
)

type onlineRequest struct {
	Online bool         `json:"online"`
	Loc    models.Coord `json:"loc"`
}

func (s *Server) handleCaptainOnline(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	var req onlineRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	if req.Online && req.Loc.Zero() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "a location is required to go online"})
		return
	}

	captain, err := s.store.GetCaptain(r.Context(), captainID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	wasOnline := captain.Online

	if err := s.store.SetCaptainOnline(r.Context(), captainID, req.Online, req.Loc); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.Online {
		s.geoIdx.Upsert(models.CaptainLocation{
			CaptainID: captainID,
			Loc:       req.Loc,
			Rating:    captain.Rating(),
			Online:    true,
			Vehicle:   captain.Vehicle.Type,
			Updated:   time.Now(),
		})
		if !wasOnline {
			observability.CaptainsOnline.Inc()
		}
	} else {
		s.geoIdx.Remove(captainID)
		if wasOnline {
			observability.CaptainsOnline.Dec()
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

type locationRequest struct {
	Loc models.Coord `json:"loc"`
}

// handleCaptainLocation ingests a position fix. The fix goes to Kafka when a
// producer is wired (the consumer folds it into Redis) and to the local geo
// index directly otherwise, so matching works in both deployments. A captain
// on an active ride also has the fix relayed to the rider's tracking session.
func (s *Server) handleCaptainLocation(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	var req locationRequest
	if err := decode(r, &req); err != nil || req.Loc.Zero() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "a location is required"})
		return
	}

	captain, err := s.store.GetCaptain(r.Context(), captainID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.store.SetCaptainOnline(r.Context(), captainID, captain.Online, req.Loc); err != nil {
		s.respondErr(w, err)
		return
	}

	loc := models.CaptainLocation{
		CaptainID: captainID,
		Loc:       req.Loc,
		Rating:    captain.Rating(),
		Online:    captain.Online,
		Vehicle:   captain.Vehicle.Type,
		Updated:   time.Now(),
	}
	if s.kafka != nil {
		if err := s.kafka.PublishLocation(loc); err != nil {
			s.logger.Warn("location publish failed", "captain_id", captainID, "error", err)
		}
	} else if captain.Online {
		s.geoIdx.Upsert(loc)
	}

	if ride, err := s.store.ActiveRideForCaptain(r.Context(), captainID); err == nil {
		_ = s.hub.Notify(ride.RiderID, models.RideEvent{
			RideID:     ride.ID,
			Status:     ride.Status,
			CaptainID:  captainID,
			CaptainLoc: &req.Loc,
			At:         time.Now(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePendingRides lists unassigned pending rides within the search radius
// of the captain's last known position. It is the fallback for captains who
// were offline (or missed the socket push) when the ride was broadcast.
func (s *Server) handlePendingRides(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	captain, err := s.store.GetCaptain(r.Context(), captainID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	pending, err := s.store.PendingRides(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	out := make([]*models.Ride, 0, len(pending))
	for _, ride := range pending {
		if !captain.Loc.Zero() {
			distM := geo.Haversine(captain.Loc.Lat, captain.Loc.Lon, ride.Pickup.Lat, ride.Pickup.Lon)
			if distM > s.cfg.SearchRadiusM {
				continue
			}
		}
		out = append(out, ride)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	captainID, ok := caller(r, auth.RoleCaptain)
	if !ok {
		respondJSON(w, http.StatusForbidden, errorBody{Error: "captain token required"})
		return
	}
	summary, err := s.rides.Earnings(r.Context(), captainID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
