package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/payments"
	"github.com/abhijeeth-g/boots-backend/internal/rides"
)

const qrSize = 512

// handlePaymentQR renders the captain's UPI payment QR for a completed ride.
// The amount is the final fare, so the QR only exists once the ride ends.
func (s *Server) handlePaymentQR(w http.ResponseWriter, r *http.Request) {
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
	if ride.Status != models.RideCompleted {
		s.respondErr(w, rides.ErrNotCompleted)
		return
	}
	if ride.Payment != models.PayUPI {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "ride is not a UPI ride"})
		return
	}
	captain, err := s.store.GetCaptain(r.Context(), ride.CaptainID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	req := payments.UPIRequest{
		PayeeVPA:  captain.UPIAddress,
		PayeeName: captain.Name,
		Amount:    ride.FinalFare,
		Note:      "BOOTS ride " + ride.ID,
		TxnRef:    ride.ID,
	}
	png, err := req.QRPNG(qrSize)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	link, _ := req.Link()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-UPI-Link", link)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerClaims(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	ride, err := s.rides.ConfirmPayment(r.Context(), claims.Subject, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ride)
}
