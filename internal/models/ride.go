package models

import (
	"errors"
	"fmt"
	"time"
)

type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideAccepted   RideStatus = "accepted"
	RideArrived    RideStatus = "arrived"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// ErrInvalidTransition is returned for any status change the lifecycle does
// not allow. Status writes go through TransitionTo; nothing else mutates
// Status.
var ErrInvalidTransition = errors.New("invalid ride status transition")

// validTransitions is the ride lifecycle. Terminal states have no exits.
var validTransitions = map[RideStatus][]RideStatus{
	RidePending:    {RideAccepted, RideCancelled},
	RideAccepted:   {RideArrived, RideCancelled},
	RideArrived:    {RideInProgress, RideCancelled},
	RideInProgress: {RideCompleted},
	RideCompleted:  {},
	RideCancelled:  {},
}

type PaymentMethod string

const (
	PayUPI  PaymentMethod = "upi"
	PayCard PaymentMethod = "card"
	PayCash PaymentMethod = "cash"
)

type PaymentState string

const (
	PaymentPending PaymentState = "pending"
	PaymentHeld    PaymentState = "held"
	PaymentPaid    PaymentState = "paid"
	PaymentVoided  PaymentState = "voided"
)

type Ride struct {
	ID        string     `json:"id"`
	RiderID   string     `json:"rider_id"`
	CaptainID string     `json:"captain_id,omitempty"`
	Status    RideStatus `json:"status"`

	Pickup    Coord  `json:"pickup"`
	Drop      Coord  `json:"drop"`
	PickupAdr string `json:"pickup_address,omitempty"`
	DropAdr   string `json:"drop_address,omitempty"`

	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`

	EstimatedFare float64 `json:"estimated_fare"`
	FinalFare     float64 `json:"final_fare,omitempty"`

	Payment       PaymentMethod `json:"payment_method"`
	PaymentState  PaymentState  `json:"payment_state"`
	PaymentRef    string        `json:"-"` // stripe payment intent id for card rides
	CaptainRating int           `json:"captain_rating,omitempty"`

	CancelledBy  string `json:"cancelled_by,omitempty"` // rider or captain
	CancelReason string `json:"cancel_reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	AcceptedAt  time.Time `json:"accepted_at,omitempty"`
	ArrivedAt   time.Time `json:"arrived_at,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	CancelledAt time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRide creates a pending ride. The captain is assigned later, when one
// accepts.
func NewRide(id, riderID string, pickup, drop Coord, distanceKm, durationMin, fare float64, method PaymentMethod) *Ride {
	now := time.Now()
	return &Ride{
		ID:            id,
		RiderID:       riderID,
		Status:        RidePending,
		Pickup:        pickup,
		Drop:          drop,
		DistanceKm:    distanceKm,
		DurationMin:   durationMin,
		EstimatedFare: fare,
		Payment:       method,
		PaymentState:  PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *Ride) CanTransitionTo(next RideStatus) bool {
	for _, s := range validTransitions[r.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the ride to next, recording the phase timestamp.
func (r *Ride) TransitionTo(next RideStatus) error {
	if !r.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	now := time.Now()
	r.Status = next
	r.UpdatedAt = now
	switch next {
	case RideAccepted:
		r.AcceptedAt = now
	case RideArrived:
		r.ArrivedAt = now
	case RideInProgress:
		r.StartedAt = now
	case RideCompleted:
		r.CompletedAt = now
	case RideCancelled:
		r.CancelledAt = now
	}
	return nil
}

// Terminal reports whether the ride can no longer change state.
func (r *Ride) Terminal() bool {
	return r.Status == RideCompleted || r.Status == RideCancelled
}

// Active reports whether the ride still occupies the rider and captain.
func (r *Ride) Active() bool { return !r.Terminal() }

// ActualDurationMin is the wall-clock trip time once the ride has started.
// Falls back to the estimate before pickup.
func (r *Ride) ActualDurationMin() float64 {
	if r.StartedAt.IsZero() {
		return r.DurationMin
	}
	end := r.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt).Minutes()
}
