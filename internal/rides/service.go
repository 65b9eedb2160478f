// Package rides orchestrates the ride lifecycle: estimation, request,
// accept, progress and settlement. Every status write goes through the
// models.Ride state machine; the accept race is settled by the store.
package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abhijeeth-g/boots-backend/internal/eta"
	"github.com/abhijeeth-g/boots-backend/internal/fare"
	"github.com/abhijeeth-g/boots-backend/internal/geo"
	"github.com/abhijeeth-g/boots-backend/internal/matcher"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/observability"
	"github.com/abhijeeth-g/boots-backend/internal/storage"
)

var (
	ErrActiveRide    = errors.New("an active ride already exists")
	ErrNotAuthorized = errors.New("not authorized for this ride")
	ErrNotVerified   = errors.New("captain is not verified")
	ErrAlreadyRated  = errors.New("ride already rated")
	ErrNotCompleted  = errors.New("ride is not completed")
)

// RoutePlanner is the optional OSRM-backed route source.
type RoutePlanner interface {
	Route(from, to models.Coord) (eta.Route, error)
}

// Geocoder resolves coordinates to display addresses, best-effort.
type Geocoder interface {
	Reverse(ctx context.Context, loc models.Coord) (string, error)
}

// Notifier pushes ride events to the rider's tracking session.
type Notifier interface {
	Notify(riderID string, ev models.RideEvent) error
}

// CardGateway is the card hold/capture/cancel flow (Stripe in production).
type CardGateway interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string, amount int64) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

type Service struct {
	Store    storage.Store
	Fare     *fare.Calculator
	Matcher  *matcher.Service
	Notify   Notifier
	Planner  RoutePlanner // optional
	Geocode  Geocoder     // optional
	Cards    CardGateway  // optional; card rides fail without it
	SpeedMps float64
	Logger   *slog.Logger
}

// Estimate is the priced route preview shown before requesting.
type Estimate struct {
	Pickup      models.Coord   `json:"pickup"`
	Drop        models.Coord   `json:"drop"`
	PickupAdr   string         `json:"pickup_address,omitempty"`
	DropAdr     string         `json:"drop_address,omitempty"`
	DistanceKm  float64        `json:"distance_km"`
	DurationMin float64        `json:"duration_min"`
	Fare        fare.Breakdown `json:"fare"`
	Geometry    string         `json:"geometry,omitempty"`
}

// EstimateRide prices a trip. OSRM supplies road distance and duration when
// configured; otherwise straight-line distance over the default speed.
func (s *Service) EstimateRide(ctx context.Context, pickup, drop models.Coord) (*Estimate, error) {
	est := &Estimate{Pickup: pickup, Drop: drop}
	if s.Planner != nil {
		if r, err := s.Planner.Route(pickup, drop); err == nil {
			est.DistanceKm = r.DistanceM / 1000
			est.DurationMin = r.DurationSec / 60
			est.Geometry = r.Geometry
		}
	}
	if est.DistanceKm == 0 {
		distM := geo.Haversine(pickup.Lat, pickup.Lon, drop.Lat, drop.Lon)
		est.DistanceKm = distM / 1000
		est.DurationMin = eta.EstimateSeconds(pickup, drop, s.SpeedMps) / 60
	}
	est.Fare = s.Fare.Estimate(est.DistanceKm, est.DurationMin, time.Now())

	// Addresses are cosmetic; a geocoder outage must not block the estimate.
	if s.Geocode != nil {
		if adr, err := s.Geocode.Reverse(ctx, pickup); err == nil {
			est.PickupAdr = adr
		}
		if adr, err := s.Geocode.Reverse(ctx, drop); err == nil {
			est.DropAdr = adr
		}
	}
	return est, nil
}

// RequestRide creates a pending ride and broadcasts it to nearby captains.
// A rider can have at most one active ride. ErrNoCaptains does not fail the
// request; the ride stays pending and visible to captains coming online.
func (s *Service) RequestRide(ctx context.Context, riderID string, pickup, drop models.Coord, method models.PaymentMethod) (*models.Ride, error) {
	if _, err := s.Store.ActiveRideForRider(ctx, riderID); err == nil {
		return nil, ErrActiveRide
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	est, err := s.EstimateRide(ctx, pickup, drop)
	if err != nil {
		return nil, err
	}

	ride := models.NewRide(uuid.NewString(), riderID, pickup, drop,
		est.DistanceKm, est.DurationMin, est.Fare.Total, method)
	ride.PickupAdr = est.PickupAdr
	ride.DropAdr = est.DropAdr

	if method == models.PayCard {
		if s.Cards == nil {
			return nil, fmt.Errorf("card payments not configured")
		}
		ref, err := s.Cards.Hold(ctx, toPaise(est.Fare.Total), "inr", riderID)
		if err != nil {
			return nil, fmt.Errorf("card hold: %w", err)
		}
		ride.PaymentRef = ref
		ride.PaymentState = models.PaymentHeld
	}

	if err := s.Store.CreateRide(ctx, ride); err != nil {
		// No ride exists to release the hold through later.
		if ride.PaymentState == models.PaymentHeld {
			if cerr := s.Cards.Cancel(ctx, ride.PaymentRef); cerr != nil && s.Logger != nil {
				s.Logger.Error("card hold release failed", "payment_ref", ride.PaymentRef, "error", cerr)
			}
		}
		return nil, err
	}
	observability.RidesRequested.Inc()

	if _, err := s.Matcher.Broadcast(ctx, ride); err != nil && !errors.Is(err, matcher.ErrNoCaptains) {
		return nil, err
	}
	return ride, nil
}

// AcceptRide is the captain side of the broadcast. The store's
// compare-and-set picks exactly one winner; everyone else gets ErrRideTaken.
func (s *Service) AcceptRide(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	captain, err := s.Store.GetCaptain(ctx, captainID)
	if err != nil {
		return nil, err
	}
	if captain.Verification != models.VerificationApproved {
		return nil, ErrNotVerified
	}
	// The one-active-ride rule for captains is enforced inside the store's
	// accept step, alongside the pending/unassigned check, so two concurrent
	// accepts by the same captain cannot both slip past it.
	ride, err := s.Store.AcceptRide(ctx, rideID, captainID)
	if err != nil {
		if errors.Is(err, storage.ErrRideTaken) {
			observability.AcceptConflicts.Inc()
		}
		return nil, err
	}
	s.notify(ride, &captain.Loc)
	return ride, nil
}

// MarkArrived records that the captain reached the pickup point.
func (s *Service) MarkArrived(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	return s.advance(ctx, captainID, rideID, models.RideArrived)
}

// StartRide begins the trip once the rider is on board.
func (s *Service) StartRide(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	return s.advance(ctx, captainID, rideID, models.RideInProgress)
}

// CompleteRide finishes the trip: reprices with actual duration, settles the
// payment and credits the captain's cut.
func (s *Service) CompleteRide(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	ride, err := s.authorizedRide(ctx, captainID, rideID)
	if err != nil {
		return nil, err
	}
	if err := ride.TransitionTo(models.RideCompleted); err != nil {
		return nil, err
	}

	final := s.Fare.Estimate(ride.DistanceKm, ride.ActualDurationMin(), ride.CompletedAt)
	ride.FinalFare = final.Total

	switch ride.Payment {
	case models.PayCard:
		if s.Cards != nil && ride.PaymentRef != "" {
			if err := s.Cards.Capture(ctx, ride.PaymentRef, toPaise(final.Total)); err != nil {
				return nil, fmt.Errorf("card capture: %w", err)
			}
			ride.PaymentState = models.PaymentPaid
		}
	default:
		// UPI and cash settle out of band; confirmation flips the state.
		ride.PaymentState = models.PaymentPending
	}

	if err := s.Store.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	if err := s.Store.CreditCaptain(ctx, captainID, final.CaptainCut); err != nil {
		return nil, err
	}
	observability.RidesCompleted.Inc()
	s.notify(ride, nil)
	return ride, nil
}

// CancelRide is allowed to the ride's rider or captain while the trip has
// not started. A held card payment is released.
func (s *Service) CancelRide(ctx context.Context, actorID, role, rideID, reason string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch role {
	case "rider":
		if ride.RiderID != actorID {
			return nil, ErrNotAuthorized
		}
	case "captain":
		if ride.CaptainID != actorID {
			return nil, ErrNotAuthorized
		}
	default:
		return nil, ErrNotAuthorized
	}
	if err := ride.TransitionTo(models.RideCancelled); err != nil {
		return nil, err
	}
	ride.CancelledBy = role
	ride.CancelReason = reason
	if ride.PaymentState == models.PaymentHeld && s.Cards != nil && ride.PaymentRef != "" {
		if err := s.Cards.Cancel(ctx, ride.PaymentRef); err == nil {
			ride.PaymentState = models.PaymentVoided
		}
	}
	if err := s.Store.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesCancelled.Inc()
	s.notify(ride, nil)
	return ride, nil
}

// RateRide records the rider's 1..5 rating of the captain, once.
func (s *Service) RateRide(ctx context.Context, riderID, rideID string, stars int) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != riderID {
		return nil, ErrNotAuthorized
	}
	if ride.Status != models.RideCompleted {
		return nil, ErrNotCompleted
	}
	if ride.CaptainRating != 0 {
		return nil, ErrAlreadyRated
	}
	if err := s.Store.RateCaptain(ctx, ride.CaptainID, stars); err != nil {
		return nil, err
	}
	ride.CaptainRating = stars
	ride.UpdatedAt = time.Now()
	if err := s.Store.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// ConfirmPayment marks an out-of-band UPI or cash transfer as settled. Both
// parties of the ride may confirm.
func (s *Service) ConfirmPayment(ctx context.Context, actorID, rideID string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != actorID && ride.CaptainID != actorID {
		return nil, ErrNotAuthorized
	}
	if ride.Status != models.RideCompleted {
		return nil, ErrNotCompleted
	}
	ride.PaymentState = models.PaymentPaid
	ride.UpdatedAt = time.Now()
	if err := s.Store.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// EarningsSummary is the captain dashboard breakdown, derived from completed
// rides rather than a mutable counter.
type EarningsSummary struct {
	Today     Period  `json:"today"`
	Week      Period  `json:"week"`
	Lifetime  float64 `json:"lifetime"`
	Rating    float64 `json:"rating"`
	RideCount int64   `json:"lifetime_rides"`
}

type Period struct {
	Rides  int     `json:"rides"`
	Amount float64 `json:"amount"`
}

// Earnings derives every figure from completed rides, so the breakdown can
// never drift from the rides that produced it.
func (s *Service) Earnings(ctx context.Context, captainID string) (*EarningsSummary, error) {
	captain, err := s.Store.GetCaptain(ctx, captainID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))

	rides, err := s.Store.CompletedRidesByCaptain(ctx, captainID, time.Time{})
	if err != nil {
		return nil, err
	}
	sum := &EarningsSummary{Rating: captain.Rating()}
	for _, r := range rides {
		// FinalFare was fixed at completion; repricing with current params
		// would diverge from what was actually credited.
		cut := s.Fare.CaptainCut(r.FinalFare)
		sum.RideCount++
		sum.Lifetime += cut
		if !r.CompletedAt.Before(weekStart) {
			sum.Week.Rides++
			sum.Week.Amount += cut
		}
		if !r.CompletedAt.Before(dayStart) {
			sum.Today.Rides++
			sum.Today.Amount += cut
		}
	}
	return sum, nil
}

func (s *Service) advance(ctx context.Context, captainID, rideID string, next models.RideStatus) (*models.Ride, error) {
	ride, err := s.authorizedRide(ctx, captainID, rideID)
	if err != nil {
		return nil, err
	}
	if err := ride.TransitionTo(next); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateRide(ctx, ride); err != nil {
		return nil, err
	}
	s.notify(ride, nil)
	return ride, nil
}

func (s *Service) authorizedRide(ctx context.Context, captainID, rideID string) (*models.Ride, error) {
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.CaptainID != captainID {
		return nil, ErrNotAuthorized
	}
	return ride, nil
}

func (s *Service) notify(ride *models.Ride, captainLoc *models.Coord) {
	if s.Notify == nil {
		return
	}
	ev := models.RideEvent{
		RideID:     ride.ID,
		Status:     ride.Status,
		CaptainID:  ride.CaptainID,
		CaptainLoc: captainLoc,
		At:         time.Now(),
	}
	if err := s.Notify.Notify(ride.RiderID, ev); err != nil && s.Logger != nil {
		s.Logger.Debug("rider notify skipped", "ride_id", ride.ID, "error", err)
	}
}

func toPaise(rupees float64) int64 { return int64(rupees * 100) }
