// Package storage owns persistence for rides, accounts and safety records.
// Two implementations exist: Memory for tests and local runs, Postgres for
// deployments. Both guarantee the same accept semantics: exactly one captain
// can win a pending ride.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRideTaken is returned to every captain who loses the accept race.
	ErrRideTaken = errors.New("ride already taken")
	// ErrCaptainBusy is returned when the accepting captain already has an
	// active ride; the check happens inside the store's accept step so two
	// concurrent accepts by the same captain cannot both pass it.
	ErrCaptainBusy = errors.New("captain already on an active ride")
	ErrEmailExists = errors.New("email already registered")
)

type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	UpdateRide(ctx context.Context, r *models.Ride) error

	// AcceptRide atomically assigns captainID to a pending ride. It is the
	// single path from pending to accepted.
	AcceptRide(ctx context.Context, rideID, captainID string) (*models.Ride, error)

	ActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error)
	ActiveRideForCaptain(ctx context.Context, captainID string) (*models.Ride, error)

	// PendingRides lists unassigned pending rides, oldest first, so captains
	// who missed the offer broadcast can still discover them.
	PendingRides(ctx context.Context) ([]*models.Ride, error)
	CompletedRidesByCaptain(ctx context.Context, captainID string, since time.Time) ([]*models.Ride, error)
}

type AccountStore interface {
	CreateRider(ctx context.Context, r *models.Rider) error
	GetRider(ctx context.Context, id string) (*models.Rider, error)
	GetRiderByEmail(ctx context.Context, email string) (*models.Rider, error)

	CreateCaptain(ctx context.Context, c *models.Captain) error
	GetCaptain(ctx context.Context, id string) (*models.Captain, error)
	GetCaptainByEmail(ctx context.Context, email string) (*models.Captain, error)
	SetCaptainOnline(ctx context.Context, id string, online bool, loc models.Coord) error

	// CreditCaptain adds a completed ride's cut to the lifetime total.
	// Implementations must reject negative amounts.
	CreditCaptain(ctx context.Context, id string, amount float64) error

	// RateCaptain updates sum and count together so the average cannot
	// drift from the number of ratings.
	RateCaptain(ctx context.Context, id string, stars int) error
}

type SafetyStore interface {
	AddContact(ctx context.Context, c *models.TrustedContact) error
	ListContacts(ctx context.Context, riderID string) ([]*models.TrustedContact, error)
	DeleteContact(ctx context.Context, riderID, contactID string) error

	CreateAlert(ctx context.Context, a *models.SafetyAlert) error
	GetAlert(ctx context.Context, id string) (*models.SafetyAlert, error)
	ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error
	ActiveAlerts(ctx context.Context) ([]*models.SafetyAlert, error)
}

// Store is the full persistence surface the API wires up.
type Store interface {
	RideStore
	AccountStore
	SafetyStore
}
