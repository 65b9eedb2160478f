// Package safety manages trusted contacts and ride safety alerts.
package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/storage"
)

const maxContacts = 5

var (
	ErrTooManyContacts = errors.New("trusted contact limit reached")
	ErrMissingPhone    = errors.New("contact phone is required")
)

type Service struct {
	Store storage.SafetyStore
}

func NewService(store storage.SafetyStore) *Service { return &Service{Store: store} }

func (s *Service) AddContact(ctx context.Context, riderID, name, phone, relation string) (*models.TrustedContact, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	existing, err := s.Store.ListContacts(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= maxContacts {
		return nil, fmt.Errorf("%w: max %d", ErrTooManyContacts, maxContacts)
	}
	c := &models.TrustedContact{
		ID:        uuid.NewString(),
		RiderID:   riderID,
		Name:      name,
		Phone:     phone,
		Relation:  relation,
		CreatedAt: time.Now(),
	}
	if err := s.Store.AddContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListContacts(ctx context.Context, riderID string) ([]*models.TrustedContact, error) {
	return s.Store.ListContacts(ctx, riderID)
}

func (s *Service) DeleteContact(ctx context.Context, riderID, contactID string) error {
	return s.Store.DeleteContact(ctx, riderID, contactID)
}

// RaiseAlert records an active alert at the rider's current location,
// optionally tied to a ride.
func (s *Service) RaiseAlert(ctx context.Context, riderID, rideID string, loc models.Coord, message string) (*models.SafetyAlert, error) {
	a := &models.SafetyAlert{
		ID:        uuid.NewString(),
		RiderID:   riderID,
		RideID:    rideID,
		Loc:       loc,
		Message:   message,
		Status:    models.AlertActive,
		CreatedAt: time.Now(),
	}
	if err := s.Store.CreateAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ResolveAlert closes an active alert. Only the rider who raised it may
// resolve it.
func (s *Service) ResolveAlert(ctx context.Context, riderID, alertID string, falseAlarm bool) error {
	a, err := s.Store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if a.RiderID != riderID {
		return storage.ErrNotFound
	}
	status := models.AlertResolved
	if falseAlarm {
		status = models.AlertFalseAlarm
	}
	return s.Store.ResolveAlert(ctx, alertID, status)
}

func (s *Service) ActiveAlerts(ctx context.Context) ([]*models.SafetyAlert, error) {
	return s.Store.ActiveAlerts(ctx)
}
