package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. The mutex also
// serializes AcceptRide, which is what makes the accept race safe here.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	riders   map[string]*models.Rider
	captains map[string]*models.Captain
	contacts map[string]*models.TrustedContact
	alerts   map[string]*models.SafetyAlert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		riders:   make(map[string]*models.Rider),
		captains: make(map[string]*models.Captain),
		contacts: make(map[string]*models.TrustedContact),
		alerts:   make(map[string]*models.SafetyAlert),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.RidePending || r.CaptainID != "" {
		return nil, ErrRideTaken
	}
	for _, other := range m.rides {
		if other.CaptainID == captainID && other.Active() {
			return nil, ErrCaptainBusy
		}
	}
	r.CaptainID = captainID
	if err := r.TransitionTo(models.RideAccepted); err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) PendingRides(ctx context.Context) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if r.Status == models.RidePending && r.CaptainID == "" {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.RiderID == riderID && r.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ActiveRideForCaptain(ctx context.Context, captainID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.CaptainID == captainID && r.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CompletedRidesByCaptain(ctx context.Context, captainID string, since time.Time) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if r.CaptainID == captainID && r.Status == models.RideCompleted && !r.CompletedAt.Before(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

func (m *MemoryStore) CreateRider(ctx context.Context, r *models.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.riders {
		if strings.EqualFold(other.Email, r.Email) {
			return ErrEmailExists
		}
	}
	cp := *r
	m.riders[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRider(ctx context.Context, id string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetRiderByEmail(ctx context.Context, email string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.riders {
		if strings.EqualFold(r.Email, email) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateCaptain(ctx context.Context, c *models.Captain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.captains {
		if strings.EqualFold(other.Email, c.Email) {
			return ErrEmailExists
		}
	}
	cp := *c
	m.captains[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCaptain(ctx context.Context, id string) (*models.Captain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.captains[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetCaptainByEmail(ctx context.Context, email string) (*models.Captain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.captains {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SetCaptainOnline(ctx context.Context, id string, online bool, loc models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[id]
	if !ok {
		return ErrNotFound
	}
	c.Online = online
	if !loc.Zero() {
		c.Loc = loc
	}
	c.Updated = time.Now()
	return nil
}

func (m *MemoryStore) CreditCaptain(ctx context.Context, id string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("negative credit %f", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[id]
	if !ok {
		return ErrNotFound
	}
	c.Earnings += amount
	c.Updated = time.Now()
	return nil
}

func (m *MemoryStore) RateCaptain(ctx context.Context, id string, stars int) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("rating %d out of range", stars)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[id]
	if !ok {
		return ErrNotFound
	}
	c.RatingSum += int64(stars)
	c.RatingCount++
	c.Updated = time.Now()
	return nil
}

func (m *MemoryStore) AddContact(ctx context.Context, c *models.TrustedContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListContacts(ctx context.Context, riderID string) ([]*models.TrustedContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.TrustedContact
	for _, c := range m.contacts {
		if c.RiderID == riderID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteContact(ctx context.Context, riderID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	if !ok || c.RiderID != riderID {
		return ErrNotFound
	}
	delete(m.contacts, contactID)
	return nil
}

func (m *MemoryStore) CreateAlert(ctx context.Context, a *models.SafetyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAlert(ctx context.Context, id string) (*models.SafetyAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.Status != models.AlertActive {
		// Matches the Postgres guard: only an active alert resolves.
		return ErrNotFound
	}
	a.Status = status
	a.ResolvedAt = time.Now()
	return nil
}

func (m *MemoryStore) ActiveAlerts(ctx context.Context) ([]*models.SafetyAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.SafetyAlert
	for _, a := range m.alerts {
		if a.Status == models.AlertActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
