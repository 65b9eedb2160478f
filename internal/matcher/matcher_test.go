package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

type fakeGeo struct{ captains []models.NearbyCaptain }

func (f *fakeGeo) Nearby(lat, lon, radiusM float64, limit int) []models.NearbyCaptain {
	return f.captains
}

type recDisp struct {
	offers []models.RideOffer
	fail   map[string]bool
}

func (r *recDisp) Offer(o models.RideOffer) error {
	if r.fail[o.CaptainID] {
		return errors.New("no session")
	}
	r.offers = append(r.offers, o)
	return nil
}

func pendingRide() *models.Ride {
	return models.NewRide("ride1", "u1", models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0.1, Lon: 0.1}, 5, 18, 117, models.PayUPI)
}

func TestBroadcastOrdersByScore(t *testing.T) {
	g := &fakeGeo{captains: []models.NearbyCaptain{
		{CaptainID: "low", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 4.0, Online: true},
		{CaptainID: "high", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 5.0, Online: true},
	}}
	d := &recDisp{}
	s := &Service{Geo: g, Dispatch: d, DefaultSpeedMps: 10, TopN: 2, RadiusM: 5000}
	offers, err := s.Broadcast(context.Background(), pendingRide())
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	// Equal ETA, so the higher rating sorts first.
	if offers[0].CaptainID != "high" {
		t.Fatalf("expected high first, got %s", offers[0].CaptainID)
	}
	if len(d.offers) != 2 {
		t.Fatalf("offers sent = %d", len(d.offers))
	}
}

func TestBroadcastNoCaptains(t *testing.T) {
	s := &Service{Geo: &fakeGeo{}, Dispatch: &recDisp{}, DefaultSpeedMps: 10, TopN: 2, RadiusM: 5000}
	if _, err := s.Broadcast(context.Background(), pendingRide()); !errors.Is(err, ErrNoCaptains) {
		t.Fatalf("expected ErrNoCaptains, got %v", err)
	}
}

func TestBroadcastSkipsDeadSessions(t *testing.T) {
	g := &fakeGeo{captains: []models.NearbyCaptain{
		{CaptainID: "dead", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 5.0, Online: true},
		{CaptainID: "live", Loc: models.Coord{Lat: 0.01, Lon: 0}, Rating: 4.5, Online: true},
	}}
	d := &recDisp{fail: map[string]bool{"dead": true}}
	s := &Service{Geo: g, Dispatch: d, DefaultSpeedMps: 10, TopN: 2, RadiusM: 5000}
	offers, err := s.Broadcast(context.Background(), pendingRide())
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("scored offers = %d", len(offers))
	}
	if len(d.offers) != 1 || d.offers[0].CaptainID != "live" {
		t.Fatalf("delivered offers = %+v", d.offers)
	}
}

type fixedETA struct{ v float64 }

func (f *fixedETA) EstimateSeconds(from, to models.Coord) (float64, error) { return f.v, nil }

func TestBroadcastUsesETAClient(t *testing.T) {
	g := &fakeGeo{captains: []models.NearbyCaptain{
		{CaptainID: "a", Loc: models.Coord{Lat: 0, Lon: 0}, Rating: 5.0, Online: true},
	}}
	s := &Service{Geo: g, Dispatch: &recDisp{}, ETAClient: &fixedETA{v: 42}, TopN: 1, RadiusM: 5000}
	offers, err := s.Broadcast(context.Background(), pendingRide())
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if offers[0].ETASec != 42 {
		t.Fatalf("eta = %f, want 42", offers[0].ETASec)
	}
}
