// Package matcher finds captains for pending rides and pushes them offers.
package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/eta"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/observability"
)

// ErrNoCaptains is returned when no online captain is inside the search
// radius. The ride stays pending; a later location update can still surface
// it through the pending-rides poll.
var ErrNoCaptains = errors.New("no captains available")

type Geo interface {
	Nearby(lat, lon, radiusM float64, limit int) []models.NearbyCaptain
}

type Dispatcher interface {
	Offer(offer models.RideOffer) error
}

type Service struct {
	Geo             Geo
	Dispatch        Dispatcher
	ETAClient       eta.Client // optional OSRM client
	ETACache        *eta.Cache // optional
	DefaultSpeedMps float64
	TopN            int
	RadiusM         float64
	Logger          *slog.Logger
}

// Broadcast scores the captains nearest to the pickup and offers the ride to
// all of them, closest score first. The first captain to call accept wins;
// the store's compare-and-set settles the race, not the matcher.
func (s *Service) Broadcast(ctx context.Context, ride *models.Ride) ([]models.RideOffer, error) {
	start := time.Now()
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	cands := s.Geo.Nearby(ride.Pickup.Lat, ride.Pickup.Lon, s.RadiusM, topN)
	if len(cands) == 0 {
		return nil, ErrNoCaptains
	}

	offers := make([]models.RideOffer, 0, len(cands))
	for _, c := range cands {
		etaSec := s.pickupETA(c.Loc, ride.Pickup)
		offers = append(offers, models.RideOffer{
			RideID:    ride.ID,
			CaptainID: c.CaptainID,
			Pickup:    ride.Pickup,
			Drop:      ride.Drop,
			PickupAdr: ride.PickupAdr,
			DropAdr:   ride.DropAdr,
			Fare:      ride.EstimatedFare,
			ETASec:    etaSec,
			Score:     etaSec + 30.0*(5.0-c.Rating),
		})
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].Score < offers[j].Score })

	sent := 0
	for _, o := range offers {
		if err := s.Dispatch.Offer(o); err != nil {
			// Captains without a live session miss the push; they still see
			// the ride via the pending-rides poll.
			continue
		}
		sent++
		observability.OffersSent.Inc()
	}
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	if s.Logger != nil {
		s.Logger.Info("ride_broadcast", "ride_id", ride.ID, "candidates", len(offers), "offers_sent", sent)
	}
	return offers, nil
}

func (s *Service) pickupETA(from, to models.Coord) float64 {
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(from, to); ok {
			return v
		}
	}
	if s.ETAClient != nil {
		if v, err := s.ETAClient.EstimateSeconds(from, to); err == nil {
			if s.ETACache != nil {
				s.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, s.DefaultSpeedMps)
}
