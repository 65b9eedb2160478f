package geo

import (
	"math"
	"sync"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

// Index is the minimal interface the matcher and handlers need from the
// captain location store.
type Index interface {
	Upsert(loc models.CaptainLocation)
	Remove(captainID string)
	Nearby(lat, lon, radiusM float64, limit int) []models.NearbyCaptain
}

// MemoryIndex is a naive full-scan index. Fine for tests and single-node
// local runs; RedisIndex replaces it in deployments.
type MemoryIndex struct {
	mu       sync.RWMutex
	captains map[string]models.CaptainLocation
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{captains: make(map[string]models.CaptainLocation)}
}

func (g *MemoryIndex) Upsert(loc models.CaptainLocation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loc.Updated = time.Now()
	g.captains[loc.CaptainID] = loc
}

func (g *MemoryIndex) Remove(captainID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.captains, captainID)
}

func (g *MemoryIndex) Nearby(lat, lon, radiusM float64, limit int) []models.NearbyCaptain {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]models.NearbyCaptain, 0, len(g.captains))
	for _, c := range g.captains {
		if !c.Online {
			continue
		}
		dist := Haversine(lat, lon, c.Loc.Lat, c.Loc.Lon)
		if dist > radiusM {
			continue
		}
		arr = append(arr, models.NearbyCaptain{
			CaptainID: c.CaptainID,
			Loc:       c.Loc,
			DistM:     dist,
			Rating:    c.Rating,
			Online:    c.Online,
			Vehicle:   c.Vehicle,
		})
	}
	// partial selection sort for top-N by distance
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].DistM < arr[minIdx].DistM {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	return arr[:n]
}

// Haversine distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
