package eta

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Route holds the fields of an OSRM route we care about.
type Route struct {
	DurationSec float64
	DistanceM   float64
	Geometry    string // encoded polyline for client-side rendering
}

// Route queries OSRM /route between two points.
func (o *OSRMClient) Route(from, to models.Coord) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	resp, err := o.Client.Get(url)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
			Geometry string  `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	r := out.Routes[0]
	return Route{DurationSec: r.Duration, DistanceM: r.Distance, Geometry: r.Geometry}, nil
}

// EstimateSeconds satisfies Client for the matcher.
func (o *OSRMClient) EstimateSeconds(from, to models.Coord) (float64, error) {
	r, err := o.Route(from, to)
	if err != nil {
		return 0, err
	}
	return r.DurationSec, nil
}
