package eta

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	a := models.Coord{Lat: 1, Lon: 2}
	b := models.Coord{Lat: 3, Lon: 4}
	c.Set(a, b, 120)
	if v, ok := c.Get(a, b); !ok || v != 120 {
		t.Fatalf("expected hit 120, got %f %v", v, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestNaiveEstimateUsesDefaultSpeed(t *testing.T) {
	from := models.Coord{Lat: 0, Lon: 0}
	to := models.Coord{Lat: 0, Lon: 0.01} // ~1113 m at the equator
	v := EstimateSeconds(from, to, 0)
	if v < 100 || v > 200 {
		t.Fatalf("eta %f out of expected range", v)
	}
}

func TestOSRMClientParsesRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"duration":312.5,"distance":4200.1,"geometry":"abc"}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	route, err := c.Route(models.Coord{Lat: 12.9, Lon: 77.6}, models.Coord{Lat: 12.8, Lon: 77.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.DurationSec != 312.5 || route.DistanceM != 4200.1 || route.Geometry != "abc" {
		t.Fatalf("bad route: %+v", route)
	}
}

func TestOSRMClientRejectsNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	if _, err := c.EstimateSeconds(models.Coord{}, models.Coord{}); err == nil {
		t.Fatal("expected error for NoRoute")
	}
}
