// Package geocode resolves addresses against a Nominatim server.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

// Nominatim's usage policy requires an identifying User-Agent.
const userAgent = "boots-backend/1.0"

// ErrNoResult means the query matched nothing, as opposed to a server error.
var ErrNoResult = errors.New("no geocoding result")

type Client struct {
	Endpoint string
	HTTP     *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

// Reverse resolves a coordinate to a display address.
func (c *Client) Reverse(ctx context.Context, loc models.Coord) (string, error) {
	u := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%.6f&lon=%.6f", c.Endpoint, loc.Lat, loc.Lon)
	var out struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("nominatim: %s", out.Error)
	}
	return out.DisplayName, nil
}

// Search geocodes a free-form address, returning the best hit.
func (c *Client) Search(ctx context.Context, query string) (models.Coord, string, error) {
	u := fmt.Sprintf("%s/search?format=jsonv2&limit=1&q=%s", c.Endpoint, url.QueryEscape(query))
	var out []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return models.Coord{}, "", err
	}
	if len(out) == 0 {
		return models.Coord{}, "", fmt.Errorf("%w for %q", ErrNoResult, query)
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return models.Coord{}, "", fmt.Errorf("nominatim bad lat: %w", err)
	}
	lon, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return models.Coord{}, "", fmt.Errorf("nominatim bad lon: %w", err)
	}
	return models.Coord{Lat: lat, Lon: lon}, out[0].DisplayName, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
