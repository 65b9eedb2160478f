// Package fare computes ride fares from distance and duration.
package fare

import (
	"math"
	"time"
)

// Params are the pricing knobs, all in rupees.
type Params struct {
	Base        float64
	PerKm       float64
	PerMin      float64
	Minimum     float64
	NightMult   float64
	NightStart  int // hour, inclusive
	NightEnd    int // hour, exclusive
	CaptainPct  float64
}

// Breakdown itemizes a fare so clients can show rather than recompute it.
type Breakdown struct {
	Base       float64 `json:"base"`
	Distance   float64 `json:"distance"`
	Duration   float64 `json:"duration"`
	Surge      float64 `json:"surge_multiplier"`
	Total      float64 `json:"total"`
	CaptainCut float64 `json:"captain_cut"`
}

type Calculator struct {
	p Params
}

func NewCalculator(p Params) *Calculator { return &Calculator{p: p} }

// Estimate prices distanceKm/durationMin at the given time. Totals are
// rounded to whole rupees; the minimum fare applies after the surge.
func (c *Calculator) Estimate(distanceKm, durationMin float64, at time.Time) Breakdown {
	b := Breakdown{
		Base:     c.p.Base,
		Distance: c.p.PerKm * distanceKm,
		Duration: c.p.PerMin * durationMin,
		Surge:    1.0,
	}
	if c.night(at) {
		b.Surge = c.p.NightMult
	}
	total := (b.Base + b.Distance + b.Duration) * b.Surge
	if total < c.p.Minimum {
		total = c.p.Minimum
	}
	b.Total = math.Round(total)
	b.CaptainCut = math.Round(b.Total * c.p.CaptainPct / 100)
	return b
}

// CaptainCut returns the captain's share of an already-priced total. Used
// when the total was fixed at completion time and must not be repriced.
func (c *Calculator) CaptainCut(total float64) float64 {
	return math.Round(total * c.p.CaptainPct / 100)
}

// night reports whether the hour falls in the surcharge window, which wraps
// midnight (e.g. 23..5).
func (c *Calculator) night(at time.Time) bool {
	if c.p.NightMult <= 1 {
		return false
	}
	h := at.Hour()
	if c.p.NightStart <= c.p.NightEnd {
		return h >= c.p.NightStart && h < c.p.NightEnd
	}
	return h >= c.p.NightStart || h < c.p.NightEnd
}
