package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Zero reports whether the coordinate was never set. (0,0) sits in the
// Atlantic, far outside any service area, so it doubles as the sentinel.
func (c Coord) Zero() bool { return c.Lat == 0 && c.Lon == 0 }

type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Plate string `json:"plate"`
	Type  string `json:"type"` // bike, auto, car
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Captain is the driver-side account. The rating is stored as sum+count so
// the average can never drift from the number of ratings that produced it.
// Earnings holds the lifetime total credited on ride completion; period
// breakdowns are always derived from completed rides.
type Captain struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	Phone        string             `json:"phone"`
	PasswordHash string             `json:"-"`
	Vehicle      Vehicle            `json:"vehicle"`
	UPIAddress   string             `json:"upi_address"`
	Online       bool               `json:"online"`
	Loc          Coord              `json:"loc"`
	RatingSum    int64              `json:"-"`
	RatingCount  int64              `json:"rating_count"`
	Earnings     float64            `json:"earnings"`
	Verification VerificationStatus `json:"verification"`
	CreatedAt    time.Time          `json:"created_at"`
	Updated      time.Time          `json:"updated"`
}

// Rating returns the average rating, 0 when unrated.
func (c *Captain) Rating() float64 {
	if c.RatingCount == 0 {
		return 0
	}
	return float64(c.RatingSum) / float64(c.RatingCount)
}

type Rider struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CaptainLocation is the shape published to Kafka and folded into the geo
// index by the consumer.
type CaptainLocation struct {
	CaptainID string    `json:"captain_id"`
	Loc       Coord     `json:"loc"`
	Rating    float64   `json:"rating"`
	Online    bool      `json:"online"`
	Vehicle   string    `json:"vehicle"`
	Updated   time.Time `json:"updated"`
}

// NearbyCaptain is a geo index query result.
type NearbyCaptain struct {
	CaptainID string  `json:"captain_id"`
	Loc       Coord   `json:"loc"`
	DistM     float64 `json:"dist_m"`
	Rating    float64 `json:"rating"`
	Online    bool    `json:"online"`
	Vehicle   string  `json:"vehicle"`
}

// RideOffer is pushed to a captain over the websocket when a pending ride
// lands in their radius.
type RideOffer struct {
	RideID    string  `json:"ride_id"`
	CaptainID string  `json:"captain_id"`
	Pickup    Coord   `json:"pickup"`
	Drop      Coord   `json:"drop"`
	PickupAdr string  `json:"pickup_address,omitempty"`
	DropAdr   string  `json:"drop_address,omitempty"`
	Fare      float64 `json:"fare"`
	ETASec    float64 `json:"eta_seconds"`
	Score     float64 `json:"score"`
}

// RideEvent is pushed to the rider's tracking session on status changes and
// captain movement.
type RideEvent struct {
	RideID     string     `json:"ride_id"`
	Status     RideStatus `json:"status"`
	CaptainID  string     `json:"captain_id,omitempty"`
	CaptainLoc *Coord     `json:"captain_loc,omitempty"`
	At         time.Time  `json:"at"`
}

type TrustedContact struct {
	ID        string    `json:"id"`
	RiderID   string    `json:"rider_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Relation  string    `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}

type AlertStatus string

const (
	AlertActive     AlertStatus = "active"
	AlertResolved   AlertStatus = "resolved"
	AlertFalseAlarm AlertStatus = "false_alarm"
)

type SafetyAlert struct {
	ID         string      `json:"id"`
	RiderID    string      `json:"rider_id"`
	RideID     string      `json:"ride_id,omitempty"`
	Loc        Coord       `json:"loc"`
	Message    string      `json:"message,omitempty"`
	Status     AlertStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt time.Time   `json:"resolved_at,omitempty"`
}
