package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the handle for readiness pings and migrations.
func (p *PostgresStore) DB() *sql.DB { return p.db }

const rideColumns = `id, rider_id, captain_id, status,
	pickup_lat, pickup_lon, drop_lat, drop_lon, pickup_address, drop_address,
	distance_km, duration_min, estimated_fare, final_fare,
	payment_method, payment_state, payment_ref, captain_rating,
	cancelled_by, cancel_reason,
	created_at, accepted_at, arrived_at, started_at, completed_at, cancelled_at, updated_at`

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides (`+rideColumns+`) VALUES
		($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		r.ID, r.RiderID, r.CaptainID, r.Status,
		r.Pickup.Lat, r.Pickup.Lon, r.Drop.Lat, r.Drop.Lon, r.PickupAdr, r.DropAdr,
		r.DistanceKm, r.DurationMin, r.EstimatedFare, r.FinalFare,
		r.Payment, r.PaymentState, r.PaymentRef, r.CaptainRating,
		r.CancelledBy, r.CancelReason,
		r.CreatedAt, nullTime(r.AcceptedAt), nullTime(r.ArrivedAt), nullTime(r.StartedAt),
		nullTime(r.CompletedAt), nullTime(r.CancelledAt), r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) UpdateRide(ctx context.Context, r *models.Ride) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET
		captain_id=NULLIF($2,''), status=$3, final_fare=$4,
		payment_state=$5, payment_ref=$6, captain_rating=$7,
		cancelled_by=$8, cancel_reason=$9,
		accepted_at=$10, arrived_at=$11, started_at=$12, completed_at=$13, cancelled_at=$14,
		updated_at=$15
		WHERE id=$1`,
		r.ID, r.CaptainID, r.Status, r.FinalFare,
		r.PaymentState, r.PaymentRef, r.CaptainRating,
		r.CancelledBy, r.CancelReason,
		nullTime(r.AcceptedAt), nullTime(r.ArrivedAt), nullTime(r.StartedAt),
		nullTime(r.CompletedAt), nullTime(r.CancelledAt), time.Now())
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// AcceptRide is a compare-and-set: the WHERE clause only matches a pending,
// unassigned ride, and only when the captain has no other active ride, so
// concurrent accepts resolve in the database regardless of how many API
// nodes race.
func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	now := time.Now()
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET captain_id=$2, status=$3, accepted_at=$4, updated_at=$4
		WHERE id=$1 AND status=$5 AND captain_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM rides busy
			WHERE busy.captain_id=$2 AND busy.status NOT IN ($6,$7))
		RETURNING `+rideColumns,
		rideID, captainID, models.RideAccepted, now, models.RidePending,
		models.RideCompleted, models.RideCancelled)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		if _, busyErr := p.ActiveRideForCaptain(ctx, captainID); busyErr == nil {
			return nil, ErrCaptainBusy
		}
		// Distinguish a missing ride from a lost race.
		if _, getErr := p.GetRide(ctx, rideID); getErr == nil {
			return nil, ErrRideTaken
		}
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) PendingRides(ctx context.Context) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status=$1 AND captain_id IS NULL
		ORDER BY created_at`, models.RidePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE rider_id=$1 AND status NOT IN ($2,$3)
		ORDER BY created_at DESC LIMIT 1`,
		riderID, models.RideCompleted, models.RideCancelled)
	return scanRide(row)
}

func (p *PostgresStore) ActiveRideForCaptain(ctx context.Context, captainID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE captain_id=$1 AND status NOT IN ($2,$3)
		ORDER BY created_at DESC LIMIT 1`,
		captainID, models.RideCompleted, models.RideCancelled)
	return scanRide(row)
}

func (p *PostgresStore) CompletedRidesByCaptain(ctx context.Context, captainID string, since time.Time) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE captain_id=$1 AND status=$2 AND completed_at >= $3
		ORDER BY completed_at DESC`,
		captainID, models.RideCompleted, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateRider(ctx context.Context, r *models.Rider) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO riders (id, name, email, phone, password_hash, created_at)
		VALUES ($1,$2,lower($3),$4,$5,$6)`,
		r.ID, r.Name, r.Email, r.Phone, r.PasswordHash, r.CreatedAt)
	return translateUnique(err)
}

func (p *PostgresStore) GetRider(ctx context.Context, id string) (*models.Rider, error) {
	return scanRider(p.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, password_hash, created_at FROM riders WHERE id=$1`, id))
}

func (p *PostgresStore) GetRiderByEmail(ctx context.Context, email string) (*models.Rider, error) {
	return scanRider(p.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, password_hash, created_at FROM riders WHERE email=lower($1)`, email))
}

const captainColumns = `id, name, email, phone, password_hash,
	vehicle_make, vehicle_model, vehicle_plate, vehicle_type, upi_address,
	online, loc_lat, loc_lon, rating_sum, rating_count, earnings, verification, created_at, updated_at`

func (p *PostgresStore) CreateCaptain(ctx context.Context, c *models.Captain) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO captains (`+captainColumns+`) VALUES
		($1,$2,lower($3),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		c.ID, c.Name, c.Email, c.Phone, c.PasswordHash,
		c.Vehicle.Make, c.Vehicle.Model, c.Vehicle.Plate, c.Vehicle.Type, c.UPIAddress,
		c.Online, c.Loc.Lat, c.Loc.Lon, c.RatingSum, c.RatingCount, c.Earnings, c.Verification,
		c.CreatedAt, c.Updated)
	return translateUnique(err)
}

func (p *PostgresStore) GetCaptain(ctx context.Context, id string) (*models.Captain, error) {
	return scanCaptain(p.db.QueryRowContext(ctx,
		`SELECT `+captainColumns+` FROM captains WHERE id=$1`, id))
}

func (p *PostgresStore) GetCaptainByEmail(ctx context.Context, email string) (*models.Captain, error) {
	return scanCaptain(p.db.QueryRowContext(ctx,
		`SELECT `+captainColumns+` FROM captains WHERE email=lower($1)`, email))
}

func (p *PostgresStore) SetCaptainOnline(ctx context.Context, id string, online bool, loc models.Coord) error {
	var res sql.Result
	var err error
	if loc.Zero() {
		res, err = p.db.ExecContext(ctx,
			`UPDATE captains SET online=$2, updated_at=now() WHERE id=$1`, id, online)
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE captains SET online=$2, loc_lat=$3, loc_lon=$4, updated_at=now() WHERE id=$1`,
			id, online, loc.Lat, loc.Lon)
	}
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (p *PostgresStore) CreditCaptain(ctx context.Context, id string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("negative credit %f", amount)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE captains SET earnings = earnings + $2, updated_at=now() WHERE id=$1`, id, amount)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (p *PostgresStore) RateCaptain(ctx context.Context, id string, stars int) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("rating %d out of range", stars)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE captains SET rating_sum = rating_sum + $2, rating_count = rating_count + 1, updated_at=now() WHERE id=$1`,
		id, stars)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (p *PostgresStore) AddContact(ctx context.Context, c *models.TrustedContact) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO trusted_contacts (id, rider_id, name, phone, relation, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.RiderID, c.Name, c.Phone, c.Relation, c.CreatedAt)
	return err
}

func (p *PostgresStore) ListContacts(ctx context.Context, riderID string) ([]*models.TrustedContact, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, rider_id, name, phone, relation, created_at
		FROM trusted_contacts WHERE rider_id=$1 ORDER BY created_at`, riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.TrustedContact
	for rows.Next() {
		c := &models.TrustedContact{}
		if err := rows.Scan(&c.ID, &c.RiderID, &c.Name, &c.Phone, &c.Relation, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteContact(ctx context.Context, riderID, contactID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM trusted_contacts WHERE id=$1 AND rider_id=$2`, contactID, riderID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (p *PostgresStore) CreateAlert(ctx context.Context, a *models.SafetyAlert) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO safety_alerts (id, rider_id, ride_id, loc_lat, loc_lon, message, status, created_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8)`,
		a.ID, a.RiderID, a.RideID, a.Loc.Lat, a.Loc.Lon, a.Message, a.Status, a.CreatedAt)
	return err
}

func (p *PostgresStore) GetAlert(ctx context.Context, id string) (*models.SafetyAlert, error) {
	return scanAlert(p.db.QueryRowContext(ctx, `SELECT id, rider_id, ride_id, loc_lat, loc_lon, message, status, created_at, resolved_at
		FROM safety_alerts WHERE id=$1`, id))
}

func (p *PostgresStore) ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE safety_alerts SET status=$2, resolved_at=now() WHERE id=$1 AND status=$3`,
		id, status, models.AlertActive)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (p *PostgresStore) ActiveAlerts(ctx context.Context) ([]*models.SafetyAlert, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, rider_id, ride_id, loc_lat, loc_lon, message, status, created_at, resolved_at
		FROM safety_alerts WHERE status=$1 ORDER BY created_at`, models.AlertActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.SafetyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	r := &models.Ride{}
	var captainID, paymentRef, cancelledBy, cancelReason, pickupAdr, dropAdr sql.NullString
	var acceptedAt, arrivedAt, startedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.RiderID, &captainID, &r.Status,
		&r.Pickup.Lat, &r.Pickup.Lon, &r.Drop.Lat, &r.Drop.Lon, &pickupAdr, &dropAdr,
		&r.DistanceKm, &r.DurationMin, &r.EstimatedFare, &r.FinalFare,
		&r.Payment, &r.PaymentState, &paymentRef, &r.CaptainRating,
		&cancelledBy, &cancelReason,
		&r.CreatedAt, &acceptedAt, &arrivedAt, &startedAt, &completedAt, &cancelledAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CaptainID = captainID.String
	r.PaymentRef = paymentRef.String
	r.CancelledBy = cancelledBy.String
	r.CancelReason = cancelReason.String
	r.PickupAdr = pickupAdr.String
	r.DropAdr = dropAdr.String
	r.AcceptedAt = acceptedAt.Time
	r.ArrivedAt = arrivedAt.Time
	r.StartedAt = startedAt.Time
	r.CompletedAt = completedAt.Time
	r.CancelledAt = cancelledAt.Time
	return r, nil
}

func scanRider(row rowScanner) (*models.Rider, error) {
	r := &models.Rider{}
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.PasswordHash, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanCaptain(row rowScanner) (*models.Captain, error) {
	c := &models.Captain{}
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.PasswordHash,
		&c.Vehicle.Make, &c.Vehicle.Model, &c.Vehicle.Plate, &c.Vehicle.Type, &c.UPIAddress,
		&c.Online, &c.Loc.Lat, &c.Loc.Lon, &c.RatingSum, &c.RatingCount, &c.Earnings, &c.Verification,
		&c.CreatedAt, &c.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanAlert(row rowScanner) (*models.SafetyAlert, error) {
	a := &models.SafetyAlert{}
	var rideID sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.RiderID, &rideID, &a.Loc.Lat, &a.Loc.Lon, &a.Message, &a.Status, &a.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.RideID = rideID.String
	a.ResolvedAt = resolvedAt.Time
	return a, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translateUnique(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrEmailExists
	}
	return err
}
