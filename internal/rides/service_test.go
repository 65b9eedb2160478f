package rides

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/fare"
	"github.com/abhijeeth-g/boots-backend/internal/geo"
	"github.com/abhijeeth-g/boots-backend/internal/matcher"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/storage"
)

type recNotifier struct{ events []models.RideEvent }

func (r *recNotifier) Notify(riderID string, ev models.RideEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type nopDisp struct{}

func (nopDisp) Offer(models.RideOffer) error { return nil }

type fakeCards struct {
	held, captured, cancelled []string
	nextRef                   int
}

func (f *fakeCards) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	f.nextRef++
	ref := fmt.Sprintf("pi_%d", f.nextRef)
	f.held = append(f.held, ref)
	return ref, nil
}

func (f *fakeCards) Capture(ctx context.Context, id string, amount int64) error {
	f.captured = append(f.captured, id)
	return nil
}

func (f *fakeCards) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func testService(store *storage.MemoryStore, idx *geo.MemoryIndex) (*Service, *recNotifier) {
	calc := fare.NewCalculator(fare.Params{
		Base: 30, PerKm: 12, PerMin: 1.5, Minimum: 40, CaptainPct: 80,
	})
	n := &recNotifier{}
	m := &matcher.Service{Geo: idx, Dispatch: nopDisp{}, DefaultSpeedMps: 10, TopN: 8, RadiusM: 5000}
	return &Service{
		Store:    store,
		Fare:     calc,
		Matcher:  m,
		Notify:   n,
		SpeedMps: 10,
	}, n
}

func seedCaptain(t *testing.T, store *storage.MemoryStore, id string, status models.VerificationStatus) {
	t.Helper()
	err := store.CreateCaptain(context.Background(), &models.Captain{
		ID: id, Email: id + "@boots.app", Verification: status, Online: true,
		Loc: models.Coord{Lat: 12.97, Lon: 77.6},
	})
	if err != nil {
		t.Fatalf("seed captain: %v", err)
	}
}

var pickup = models.Coord{Lat: 12.9758, Lon: 77.6045}
var drop = models.Coord{Lat: 12.9352, Lon: 77.6245}

func TestRequestRideCreatesPending(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())

	ride, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ride.Status != models.RidePending {
		t.Fatalf("status = %s", ride.Status)
	}
	if ride.EstimatedFare <= 0 {
		t.Fatalf("fare = %f", ride.EstimatedFare)
	}
	// a second request while one is active is rejected
	if _, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI); !errors.Is(err, ErrActiveRide) {
		t.Fatalf("expected ErrActiveRide, got %v", err)
	}
}

func TestAcceptRequiresVerifiedCaptain(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationPending)

	ride, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.AcceptRide(ctx, "c1", ride.ID); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
}

func TestAcceptSecondCaptainLoses(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, n := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)
	seedCaptain(t, store, "c2", models.VerificationApproved)

	ride, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	won, err := svc.AcceptRide(ctx, "c1", ride.ID)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if won.CaptainID != "c1" || won.Status != models.RideAccepted {
		t.Fatalf("ride = %+v", won)
	}
	if _, err := svc.AcceptRide(ctx, "c2", ride.ID); !errors.Is(err, storage.ErrRideTaken) {
		t.Fatalf("expected ErrRideTaken, got %v", err)
	}
	if len(n.events) == 0 || n.events[0].Status != models.RideAccepted {
		t.Fatalf("rider not notified of accept: %+v", n.events)
	}
}

func TestFullLifecycleCreditsCaptain(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCash)
	if _, err := svc.AcceptRide(ctx, "c1", ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.MarkArrived(ctx, "c1", ride.ID); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if _, err := svc.StartRide(ctx, "c1", ride.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := svc.CompleteRide(ctx, "c1", ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.FinalFare <= 0 {
		t.Fatalf("final fare = %f", done.FinalFare)
	}
	c, _ := store.GetCaptain(ctx, "c1")
	if c.Earnings <= 0 {
		t.Fatalf("captain not credited: %f", c.Earnings)
	}
}

func TestWrongCaptainCannotAdvance(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)
	seedCaptain(t, store, "c2", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI)
	if _, err := svc.AcceptRide(ctx, "c1", ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.MarkArrived(ctx, "c2", ride.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestCancelReleasesCardHold(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	cards := &fakeCards{}
	svc.Cards = cards

	ride, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCard)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ride.PaymentState != models.PaymentHeld {
		t.Fatalf("payment state = %s", ride.PaymentState)
	}
	cancelled, err := svc.CancelRide(ctx, "u1", "rider", ride.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.PaymentState != models.PaymentVoided {
		t.Fatalf("payment state after cancel = %s", cancelled.PaymentState)
	}
	if len(cards.cancelled) != 1 {
		t.Fatalf("hold not released: %+v", cards)
	}
}

func TestCompleteCapturesCard(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	cards := &fakeCards{}
	svc.Cards = cards
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCard)
	svc.AcceptRide(ctx, "c1", ride.ID)
	svc.MarkArrived(ctx, "c1", ride.ID)
	svc.StartRide(ctx, "c1", ride.ID)
	done, err := svc.CompleteRide(ctx, "c1", ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.PaymentState != models.PaymentPaid {
		t.Fatalf("payment state = %s", done.PaymentState)
	}
	if len(cards.captured) != 1 {
		t.Fatalf("capture not issued: %+v", cards)
	}
}

func TestCancelAfterStartForbidden(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCash)
	svc.AcceptRide(ctx, "c1", ride.ID)
	svc.MarkArrived(ctx, "c1", ride.ID)
	svc.StartRide(ctx, "c1", ride.ID)
	if _, err := svc.CancelRide(ctx, "u1", "rider", ride.ID, "too slow"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRateRideOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCash)
	svc.AcceptRide(ctx, "c1", ride.ID)

	// not completed yet
	if _, err := svc.RateRide(ctx, "u1", ride.ID, 5); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}

	svc.MarkArrived(ctx, "c1", ride.ID)
	svc.StartRide(ctx, "c1", ride.ID)
	svc.CompleteRide(ctx, "c1", ride.ID)

	if _, err := svc.RateRide(ctx, "u1", ride.ID, 5); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if _, err := svc.RateRide(ctx, "u1", ride.ID, 1); !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
	c, _ := store.GetCaptain(ctx, "c1")
	if c.Rating() != 5 {
		t.Fatalf("rating = %f", c.Rating())
	}
}

func TestEarningsBreakdown(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	mk := func(id string, completedAt time.Time) {
		r := models.NewRide(id, "u1", pickup, drop, 5, 18, 117, models.PayCash)
		r.CaptainID = "c1"
		r.Status = models.RideCompleted
		r.FinalFare = 117
		r.CompletedAt = completedAt
		r.StartedAt = completedAt.Add(-18 * time.Minute)
		if err := store.CreateRide(ctx, r); err != nil {
			t.Fatalf("seed ride: %v", err)
		}
	}
	mk("today", time.Now().Add(-time.Hour))
	mk("lastmonth", time.Now().AddDate(0, -1, 0))

	sum, err := svc.Earnings(ctx, "c1")
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if sum.RideCount != 2 {
		t.Fatalf("lifetime rides = %d", sum.RideCount)
	}
	if sum.Today.Rides != 1 {
		t.Fatalf("today rides = %d", sum.Today.Rides)
	}
	if sum.Lifetime <= sum.Today.Amount {
		t.Fatalf("lifetime %f should exceed today %f", sum.Lifetime, sum.Today.Amount)
	}
}

func TestConfirmPaymentAuthz(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayUPI)
	svc.AcceptRide(ctx, "c1", ride.ID)
	svc.MarkArrived(ctx, "c1", ride.ID)
	svc.StartRide(ctx, "c1", ride.ID)
	svc.CompleteRide(ctx, "c1", ride.ID)

	if _, err := svc.ConfirmPayment(ctx, "stranger", ride.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	got, err := svc.ConfirmPayment(ctx, "c1", ride.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.PaymentState != models.PaymentPaid {
		t.Fatalf("payment state = %s", got.PaymentState)
	}
}

type failingRideStore struct {
	*storage.MemoryStore
}

func (f *failingRideStore) CreateRide(ctx context.Context, r *models.Ride) error {
	return errors.New("store down")
}

func TestRequestRideReleasesHoldWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	store := &failingRideStore{storage.NewMemoryStore()}
	svc, _ := testService(store.MemoryStore, geo.NewMemoryIndex())
	svc.Store = store
	cards := &fakeCards{}
	svc.Cards = cards

	if _, err := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCard); err == nil {
		t.Fatal("expected the store failure to surface")
	}
	if len(cards.held) != 1 {
		t.Fatalf("holds = %v, want one", cards.held)
	}
	if len(cards.cancelled) != 1 || cards.cancelled[0] != cards.held[0] {
		t.Fatalf("hold %v not released, cancelled = %v", cards.held, cards.cancelled)
	}
}

func TestEarningsUseStoredFinalFare(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := testService(store, geo.NewMemoryIndex())
	seedCaptain(t, store, "c1", models.VerificationApproved)

	ride, _ := svc.RequestRide(ctx, "u1", pickup, drop, models.PayCash)
	svc.AcceptRide(ctx, "c1", ride.ID)
	svc.MarkArrived(ctx, "c1", ride.ID)
	svc.StartRide(ctx, "c1", ride.ID)
	if _, err := svc.CompleteRide(ctx, "c1", ride.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	c, _ := store.GetCaptain(ctx, "c1")
	credited := c.Earnings

	// A later pricing change must not move the derived breakdown away from
	// what was credited at completion time.
	repriced, _ := testService(store, geo.NewMemoryIndex())
	repriced.Fare = fare.NewCalculator(fare.Params{
		Base: 60, PerKm: 24, PerMin: 3, Minimum: 80, CaptainPct: 80,
	})
	sum, err := repriced.Earnings(ctx, "c1")
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if sum.Lifetime != credited {
		t.Fatalf("derived lifetime %f != credited %f", sum.Lifetime, credited)
	}
}
