package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhijeeth-g/boots-backend/internal/config"
	"github.com/abhijeeth-g/boots-backend/internal/geo"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		JWTSecret:       "test-secret",
		JWTTTL:          time.Hour,
		BaseFare:        30,
		PerKmRate:       12,
		PerMinRate:      1.5,
		MinimumFare:     40,
		NightMult:       1.25,
		NightStartHr:    23,
		NightEndHr:      5,
		CaptainCutPct:   80,
		DefaultSpeedMps: 10,
		MatcherTopN:     8,
		SearchRadiusM:   5000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, Deps{
		Store:    storage.NewMemoryStore(),
		GeoIndex: geo.NewMemoryIndex(),
	})
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func signupRider(t *testing.T, s *Server, email string) (token, id string) {
	t.Helper()
	rec := do(t, s, "POST", "/api/v1/auth/signup", "", map[string]string{
		"name": "Asha", "email": email, "phone": "9999999999", "password": "hunter2hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rider signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[authResponse](t, rec)
	return resp.Token, resp.Rider.ID
}

func validDocs() []map[string]any {
	docs := make([]map[string]any, 0, 4)
	for _, typ := range []string{"license", "registration", "identity", "face"} {
		docs = append(docs, map[string]any{"type": typ, "filename": typ + ".jpg", "size": 1024})
	}
	return docs
}

func signupCaptain(t *testing.T, s *Server, email string) (token, id string) {
	t.Helper()
	rec := do(t, s, "POST", "/api/v1/auth/captain/signup", "", map[string]any{
		"name": "Ravi", "email": email, "phone": "8888888888", "password": "hunter2hunter2",
		"vehicle":     map[string]string{"make": "Bajaj", "model": "RE", "plate": "TS09AB1234", "type": "auto"},
		"upi_address": "ravi@okaxis",
		"documents":   validDocs(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("captain signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[captainSignupResponse](t, rec)
	return resp.Token, resp.Captain.ID
}

func goOnline(t *testing.T, s *Server, token string, lat, lon float64) {
	t.Helper()
	rec := do(t, s, "POST", "/api/v1/captain/online", token, map[string]any{
		"online": true, "loc": map[string]float64{"lat": lat, "lon": lon},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("go online status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRiderSignupAndLogin(t *testing.T) {
	s := testServer(t)
	signupRider(t, s, "asha@example.com")

	if rec := do(t, s, "POST", "/api/v1/auth/signup", "", map[string]string{
		"name": "Asha", "email": "asha@example.com", "phone": "1", "password": "hunter2hunter2",
	}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email status = %d", rec.Code)
	}

	if rec := do(t, s, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrong-password", "role": "rider",
	}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}

	rec := do(t, s, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "hunter2hunter2", "role": "rider",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[authResponse](t, rec); resp.Token == "" {
		t.Fatal("login returned no token")
	}
}

func TestCaptainSignupRejectedDocuments(t *testing.T) {
	s := testServer(t)
	docs := validDocs()
	docs[0]["filename"] = "invalid_license.jpg"

	rec := do(t, s, "POST", "/api/v1/auth/captain/signup", "", map[string]any{
		"name": "Ravi", "email": "ravi@example.com", "phone": "2", "password": "hunter2hunter2",
		"vehicle":   map[string]string{"type": "auto"},
		"documents": docs,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[captainSignupResponse](t, rec)
	if resp.Status != models.VerificationRejected {
		t.Fatalf("status = %s, want rejected", resp.Status)
	}
	if resp.Token == "" {
		t.Fatal("rejected captain should still get an account and token")
	}
	var failedReason string
	for _, res := range resp.Verification {
		if !res.Passed {
			failedReason = res.Reason
		}
	}
	if failedReason == "" {
		t.Fatal("expected a per-document failure reason")
	}
}

func TestAuthRequired(t *testing.T) {
	s := testServer(t)
	if rec := do(t, s, "POST", "/api/v1/rides/estimate", "", map[string]any{}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/api/v1/rides/estimate", "not-a-jwt", map[string]any{}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", rec.Code)
	}
}

func TestEstimate(t *testing.T) {
	s := testServer(t)
	token, _ := signupRider(t, s, "est@example.com")

	rec := do(t, s, "POST", "/api/v1/rides/estimate", token, map[string]any{
		"pickup": map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":   map[string]float64{"lat": 17.4399, "lon": 78.4983},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate status = %d, body %s", rec.Code, rec.Body.String())
	}
	est := decodeBody[map[string]any](t, rec)
	if est["distance_km"].(float64) <= 0 {
		t.Fatal("expected a positive distance")
	}
	fare := est["fare"].(map[string]any)
	if fare["total"].(float64) <= 0 {
		t.Fatal("expected a positive fare")
	}
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	s := testServer(t)
	riderToken, _ := signupRider(t, s, "rider@example.com")
	captainToken, captainID := signupCaptain(t, s, "captain@example.com")
	goOnline(t, s, captainToken, 17.3850, 78.4867)

	rec := do(t, s, "POST", "/api/v1/rides/request", riderToken, map[string]any{
		"pickup":         map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":           map[string]float64{"lat": 17.4399, "lon": 78.4983},
		"payment_method": "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d, body %s", rec.Code, rec.Body.String())
	}
	ride := decodeBody[models.Ride](t, rec)
	if ride.Status != models.RidePending {
		t.Fatalf("new ride status = %s", ride.Status)
	}

	// A captain cannot request a ride.
	if rec := do(t, s, "POST", "/api/v1/rides/request", captainToken, map[string]any{
		"pickup": map[string]float64{"lat": 1, "lon": 1},
		"drop":   map[string]float64{"lat": 2, "lon": 2},
	}); rec.Code != http.StatusForbidden {
		t.Fatalf("captain request status = %d", rec.Code)
	}

	// A second request while one is active conflicts.
	if rec := do(t, s, "POST", "/api/v1/rides/request", riderToken, map[string]any{
		"pickup": map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":   map[string]float64{"lat": 17.4399, "lon": 78.4983},
	}); rec.Code != http.StatusConflict {
		t.Fatalf("second request status = %d", rec.Code)
	}

	base := fmt.Sprintf("/api/v1/rides/%s", ride.ID)
	for _, step := range []string{"accept", "arrived", "start", "complete"} {
		rec := do(t, s, "POST", base+"/"+step, captainToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", step, rec.Code, rec.Body.String())
		}
	}

	rec = do(t, s, "GET", base, riderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get ride status = %d", rec.Code)
	}
	done := decodeBody[models.Ride](t, rec)
	if done.Status != models.RideCompleted || done.CaptainID != captainID {
		t.Fatalf("ride = %s captain %s, want completed by %s", done.Status, done.CaptainID, captainID)
	}
	if done.FinalFare <= 0 {
		t.Fatal("completed ride has no final fare")
	}

	// Rate it, once.
	if rec := do(t, s, "POST", base+"/rate", riderToken, map[string]int{"stars": 5}); rec.Code != http.StatusOK {
		t.Fatalf("rate status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, "POST", base+"/rate", riderToken, map[string]int{"stars": 1}); rec.Code != http.StatusConflict {
		t.Fatalf("second rate status = %d", rec.Code)
	}

	// Earnings reflect the completed ride.
	rec = do(t, s, "GET", "/api/v1/captain/earnings", captainToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("earnings status = %d, body %s", rec.Code, rec.Body.String())
	}
	earn := decodeBody[map[string]any](t, rec)
	if earn["lifetime"].(float64) <= 0 {
		t.Fatal("expected lifetime earnings after a completed ride")
	}
	if earn["rating"].(float64) != 5 {
		t.Fatalf("rating = %v, want 5", earn["rating"])
	}
}

func TestUPIPaymentQR(t *testing.T) {
	s := testServer(t)
	riderToken, _ := signupRider(t, s, "upi-rider@example.com")
	captainToken, _ := signupCaptain(t, s, "upi-captain@example.com")
	goOnline(t, s, captainToken, 17.3850, 78.4867)

	rec := do(t, s, "POST", "/api/v1/rides/request", riderToken, map[string]any{
		"pickup":         map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":           map[string]float64{"lat": 17.4399, "lon": 78.4983},
		"payment_method": "upi",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d, body %s", rec.Code, rec.Body.String())
	}
	ride := decodeBody[models.Ride](t, rec)
	base := fmt.Sprintf("/api/v1/rides/%s", ride.ID)

	// QR is only available once the ride is complete.
	if rec := do(t, s, "GET", base+"/payment/qr", riderToken, nil); rec.Code != http.StatusConflict {
		t.Fatalf("early qr status = %d", rec.Code)
	}

	for _, step := range []string{"accept", "arrived", "start", "complete"} {
		if rec := do(t, s, "POST", base+"/"+step, captainToken, nil); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", step, rec.Code, rec.Body.String())
		}
	}

	rec = do(t, s, "GET", base+"/payment/qr", riderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %s", ct)
	}
	if link := rec.Header().Get("X-UPI-Link"); link == "" {
		t.Fatal("missing UPI deep link header")
	}
	png := rec.Body.Bytes()
	if len(png) < 8 || png[1] != 'P' || png[2] != 'N' || png[3] != 'G' {
		t.Fatal("response is not a PNG")
	}

	// An outsider cannot see the QR.
	otherToken, _ := signupRider(t, s, "other@example.com")
	if rec := do(t, s, "GET", base+"/payment/qr", otherToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("outsider qr status = %d", rec.Code)
	}

	if rec := do(t, s, "POST", base+"/payment/confirm", riderToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, "GET", base, riderToken, nil)
	if got := decodeBody[models.Ride](t, rec); got.PaymentState != models.PaymentPaid {
		t.Fatalf("payment state = %s, want paid", got.PaymentState)
	}
}

func TestCancelOverHTTP(t *testing.T) {
	s := testServer(t)
	riderToken, _ := signupRider(t, s, "cancel@example.com")

	rec := do(t, s, "POST", "/api/v1/rides/request", riderToken, map[string]any{
		"pickup": map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":   map[string]float64{"lat": 17.4399, "lon": 78.4983},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d, body %s", rec.Code, rec.Body.String())
	}
	ride := decodeBody[models.Ride](t, rec)

	rec = do(t, s, "POST", fmt.Sprintf("/api/v1/rides/%s/cancel", ride.ID), riderToken,
		map[string]string{"reason": "changed plans"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[models.Ride](t, rec)
	if got.Status != models.RideCancelled || got.CancelReason != "changed plans" {
		t.Fatalf("cancelled ride = %+v", got)
	}
}

func TestSafetyEndpoints(t *testing.T) {
	s := testServer(t)
	riderToken, _ := signupRider(t, s, "safety@example.com")

	rec := do(t, s, "POST", "/api/v1/safety/contacts", riderToken, map[string]string{
		"name": "Amma", "phone": "7777777777", "relation": "mother",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add contact status = %d, body %s", rec.Code, rec.Body.String())
	}
	contact := decodeBody[models.TrustedContact](t, rec)

	if rec := do(t, s, "POST", "/api/v1/safety/contacts", riderToken, map[string]string{
		"name": "NoPhone",
	}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing phone status = %d", rec.Code)
	}

	rec = do(t, s, "GET", "/api/v1/safety/contacts", riderToken, nil)
	if got := decodeBody[[]models.TrustedContact](t, rec); len(got) != 1 {
		t.Fatalf("contacts = %d, want 1", len(got))
	}

	rec = do(t, s, "POST", "/api/v1/safety/alerts", riderToken, map[string]any{
		"loc": map[string]float64{"lat": 17.4, "lon": 78.5}, "message": "help",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("raise alert status = %d, body %s", rec.Code, rec.Body.String())
	}
	alert := decodeBody[models.SafetyAlert](t, rec)

	rec = do(t, s, "GET", "/api/v1/safety/alerts/active", riderToken, nil)
	if got := decodeBody[[]models.SafetyAlert](t, rec); len(got) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(got))
	}

	if rec := do(t, s, "POST", "/api/v1/safety/alerts/"+alert.ID+"/resolve", riderToken,
		map[string]bool{"false_alarm": true}); rec.Code != http.StatusNoContent {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	rec = do(t, s, "GET", "/api/v1/safety/alerts/active", riderToken, nil)
	if got := decodeBody[[]models.SafetyAlert](t, rec); len(got) != 0 {
		t.Fatalf("active alerts after resolve = %d, want 0", len(got))
	}

	if rec := do(t, s, "DELETE", "/api/v1/safety/contacts/"+contact.ID, riderToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete contact status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := testServer(t)
	if rec := do(t, s, "GET", "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestPendingRidesDiscovery(t *testing.T) {
	s := testServer(t)
	riderToken, _ := signupRider(t, s, "pending-rider@example.com")

	// No captains online yet; the ride stays pending.
	rec := do(t, s, "POST", "/api/v1/rides/request", riderToken, map[string]any{
		"pickup": map[string]float64{"lat": 17.3850, "lon": 78.4867},
		"drop":   map[string]float64{"lat": 17.4399, "lon": 78.4983},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request status = %d, body %s", rec.Code, rec.Body.String())
	}
	ride := decodeBody[models.Ride](t, rec)

	nearToken, _ := signupCaptain(t, s, "near-captain@example.com")
	goOnline(t, s, nearToken, 17.3860, 78.4870)
	farToken, _ := signupCaptain(t, s, "far-captain@example.com")
	goOnline(t, s, farToken, 28.6139, 77.2090) // another city

	rec = do(t, s, "GET", "/api/v1/captain/rides/pending", nearToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d, body %s", rec.Code, rec.Body.String())
	}
	near := decodeBody[[]models.Ride](t, rec)
	if len(near) != 1 || near[0].ID != ride.ID {
		t.Fatalf("nearby captain sees %d pending rides, want the requested one", len(near))
	}

	rec = do(t, s, "GET", "/api/v1/captain/rides/pending", farToken, nil)
	if far := decodeBody[[]models.Ride](t, rec); len(far) != 0 {
		t.Fatalf("far captain sees %d pending rides, want 0", len(far))
	}

	// The listed ride is acceptable, after which it leaves the list.
	if rec := do(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", nearToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, "GET", "/api/v1/captain/rides/pending", nearToken, nil)
	if left := decodeBody[[]models.Ride](t, rec); len(left) != 0 {
		t.Fatalf("accepted ride still listed: %d", len(left))
	}
}
