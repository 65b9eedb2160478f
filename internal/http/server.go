// Package httpapi is the HTTP surface for both the rider and captain apps.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
	"github.com/abhijeeth-g/boots-backend/internal/config"
	"github.com/abhijeeth-g/boots-backend/internal/dispatch"
	"github.com/abhijeeth-g/boots-backend/internal/eta"
	"github.com/abhijeeth-g/boots-backend/internal/geo"
	"github.com/abhijeeth-g/boots-backend/internal/geocode"
	"github.com/abhijeeth-g/boots-backend/internal/ingest"
	"github.com/abhijeeth-g/boots-backend/internal/matcher"
	"github.com/abhijeeth-g/boots-backend/internal/models"
	"github.com/abhijeeth-g/boots-backend/internal/payments"
	"github.com/abhijeeth-g/boots-backend/internal/rides"
	"github.com/abhijeeth-g/boots-backend/internal/safety"
	"github.com/abhijeeth-g/boots-backend/internal/storage"
	"github.com/abhijeeth-g/boots-backend/internal/verification"

	"github.com/abhijeeth-g/boots-backend/internal/fare"
)

type Server struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	store    storage.Store
	geoIdx   geo.Index
	rides    *rides.Service
	safety   *safety.Service
	verifier verification.Verifier
	tokens   *auth.Manager
	kafka    *ingest.KafkaProducer // optional
	places   placeSearcher         // optional
	hub      *dispatch.Hub
	readyFns []func(context.Context) error
	mux      *mux.Router
}

// Deps carries the optional backends NewServer wires around.
type Deps struct {
	Store    storage.Store
	GeoIndex geo.Index
	Kafka    *ingest.KafkaProducer
	Cards    rides.CardGateway
	Planner  rides.RoutePlanner
	Geocoder rides.Geocoder
	Ready    []func(context.Context) error
}

func NewServer(cfg config.ServerConfig, logger *slog.Logger, deps Deps) *Server {
	hub := dispatch.NewHub()
	calc := fare.NewCalculator(fare.Params{
		Base: cfg.BaseFare, PerKm: cfg.PerKmRate, PerMin: cfg.PerMinRate,
		Minimum: cfg.MinimumFare, NightMult: cfg.NightMult,
		NightStart: cfg.NightStartHr, NightEnd: cfg.NightEndHr,
		CaptainPct: cfg.CaptainCutPct,
	})
	m := &matcher.Service{
		Geo:             deps.GeoIndex,
		Dispatch:        hub,
		ETACache:        eta.NewCache(30 * time.Second),
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		TopN:            cfg.MatcherTopN,
		RadiusM:         cfg.SearchRadiusM,
		Logger:          logger,
	}
	if planner, ok := deps.Planner.(eta.Client); ok {
		m.ETAClient = planner
	}
	rideSvc := &rides.Service{
		Store:    deps.Store,
		Fare:     calc,
		Matcher:  m,
		Notify:   hub,
		Planner:  deps.Planner,
		Geocode:  deps.Geocoder,
		Cards:    deps.Cards,
		SpeedMps: cfg.DefaultSpeedMps,
		Logger:   logger,
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		geoIdx:   deps.GeoIndex,
		rides:    rideSvc,
		safety:   safety.NewService(deps.Store),
		verifier: verification.NewRuleVerifier(),
		tokens:   auth.NewManager(cfg.JWTSecret, cfg.JWTTTL),
		kafka:    deps.Kafka,
		hub:      hub,
		readyFns: deps.Ready,
		mux:      mux.NewRouter(),
	}
	if ps, ok := deps.Geocoder.(placeSearcher); ok {
		s.places = ps
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// placeSearcher is the forward-geocoding side of the Nominatim client, used
// by the destination search box.
type placeSearcher interface {
	Search(ctx context.Context, query string) (models.Coord, string, error)
}

// NewServerFromEnv builds the production wiring: Redis geo index and
// Postgres when configured, in-memory fallbacks otherwise.
func NewServerFromEnv(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	deps := Deps{}

	if cfg.RedisAddr != "" {
		ridx := geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		deps.GeoIndex = ridx
		deps.Ready = append(deps.Ready, func(ctx context.Context) error {
			return ridx.Client().Ping(ctx).Err()
		})
	} else {
		deps.GeoIndex = geo.NewMemoryIndex()
	}

	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		deps.Store = ps
		deps.Ready = append(deps.Ready, func(ctx context.Context) error {
			return ps.DB().PingContext(ctx)
		})
	} else {
		deps.Store = storage.NewMemoryStore()
	}

	if len(cfg.KafkaBrokers) > 0 {
		deps.Kafka = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.OSRMEndpoint != "" {
		deps.Planner = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}
	if cfg.NominatimEndpoint != "" {
		deps.Geocoder = geocode.NewClient(cfg.NominatimEndpoint)
	}
	deps.Cards = payments.NewStripeClient()

	return NewServer(cfg, logger, deps), nil
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/signup", s.handleRiderSignup).Methods("POST")
	api.HandleFunc("/auth/captain/signup", s.handleCaptainSignup).Methods("POST")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/captain/online", s.handleCaptainOnline).Methods("POST")
	authed.HandleFunc("/captain/location", s.handleCaptainLocation).Methods("POST")
	authed.HandleFunc("/captain/earnings", s.handleEarnings).Methods("GET")
	authed.HandleFunc("/captain/rides/pending", s.handlePendingRides).Methods("GET")

	authed.HandleFunc("/geocode/search", s.handlePlaceSearch).Methods("GET")

	authed.HandleFunc("/rides/estimate", s.handleEstimate).Methods("POST")
	authed.HandleFunc("/rides/request", s.handleRideRequest).Methods("POST")
	authed.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	authed.HandleFunc("/rides/{id}/accept", s.handleAccept).Methods("POST")
	authed.HandleFunc("/rides/{id}/arrived", s.handleArrived).Methods("POST")
	authed.HandleFunc("/rides/{id}/start", s.handleStart).Methods("POST")
	authed.HandleFunc("/rides/{id}/complete", s.handleComplete).Methods("POST")
	authed.HandleFunc("/rides/{id}/cancel", s.handleCancel).Methods("POST")
	authed.HandleFunc("/rides/{id}/rate", s.handleRate).Methods("POST")
	authed.HandleFunc("/rides/{id}/payment/qr", s.handlePaymentQR).Methods("GET")
	authed.HandleFunc("/rides/{id}/payment/confirm", s.handlePaymentConfirm).Methods("POST")

	authed.HandleFunc("/safety/contacts", s.handleAddContact).Methods("POST")
	authed.HandleFunc("/safety/contacts", s.handleListContacts).Methods("GET")
	authed.HandleFunc("/safety/contacts/{id}", s.handleDeleteContact).Methods("DELETE")
	authed.HandleFunc("/safety/alerts", s.handleRaiseAlert).Methods("POST")
	authed.HandleFunc("/safety/alerts/active", s.handleActiveAlerts).Methods("GET")
	authed.HandleFunc("/safety/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")

	s.mux.HandleFunc("/ws", s.handleWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type placeResult struct {
	Loc     models.Coord `json:"loc"`
	Display string       `json:"display_name"`
}

func (s *Server) handlePlaceSearch(w http.ResponseWriter, r *http.Request) {
	if s.places == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "place search not configured"})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "q is required"})
		return
	}
	loc, display, err := s.places.Search(r.Context(), q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, placeResult{Loc: loc, Display: display})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, fn := range s.readyFns {
		if err := fn(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// respondErr maps domain sentinels onto HTTP statuses so handlers stay thin.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, geocode.ErrNoResult):
		code = http.StatusNotFound
	case errors.Is(err, storage.ErrRideTaken),
		errors.Is(err, storage.ErrCaptainBusy),
		errors.Is(err, storage.ErrEmailExists),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, rides.ErrActiveRide),
		errors.Is(err, rides.ErrAlreadyRated),
		errors.Is(err, rides.ErrNotCompleted):
		code = http.StatusConflict
	case errors.Is(err, rides.ErrNotAuthorized), errors.Is(err, rides.ErrNotVerified):
		code = http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		code = http.StatusUnauthorized
	case errors.Is(err, verification.ErrRejected):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, safety.ErrTooManyContacts),
		errors.Is(err, safety.ErrMissingPhone),
		errors.Is(err, payments.ErrBadUPIRequest):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("internal error", "error", err)
		respondJSON(w, code, errorBody{Error: "internal error"})
		return
	}
	respondJSON(w, code, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
