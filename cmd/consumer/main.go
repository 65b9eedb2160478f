// The consumer folds captain location fixes from Kafka into the Redis geo
// index the matcher queries. It runs separately from the API so a Redis
// hiccup never backs up HTTP ingestion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/abhijeeth-g/boots-backend/internal/config"
	"github.com/abhijeeth-g/boots-backend/internal/logging"
	"github.com/abhijeeth-g/boots-backend/internal/models"
)

var (
	msgsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boots", Name: "consumer_messages_consumed_total",
		Help: "Captain location messages consumed",
	})
	msgsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boots", Name: "consumer_messages_invalid_total",
		Help: "Messages that failed to decode",
	})
	redisUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boots", Name: "consumer_redis_updates_total",
		Help: "Successful redis geo updates",
	})
	redisErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boots", Name: "consumer_redis_errors_total",
		Help: "Redis updates that exhausted retries",
	})
)

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.LoadConsumerConfig()
	logger := logging.NewLogger(cfg.LogLevel)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	updater := &redisUpdater{c: rc, geoKey: cfg.RedisGeoKey}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = reader.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		var loc models.CaptainLocation
		if err := json.Unmarshal(m.Value, &loc); err != nil || loc.CaptainID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}

		if err := updateWithRetry(ctx, updater, loc, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", "captain_id", loc.CaptainID, "error", err)
			continue
		}
		redisUpdates.Inc()
	}
}

// GeoUpdater is the subset of redis operations the consumer needs; the seam
// keeps retry logic testable without a redis server.
type GeoUpdater interface {
	GeoAdd(ctx context.Context, loc models.CaptainLocation) error
	SetMeta(ctx context.Context, loc models.CaptainLocation) error
}

type redisUpdater struct {
	c      *redis.Client
	geoKey string
}

func (r *redisUpdater) GeoAdd(ctx context.Context, loc models.CaptainLocation) error {
	return r.c.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Name:      loc.CaptainID,
		Longitude: loc.Loc.Lon,
		Latitude:  loc.Loc.Lat,
	}).Err()
}

func (r *redisUpdater) SetMeta(ctx context.Context, loc models.CaptainLocation) error {
	return r.c.HSet(ctx, "captain:meta:"+loc.CaptainID, map[string]interface{}{
		"rating":  strconv.FormatFloat(loc.Rating, 'f', 2, 64),
		"online":  strconv.FormatBool(loc.Online),
		"vehicle": loc.Vehicle,
		"updated": loc.Updated.Format(time.RFC3339),
	}).Err()
}

// updateWithRetry writes the geo point then the metadata hash, retrying each
// with doubling delay.
func updateWithRetry(ctx context.Context, u GeoUpdater, loc models.CaptainLocation, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		if err = u.GeoAdd(ctx, loc); err != nil {
			continue
		}
		if err = u.SetMeta(ctx, loc); err != nil {
			continue
		}
		return nil
	}
	return err
}
