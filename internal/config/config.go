package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process. Values
// are loaded from environment variables with defaults that let the binary
// run locally against the in-memory stores.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	JWTSecret string
	JWTTTL    time.Duration

	OSRMEndpoint      string
	NominatimEndpoint string

	// Fare parameters, rupees.
	BaseFare      float64
	PerKmRate     float64
	PerMinRate    float64
	MinimumFare   float64
	NightMult     float64
	NightStartHr  int
	NightEndHr    int
	CaptainCutPct float64

	DefaultSpeedMps float64
	MatcherTopN     int
	SearchRadiusM   float64

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "captains_geo",
		KafkaTopic:      "captain-locations",
		JWTTTL:          24 * time.Hour,
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
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	setDurationFromEnv(&cfg.JWTTTL, "JWT_TTL", &errs)

	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setStringFromEnv(&cfg.NominatimEndpoint, "NOMINATIM_ENDPOINT")

	setFloatFromEnv(&cfg.BaseFare, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.PerKmRate, "FARE_PER_KM", &errs)
	setFloatFromEnv(&cfg.PerMinRate, "FARE_PER_MIN", &errs)
	setFloatFromEnv(&cfg.MinimumFare, "FARE_MINIMUM", &errs)
	setFloatFromEnv(&cfg.NightMult, "FARE_NIGHT_MULT", &errs)
	setIntFromEnv(&cfg.NightStartHr, "FARE_NIGHT_START_HOUR", &errs)
	setIntFromEnv(&cfg.NightEndHr, "FARE_NIGHT_END_HOUR", &errs)
	setFloatFromEnv(&cfg.CaptainCutPct, "CAPTAIN_CUT_PCT", &errs)

	setFloatFromEnv(&cfg.DefaultSpeedMps, "MATCHER_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.MatcherTopN, "MATCHER_TOP_N", &errs)
	setFloatFromEnv(&cfg.SearchRadiusM, "MATCHER_SEARCH_RADIUS_M", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MatcherTopN <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_TOP_N must be > 0"))
	}
	if cfg.SearchRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("MATCHER_SEARCH_RADIUS_M must be > 0"))
	}
	if cfg.CaptainCutPct <= 0 || cfg.CaptainCutPct > 100 {
		errs = append(errs, fmt.Errorf("CAPTAIN_CUT_PCT must be in (0,100]"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig is the subset the location consumer needs. It has no
// required settings; the defaults target a local single-node stack.
type ConsumerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	LogLevel      string
}

func LoadConsumerConfig() ConsumerConfig {
	cfg := ConsumerConfig{
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "captains_geo",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "captain-locations",
		KafkaGroup:   "boots-consumer",
		LogLevel:     "info",
	}
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
