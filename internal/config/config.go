// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Transport selects the front door the daemon serves.
const (
	TransportWS   = "ws"
	TransportNATS = "nats"
)

// Config holds everything the daemon needs to start.
type Config struct {
	ListenAddr  string // HTTP listener: websocket endpoint, /healthz, /metrics
	Transport   string // "ws" or "nats"
	NATSURL     string // required when Transport == "nats"
	RedisAddr   string // optional; empty disables rate limiting
	DatabaseURL string // optional; empty disables the report archive
	StateFile   string // snapshot path

	BanThreshold int
	BanDuration  time.Duration

	RequireFullProfile bool // gender+age+country instead of gender only
	RequeueSkipped     bool // skipped partner re-enters the queue too

	WriteTimeout time.Duration
}

// Load reads configuration from the environment. A missing .env file is not
// an error; a malformed value is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}

	cfg := &Config{
		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		Transport:    getEnv("TRANSPORT", TransportWS),
		NATSURL:      getEnv("NATS_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StateFile:    getEnv("STATE_FILE", "data/state.json"),
		BanThreshold: 10,
		BanDuration:  24 * time.Hour,
		WriteTimeout: 10 * time.Second,
	}

	if v := os.Getenv("BAN_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: BAN_THRESHOLD %q: want positive integer", v)
		}
		cfg.BanThreshold = n
	}
	if v := os.Getenv("BAN_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: BAN_DURATION %q: want positive duration", v)
		}
		cfg.BanDuration = d
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: WRITE_TIMEOUT %q: want positive duration", v)
		}
		cfg.WriteTimeout = d
	}

	var err error
	if cfg.RequireFullProfile, err = getBool("REQUIRE_FULL_PROFILE", false); err != nil {
		return nil, err
	}
	if cfg.RequeueSkipped, err = getBool("REQUEUE_SKIPPED", false); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case TransportWS:
	case TransportNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("config: TRANSPORT=nats requires NATS_URL")
		}
	default:
		return nil, fmt.Errorf("config: TRANSPORT %q: want %q or %q", cfg.Transport, TransportWS, TransportNATS)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s %q: want boolean", key, v)
	}
	return b, nil
}
