package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; DATABASE_URL, SATUSEHAT_CLIENT_ID,
// SATUSEHAT_CLIENT_SECRET and SATUSEHAT_ORG_ID are required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// LIS result feed
	LISBaseURL    string
	LISTimeout    time.Duration
	LISRatePerSec int

	// SATUSEHAT
	AuthBaseURL    string
	FHIRBaseURL    string
	ClientID       string
	ClientSecret   string
	OrganizationID string
	AuthTimeout    time.Duration
	SubmitTimeout  time.Duration

	// Bridging pipeline
	BatchLimit    int
	BridgeWorkers int
	PollInterval  time.Duration

	// Orders older than this date are never considered candidates.
	// Zero value means "start of today", resolved at each run.
	StartDate time.Time
}

func Load() (*Config, error) {
	// Populate the environment from .env when present; real env vars win.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	clientID := os.Getenv("SATUSEHAT_CLIENT_ID")
	clientSecret := os.Getenv("SATUSEHAT_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("SATUSEHAT_CLIENT_ID and SATUSEHAT_CLIENT_SECRET are required")
	}

	orgID := os.Getenv("SATUSEHAT_ORG_ID")
	if orgID == "" {
		return nil, fmt.Errorf("SATUSEHAT_ORG_ID is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		LISBaseURL:    getEnv("LIS_BASE_URL", "http://localhost:9090/api/hasil/"),
		LISTimeout:    getDuration("LIS_TIMEOUT", 30*time.Second),
		LISRatePerSec: getInt("LIS_RATE_PER_SEC", 5),

		AuthBaseURL:    getEnv("SATUSEHAT_AUTH_URL", "https://api-satusehat.kemkes.go.id/oauth2/v1"),
		FHIRBaseURL:    getEnv("SATUSEHAT_FHIR_URL", "https://api-satusehat.kemkes.go.id/fhir-r4/v1"),
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		OrganizationID: orgID,
		AuthTimeout:    getDuration("SATUSEHAT_AUTH_TIMEOUT", 15*time.Second),
		SubmitTimeout:  getDuration("SATUSEHAT_SUBMIT_TIMEOUT", 30*time.Second),

		BatchLimit:    getInt("BRIDGE_BATCH_LIMIT", 10),
		BridgeWorkers: getInt("BRIDGE_WORKERS", 3),
		PollInterval:  getDuration("BRIDGE_POLL_INTERVAL", time.Minute),
	}

	if v := os.Getenv("BRIDGE_START_DATE"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("parse BRIDGE_START_DATE: %w", err)
		}
		cfg.StartDate = t
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
