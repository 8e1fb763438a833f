package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all sealbox daemon configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`

	// KeyBackend selects master key custody: "keyring" keeps a random key in
	// the OS credential store, "passphrase" derives it from SEALBOX_PASSPHRASE.
	KeyBackend     string `json:"key_backend"`
	KeyringService string `json:"keyring_service"`
	Passphrase     string `json:"-"`

	PoolSize         int    `json:"pool_size"`
	MaxJobs          int    `json:"max_jobs"`
	JobTTL           string `json:"job_ttl"`
	MaxOAuthSessions int    `json:"max_oauth_sessions"`
	OAuthSessionTTL  string `json:"oauth_session_ttl"`
	SweepInterval    string `json:"sweep_interval"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:4200",
		DBPath:           filepath.Join(sealboxDir(), "sealbox.db"),
		LogLevel:         "info",
		KeyBackend:       "keyring",
		PoolSize:         3,
		MaxJobs:          3,
		JobTTL:           "2m",
		MaxOAuthSessions: 10,
		OAuthSessionTTL:  "5m",
		SweepInterval:    "30s",
	}
}

func sealboxDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sealbox"
	}
	return filepath.Join(home, ".sealbox")
}

func settingsPath() string {
	return filepath.Join(sealboxDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SEALBOX_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SEALBOX_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SEALBOX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SEALBOX_KEY_BACKEND"); v != "" {
		cfg.KeyBackend = v
	}
	if v := os.Getenv("SEALBOX_KEYRING_SERVICE"); v != "" {
		cfg.KeyringService = v
	}
	cfg.Passphrase = os.Getenv("SEALBOX_PASSPHRASE")
	if v := os.Getenv("SEALBOX_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("SEALBOX_MAX_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxJobs = n
		}
	}
	if v := os.Getenv("SEALBOX_JOB_TTL"); v != "" {
		cfg.JobTTL = v
	}
	if v := os.Getenv("SEALBOX_MAX_OAUTH_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOAuthSessions = n
		}
	}
	if v := os.Getenv("SEALBOX_OAUTH_SESSION_TTL"); v != "" {
		cfg.OAuthSessionTTL = v
	}
	if v := os.Getenv("SEALBOX_SWEEP_INTERVAL"); v != "" {
		cfg.SweepInterval = v
	}

	return cfg
}

// duration parses a config duration string, falling back when empty or bad.
func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
