package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Artifact ArtifactConfig
}

// Load reads configuration from environment variables. Invalid values are a
// startup-time fatal; nothing here is retried at request time.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store:  storeCfg,
		Artifact: ArtifactConfig{
			BaseURL: getEnvOrDefault("ARTIFACT_STORE_URL", "mem://localhost/artifacts"),
		},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig describes the shared session-state backend and the bounds on
// talking to it.
type StoreConfig struct {
	// Path of the shared SQLite database. Empty selects the in-memory store
	// (single-node development only).
	Path string
	// TTL after which an untouched session counts as expired; zero disables
	// expiry.
	TTL time.Duration
	// Timeout caps each individual load/swap call.
	Timeout time.Duration
	// MaxAttempts bounds load retries when the backend is unreachable.
	MaxAttempts int
	// RetryBaseDelay is the first backoff delay between retries.
	RetryBaseDelay time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	ttlSeconds, err := parseOptionalIntEnv("SESSION_TTL_SECONDS")
	if err != nil {
		return StoreConfig{}, err
	}
	ttl := time.Duration(0)
	if ttlSeconds != nil {
		if *ttlSeconds < 0 {
			return StoreConfig{}, fmt.Errorf("SESSION_TTL_SECONDS must not be negative")
		}
		ttl = time.Duration(*ttlSeconds) * time.Second
	}

	timeoutSeconds, err := parseOptionalIntEnv("STORE_TIMEOUT_SECONDS")
	if err != nil {
		return StoreConfig{}, err
	}
	timeout := 2 * time.Second
	if timeoutSeconds != nil {
		if *timeoutSeconds < 1 {
			return StoreConfig{}, fmt.Errorf("STORE_TIMEOUT_SECONDS must be at least 1")
		}
		timeout = time.Duration(*timeoutSeconds) * time.Second
	}

	maxAttempts := 3
	if attempts, err := parseOptionalIntEnv("STORE_MAX_ATTEMPTS"); err != nil {
		return StoreConfig{}, err
	} else if attempts != nil {
		if *attempts < 1 {
			return StoreConfig{}, fmt.Errorf("STORE_MAX_ATTEMPTS must be at least 1")
		}
		maxAttempts = *attempts
	}

	retryBase := 100 * time.Millisecond
	if baseMs, err := parseOptionalIntEnv("STORE_RETRY_BASE_MS"); err != nil {
		return StoreConfig{}, err
	} else if baseMs != nil {
		if *baseMs < 1 {
			return StoreConfig{}, fmt.Errorf("STORE_RETRY_BASE_MS must be at least 1")
		}
		retryBase = time.Duration(*baseMs) * time.Millisecond
	}

	return StoreConfig{
		Path:           strings.TrimSpace(os.Getenv("SESSION_STORE_PATH")),
		TTL:            ttl,
		Timeout:        timeout,
		MaxAttempts:    maxAttempts,
		RetryBaseDelay: retryBase,
	}, nil
}

// ArtifactConfig describes where artifact bodies are written.
type ArtifactConfig struct {
	BaseURL string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
