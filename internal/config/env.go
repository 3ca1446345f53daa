// Package config loads the gateway's environment-variable configuration:
// an optional .env file parsed first, real environment variables always
// winning, feeding a typed struct with a validate() that fails fast
// (exit code 1) on bad values.
package config

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
)

// Env holds the gateway's environment-variable configuration.
type Env struct {
	Port           int    // GATEWAY_PORT
	Host           string // GATEWAY_HOST
	AdminAddr      string // ADMIN_ADDR
	ClientHeader   string // GATEWAY_CLIENT_HEADER
	LatencyWindow  int    // GATEWAY_LATENCY_WINDOW
	DefaultTier    string // GATEWAY_DEFAULT_TIER
	ClientTTL      int    // GATEWAY_CLIENT_TTL, seconds; 0 disables eviction
	UpstreamsFile  string // GATEWAY_UPSTREAMS_FILE
	RouteCostsFile string // GATEWAY_ROUTE_COSTS_FILE, optional

	AppEnv   string // APP_ENV, "production" or "test"
	LogLevel string // LOG_LEVEL

	TLSCertFile string // GATEWAY_TLS_CERT
	TLSKeyFile  string // GATEWAY_TLS_KEY
}

// Addr renders the public listener address as host:port.
func (e *Env) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e *Env) IsProduction() bool {
	return e.AppEnv == "production"
}

// LoadEnv loads an optional .env file, then reads environment variables.
//
// Resolution order (last wins):
//  1. .env file (if present — not required)
//  2. Real environment variables (always override .env file)
//
// The .env file is searched in this order:
//  1. ENV_FILE env var (explicit path)
//  2. .env in the current working directory
//  3. ../.env (project root when running from a subdirectory)
func LoadEnv() (*Env, error) {
	// Load .env file if found — does NOT override existing env vars
	loadDotEnv()

	env := &Env{
		Port:           envIntOr("GATEWAY_PORT", 8000),
		Host:           envOr("GATEWAY_HOST", "0.0.0.0"),
		AdminAddr:      envOr("ADMIN_ADDR", ":9090"),
		ClientHeader:   envOr("GATEWAY_CLIENT_HEADER", "X-Client-ID"),
		LatencyWindow:  envIntOr("GATEWAY_LATENCY_WINDOW", 1000),
		DefaultTier:    strings.ToUpper(envOr("GATEWAY_DEFAULT_TIER", "FREE")),
		ClientTTL:      envIntOr("GATEWAY_CLIENT_TTL", 3600),
		UpstreamsFile:  envOr("GATEWAY_UPSTREAMS_FILE", "upstreams.json"),
		RouteCostsFile: os.Getenv("GATEWAY_ROUTE_COSTS_FILE"),
		AppEnv:         strings.ToLower(strings.TrimSpace(envOr("APP_ENV", "test"))),
		LogLevel:       strings.ToUpper(envOr("LOG_LEVEL", "INFO")),
		TLSCertFile:    os.Getenv("GATEWAY_TLS_CERT"),
		TLSKeyFile:     os.Getenv("GATEWAY_TLS_KEY"),
	}

	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// ── .env file loader ────────────────────────────────────────────────────
// Lightweight loader — no external dependencies. Sets env vars only if
// they are not already set (real env always wins).

func loadDotEnv() {
	// Explicit path takes priority
	candidates := []string{
		os.Getenv("ENV_FILE"),
		".env",
		"../.env",
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			if err := parseDotEnv(path); err != nil {
				log.Printf("Warning: failed to parse %s: %v", path, err)
			} else {
				log.Printf("Loaded env from %s", path)
			}
			return
		}
	}
	// No .env found — fine, rely on real environment
}

func parseDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip blanks and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Strip surrounding quotes
		value = strings.Trim(value, `"'`)

		// Only set if not already defined — real env always wins
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

func (e *Env) validate() error {
	switch e.AppEnv {
	case "production", "test":
	default:
		return fmt.Errorf("APP_ENV must be 'production' or 'test', got %q", e.AppEnv)
	}
	switch e.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("LOG_LEVEL must be DEBUG|INFO|WARN|ERROR, got %q", e.LogLevel)
	}
	switch e.DefaultTier {
	case "FREE", "BASIC", "PREMIUM", "ENTERPRISE":
	default:
		return fmt.Errorf("GATEWAY_DEFAULT_TIER must be one of FREE|BASIC|PREMIUM|ENTERPRISE, got %q", e.DefaultTier)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("GATEWAY_PORT out of range: %d", e.Port)
	}
	if e.LatencyWindow < 1 {
		return fmt.Errorf("GATEWAY_LATENCY_WINDOW must be >= 1, got %d", e.LatencyWindow)
	}
	if e.ClientTTL < 0 {
		return fmt.Errorf("GATEWAY_CLIENT_TTL must be >= 0, got %d", e.ClientTTL)
	}
	if e.UpstreamsFile == "" {
		return fmt.Errorf("GATEWAY_UPSTREAMS_FILE must not be empty")
	}
	if (e.TLSCertFile == "") != (e.TLSKeyFile == "") {
		return fmt.Errorf("GATEWAY_TLS_CERT and GATEWAY_TLS_KEY must be set together")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
