package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/authcache"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/lookup"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds everything the service consumes from the environment. The
// access-code map is immutable for the process lifetime.
type Config struct {
	ListenAddr string

	Store string // memory | postgres
	PGDSN string

	AuthTable   string
	RecordTable string
	Columns     lookup.Columns

	AccessCodes map[string]authcache.Role

	SessionTTL time.Duration

	// Client-side quota towards the remote table store.
	StoreRatePerSec float64
	StoreRateBurst  int
}

// Load reads configuration from SNITCH_* environment variables with
// defaults and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("SNITCH_LISTEN_ADDR", ":8080"),
		Store:       strings.ToLower(getEnv("SNITCH_STORE", StoreMemory)),
		PGDSN:       os.Getenv("SNITCH_PG_DSN"),
		AuthTable:   getEnv("SNITCH_AUTH_TABLE", "auth_log"),
		RecordTable: getEnv("SNITCH_RECORD_TABLE", "records"),
		Columns: lookup.Columns{
			Name:   getEnv("SNITCH_NAME_COLUMN", "name"),
			Key:    getEnv("SNITCH_KEY_COLUMN", "customer_id"),
			Secret: getEnv("SNITCH_SECRET_COLUMN", "secret"),
		},
		SessionTTL:      12 * time.Hour,
		StoreRatePerSec: 1,
		StoreRateBurst:  10,
	}

	codes, err := ParseAccessCodes(os.Getenv("SNITCH_ACCESS_CODES"))
	if err != nil {
		return nil, err
	}
	cfg.AccessCodes = codes

	if raw := os.Getenv("SNITCH_SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SNITCH_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	if raw := os.Getenv("SNITCH_STORE_RATE"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SNITCH_STORE_RATE: %w", err)
		}
		cfg.StoreRatePerSec = rate
	}
	if raw := os.Getenv("SNITCH_STORE_BURST"); raw != "" {
		burst, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SNITCH_STORE_BURST: %w", err)
		}
		cfg.StoreRateBurst = burst
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("SNITCH_LISTEN_ADDR cannot be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			return fmt.Errorf("SNITCH_PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unsupported SNITCH_STORE %q", c.Store)
	}
	if len(c.AccessCodes) == 0 {
		return fmt.Errorf("SNITCH_ACCESS_CODES must define at least one code")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SNITCH_SESSION_TTL must be positive")
	}
	if c.StoreRatePerSec <= 0 || c.StoreRateBurst <= 0 {
		return fmt.Errorf("store rate limit must be positive")
	}
	return nil
}

// ParseAccessCodes parses a "code:role,code:role" list. Codes and roles are
// case-normalized; duplicate codes are an error rather than a silent
// override.
func ParseAccessCodes(raw string) (map[string]authcache.Role, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("SNITCH_ACCESS_CODES is not set")
	}
	codes := make(map[string]authcache.Role)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, role, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid access code entry %q (want code:role)", pair)
		}
		code = strings.TrimSpace(strings.ToLower(code))
		role = strings.TrimSpace(strings.ToLower(role))
		if code == "" || role == "" {
			return nil, fmt.Errorf("invalid access code entry %q", pair)
		}
		if _, dup := codes[code]; dup {
			return nil, fmt.Errorf("duplicate access code %q", code)
		}
		codes[code] = authcache.Role(role)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("SNITCH_ACCESS_CODES is empty")
	}
	return codes, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
