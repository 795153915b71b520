// Package config loads application configuration from environment
// variables.  Required values go through must/mustInt and stop the process
// when missing; optional blocks use the env* helpers with defaults.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Config holds the core runtime settings.
type Config struct {
	Env            string // APP_ENV (dev, test, prod)
	Port           string // APP_PORT
	DBUser         string
	DBPass         string // may be empty
	DBHost         string
	DBPort         string
	DBName         string
	DBMaxOpenConns int
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	// AdminEmails and StaffEmails receive those roles on registration.
	AdminEmails map[string]bool
	StaffEmails map[string]bool

	// Services lists the accepted slot service tags.
	Services []model.Service
	// SlotLocation is the zone slot dates and times are read in.
	SlotLocation *time.Location
}

// Load reads the core configuration.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		AdminEmails:    parseEmails(envStr("ADMIN_EMAILS", "")),
		StaffEmails:    parseEmails(envStr("STAFF_EMAILS", "")),
		Services:       parseServices(envStr("SERVICES", "LIBRARY,CANTEEN")),
		SlotLocation:   mustLocation(envStr("SLOT_TIMEZONE", "UTC")),
	}
}

func parseServices(raw string) []model.Service {
	var out []model.Service
	seen := map[model.Service]bool{}
	for _, p := range strings.Split(raw, ",") {
		s := model.NormalizeService(p)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		log.Fatalf("SERVICES must name at least one service")
	}
	return out
}

func parseEmails(raw string) map[string]bool {
	out := map[string]bool{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out[p] = true
		}
	}
	return out
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid SLOT_TIMEZONE %q: %v", name, err)
	}
	return loc
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is must followed by an integer conversion.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envStr(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k))); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k))); err == nil {
		return dur
	}
	return d
}
