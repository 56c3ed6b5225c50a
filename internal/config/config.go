// internal/config/config.go

// Package config collects every environment-driven setting in one
// struct so the pieces can be wired explicitly instead of reading
// ambient globals deep in the stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/giziti/beltbot/internal/belt"
)

// Config is the bot's startup configuration.
type Config struct {
	DatabaseURL string

	RedisAddr string
	RedisDB   int

	GatewayURL   string
	GatewayToken string

	HTTPAddr string

	CommandPrefix string

	// ModPasswordHash is the Argon2id hash moderators log in against
	// on the HTTP surface. Empty disables moderator login.
	ModPasswordHash string
	SessionTTL      time.Duration

	// BeltTableFile optionally overrides the compiled-in thresholds.
	BeltTableFile string

	ProfileCacheTTL time.Duration

	// RankRoles is the set of rank role names that actually exist on
	// the chat platform. Granting a rank outside this set fails with
	// a role-not-configured error.
	RankRoles []string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewayToken:    os.Getenv("GATEWAY_TOKEN"),
		HTTPAddr:        ":" + getEnv("PORT", "8080"),
		CommandPrefix:   getEnv("COMMAND_PREFIX", "!"),
		ModPasswordHash: os.Getenv("MOD_PASSWORD_HASH"),
		BeltTableFile:   os.Getenv("BELT_TABLE_FILE"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			os.Getenv("PG_DATABASE"),
		)
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}

	var err error
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ProfileCacheTTL, err = getEnvDuration("PROFILE_CACHE_TTL", 2*time.Minute); err != nil {
		return nil, err
	}

	if roles := os.Getenv("RANK_ROLES"); roles != "" {
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.RankRoles = append(cfg.RankRoles, strings.ToLower(r))
			}
		}
	} else {
		cfg.RankRoles = belt.Names()
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
