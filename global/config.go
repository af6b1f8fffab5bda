package global

import (
	"os"
	"strconv"

	"PGateway/logger"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds everything the gateway reads from the environment.
// A .env file is honored when present; real env vars win.
type Config struct {
	Port        int
	DatabaseURL string
	RedisURL    string
	NatsURL     string
	JwtSecret   []byte
	GatewayID   string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("[Config] no .env file: %v", err)
	}

	secret := os.Getenv("JWT_ACCESS_SECRET")
	if secret == "" {
		return nil, errors.New("missing environment variable: JWT_ACCESS_SECRET")
	}

	cfg := &Config{
		Port:        4000,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		NatsURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		JwtSecret:   []byte(secret),
		GatewayID:   getEnv("GATEWAY_ID", "gw-1"),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("missing environment variable: DATABASE_URL")
	}
	if p := os.Getenv("PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid PORT %q", p)
		}
		cfg.Port = n
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
