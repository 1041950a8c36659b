package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds every setting of the service.
type Config struct {
	DatabaseURL        string
	StoreDriver        string
	JWTSecretKey       string
	ServerPort         int
	LogLevel           string
	Environment        string
	CORSAllowedOrigins []string

	RepairMaxPasses      int
	RepairPassBackoff    time.Duration
	RepairConcurrency    int
	SupervisorInterval   time.Duration
	HealthSweepInterval  time.Duration
	InlineTriggerEnabled bool

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads the configuration from the environment. A .env file is loaded
// first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getenv("DATABASE_URL"),
		StoreDriver:       strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER"))),
		JWTSecretKey:      getenv("JWT_SECRET_KEY"),
		LogLevel:          withDefault(getenv("LOG_LEVEL"), "info"),
		Environment:       withDefault(getenv("ENVIRONMENT"), "production"),
		R2AccountID:       getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	var err error
	if cfg.ServerPort, err = intVar(getenv, "SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	if cfg.RepairMaxPasses, err = intVar(getenv, "REPAIR_MAX_PASSES", 3); err != nil {
		return nil, err
	}
	if cfg.RepairMaxPasses < 1 {
		return nil, fmt.Errorf("REPAIR_MAX_PASSES must be at least 1, got %d", cfg.RepairMaxPasses)
	}
	if cfg.RepairConcurrency, err = intVar(getenv, "REPAIR_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RepairConcurrency < 1 {
		return nil, fmt.Errorf("REPAIR_CONCURRENCY must be at least 1, got %d", cfg.RepairConcurrency)
	}

	if cfg.RepairPassBackoff, err = durationVar(getenv, "REPAIR_PASS_BACKOFF", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SupervisorInterval, err = durationVar(getenv, "SUPERVISOR_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HealthSweepInterval, err = durationVar(getenv, "HEALTH_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.InlineTriggerEnabled, err = boolVar(getenv, "INLINE_TRIGGER_ENABLED", true); err != nil {
		return nil, err
	}

	if origins := getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	} else {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	return cfg, nil
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return v, nil
}

func boolVar(getenv func(string) string, key string, def bool) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
