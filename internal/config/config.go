package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

const (
	defaultAppName          = "TokenLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultContractAccount  = "token.ledger"
	defaultStorageBytePrice = "10000000000000000000"
	defaultPrepaidTGas      = 300
	defaultGasTime          = 100 * time.Millisecond
	defaultCallerRateLimit  = 30
	defaultTokenTTL         = time.Hour
	defaultDatabaseMaxConns = 10
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Allowlist backends.
const (
	AllowlistAuto     = "auto"
	AllowlistMemory   = "memory"
	AllowlistPostgres = "postgres"
	AllowlistRedis    = "redis"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName     string
	AppEnv      string
	Port        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	DatabaseMaxConns int32

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	AllowlistBackend string

	ContractAccount  account.ID
	OwnerAccount     account.ID
	TotalSupply      balance.Balance
	MetadataFile     string
	StorageBytePrice balance.Balance

	CounterpartURL         string
	CounterpartStubOutcome string
	PrepaidTGas            uint64
	GasTime                time.Duration

	JWTSecret       string
	TokenTTL        time.Duration
	CallerRateLimit int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:                getEnv("APP_NAME", defaultAppName),
		AppEnv:                 getEnv("APP_ENV", defaultAppEnv),
		Port:                   getEnv("PORT", defaultPort),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		DatabaseMaxConns:       defaultDatabaseMaxConns,
		ShutdownPeriod:         defaultShutdownDelay,
		IdempotencyTTL:         defaultIdempotencyTTL,
		AllowlistBackend:       strings.ToLower(getEnv("ALLOWLIST_BACKEND", AllowlistAuto)),
		MetadataFile:           os.Getenv("METADATA_FILE"),
		CounterpartURL:         os.Getenv("COUNTERPART_URL"),
		CounterpartStubOutcome: strings.ToLower(getEnv("COUNTERPART_STUB_OUTCOME", "success")),
		PrepaidTGas:            defaultPrepaidTGas,
		GasTime:                defaultGasTime,
		JWTSecret:              os.Getenv("JWT_SECRET"),
		TokenTTL:               defaultTokenTTL,
		CallerRateLimit:        defaultCallerRateLimit,
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.GasTime, err = duration("GAS_TIME_PER_TGAS", cfg.GasTime); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = duration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("PREPAID_GAS_TGAS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PREPAID_GAS_TGAS: %w", err)
		}
		cfg.PrepaidTGas = n
	}
	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNS %q", v)
		}
		cfg.DatabaseMaxConns = int32(n)
	}
	if v := os.Getenv("CALLER_RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CALLER_RATE_LIMIT_PER_MIN: %w", err)
		}
		cfg.CallerRateLimit = n
	}

	if cfg.ContractAccount, err = account.Parse(getEnv("CONTRACT_ACCOUNT", defaultContractAccount)); err != nil {
		return Config{}, fmt.Errorf("invalid CONTRACT_ACCOUNT: %w", err)
	}
	if v := os.Getenv("OWNER_ACCOUNT"); v != "" {
		if cfg.OwnerAccount, err = account.Parse(v); err != nil {
			return Config{}, fmt.Errorf("invalid OWNER_ACCOUNT: %w", err)
		}
	}
	if v := os.Getenv("TOTAL_SUPPLY"); v != "" {
		if cfg.TotalSupply, err = balance.Parse(v); err != nil {
			return Config{}, fmt.Errorf("invalid TOTAL_SUPPLY: %w", err)
		}
	}
	if cfg.StorageBytePrice, err = balance.Parse(getEnv("STORAGE_BYTE_PRICE", defaultStorageBytePrice)); err != nil {
		return Config{}, fmt.Errorf("invalid STORAGE_BYTE_PRICE: %w", err)
	}

	switch cfg.AllowlistBackend {
	case AllowlistAuto, AllowlistMemory, AllowlistPostgres, AllowlistRedis:
	default:
		return Config{}, fmt.Errorf("invalid ALLOWLIST_BACKEND %q", cfg.AllowlistBackend)
	}
	switch cfg.CounterpartStubOutcome {
	case "success", "failure":
	default:
		return Config{}, fmt.Errorf("invalid COUNTERPART_STUB_OUTCOME %q", cfg.CounterpartStubOutcome)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.CounterpartURL == "" {
			return Config{}, fmt.Errorf("COUNTERPART_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local development mode where
// in-memory backends and a stub counterpart are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
