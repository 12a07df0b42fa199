package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment           string
	Addr                  string
	LogLevel              string
	DatabaseURL           string
	MigrationsDir         string
	JWTSecret             string
	JWTIssuer             string
	SessionTTL            time.Duration
	SessionCookieName     string
	SessionCookieSecure   bool
	CLITokenTTL           time.Duration
	DeviceCodeTTL         time.Duration
	DevicePollInterval    time.Duration
	DeviceSweepInterval   time.Duration
	DeviceVerificationURL string
	DeviceCodeAttempts    int
	VerifyRateLimit       int
	RateLimitRedisAddr    string
	RateLimitRedisPass    string
	RateLimitRedisDB      int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:           GetString("APP_ENV", "development"),
		Addr:                  GetString("API_ADDR", ":4000"),
		LogLevel:              GetString("LOG_LEVEL", "info"),
		DatabaseURL:           GetString("DATABASE_URL", "postgres://todo:todo@db:5432/todofordevs?sslmode=disable"),
		MigrationsDir:         GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:             GetString("JWT_SECRET", "supersecuresecret"),
		JWTIssuer:             GetString("JWT_ISSUER", "todofordevs"),
		SessionTTL:            GetDuration("SESSION_TTL_HOURS", time.Hour, 24*time.Hour),
		SessionCookieName:     GetString("SESSION_COOKIE_NAME", "tfd_session"),
		SessionCookieSecure:   GetBool("SESSION_COOKIE_SECURE", false),
		CLITokenTTL:           GetDuration("CLI_TOKEN_TTL_HOURS", time.Hour, 168*time.Hour),
		DeviceCodeTTL:         GetDuration("DEVICE_CODE_TTL_SECONDS", time.Second, 900*time.Second),
		DevicePollInterval:    GetDuration("DEVICE_POLL_INTERVAL_SECONDS", time.Second, 5*time.Second),
		DeviceSweepInterval:   GetDuration("DEVICE_SWEEP_SECONDS", time.Second, 60*time.Second),
		DeviceVerificationURL: GetString("DEVICE_VERIFICATION_URL", "http://localhost:3000/device"),
		DeviceCodeAttempts:    GetInt("DEVICE_CODE_ATTEMPTS", 5),
		VerifyRateLimit:       GetInt("DEVICE_VERIFY_RATE_LIMIT", 10),
		RateLimitRedisAddr:    GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:    GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:      GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
