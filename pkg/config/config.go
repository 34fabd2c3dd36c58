package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const minSecretLength = 32

type Config struct {
	Env        string
	Port       int
	APIPrefix  string
	AppBaseURL string

	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	CORS      CORSConfig
	SMTP      SMTPConfig
	SMS       SMSConfig
	Billing   BillingConfig
	Orders    OrdersConfig
	Dispatch  DispatchConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig groups every credential/session security knob. Secrets are
// validated once at startup, not per call.
type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string

	PasswordPepper string
	TokenPepper    string

	CookieName   string
	CookieDomain string
	CookiePath   string
	CookieSecure bool

	LockoutFailThreshold int
	LockoutDuration      time.Duration

	VerifyTokenTTL  time.Duration
	ResetCodeTTL    time.Duration
	ResetCodeLength int
}

// RatePolicy parameterises one sliding-window limit.
type RatePolicy struct {
	MaxCount int
	Window   time.Duration
	Block    time.Duration
}

// RateLimitConfig holds the per-action policies enforced by the limiter.
type RateLimitConfig struct {
	LoginIP    RatePolicy
	LoginEmail RatePolicy
	RegisterIP RatePolicy
	ForgotIP   RatePolicy
	ResetIP    RatePolicy
	ResetEmail RatePolicy
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	StartTLS bool
	Timeout  time.Duration
}

// SMSConfig is the global SMSAPI fallback used when a user has no
// credentials of their own.
type SMSConfig struct {
	BaseURL string
	Token   string
	Sender  string
	Timeout time.Duration
}

type BillingConfig struct {
	BaseURL    string
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

// OrdersConfig tunes the listing cache and export storage.
type OrdersConfig struct {
	CacheTTL        time.Duration
	ExportDir       string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// DispatchConfig tunes the background SMS dispatch queue.
type DispatchConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AppBaseURL = v.GetString("APP_BASE_URL")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:          v.GetString("JWT_SECRET"),
		AccessTokenExpiry:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRY"), 15*time.Minute),
		RefreshTokenExpiry: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRY"), 30*24*time.Hour),
		Issuer:             v.GetString("JWT_ISSUER"),
		Audience:           splitAndTrim(v.GetString("JWT_AUDIENCE")),
		PasswordPepper:     v.GetString("PASSWORD_PEPPER"),
		TokenPepper:        v.GetString("TOKEN_PEPPER"),
		CookieName:         v.GetString("REFRESH_COOKIE_NAME"),
		CookieDomain:       v.GetString("REFRESH_COOKIE_DOMAIN"),
		CookiePath:         v.GetString("REFRESH_COOKIE_PATH"),
		CookieSecure:       v.GetBool("REFRESH_COOKIE_SECURE"),

		LockoutFailThreshold: v.GetInt("LOCKOUT_FAIL_THRESHOLD"),
		LockoutDuration:      parseDuration(v.GetString("LOCKOUT_DURATION"), 15*time.Minute),

		VerifyTokenTTL:  parseDuration(v.GetString("EMAIL_VERIFY_TOKEN_TTL"), 48*time.Hour),
		ResetCodeTTL:    parseDuration(v.GetString("PASSWORD_RESET_CODE_TTL"), 15*time.Minute),
		ResetCodeLength: v.GetInt("PASSWORD_RESET_CODE_LENGTH"),
	}

	cfg.RateLimit = RateLimitConfig{
		LoginIP:    loadPolicy(v, "LOGIN_IP", 20, 10*time.Minute, 15*time.Minute),
		LoginEmail: loadPolicy(v, "LOGIN_EMAIL", 10, 10*time.Minute, 15*time.Minute),
		RegisterIP: loadPolicy(v, "REGISTER_IP", 10, time.Hour, time.Hour),
		ForgotIP:   loadPolicy(v, "FORGOT_IP", 5, 15*time.Minute, 30*time.Minute),
		ResetIP:    loadPolicy(v, "RESET_IP", 10, 15*time.Minute, 30*time.Minute),
		ResetEmail: loadPolicy(v, "RESET_EMAIL", 5, 15*time.Minute, 30*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		User:     v.GetString("SMTP_USER"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		StartTLS: v.GetBool("SMTP_STARTTLS"),
		Timeout:  parseDuration(v.GetString("SMTP_TIMEOUT"), 12*time.Second),
	}

	cfg.SMS = SMSConfig{
		BaseURL: v.GetString("SMSAPI_BASE_URL"),
		Token:   v.GetString("SMSAPI_TOKEN"),
		Sender:  v.GetString("SMSAPI_SENDER"),
		Timeout: parseDuration(v.GetString("SMSAPI_TIMEOUT"), 10*time.Second),
	}

	cfg.Billing = BillingConfig{
		BaseURL:    v.GetString("BILLING_BASE_URL"),
		SecretKey:  v.GetString("BILLING_SECRET_KEY"),
		Currency:   v.GetString("BILLING_CURRENCY"),
		SuccessURL: v.GetString("BILLING_SUCCESS_URL"),
		CancelURL:  v.GetString("BILLING_CANCEL_URL"),
		Timeout:    parseDuration(v.GetString("BILLING_TIMEOUT"), 15*time.Second),
	}

	cfg.Orders = OrdersConfig{
		CacheTTL:        parseDuration(v.GetString("ORDERS_CACHE_TTL"), 5*time.Minute),
		ExportDir:       v.GetString("ORDERS_EXPORT_DIR"),
		SignedURLSecret: v.GetString("ORDERS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("ORDERS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Dispatch = DispatchConfig{
		Workers:    v.GetInt("DISPATCH_WORKERS"),
		BufferSize: v.GetInt("DISPATCH_BUFFER_SIZE"),
		MaxRetries: v.GetInt("DISPATCH_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("DISPATCH_RETRY_DELAY"), 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the production secret contract. A missing pepper or JWT
// secret must stop the process before it serves a single request.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}

	secrets := []struct {
		name  string
		value string
	}{
		{"JWT_SECRET", c.Auth.JWTSecret},
		{"PASSWORD_PEPPER", c.Auth.PasswordPepper},
		{"TOKEN_PEPPER", c.Auth.TokenPepper},
	}
	for _, s := range secrets {
		if len(s.value) < minSecretLength {
			return fmt.Errorf("config: %s must be set and at least %d characters in production", s.name, minSecretLength)
		}
	}

	if c.SMTP.Host == "" || c.SMTP.From == "" {
		return errors.New("config: SMTP_HOST and SMTP_FROM are required in production")
	}

	if !c.Auth.CookieSecure {
		return errors.New("config: REFRESH_COOKIE_SECURE must be enabled in production")
	}

	return nil
}

func loadPolicy(v *viper.Viper, prefix string, maxCount int, window, block time.Duration) RatePolicy {
	p := RatePolicy{
		MaxCount: v.GetInt("RATE_" + prefix + "_MAX"),
		Window:   parseDuration(v.GetString("RATE_"+prefix+"_WINDOW"), window),
		Block:    parseDuration(v.GetString("RATE_"+prefix+"_BLOCK"), block),
	}
	if p.MaxCount <= 0 {
		p.MaxCount = maxCount
	}
	return p
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "smssend")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "smssend-api")
	v.SetDefault("JWT_AUDIENCE", "smssend-app")
	v.SetDefault("ACCESS_TOKEN_EXPIRY", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRY", "720h")
	v.SetDefault("PASSWORD_PEPPER", "")
	v.SetDefault("TOKEN_PEPPER", "")
	v.SetDefault("REFRESH_COOKIE_NAME", "smssend_refresh")
	v.SetDefault("REFRESH_COOKIE_DOMAIN", "")
	v.SetDefault("REFRESH_COOKIE_PATH", "/api/auth")
	v.SetDefault("REFRESH_COOKIE_SECURE", false)

	v.SetDefault("LOCKOUT_FAIL_THRESHOLD", 10)
	v.SetDefault("LOCKOUT_DURATION", "15m")

	v.SetDefault("EMAIL_VERIFY_TOKEN_TTL", "48h")
	v.SetDefault("PASSWORD_RESET_CODE_TTL", "15m")
	v.SetDefault("PASSWORD_RESET_CODE_LENGTH", 8)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ALLOWED_ORIGINS", "")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_STARTTLS", true)
	v.SetDefault("SMTP_TIMEOUT", "12s")

	v.SetDefault("SMSAPI_BASE_URL", "https://api.smsapi.com")
	v.SetDefault("SMSAPI_TOKEN", "")
	v.SetDefault("SMSAPI_SENDER", "")
	v.SetDefault("SMSAPI_TIMEOUT", "10s")

	v.SetDefault("BILLING_BASE_URL", "https://api.stripe.com")
	v.SetDefault("BILLING_SECRET_KEY", "")
	v.SetDefault("BILLING_CURRENCY", "ron")
	v.SetDefault("BILLING_SUCCESS_URL", "http://localhost:8080/billing/success")
	v.SetDefault("BILLING_CANCEL_URL", "http://localhost:8080/billing/cancel")
	v.SetDefault("BILLING_TIMEOUT", "15s")

	v.SetDefault("ORDERS_CACHE_TTL", "5m")
	v.SetDefault("ORDERS_EXPORT_DIR", "./exports")
	v.SetDefault("ORDERS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("ORDERS_SIGNED_URL_TTL", "30m")

	v.SetDefault("DISPATCH_WORKERS", 2)
	v.SetDefault("DISPATCH_BUFFER_SIZE", 64)
	v.SetDefault("DISPATCH_MAX_RETRIES", 3)
	v.SetDefault("DISPATCH_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
