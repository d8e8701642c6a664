package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tapdeal/internal/utils/money"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found")
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", val).Msg("invalid integer, using default")
	}
	return defaultVal
}

// GetDurationEnv returns a time.Duration environment variable or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", val).Msg("invalid duration, using default")
	}
	return defaultVal
}

// GetDecimalEnv returns a decimal environment variable or a default value.
func GetDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", val).Msg("invalid decimal, using default")
	}
	return defaultVal
}

// GetAmountEnv reads a minor-unit amount.
func GetAmountEnv(key string, defaultVal money.Amount) money.Amount {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return money.Amount(i)
		}
		log.Warn().Str("key", key).Str("value", val).Msg("invalid amount, using default")
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN builds the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type BillConfig struct {
	MinAmount       money.Amount
	MaxAmount       money.Amount
	MaxDiscountRate decimal.Decimal
	DefaultExpiry   time.Duration
	MaxExpiry       time.Duration
	TokenGrace      time.Duration
	PurgeGrace      time.Duration
}

type GatewayConfig struct {
	Provider          string
	Timeout           time.Duration
	MaxRetries        int
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayWebhook   string
	RazorpayBaseURL   string
	StripeSecretKey   string
	StripePublicKey   string
	StripeWebhook     string
}

type ReconcileConfig struct {
	Interval        time.Duration
	PendingAfter    time.Duration
	AbandonAfter    time.Duration
	Lookback        time.Duration
	Concurrency     int
	BatchSize       int
	JanitorInterval time.Duration
}

type Config struct {
	Env             string
	Port            string
	LogLevel        string
	CORSOrigins     string
	JWTSecret       string
	QRTokenSecret   string
	Currency        string
	PlatformFeeRate decimal.Decimal
	Database        DatabaseConfig
	Redis           RedisConfig
	Bill            BillConfig
	Gateway         GatewayConfig
	Reconcile       ReconcileConfig
}

// Load assembles the configuration from the environment.
func Load() (*Config, error) {
	purgeGrace := GetDurationEnv("BILL_PURGE_GRACE", 24*time.Hour)
	cfg := &Config{
		Env:             GetEnv("ENV", "development"),
		Port:            GetEnv("PORT", "3000"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		CORSOrigins:     GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		JWTSecret:       GetEnv("JWT_SECRET", ""),
		QRTokenSecret:   GetEnv("QR_TOKEN_SECRET", ""),
		Currency:        strings.ToUpper(GetEnv("CURRENCY", "INR")),
		PlatformFeeRate: GetDecimalEnv("PLATFORM_FEE_RATE", decimal.NewFromInt(1)),
		Database: DatabaseConfig{
			Driver:          GetEnv("DB_DRIVER", "postgres"),
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "tapdeal"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Bill: BillConfig{
			MinAmount:       GetAmountEnv("BILL_MIN_AMOUNT", 100),
			MaxAmount:       GetAmountEnv("BILL_MAX_AMOUNT", 10000000),
			MaxDiscountRate: GetDecimalEnv("BILL_MAX_DISCOUNT_RATE", decimal.NewFromInt(50)),
			DefaultExpiry:   time.Duration(GetIntEnv("BILL_DEFAULT_EXPIRY_MINUTES", 10)) * time.Minute,
			MaxExpiry:       time.Duration(GetIntEnv("BILL_MAX_EXPIRY_MINUTES", 1440)) * time.Minute,
			TokenGrace:      GetDurationEnv("BILL_TOKEN_GRACE", purgeGrace),
			PurgeGrace:      purgeGrace,
		},
		Gateway: GatewayConfig{
			Provider:          GetEnv("GATEWAY_PROVIDER", "razorpay"),
			Timeout:           GetDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
			MaxRetries:        GetIntEnv("GATEWAY_MAX_RETRIES", 3),
			RazorpayKeyID:     GetEnv("RAZORPAY_KEY_ID", ""),
			RazorpayKeySecret: GetEnv("RAZORPAY_KEY_SECRET", ""),
			RazorpayWebhook:   GetEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			RazorpayBaseURL:   GetEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			StripeSecretKey:   GetEnv("STRIPE_SECRET_KEY", ""),
			StripePublicKey:   GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
			StripeWebhook:     GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Reconcile: ReconcileConfig{
			Interval:        GetDurationEnv("RECONCILE_INTERVAL", 5*time.Minute),
			PendingAfter:    GetDurationEnv("RECONCILE_PENDING_AFTER", 15*time.Minute),
			AbandonAfter:    GetDurationEnv("ORDER_ABANDON_AFTER", 24*time.Hour),
			Lookback:        GetDurationEnv("RECONCILE_LOOKBACK", 48*time.Hour),
			Concurrency:     GetIntEnv("RECONCILE_CONCURRENCY", 8),
			BatchSize:       GetIntEnv("RECONCILE_BATCH_SIZE", 200),
			JanitorInterval: GetDurationEnv("BILL_JANITOR_INTERVAL", time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.QRTokenSecret == "" {
			return fmt.Errorf("QR_TOKEN_SECRET must be set in production")
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-jwt-secret"
	}
	if c.QRTokenSecret == "" {
		c.QRTokenSecret = "dev-qr-secret"
	}
	if c.Bill.MinAmount <= 0 || c.Bill.MaxAmount < c.Bill.MinAmount {
		return fmt.Errorf("invalid bill amount bounds [%d, %d]", c.Bill.MinAmount, c.Bill.MaxAmount)
	}
	if c.Bill.DefaultExpiry <= 0 || c.Bill.DefaultExpiry > c.Bill.MaxExpiry {
		return fmt.Errorf("invalid bill expiry defaults")
	}
	if c.PlatformFeeRate.IsNegative() || c.PlatformFeeRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("PLATFORM_FEE_RATE must be between 0 and 100")
	}
	switch c.Gateway.Provider {
	case "razorpay", "stripe":
	default:
		return fmt.Errorf("unsupported GATEWAY_PROVIDER %q", c.Gateway.Provider)
	}
	return nil
}
