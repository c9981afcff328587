package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env     string `envconfig:"APP_ENV" default:"development"`
	Port    string `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DB

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	CartCacheTTL  time.Duration `envconfig:"CART_CACHE_TTL" default:"10m"`

	RazorpayKeyID     string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayBaseURL   string `envconfig:"RAZORPAY_BASE_URL"`
	Currency          string `envconfig:"CURRENCY" default:"INR"`

	AdminUsername    string        `envconfig:"ADMIN_USERNAME"`
	AdminPassword    string        `envconfig:"ADMIN_PASSWORD"`
	AdminJWTSecret   string        `envconfig:"JWT_ADMIN_SECRET"`
	ShopperJWTSecret string        `envconfig:"JWT_SECRET"`
	AdminTokenTTL    time.Duration `envconfig:"ADMIN_TOKEN_TTL" default:"24h"`
	ShopperTokenTTL  time.Duration `envconfig:"USER_TOKEN_TTL" default:"168h"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`

	CartMaxQuantity int           `envconfig:"CART_MAX_QUANTITY" default:"100"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// DB holds the discrete connection settings used when DATABASE_URL is unset.
// POSTGRES_* names are accepted as fallbacks, matching the postgres image.
type DB struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER"`
	PostgresUser string `envconfig:"POSTGRES_USER"`
	Password     string `envconfig:"DB_PASSWORD"`
	PostgresPass string `envconfig:"POSTGRES_PASSWORD"`
	Name         string `envconfig:"DB_NAME"`
	PostgresDB   string `envconfig:"POSTGRES_DB"`
	SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return &c, nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" || c.Env == "prod" }

// DSN prefers DATABASE_URL and otherwise assembles a key/value DSN.
func (c *Config) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseURL); dsn != "" {
		return dsn
	}
	d := c.DB
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host,
		firstNonEmpty(d.User, d.PostgresUser, "postgres"),
		firstNonEmpty(d.Password, d.PostgresPass, "postgres"),
		firstNonEmpty(d.Name, d.PostgresDB, "kitehouse"),
		d.Port, d.SSLMode)
}

// Validate reports settings that would leave a production server unusable.
func (c *Config) Validate() error {
	if c.CartMaxQuantity < 1 {
		return fmt.Errorf("config: CART_MAX_QUANTITY must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("config: CURRENCY must be a 3-letter code, got %q", c.Currency)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("config: BASE_URL: %w", err)
	}
	if !c.IsProduction() {
		return nil
	}
	var missing []string
	for name, v := range map[string]string{
		"JWT_ADMIN_SECRET":    c.AdminJWTSecret,
		"JWT_SECRET":          c.ShopperJWTSecret,
		"RAZORPAY_KEY_ID":     c.RazorpayKeyID,
		"RAZORPAY_KEY_SECRET": c.RazorpayKeySecret,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Secrets falls back to fixed development secrets outside production.
func (c *Config) Secrets() (admin, shopper string) {
	admin, shopper = c.AdminJWTSecret, c.ShopperJWTSecret
	if admin == "" {
		admin = "dev-admin-secret"
	}
	if shopper == "" {
		shopper = "dev-user-secret"
	}
	return admin, shopper
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
