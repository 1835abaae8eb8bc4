package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HOMEPLATE_APP_ENV" required:"true"`
	Port         string `envconfig:"HOMEPLATE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HOMEPLATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HOMEPLATE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"HOMEPLATE_DB_DSN"`
	Driver string `envconfig:"HOMEPLATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HOMEPLATE_DB_HOST"`
	LegacyPort     int    `envconfig:"HOMEPLATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOMEPLATE_DB_USER"`
	LegacyPassword string `envconfig:"HOMEPLATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOMEPLATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOMEPLATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOMEPLATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOMEPLATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOMEPLATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOMEPLATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"HOMEPLATE_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOMEPLATE_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"HOMEPLATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOMEPLATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOMEPLATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOMEPLATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOMEPLATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"HOMEPLATE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"HOMEPLATE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"HOMEPLATE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"HOMEPLATE_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"HOMEPLATE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"HOMEPLATE_STRIPE_ENV" default:"test"`

	// FeePercent is the platform cut taken out of every transfer.
	FeePercent int64 `envconfig:"HOMEPLATE_STRIPE_FEE_PERCENT" default:"10"`

	CheckoutSuccessURL string `envconfig:"HOMEPLATE_STRIPE_CHECKOUT_SUCCESS_URL" default:"https://homeplate.app/orders?status=success"`
	CheckoutCancelURL  string `envconfig:"HOMEPLATE_STRIPE_CHECKOUT_CANCEL_URL" default:"https://homeplate.app/orders?status=cancelled"`
	OnboardReturnURL   string `envconfig:"HOMEPLATE_STRIPE_ONBOARD_RETURN_URL" default:"https://homeplate.app/chef/payouts"`
	OnboardRefreshURL  string `envconfig:"HOMEPLATE_STRIPE_ONBOARD_REFRESH_URL" default:"https://homeplate.app/chef/payouts?refresh=1"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	// OrderTTL is how long a requested order may sit unconfirmed before the
	// expiry sweeper rejects it.
	OrderTTL time.Duration `envconfig:"HOMEPLATE_CHECKOUT_ORDER_TTL" default:"1h"`

	PickupWindowDays int `envconfig:"HOMEPLATE_CHECKOUT_PICKUP_WINDOW_DAYS" default:"7"`
	PickupHourStart  int `envconfig:"HOMEPLATE_CHECKOUT_PICKUP_HOUR_START" default:"8"`
	PickupHourEnd    int `envconfig:"HOMEPLATE_CHECKOUT_PICKUP_HOUR_END" default:"20"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"HOMEPLATE_CRON_INTERVAL" default:"10m"`
	LockKey  string        `envconfig:"HOMEPLATE_CRON_LOCK_KEY" default:"cron:sweeper"`
	LockTTL  time.Duration `envconfig:"HOMEPLATE_CRON_LOCK_TTL" default:"15m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
