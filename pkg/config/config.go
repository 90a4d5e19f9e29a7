package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Webhook      WebhookConfig
	Sweep        SweepConfig
	Cron         CronConfig
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
	Env          string `envconfig:"TENANTGRID_APP_ENV" required:"true"`
	Port         string `envconfig:"TENANTGRID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TENANTGRID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TENANTGRID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TENANTGRID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TENANTGRID_DB_DSN"`
	Driver string `envconfig:"TENANTGRID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TENANTGRID_DB_HOST"`
	LegacyPort     int    `envconfig:"TENANTGRID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TENANTGRID_DB_USER"`
	LegacyPassword string `envconfig:"TENANTGRID_DB_PASSWORD"`
	LegacyName     string `envconfig:"TENANTGRID_DB_NAME"`
	LegacySSLMode  string `envconfig:"TENANTGRID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TENANTGRID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TENANTGRID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TENANTGRID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TENANTGRID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TENANTGRID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TENANTGRID_REDIS_ADDR"`
	Password     string        `envconfig:"TENANTGRID_REDIS_PASSWORD"`
	DB           int           `envconfig:"TENANTGRID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TENANTGRID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TENANTGRID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TENANTGRID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TENANTGRID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TENANTGRID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TENANTGRID_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TENANTGRID_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TENANTGRID_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TENANTGRID_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TENANTGRID_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"TENANTGRID_PUBSUB_NOTIFICATION_TOPIC" default:"tg-notification-events"`
	NotificationSubscription string `envconfig:"TENANTGRID_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"TENANTGRID_STRIPE_API_KEY"`
	SigningSecret string `envconfig:"TENANTGRID_STRIPE_SIGNING_SECRET"`
	Env           string `envconfig:"TENANTGRID_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken     string `envconfig:"TENANTGRID_SQUARE_ACCESS_TOKEN"`
	SigningKey      string `envconfig:"TENANTGRID_SQUARE_SIGNING_KEY"`
	NotificationURL string `envconfig:"TENANTGRID_SQUARE_NOTIFICATION_URL"`
	Env             string `envconfig:"TENANTGRID_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// WebhookConfig tunes the idempotency ledger.
type WebhookConfig struct {
	ProcessingLease    time.Duration `envconfig:"TENANTGRID_WEBHOOK_PROCESSING_LEASE" default:"10m"`
	Retention          time.Duration `envconfig:"TENANTGRID_WEBHOOK_RETENTION" default:"720h"`
	StaleEventSkew     time.Duration `envconfig:"TENANTGRID_WEBHOOK_STALE_EVENT_SKEW" default:"15m"`
	UnderpayFloorMinor int64         `envconfig:"TENANTGRID_WEBHOOK_UNDERPAY_FLOOR_MINOR" default:"50"`
	UnderpayPercent    int64         `envconfig:"TENANTGRID_WEBHOOK_UNDERPAY_PERCENT" default:"5"`
}

// SweepConfig tunes the subscription expiry sweep.
type SweepConfig struct {
	WarningDays int `envconfig:"TENANTGRID_SWEEP_WARNING_DAYS" default:"7"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TENANTGRID_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"TENANTGRID_CRON_LOCK_TTL" default:"10m"`
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
