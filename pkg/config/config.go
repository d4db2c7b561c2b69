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
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Ledger       LedgerConfig
	Evaluation   EvaluationConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
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
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUILLCOACH_APP_ENV" required:"true"`
	Port         string `envconfig:"QUILLCOACH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QUILLCOACH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUILLCOACH_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"QUILLCOACH_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUILLCOACH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUILLCOACH_DB_DSN"`
	Driver string `envconfig:"QUILLCOACH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QUILLCOACH_DB_HOST"`
	LegacyPort     int    `envconfig:"QUILLCOACH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QUILLCOACH_DB_USER"`
	LegacyPassword string `envconfig:"QUILLCOACH_DB_PASSWORD"`
	LegacyName     string `envconfig:"QUILLCOACH_DB_NAME"`
	LegacySSLMode  string `envconfig:"QUILLCOACH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"QUILLCOACH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QUILLCOACH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QUILLCOACH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QUILLCOACH_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"QUILLCOACH_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"QUILLCOACH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"QUILLCOACH_REDIS_ADDR"`
	Password     string        `envconfig:"QUILLCOACH_REDIS_PASSWORD"`
	DB           int           `envconfig:"QUILLCOACH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QUILLCOACH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QUILLCOACH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QUILLCOACH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QUILLCOACH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QUILLCOACH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig configures verification of access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"QUILLCOACH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"QUILLCOACH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"QUILLCOACH_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig throttles credit-spending and payment-proof endpoints per
// caller and per client IP.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"QUILLCOACH_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"QUILLCOACH_RATE_LIMIT_IP" default:"60"`
	UserLimit int           `envconfig:"QUILLCOACH_RATE_LIMIT_USER" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"QUILLCOACH_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"QUILLCOACH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"QUILLCOACH_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"QUILLCOACH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// LedgerConfig tunes the balance mutator and the default evaluation prices.
type LedgerConfig struct {
	MaxAttempts        int           `envconfig:"QUILLCOACH_LEDGER_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"QUILLCOACH_LEDGER_RETRY_BASE_DELAY" default:"15ms"`
	DefaultAICost      int64         `envconfig:"QUILLCOACH_LEDGER_DEFAULT_AI_COST" default:"10"`
	DefaultTrainerCost int64         `envconfig:"QUILLCOACH_LEDGER_DEFAULT_TRAINER_COST" default:"25"`
	ReconcileBatchSize int           `envconfig:"QUILLCOACH_LEDGER_RECONCILE_BATCH_SIZE" default:"200"`
}

func (l LedgerConfig) validate() error {
	if l.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvLedgerMaxAttempts)
	}
	if l.DefaultAICost < 0 || l.DefaultTrainerCost < 0 {
		return fmt.Errorf("default evaluation costs must not be negative")
	}
	return nil
}

// EvaluationConfig points at the AI evaluation trigger endpoint.
type EvaluationConfig struct {
	TriggerURL     string        `envconfig:"QUILLCOACH_EVALUATION_TRIGGER_URL"`
	TriggerToken   string        `envconfig:"QUILLCOACH_EVALUATION_TRIGGER_TOKEN"`
	TriggerTimeout time.Duration `envconfig:"QUILLCOACH_EVALUATION_TRIGGER_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"QUILLCOACH_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"QUILLCOACH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"QUILLCOACH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EvaluationTopic        string `envconfig:"QUILLCOACH_PUBSUB_EVALUATION_TOPIC" default:"qc-evaluation-events"`
	EvaluationSubscription string `envconfig:"QUILLCOACH_PUBSUB_EVALUATION_SUBSCRIPTION" required:"true"`
	LedgerTopic            string `envconfig:"QUILLCOACH_PUBSUB_LEDGER_TOPIC" default:"qc-ledger-events"`
	LedgerSubscription     string `envconfig:"QUILLCOACH_PUBSUB_LEDGER_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"QUILLCOACH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"QUILLCOACH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"QUILLCOACH_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"QUILLCOACH_STRIPE_API_KEY"`
	Secret         string        `envconfig:"QUILLCOACH_STRIPE_SECRET"`
	Env            string        `envconfig:"QUILLCOACH_STRIPE_ENV" default:"test"`
	IdempotencyTTL time.Duration `envconfig:"QUILLCOACH_STRIPE_IDEMPOTENCY_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"QUILLCOACH_CRON_INTERVAL" default:"1h"`
	OutboxRetention       time.Duration `envconfig:"QUILLCOACH_CRON_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"QUILLCOACH_CRON_NOTIFICATION_RETENTION" default:"2160h"`
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
