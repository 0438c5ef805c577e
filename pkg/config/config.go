package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	ZenoPay       ZenoPayConfig
	Payments      PaymentsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Metrics       MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.ZenoPay.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BURUDANI_APP_ENV" required:"true"`
	Port         string `envconfig:"BURUDANI_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"BURUDANI_APP_PUBLIC_URL"`
	LogLevel     string `envconfig:"BURUDANI_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BURUDANI_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BURUDANI_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"BURUDANI_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BURUDANI_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BURUDANI_DB_DSN"`
	Driver string `envconfig:"BURUDANI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BURUDANI_DB_HOST"`
	LegacyPort     int    `envconfig:"BURUDANI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BURUDANI_DB_USER"`
	LegacyPassword string `envconfig:"BURUDANI_DB_PASSWORD"`
	LegacyName     string `envconfig:"BURUDANI_DB_NAME"`
	LegacySSLMode  string `envconfig:"BURUDANI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BURUDANI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BURUDANI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BURUDANI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BURUDANI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BURUDANI_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BURUDANI_REDIS_ADDR"`
	Password     string        `envconfig:"BURUDANI_REDIS_PASSWORD"`
	DB           int           `envconfig:"BURUDANI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BURUDANI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BURUDANI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BURUDANI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BURUDANI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BURUDANI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BURUDANI_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BURUDANI_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BURUDANI_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime configured in minutes.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BURUDANI_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BURUDANI_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BURUDANI_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BURUDANI_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BURUDANI_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"BURUDANI_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"BURUDANI_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"BURUDANI_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BURUDANI_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BURUDANI_AUTO_MIGRATE" default:"false"`
}

type ZenoPayConfig struct {
	APIKey        string        `envconfig:"BURUDANI_ZENOPAY_API_KEY" required:"true"`
	BaseURL       string        `envconfig:"BURUDANI_ZENOPAY_BASE_URL" default:"https://zenoapi.com"`
	WebhookURL    string        `envconfig:"BURUDANI_ZENOPAY_WEBHOOK_URL"`
	WebhookSecret string        `envconfig:"BURUDANI_ZENOPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"BURUDANI_ZENOPAY_TIMEOUT" default:"30s"`
}

// WebhookKey returns the shared secret expected on inbound webhook deliveries.
// Deployments that never configured a dedicated secret fall back to the API key.
func (z ZenoPayConfig) WebhookKey() string {
	if key := strings.TrimSpace(z.WebhookSecret); key != "" {
		return key
	}
	return strings.TrimSpace(z.APIKey)
}

func (z ZenoPayConfig) validate() error {
	if strings.TrimSpace(z.BaseURL) == "" {
		return fmt.Errorf("%s must not be empty", EnvZenoPayBaseURL)
	}
	if _, err := url.ParseRequestURI(z.BaseURL); err != nil {
		return fmt.Errorf("%s is not a valid url: %w", EnvZenoPayBaseURL, err)
	}
	if z.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvZenoPayTimeout)
	}
	return nil
}

type PaymentsConfig struct {
	StaleAfter     time.Duration `envconfig:"BURUDANI_PAYMENTS_STALE_AFTER" default:"30m"`
	ExpiryInterval time.Duration `envconfig:"BURUDANI_PAYMENTS_EXPIRY_INTERVAL" default:"5m"`
	ExpiryBatch    int           `envconfig:"BURUDANI_PAYMENTS_EXPIRY_BATCH" default:"100"`
	IdempotencyTTL time.Duration `envconfig:"BURUDANI_PAYMENTS_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BURUDANI_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"BURUDANI_PUBSUB_PAYMENTS_TOPIC" default:"burudani-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BURUDANI_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BURUDANI_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BURUDANI_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"BURUDANI_OUTBOX_RETENTION" default:"720h"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"BURUDANI_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"BURUDANI_METRICS_PATH" default:"/metrics"`

	// WorkerAddr is where cron-worker and outbox-publisher serve Path. The api
	// serves it on its own router.
	WorkerAddr string `envconfig:"BURUDANI_METRICS_WORKER_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite || strings.EqualFold(db.Driver, DriverSQLite) {
		db.Driver = DriverSQLite
		db.DSN = DefaultSQLiteDSN
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
