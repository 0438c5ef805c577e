package config

const (
	EnvPrefix = "BURUDANI"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:burudani.db?cache=shared&_fk=1"
)

const (
	EnvAppEnv    = "BURUDANI_APP_ENV"
	EnvPort      = "BURUDANI_APP_PORT"
	EnvPublicURL = "BURUDANI_APP_PUBLIC_URL"
	EnvLogLevel  = "BURUDANI_LOG_LEVEL"

	EnvDBDSN     = "BURUDANI_DB_DSN"
	EnvDBDriver  = "BURUDANI_DB_DRIVER"
	EnvDBHost    = "BURUDANI_DB_HOST"
	EnvDBUser    = "BURUDANI_DB_USER"
	EnvDBName    = "BURUDANI_DB_NAME"
	EnvUseSQLite = "BURUDANI_USE_SQLITE"

	EnvRedisURL = "BURUDANI_REDIS_URL"

	EnvJWTSecret  = "BURUDANI_JWT_SECRET"
	EnvJWTIssuer  = "BURUDANI_JWT_ISSUER"
	EnvJWTExpMins = "BURUDANI_JWT_EXPIRATION_MINUTES"

	EnvZenoPayAPIKey        = "BURUDANI_ZENOPAY_API_KEY"
	EnvZenoPayBaseURL       = "BURUDANI_ZENOPAY_BASE_URL"
	EnvZenoPayWebhookURL    = "BURUDANI_ZENOPAY_WEBHOOK_URL"
	EnvZenoPayWebhookSecret = "BURUDANI_ZENOPAY_WEBHOOK_SECRET"
	EnvZenoPayTimeout       = "BURUDANI_ZENOPAY_TIMEOUT"

	EnvPaymentsStaleAfter     = "BURUDANI_PAYMENTS_STALE_AFTER"
	EnvPaymentsExpiryInterval = "BURUDANI_PAYMENTS_EXPIRY_INTERVAL"

	EnvGCPProjectID        = "BURUDANI_GCP_PROJECT_ID"
	EnvPubSubPaymentsTopic = "BURUDANI_PUBSUB_PAYMENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
