package config

// EnvPrefix scopes every environment variable consumed by the service.
const EnvPrefix = "HOMEPLATE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv    = "HOMEPLATE_APP_ENV"
	EnvPort      = "HOMEPLATE_APP_PORT"
	EnvDBDSN     = "HOMEPLATE_DB_DSN"
	EnvDBHost    = "HOMEPLATE_DB_HOST"
	EnvDBUser    = "HOMEPLATE_DB_USER"
	EnvDBName    = "HOMEPLATE_DB_NAME"
	EnvRedisURL  = "HOMEPLATE_REDIS_URL"
	EnvJWTSecret = "HOMEPLATE_JWT_SECRET"
	EnvJWTIssuer = "HOMEPLATE_JWT_ISSUER"
	EnvJWTExp    = "HOMEPLATE_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey        = "HOMEPLATE_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "HOMEPLATE_STRIPE_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
