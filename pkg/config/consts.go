package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "TENANTGRID"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Canonical environment variable names. Tests and error messages refer to
// these instead of repeating string literals.
const (
	EnvAppEnv   = "TENANTGRID_APP_ENV"
	EnvPort     = "TENANTGRID_APP_PORT"
	EnvDBDSN    = "TENANTGRID_DB_DSN"
	EnvDBHost   = "TENANTGRID_DB_HOST"
	EnvDBUser   = "TENANTGRID_DB_USER"
	EnvDBName   = "TENANTGRID_DB_NAME"
	EnvRedisURL = "TENANTGRID_REDIS_URL"

	EnvGCPProjectID            = "TENANTGRID_GCP_PROJECT_ID"
	EnvPubSubNotificationTopic = "TENANTGRID_PUBSUB_NOTIFICATION_TOPIC"

	EnvStripeAPIKey        = "TENANTGRID_STRIPE_API_KEY"
	EnvStripeSigningSecret = "TENANTGRID_STRIPE_SIGNING_SECRET"
	EnvSquareSigningKey    = "TENANTGRID_SQUARE_SIGNING_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
