package config

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "BAZAAR_APP_ENV"
	EnvPort      = "BAZAAR_APP_PORT"
	EnvLogLevel  = "BAZAAR_LOG_LEVEL"
	EnvDBDSN     = "BAZAAR_DB_DSN"
	EnvDBHost    = "BAZAAR_DB_HOST"
	EnvDBUser    = "BAZAAR_DB_USER"
	EnvDBName    = "BAZAAR_DB_NAME"
	EnvDBPort    = "BAZAAR_DB_PORT"
	EnvRedisURL  = "BAZAAR_REDIS_URL"
	EnvJWTSecret = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer = "BAZAAR_JWT_ISSUER"
	EnvJWTExp    = "BAZAAR_JWT_EXPIRATION_MINUTES"

	EnvCORSOrigins     = "BAZAAR_CORS_ORIGINS"
	EnvRateLimitWindow = "BAZAAR_RATE_LIMIT_WINDOW"
	EnvRateLimitMax    = "BAZAAR_RATE_LIMIT_MAX"

	EnvOrdersTaxRate        = "BAZAAR_ORDERS_TAX_RATE"
	EnvOrdersShippingFee    = "BAZAAR_ORDERS_SHIPPING_FEE"
	EnvOrdersFreeShipping   = "BAZAAR_ORDERS_FREE_SHIPPING_THRESHOLD"
	EnvOrdersNumberAttempts = "BAZAAR_ORDERS_NUMBER_ATTEMPTS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
