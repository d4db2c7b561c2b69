package config

const (
	EnvPrefix = "QUILLCOACH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "QUILLCOACH_APP_ENV"
	EnvPort     = "QUILLCOACH_APP_PORT"
	EnvLogLevel = "QUILLCOACH_LOG_LEVEL"

	EnvDBDSN  = "QUILLCOACH_DB_DSN"
	EnvDBHost = "QUILLCOACH_DB_HOST"
	EnvDBUser = "QUILLCOACH_DB_USER"
	EnvDBName = "QUILLCOACH_DB_NAME"

	EnvRedisURL = "QUILLCOACH_REDIS_URL"

	EnvJWTSecret  = "QUILLCOACH_JWT_SECRET"
	EnvJWTIssuer  = "QUILLCOACH_JWT_ISSUER"
	EnvJWTExpMins = "QUILLCOACH_JWT_EXPIRATION_MINUTES"

	EnvLedgerMaxAttempts        = "QUILLCOACH_LEDGER_MAX_ATTEMPTS"
	EnvLedgerDefaultAICost      = "QUILLCOACH_LEDGER_DEFAULT_AI_COST"
	EnvLedgerDefaultTrainerCost = "QUILLCOACH_LEDGER_DEFAULT_TRAINER_COST"

	EnvGCPProjectID = "QUILLCOACH_GCP_PROJECT_ID"

	EnvPubSubEvaluationTopic = "QUILLCOACH_PUBSUB_EVALUATION_TOPIC"
	EnvPubSubEvaluationSub   = "QUILLCOACH_PUBSUB_EVALUATION_SUBSCRIPTION"
	EnvPubSubLedgerSub       = "QUILLCOACH_PUBSUB_LEDGER_SUBSCRIPTION"

	EnvStripeSecret = "QUILLCOACH_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
