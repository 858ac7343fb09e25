package config

const EnvPrefix = "BAZAAR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageBackendSQL   = "sql"
	StorageBackendMongo = "mongo"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	TransactionModeAuto       = "auto"
	TransactionModeNative     = "native"
	TransactionModeCompensate = "compensate"

	PaymentVerificationRemote   = "remote"
	PaymentVerificationPresence = "presence"

	DefaultTaxRate        = "0.15"
	DefaultCommissionRate = "0.10"
)

const (
	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

const (
	EnvAppEnv = "BAZAAR_APP_ENV"
	EnvPort   = "BAZAAR_APP_PORT"
	EnvLogLvl = "BAZAAR_LOG_LEVEL"

	EnvStorageBackend = "BAZAAR_STORAGE_BACKEND"

	EnvDBDSN    = "BAZAAR_DB_DSN"
	EnvDBDriver = "BAZAAR_DB_DRIVER"
	EnvDBHost   = "BAZAAR_DB_HOST"
	EnvDBUser   = "BAZAAR_DB_USER"
	EnvDBName   = "BAZAAR_DB_NAME"

	EnvMongoURI = "BAZAAR_MONGO_URI"

	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer = "BAZAAR_JWT_ISSUER"

	EnvCheckoutTaxRate    = "BAZAAR_CHECKOUT_TAX_RATE"
	EnvCheckoutCommission = "BAZAAR_CHECKOUT_DEFAULT_COMMISSION_RATE"
	EnvCheckoutTxMode     = "BAZAAR_CHECKOUT_TRANSACTION_MODE"

	EnvEventingBroker = "BAZAAR_EVENTING_BROKER"
	EnvKafkaBrokers   = "BAZAAR_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
