package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	Storage      StorageConfig
	DB           DBConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.UsesSQL() {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	} else if strings.TrimSpace(cfg.Mongo.URI) == "" {
		return nil, fmt.Errorf("%s is required when %s=%s", EnvMongoURI, EnvStorageBackend, StorageBackendMongo)
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BAZAAR_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

// StorageConfig selects the document or relational backend for orders, invoices, products and promos.
type StorageConfig struct {
	Backend string `envconfig:"BAZAAR_STORAGE_BACKEND" default:"sql"`
}

func (s StorageConfig) UsesSQL() bool {
	return normalizeBackend(s.Backend) == StorageBackendSQL
}

func (s StorageConfig) UsesMongo() bool {
	return normalizeBackend(s.Backend) == StorageBackendMongo
}

func (s StorageConfig) validate() error {
	switch normalizeBackend(s.Backend) {
	case StorageBackendSQL, StorageBackendMongo:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStorageBackend, StorageBackendSQL, StorageBackendMongo)
	}
}

func normalizeBackend(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return StorageBackendSQL
	}
	return v
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"BAZAAR_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the relational backend runs on the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type MongoConfig struct {
	URI                    string        `envconfig:"BAZAAR_MONGO_URI"`
	Database               string        `envconfig:"BAZAAR_MONGO_DATABASE" default:"bazaar"`
	MaxPoolSize            uint64        `envconfig:"BAZAAR_MONGO_MAX_POOL_SIZE" default:"100"`
	MinPoolSize            uint64        `envconfig:"BAZAAR_MONGO_MIN_POOL_SIZE" default:"10"`
	ConnectTimeout         time.Duration `envconfig:"BAZAAR_MONGO_CONNECT_TIMEOUT" default:"10s"`
	ServerSelectionTimeout time.Duration `envconfig:"BAZAAR_MONGO_SERVER_SELECTION_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BAZAAR_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BAZAAR_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BAZAAR_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BAZAAR_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BAZAAR_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig is handed to the order coordinator explicitly.
type CheckoutConfig struct {
	TaxRate               string `envconfig:"BAZAAR_CHECKOUT_TAX_RATE" default:"0.15"`
	DefaultCommissionRate string `envconfig:"BAZAAR_CHECKOUT_DEFAULT_COMMISSION_RATE" default:"0.10"`
	DefaultCurrency       string `envconfig:"BAZAAR_CHECKOUT_DEFAULT_CURRENCY" default:"USD"`
	TransactionMode       string `envconfig:"BAZAAR_CHECKOUT_TRANSACTION_MODE" default:"auto"`
	InvoiceDueDays        int    `envconfig:"BAZAAR_CHECKOUT_INVOICE_DUE_DAYS" default:"30"`
	LinkRetryAttempts     int    `envconfig:"BAZAAR_CHECKOUT_LINK_RETRY_ATTEMPTS" default:"3"`
	LinkRetryBaseMS       int    `envconfig:"BAZAAR_CHECKOUT_LINK_RETRY_BASE_MS" default:"50"`
	PaymentVerification   string `envconfig:"BAZAAR_CHECKOUT_PAYMENT_VERIFICATION" default:"remote"`
}

// TaxRateDecimal returns the parsed tax rate; Load has already validated it.
func (c CheckoutConfig) TaxRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.RequireFromString(DefaultTaxRate)
	}
	return rate
}

// CommissionRateDecimal returns the parsed default commission rate.
func (c CheckoutConfig) CommissionRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultCommissionRate))
	if err != nil {
		return decimal.RequireFromString(DefaultCommissionRate)
	}
	return rate
}

// Mode returns the normalized transaction mode.
func (c CheckoutConfig) Mode() string {
	mode := strings.ToLower(strings.TrimSpace(c.TransactionMode))
	if mode == "" {
		return TransactionModeAuto
	}
	return mode
}

// Currency returns the upper-cased default currency.
func (c CheckoutConfig) Currency() string {
	cur := strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if cur == "" {
		return "USD"
	}
	return cur
}

// RemoteVerification reports whether payment artifacts are checked against the providers.
func (c CheckoutConfig) RemoteVerification() bool {
	return !strings.EqualFold(strings.TrimSpace(c.PaymentVerification), PaymentVerificationPresence)
}

func (c CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a fraction between 0 and 1", EnvCheckoutTaxRate)
	}
	commission, err := decimal.NewFromString(strings.TrimSpace(c.DefaultCommissionRate))
	if err != nil || commission.IsNegative() || commission.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a fraction between 0 and 1", EnvCheckoutCommission)
	}
	switch c.Mode() {
	case TransactionModeAuto, TransactionModeNative, TransactionModeCompensate:
	default:
		return fmt.Errorf("%s must be one of %q, %q, %q", EnvCheckoutTxMode, TransactionModeAuto, TransactionModeNative, TransactionModeCompensate)
	}
	return nil
}

type EventingConfig struct {
	Broker string `envconfig:"BAZAAR_EVENTING_BROKER" default:"pubsub"`
}

// BrokerName returns the normalized broker.
func (e EventingConfig) BrokerName() string {
	b := strings.ToLower(strings.TrimSpace(e.Broker))
	if b == "" {
		return BrokerPubSub
	}
	return b
}

func (e EventingConfig) validate() error {
	switch e.BrokerName() {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvEventingBroker, BrokerPubSub, BrokerKafka)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BAZAAR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BAZAAR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"BAZAAR_PUBSUB_ORDERS_TOPIC" default:"bazaar-order-events"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"BAZAAR_KAFKA_BROKERS"`
	OrdersTopic  string        `envconfig:"BAZAAR_KAFKA_ORDERS_TOPIC" default:"bazaar.orders"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	ClaimLease     time.Duration `envconfig:"BAZAAR_OUTBOX_CLAIM_LEASE" default:"30s"`
	RetentionDays  int           `envconfig:"BAZAAR_OUTBOX_RETENTION_DAYS" default:"30"`
	DeliveryTTL    time.Duration `envconfig:"BAZAAR_OUTBOX_DELIVERY_TTL" default:"72h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"BAZAAR_STRIPE_API_KEY"`
	Env    string `envconfig:"BAZAAR_STRIPE_ENV" default:"test"`
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
	AccessToken string `envconfig:"BAZAAR_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"BAZAAR_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"5m"`
	LockKey         string        `envconfig:"BAZAAR_CRON_LOCK_KEY" default:"cron:lock"`
	LockTTL         time.Duration `envconfig:"BAZAAR_CRON_LOCK_TTL" default:"10m"`
	ReconcileBatch  int           `envconfig:"BAZAAR_CRON_RECONCILE_BATCH" default:"100"`
	ReconcileMaxTry int           `envconfig:"BAZAAR_CRON_RECONCILE_MAX_ATTEMPTS" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
