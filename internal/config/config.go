package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	FundsLockAtAccept = "accept"
	FundsLockAtOffer  = "offer"

	LedgerMemory  = "memory"
	LedgerGateway = "gateway"
)

var singleConfig *Config = nil

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Ledger     *ledgerConfig
	Reconciler *reconcilerConfig
	Events     *eventsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"marketplace"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string   `envconfig:"MARKETPLACE_ADDRESS" default:":3443"`
	MetricsAddress  string   `envconfig:"MARKETPLACE_METRICS_ADDRESS" default:":8080"`
	LogLevel        string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogFormat       string   `envconfig:"MARKETPLACE_LOG_FORMAT" default:"console"`
	MigrationFolder string   `envconfig:"MARKETPLACE_MIGRATIONS_FOLDER" default:""`
	AllowedOrigins  []string `envconfig:"MARKETPLACE_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	Auth            Auth
}

type Auth struct {
	AuthenticationType string `envconfig:"MARKETPLACE_AUTH" default:"none"`
	JwkCertURL         string `envconfig:"MARKETPLACE_JWK_URL" default:""`
	PartyClaim         string `envconfig:"MARKETPLACE_PARTY_CLAIM" default:"sub"`
}

type ledgerConfig struct {
	Type                string        `envconfig:"LEDGER_TYPE" default:"memory"`
	Endpoint            string        `envconfig:"LEDGER_ENDPOINT" default:""`
	FeeBasisPoints      int64         `envconfig:"LEDGER_FEE_BPS" default:"75"`
	FundsLockPoint      string        `envconfig:"LEDGER_FUNDS_LOCK_POINT" default:"accept"`
	ConfirmTimeout      time.Duration `envconfig:"LEDGER_CONFIRM_TIMEOUT" default:"2m"`
	ConfirmPollInterval time.Duration `envconfig:"LEDGER_CONFIRM_POLL_INTERVAL" default:"2s"`
	RequestTimeout      time.Duration `envconfig:"LEDGER_REQUEST_TIMEOUT" default:"30s"`
	RateLimit           float64       `envconfig:"LEDGER_RATE_LIMIT" default:"20"`
	Idempotent          bool          `envconfig:"LEDGER_IDEMPOTENT" default:"true"`
	Decimals            int           `envconfig:"LEDGER_DECIMALS" default:"18"`
}

type reconcilerConfig struct {
	Enabled            bool          `envconfig:"RECONCILER_ENABLED" default:"true"`
	Interval           time.Duration `envconfig:"RECONCILER_INTERVAL" default:"30s"`
	GracePeriod        time.Duration `envconfig:"RECONCILER_GRACE_PERIOD" default:"5m"`
	// EscalateAfter bounds how long a submitted transaction may stay unconfirmed.
	EscalateAfter      time.Duration `envconfig:"RECONCILER_ESCALATE_AFTER" default:"6h"`
	MaxAttempts        int           `envconfig:"RECONCILER_MAX_ATTEMPTS" default:"5"`
	DispositionTimeout time.Duration `envconfig:"RECONCILER_DISPOSITION_TIMEOUT" default:"72h"`
	DigestSchedule     string        `envconfig:"RECONCILER_DIGEST_SCHEDULE" default:"@hourly"`
	LockID             int64         `envconfig:"RECONCILER_LOCK_ID" default:"7314"`
	BatchSize          int           `envconfig:"RECONCILER_BATCH_SIZE" default:"100"`
}

type eventsConfig struct {
	Topic string `envconfig:"MARKETPLACE_EVENTS_TOPIC" default:"marketplace.events"`
	// Sink is the CloudEvents HTTP endpoint. Events are logged when empty.
	Sink string `envconfig:"MARKETPLACE_EVENTS_SINK" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration that is not shared with the rest of the process.
func NewDefault() *Config {
	c := new(Config)
	_ = envconfig.Process("", c)
	return c
}

// NewTestConfig returns the defaults pointed at a private in-memory sqlite database.
func NewTestConfig(name string) *Config {
	c := NewDefault()
	c.Database.Type = "sqlite"
	c.Database.Name = "file:" + name + "?mode=memory&cache=shared&_busy_timeout=5000"
	c.Ledger.ConfirmPollInterval = 5 * time.Millisecond
	c.Ledger.ConfirmTimeout = 200 * time.Millisecond
	return c
}
