package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Checkout  CheckoutConfig
	Payments  PaymentsConfig
	Stripe    StripeConfig
	Square    SquareConfig
	GuestJWT  GuestTokenConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERCATO_APP_ENV" required:"true"`
	Port         string `envconfig:"MERCATO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERCATO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCATO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MERCATO_DB_DSN"`
	Driver string `envconfig:"MERCATO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MERCATO_DB_HOST"`
	Port     int    `envconfig:"MERCATO_DB_PORT" default:"5432"`
	User     string `envconfig:"MERCATO_DB_USER"`
	Password string `envconfig:"MERCATO_DB_PASSWORD"`
	Name     string `envconfig:"MERCATO_DB_NAME"`
	SSLMode  string `envconfig:"MERCATO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCATO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCATO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCATO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCATO_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"MERCATO_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCATO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERCATO_REDIS_ADDR"`
	Password     string        `envconfig:"MERCATO_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCATO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCATO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCATO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCATO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCATO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCATO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CheckoutConfig drives the checkout session workflow.
type CheckoutConfig struct {
	SessionTTL          time.Duration `envconfig:"MERCATO_CHECKOUT_SESSION_TTL" default:"30m"`
	OrderNumberAttempts int           `envconfig:"MERCATO_CHECKOUT_ORDER_NUMBER_ATTEMPTS" default:"5"`
	StandardShipCents   int           `envconfig:"MERCATO_SHIPPING_STANDARD_CENTS" default:"1000"`
	ExpressShipCents    int           `envconfig:"MERCATO_SHIPPING_EXPRESS_CENTS" default:"2500"`
}

// PaymentsConfig controls payment-attempt orchestration.
type PaymentsConfig struct {
	MaxAttempts      int           `envconfig:"MERCATO_PAYMENTS_MAX_ATTEMPTS" default:"3"`
	AttemptWindow    time.Duration `envconfig:"MERCATO_PAYMENTS_ATTEMPT_WINDOW" default:"24h"`
	AutoRetry        bool          `envconfig:"MERCATO_PAYMENTS_AUTO_RETRY" default:"false"`
	GatewayTimeout   time.Duration `envconfig:"MERCATO_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	DefaultGatewayID string        `envconfig:"MERCATO_PAYMENTS_DEFAULT_GATEWAY" default:"stripe"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MERCATO_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"MERCATO_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MERCATO_STRIPE_ENV" default:"test"`
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
	AccessToken   string `envconfig:"MERCATO_SQUARE_ACCESS_TOKEN"`
	LocationID    string `envconfig:"MERCATO_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"MERCATO_SQUARE_WEBHOOK_SECRET"`
	Environment   string `envconfig:"MERCATO_SQUARE_ENV" default:"sandbox"`
}

// GuestTokenConfig signs guest cart reference keys.
type GuestTokenConfig struct {
	Secret     string `envconfig:"MERCATO_GUEST_TOKEN_SECRET" required:"true"`
	Issuer     string `envconfig:"MERCATO_GUEST_TOKEN_ISSUER" default:"mercato"`
	TTLMinutes int    `envconfig:"MERCATO_GUEST_TOKEN_TTL_MINUTES" default:"10080"`
}

func (g GuestTokenConfig) TTL() time.Duration {
	if g.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(g.TTLMinutes) * time.Minute
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MERCATO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MERCATO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MERCATO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"MERCATO_PUBSUB_ORDERS_TOPIC" default:"mercato-order-events"`
	OrdersSubscription       string `envconfig:"MERCATO_PUBSUB_ORDERS_SUBSCRIPTION"`
	PaymentsTopic            string `envconfig:"MERCATO_PUBSUB_PAYMENTS_TOPIC" default:"mercato-payment-events"`
	PaymentsSubscription     string `envconfig:"MERCATO_PUBSUB_PAYMENTS_SUBSCRIPTION"`
	NotificationSubscription string `envconfig:"MERCATO_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

// RateLimitConfig throttles payment initiation per caller. Zero limit or
// window disables the guard.
type RateLimitConfig struct {
	PaymentLimit  int64         `envconfig:"MERCATO_RATE_LIMIT_PAYMENT_LIMIT" default:"10"`
	PaymentWindow time.Duration `envconfig:"MERCATO_RATE_LIMIT_PAYMENT_WINDOW" default:"1m"`
}

func (r RateLimitConfig) PaymentEnabled() bool {
	return r.PaymentLimit > 0 && r.PaymentWindow > 0
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MERCATO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MERCATO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MERCATO_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"MERCATO_OUTBOX_IDEMPOTENCY_TTL" default:"72h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for name, value := range map[string]string{
		"MERCATO_DB_HOST": db.Host,
		"MERCATO_DB_USER": db.User,
		"MERCATO_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either MERCATO_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
