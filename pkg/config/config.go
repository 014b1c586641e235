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
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	CORS          CORSConfig
	RateLimit     RateLimitConfig
	AuthRateLimit AuthRateLimitConfig
	Uploads       UploadsConfig
	Orders        OrdersConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" default:"5000"`
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

type DBConfig struct {
	DSN string `envconfig:"BAZAAR_DB_DSN"`

	Host     string `envconfig:"BAZAAR_DB_HOST"`
	Port     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZAAR_DB_USER"`
	Password string `envconfig:"BAZAAR_DB_PASSWORD"`
	Name     string `envconfig:"BAZAAR_DB_NAME"`
	SSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"BAZAAR_JWT_ISSUER" default:"bazaar"`
	ExpirationMinutes      int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"BAZAAR_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// AccessTokenTTL returns the access token lifetime configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BAZAAR_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BAZAAR_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BAZAAR_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BAZAAR_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BAZAAR_ARGON_KEY_LEN" default:"32"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BAZAAR_CORS_ORIGINS" default:"http://localhost:3000"`
	MaxAgeSeconds  int      `envconfig:"BAZAAR_CORS_MAX_AGE" default:"300"`
}

// RateLimitConfig is the global per-client-address ceiling.
type RateLimitConfig struct {
	Enabled bool          `envconfig:"BAZAAR_RATE_LIMIT_ENABLED" default:"true"`
	Window  time.Duration `envconfig:"BAZAAR_RATE_LIMIT_WINDOW" default:"15m"`
	Max     int           `envconfig:"BAZAAR_RATE_LIMIT_MAX" default:"100"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"BAZAAR_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"BAZAAR_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"BAZAAR_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"BAZAAR_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"BAZAAR_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"BAZAAR_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type UploadsConfig struct {
	Dir        string `envconfig:"BAZAAR_UPLOADS_DIR" default:"uploads"`
	PublicPath string `envconfig:"BAZAAR_UPLOADS_PUBLIC_PATH" default:"/uploads"`
	MaxFileMB  int    `envconfig:"BAZAAR_UPLOADS_MAX_FILE_MB" default:"5"`
	MaxFiles   int    `envconfig:"BAZAAR_UPLOADS_MAX_FILES" default:"10"`
}

// MaxFileBytes returns the per-file ceiling in bytes.
func (u UploadsConfig) MaxFileBytes() int64 {
	return int64(u.MaxFileMB) << 20
}

// OrdersConfig carries the pricing constants applied at checkout.
type OrdersConfig struct {
	TaxRate               string `envconfig:"BAZAAR_ORDERS_TAX_RATE" default:"0.08"`
	ShippingFee           string `envconfig:"BAZAAR_ORDERS_SHIPPING_FEE" default:"10"`
	FreeShippingThreshold string `envconfig:"BAZAAR_ORDERS_FREE_SHIPPING_THRESHOLD" default:"50"`
	NumberAttempts        int    `envconfig:"BAZAAR_ORDERS_NUMBER_ATTEMPTS" default:"5"`
}

// Pricing parses the decimal settings. Load validates them, so errors here mean
// the struct was built by hand.
func (o OrdersConfig) Pricing() (taxRate, shippingFee, threshold decimal.Decimal, err error) {
	if taxRate, err = decimal.NewFromString(o.TaxRate); err != nil {
		return taxRate, shippingFee, threshold, fmt.Errorf("invalid %s: %w", EnvOrdersTaxRate, err)
	}
	if shippingFee, err = decimal.NewFromString(o.ShippingFee); err != nil {
		return taxRate, shippingFee, threshold, fmt.Errorf("invalid %s: %w", EnvOrdersShippingFee, err)
	}
	if threshold, err = decimal.NewFromString(o.FreeShippingThreshold); err != nil {
		return taxRate, shippingFee, threshold, fmt.Errorf("invalid %s: %w", EnvOrdersFreeShipping, err)
	}
	return taxRate, shippingFee, threshold, nil
}

func (o OrdersConfig) validate() error {
	if _, _, _, err := o.Pricing(); err != nil {
		return err
	}
	if o.NumberAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrdersNumberAttempts)
	}
	return nil
}

type FeatureFlagsConfig struct {
	AutoMigrate           bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
	AllowPrivilegedSignup bool `envconfig:"BAZAAR_ALLOW_PRIVILEGED_SIGNUP" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	partValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if partValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
