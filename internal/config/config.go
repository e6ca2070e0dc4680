package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	APIKey      string `env:"API_KEY,required,notEmpty"`
	Timezone    string `env:"SYSTEM_TIMEZONE" envDefault:"Asia/Jakarta"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	InitialAdmin struct {
		Email    string `env:"EMAIL" envDefault:"admin@example.com"`
		Password string `env:"PASSWORD"`
	} `envPrefix:"INITIAL_ADMIN_"`
	JWT struct {
		Secret            string `env:"SECRET"`
		Issuer            string `env:"ISSUER" envDefault:"attendance-manager"`
		AccessExpiration  int    `env:"ACCESS_EXPIRATION" envDefault:"900"`     // 15 minutes
		RefreshExpiration int    `env:"REFRESH_EXPIRATION" envDefault:"604800"` // 7 days
	} `envPrefix:"JWT_"`
	Auth struct {
		DefaultUserPassword string `env:"DEFAULT_USER_PASSWORD"`
	} `envPrefix:"AUTH_"`
	Email struct {
		PortalURL string `env:"PORTAL_URL" envDefault:"http://localhost:5173"`
		SMTP      struct {
			Username    string `env:"USERNAME"`
			Password    string `env:"PASSWORD"`
			Host        string `env:"HOST"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required,notEmpty"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
		RPCTimeout     int    `env:"RPC_TIMEOUT" envDefault:"5"`
		Prefetch       int    `env:"PREFETCH" envDefault:"16"`
		Exchange       string `env:"EXCHANGE" envDefault:"employee_events"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"5"` // seconds per stream call
	} `envPrefix:"REDIS_"`
	Report struct {
		// TrueType font with Han glyphs; the bundled font prints Chinese names in pinyin
		FontPath string `env:"FONT_PATH"`
	} `envPrefix:"REPORT_"`
	Outbox struct {
		PollInterval int `env:"POLL_INTERVAL" envDefault:"5"`
		BatchSize    int `env:"BATCH_SIZE" envDefault:"50"`
		MaxAttempts  int `env:"MAX_ATTEMPTS" envDefault:"20"`
	} `envPrefix:"OUTBOX_"`
	Notification struct {
		StreamKey    string `env:"STREAM_KEY" envDefault:"notifications"`
		StreamMaxLen int64  `env:"STREAM_MAX_LEN" envDefault:"10000"`
		DedupTTL     int    `env:"DEDUP_TTL" envDefault:"86400"`
	} `envPrefix:"NOTIFICATION_"`
}

func LoadConfig() (*Config, error) {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// only the first error keeps the log readable
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid SYSTEM_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location returns the process-wide timezone used for every day boundary.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireDatabase is called by the processes that own a schema.
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	return nil
}

// RequireJWT is called by the credential service, the only process that signs tokens.
func (c *Config) RequireJWT() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.DefaultUserPassword == "" {
		return errors.New("AUTH_DEFAULT_USER_PASSWORD is required")
	}
	if c.InitialAdmin.Password == "" {
		return errors.New("INITIAL_ADMIN_PASSWORD is required")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
