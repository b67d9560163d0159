package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Factory  FactoryConfig  `mapstructure:"factory"`
	Market   MarketConfig   `mapstructure:"market"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	ReadOnly bool   `mapstructure:"read_only"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DeployConfig describes the boot-time deployment. Owner deploys the ledger,
// the template and the factory, in that order.
type DeployConfig struct {
	Network string `mapstructure:"network"`
	Owner   string `mapstructure:"owner"`
}

type LedgerConfig struct {
	MinScore int64 `mapstructure:"min_score"`
	MaxScore int64 `mapstructure:"max_score"`
}

type FactoryConfig struct {
	// Oracle resolves markets created without an explicit resolver. Empty
	// falls back to the deploy owner.
	Oracle            string   `mapstructure:"oracle"`
	CreationThreshold int64    `mapstructure:"creation_threshold"`
	AcceptedTokens    []string `mapstructure:"accepted_tokens"`
	DeltaClean        int64    `mapstructure:"delta_clean"`
	DeltaDisputed     int64    `mapstructure:"delta_disputed"`
	DeltaVoid         int64    `mapstructure:"delta_void"`
	DeltaMaxAbs       int64    `mapstructure:"delta_max_abs"`
}

type MarketConfig struct {
	// MinDeposit is a decimal integer in collateral base units.
	MinDeposit               string `mapstructure:"min_deposit"`
	ConfirmationGraceSeconds int    `mapstructure:"confirmation_grace_seconds"`
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	Issuer          string `mapstructure:"issuer"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
	NonceTTLSeconds int    `mapstructure:"nonce_ttl_seconds"`
	AdminKey        string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	AuditRetentionDays        int    `mapstructure:"audit_retention_days"`
	EventRetentionDays        int    `mapstructure:"event_retention_days"`
	UsageRetentionDays        int    `mapstructure:"usage_retention_days"`
	CleanupSchedule           string `mapstructure:"cleanup_schedule"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	AuditListKey          string `mapstructure:"audit_list_key"`
	AuditListMax          int    `mapstructure:"audit_list_max"`
	EventListKey          string `mapstructure:"event_list_key"`
	EventListMax          int    `mapstructure:"event_list_max"`
	EventChannel          string `mapstructure:"event_channel"`
}

type RiskConfig struct {
	// MaxDailyDeposit caps the collateral one caller may deposit per UTC day,
	// as a decimal integer. Empty or "0" disables the cap.
	MaxDailyDeposit  string  `mapstructure:"max_daily_deposit"`
	MaxDailyDeposits int     `mapstructure:"max_daily_deposits"`
	RateLimitQPS     float64 `mapstructure:"rate_limit_qps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	RingSize   int `mapstructure:"ring_size"`
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// e.g. POLYFACTORY_AUTH_JWT_SECRET
	viper.SetEnvPrefix("polyfactory")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_only", false)
	viper.SetDefault("log.level", "info")

	viper.SetDefault("deploy.network", "local")
	viper.SetDefault("deploy.owner", "")

	viper.SetDefault("ledger.min_score", -100)
	viper.SetDefault("ledger.max_score", 1000)

	viper.SetDefault("factory.oracle", "")
	viper.SetDefault("factory.creation_threshold", 0)
	viper.SetDefault("factory.accepted_tokens", []string{})
	viper.SetDefault("factory.delta_clean", 10)
	viper.SetDefault("factory.delta_disputed", -5)
	viper.SetDefault("factory.delta_void", -15)
	viper.SetDefault("factory.delta_max_abs", 50)

	viper.SetDefault("market.min_deposit", "1")
	viper.SetDefault("market.confirmation_grace_seconds", 86400)

	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.issuer", "polyfactory")
	viper.SetDefault("auth.token_ttl_minutes", 60)
	viper.SetDefault("auth.nonce_ttl_seconds", 300)
	viper.SetDefault("auth.admin_key", "")

	viper.SetDefault("database.idempotency_retention_hours", 168)
	viper.SetDefault("database.audit_retention_days", 30)
	viper.SetDefault("database.event_retention_days", 90)
	viper.SetDefault("database.usage_retention_days", 30)
	viper.SetDefault("database.cleanup_schedule", "@every 1h")

	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("redis.audit_list_key", "polyfactory:audit")
	viper.SetDefault("redis.audit_list_max", 10000)
	viper.SetDefault("redis.event_list_key", "polyfactory:events")
	viper.SetDefault("redis.event_list_max", 10000)
	viper.SetDefault("redis.event_channel", "polyfactory:events:live")

	viper.SetDefault("risk.max_daily_deposit", "")
	viper.SetDefault("risk.max_daily_deposits", 0)
	viper.SetDefault("risk.rate_limit_qps", 5.0)
	viper.SetDefault("risk.rate_limit_burst", 10)

	viper.SetDefault("events.buffer_size", 1000)
	viper.SetDefault("events.ring_size", 500)
}

// Validate checks the settings the core cannot start without.
func (c *Config) Validate() error {
	if c.Ledger.MinScore > 0 || c.Ledger.MaxScore < 0 {
		return fmt.Errorf("ledger score bounds [%d,%d] must contain 0", c.Ledger.MinScore, c.Ledger.MaxScore)
	}
	if c.Factory.CreationThreshold < c.Ledger.MinScore || c.Factory.CreationThreshold > c.Ledger.MaxScore {
		return fmt.Errorf("factory.creation_threshold %d outside ledger bounds", c.Factory.CreationThreshold)
	}
	if c.Factory.DeltaMaxAbs < 0 {
		return fmt.Errorf("factory.delta_max_abs must not be negative")
	}
	if c.Market.ConfirmationGraceSeconds < 0 {
		return fmt.Errorf("market.confirmation_grace_seconds must not be negative")
	}
	return nil
}
