package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-booking/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-booking/pkg/worker"
)

const envPrefix = "CLINIC"

type Config struct {
	Env       string          `mapstructure:"env"`
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Clinic    ClinicConfig    `mapstructure:"clinic"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OTP       OTPConfig       `mapstructure:"otp"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	// Migrate runs pending goose migrations on startup.
	Migrate bool `mapstructure:"migrate"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig selects the repository backend: postgres or memory.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	// ChangesChannel is the pub/sub channel of the change feed.
	ChangesChannel string `mapstructure:"changes_channel"`
	// QueueDB is the database index used by the job queue.
	QueueDB int `mapstructure:"queue_db"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	DLQTopic     string        `mapstructure:"dlq_topic"`
	Compression  string        `mapstructure:"compression"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type OutboxConfig struct {
	// Broker is redis or kafka.
	Broker        string        `mapstructure:"broker"`
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type BookingConfig struct {
	LeadTime     time.Duration `mapstructure:"lead_time"`
	HorizonDays  int           `mapstructure:"horizon_days"`
	RefundWindow time.Duration `mapstructure:"refund_window"`
	DailyLimit   int           `mapstructure:"daily_limit"`
	WeeklyLimit  int           `mapstructure:"weekly_limit"`
	ReminderLead time.Duration `mapstructure:"reminder_lead"`
}

type ClinicConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
	// PhoneRegion is the default region used to parse national numbers.
	PhoneRegion string `mapstructure:"phone_region"`
}

// Location loads the clinic time zone.
func (c ClinicConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type OTPConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	BaseURL    string `mapstructure:"base_url"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type NotifyConfig struct {
	// Channel is whatsapp, email or log.
	Channel string `mapstructure:"channel"`
}

type ReminderConfig struct {
	BatchSize int    `mapstructure:"batch_size"`
	Schedule  string `mapstructure:"schedule"`
	Signature string `mapstructure:"signature"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// Secrets are read straight from the environment and never from config files.
type Secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.changes_channel", "clinic.changes")
	v.SetDefault("redis.queue_db", 1)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "clinic")
	v.SetDefault("kafka.dlq_topic", "clinic.dlq")
	v.SetDefault("kafka.compression", "snappy")
	v.SetDefault("kafka.max_attempts", 5)
	v.SetDefault("kafka.batch_timeout", 50*time.Millisecond)

	v.SetDefault("outbox.broker", "redis")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("booking.lead_time", 12*time.Hour)
	v.SetDefault("booking.horizon_days", 14)
	v.SetDefault("booking.refund_window", 24*time.Hour)
	v.SetDefault("booking.daily_limit", 1)
	v.SetDefault("booking.weekly_limit", 3)
	v.SetDefault("booking.reminder_lead", 24*time.Hour)

	v.SetDefault("clinic.name", "Clinic")
	v.SetDefault("clinic.timezone", "Europe/Istanbul")
	v.SetDefault("clinic.phone_region", "TR")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "clinic-booking")
	v.SetDefault("jwt.expiry_hours", 24*7)

	v.SetDefault("otp.ttl", 5*time.Minute)
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.cooldown", time.Minute)

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "whatsapp:+14155238886")
	v.SetDefault("twilio.base_url", "https://api.twilio.com")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@clinic.local")

	v.SetDefault("notify.channel", "log")

	v.SetDefault("reminder.batch_size", 200)
	v.SetDefault("reminder.schedule", "@every 1m")
	v.SetDefault("reminder.signature", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)
}

// LoadConfig reads .env, config.yaml and CLINIC_* environment variables, in that order of
// increasing precedence.
func LoadConfig() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	config.applySecrets(secrets)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.TwilioAccountSID != "" {
		c.Twilio.AccountSID = s.TwilioAccountSID
	}
	if s.TwilioAuthToken != "" {
		c.Twilio.AuthToken = s.TwilioAuthToken
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
}

// Validate checks the settings the services cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (set %s_JWT_SECRET)", envPrefix)
	}
	if _, err := c.Clinic.Location(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Outbox.Broker {
	case "redis", "kafka":
	default:
		return fmt.Errorf("unknown outbox broker %q", c.Outbox.Broker)
	}
	switch c.Notify.Channel {
	case "whatsapp", "email", "log":
	default:
		return fmt.Errorf("unknown notify channel %q", c.Notify.Channel)
	}
	if c.Booking.DailyLimit <= 0 || c.Booking.WeeklyLimit <= 0 {
		return fmt.Errorf("booking limits must be positive")
	}
	return nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Retention:     c.Retention,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
