package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Mail      MailConfig      `mapstructure:"mail"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Events    EventsConfig    `mapstructure:"events"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Grpc      GrpcConfig      `mapstructure:"grpc"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// DatabaseConfig selects the student store. Host..ConnMaxIdleTime apply to postgres only.
// Seed registers the demo students on startup.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
	Seed            bool   `mapstructure:"seed"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type MailConfig struct {
	Provider       string `mapstructure:"provider"`
	FromName       string `mapstructure:"from_name"`
	FromAddress    string `mapstructure:"from_address"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	SendgridHost   string `mapstructure:"sendgrid_host"`
}

type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Timezone         string `mapstructure:"timezone"`
	ExpiryCron       string `mapstructure:"expiry_cron"`
	PaymentCron      string `mapstructure:"payment_cron"`
	ExpiryDaysBefore int    `mapstructure:"expiry_days_before"`
	LockTTLSeconds   int    `mapstructure:"lock_ttl_seconds"`
}

func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EventsConfig struct {
	Driver string `mapstructure:"driver"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminUsername     string `mapstructure:"admin_username"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
	TokenTTLMinutes   int    `mapstructure:"token_ttl_minutes"`
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

type GrpcConfig struct {
	Port string `mapstructure:"port"`
}

type TelemetryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "tutordesk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_seconds", 300)
	v.SetDefault("database.conn_max_idle_time_seconds", 60)
	v.SetDefault("database.seed", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "tutordesk")
	v.SetDefault("mongo.collection", "students")

	v.SetDefault("mail.provider", "console")
	v.SetDefault("mail.from_name", "Tutor Desk")
	v.SetDefault("mail.from_address", "no-reply@tutordesk.local")
	v.SetDefault("mail.sendgrid_host", "https://api.sendgrid.com")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.expiry_cron", "0 9 * * *")
	v.SetDefault("scheduler.payment_cron", "0 8 * * *")
	v.SetDefault("scheduler.expiry_days_before", 7)
	v.SetDefault("scheduler.lock_ttl_seconds", 600)

	v.SetDefault("events.driver", "none")
	v.SetDefault("nats.subject", "students.events")
	v.SetDefault("kafka.topic", "students.events")

	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.token_ttl_minutes", 60)

	v.SetDefault("telemetry.interval_seconds", 10)
}

func Load() (*Config, error) {
	// Get environment from ENV, default to "local"
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	return load(env, "/configs", "./configs", "../configs", "../../configs")
}

func load(env string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Config file is optional - ENV variables and defaults still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("mongo.uri", "MONGO_URI")
	_ = v.BindEnv("mail.sendgrid_api_key", "SENDGRID_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.admin_password_hash", "ADMIN_PASSWORD_HASH")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Env == "" {
		config.Env = env
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects combinations the app cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Events.Driver {
	case "", "none":
	case "nats":
		if c.NATS.URL == "" {
			return errors.New("events driver nats requires nats.url")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("events driver kafka requires kafka.brokers")
		}
	default:
		return fmt.Errorf("unsupported events driver %q", c.Events.Driver)
	}

	switch c.Mail.Provider {
	case "console":
	case "sendgrid":
		if c.Mail.SendgridAPIKey == "" {
			return errors.New("mail provider sendgrid requires SENDGRID_API_KEY")
		}
	default:
		return fmt.Errorf("unsupported mail provider %q", c.Mail.Provider)
	}

	if c.Scheduler.ExpiryDaysBefore < 0 {
		return errors.New("scheduler.expiry_days_before must not be negative")
	}

	return nil
}
