package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type WorkflowConfig struct {
	// MembershipOfficeID is the office whose admins perform the second approval.
	MembershipOfficeID int64 `mapstructure:"membership_office_id"`
	// AppURL is the base of links placed in notifications.
	AppURL string `mapstructure:"app_url"`
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Config struct {
	DatabaseURL    string         `mapstructure:"database_url"`
	ServerPort     string         `mapstructure:"server_port"`
	JWTSecret      string         `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration  `mapstructure:"token_ttl"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	Workflow       WorkflowConfig `mapstructure:"workflow"`
	Relay          RelayConfig    `mapstructure:"relay"`
	Temporal       TemporalConfig `mapstructure:"temporal"`
	Redis          RedisConfig    `mapstructure:"redis"`
	Email          EmailConfig    `mapstructure:"email"`
}

// Load reads the configuration from config.yaml in . or ./config. Any key can
// be overridden by an environment variable prefixed with BACKOFFICE_, e.g.
// BACKOFFICE_DATABASE_URL or BACKOFFICE_REDIS_ADDR.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("workflow.membership_office_id", 1)
	v.SetDefault("workflow.app_url", "http://localhost:3000")
	v.SetDefault("relay.poll_interval", 2*time.Second)
	v.SetDefault("relay.batch_size", 20)
	v.SetDefault("relay.max_backoff", 5*time.Minute)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "BACKOFFICE_NOTIFICATIONS")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_port", 587)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("database_url must be set")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("jwt_secret must be set")
	}
	if c.Workflow.MembershipOfficeID <= 0 {
		return errors.New("workflow.membership_office_id must be positive")
	}
	c.Workflow.AppURL = strings.TrimRight(strings.TrimSpace(c.Workflow.AppURL), "/")
	if c.Relay.PollInterval <= 0 {
		return errors.New("relay.poll_interval must be positive")
	}
	if c.Email.Enabled && (strings.TrimSpace(c.Email.SMTPHost) == "" || strings.TrimSpace(c.Email.From) == "") {
		return errors.New("email.smtp_host and email.from are required when email is enabled")
	}
	return nil
}
