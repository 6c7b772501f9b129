package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const VERSION = "1.4"

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Delivery    DeliveryConfig
	Mail        MailConfig
	Tracing     TracingConfig
	Environment string
	LogLevel    string
	Version     string
}

type ServerConfig struct {
	Port        int
	Host        string
	CORSOrigins []string
	// APIKey guards the /api routes; empty leaves them open
	APIKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	URL string
}

// DeliveryConfig carries the send policy. The defaults are the production
// quotas and must only be lowered per environment.
type DeliveryConfig struct {
	MaxHourlyPerDomain   int
	MaxDailyPerDomain    int
	MaxAttempts          int
	BackoffBaseMinutes   int
	BackoffCapMinutes    int
	DefaultMaxPerEnqueue int
	TargetBatchCount     int
	MaxBatchSize         int
	BatchSpacing         time.Duration
	ClaimLimit           int
	LeaseTimeout         time.Duration
	TransportRatePerMin  int
	DomainLimitBackend   string // "postgres" or "redis"

	// cron specs, empty disables the schedule
	DeliverySchedule string
	ReaperSchedule   string
	CampaignSchedule string
}

type MailConfig struct {
	Transport string // "smtp", "ses" or "console"
	SMTP      SMTPConfig
	SES       SESConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
}

type TracingConfig struct {
	Enabled             bool
	ServiceName         string
	SamplingProbability float64

	// Trace exporter: "jaeger", "zipkin", "stackdriver", "datadog", "xray", "none"
	TraceExporter string

	JaegerEndpoint       string
	ZipkinEndpoint       string
	StackdriverProjectID string
	DatadogAgentAddress  string
	DatadogAPIKey        string
	XRayRegion           string

	// Metrics exporter: "prometheus", "stackdriver", "datadog", "none" or comma-separated list
	MetricsExporter string
	PrometheusPort  int
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	EnvFile string // Optional environment file to load (e.g., ".env", ".env.test")
}

// Load loads the configuration with default options
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "outreach")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VERSION", VERSION)

	// Delivery policy
	v.SetDefault("MAX_HOURLY", 200)
	v.SetDefault("MAX_DAILY", 800)
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("BACKOFF_BASE_MINUTES", 5)
	v.SetDefault("BACKOFF_CAP_MINUTES", 60)
	v.SetDefault("DEFAULT_MAX_PER_ENQUEUE", 500)
	v.SetDefault("TARGET_BATCH_COUNT", 6)
	v.SetDefault("MAX_BATCH_SIZE", 50)
	v.SetDefault("BATCH_SPACING_MINUTES", 10)
	v.SetDefault("CLAIM_LIMIT", 10)
	v.SetDefault("LEASE_TIMEOUT", "15m")
	v.SetDefault("TRANSPORT_RATE_PER_MINUTE", 120)
	v.SetDefault("DOMAIN_LIMIT_BACKEND", "postgres")
	v.SetDefault("DELIVERY_SCHEDULE", "*/5 * * * *")
	v.SetDefault("REAPER_SCHEDULE", "*/10 * * * *")
	v.SetDefault("CAMPAIGN_SCHEDULE", "@hourly")

	// Mail transport
	v.SetDefault("MAIL_TRANSPORT", "console")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("SES_REGION", "us-east-1")

	// Tracing
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_SERVICE_NAME", "outreach-api")
	v.SetDefault("TRACING_SAMPLING_PROBABILITY", 0.1)
	v.SetDefault("TRACING_TRACE_EXPORTER", "none")
	v.SetDefault("TRACING_JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("TRACING_ZIPKIN_ENDPOINT", "http://localhost:9411/api/v2/spans")
	v.SetDefault("TRACING_STACKDRIVER_PROJECT_ID", "")
	v.SetDefault("TRACING_DATADOG_AGENT_ADDRESS", "localhost:8126")
	v.SetDefault("TRACING_DATADOG_API_KEY", "")
	v.SetDefault("TRACING_XRAY_REGION", "us-west-2")
	v.SetDefault("TRACING_METRICS_EXPORTER", "none")
	v.SetDefault("TRACING_PROMETHEUS_PORT", 9464)

	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}

		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("SERVER_PORT"),
			Host:        v.GetString("SERVER_HOST"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
			APIKey:      v.GetString("API_KEY"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Delivery: DeliveryConfig{
			MaxHourlyPerDomain:   v.GetInt("MAX_HOURLY"),
			MaxDailyPerDomain:    v.GetInt("MAX_DAILY"),
			MaxAttempts:          v.GetInt("MAX_ATTEMPTS"),
			BackoffBaseMinutes:   v.GetInt("BACKOFF_BASE_MINUTES"),
			BackoffCapMinutes:    v.GetInt("BACKOFF_CAP_MINUTES"),
			DefaultMaxPerEnqueue: v.GetInt("DEFAULT_MAX_PER_ENQUEUE"),
			TargetBatchCount:     v.GetInt("TARGET_BATCH_COUNT"),
			MaxBatchSize:         v.GetInt("MAX_BATCH_SIZE"),
			BatchSpacing:         time.Duration(v.GetInt("BATCH_SPACING_MINUTES")) * time.Minute,
			ClaimLimit:           v.GetInt("CLAIM_LIMIT"),
			LeaseTimeout:         v.GetDuration("LEASE_TIMEOUT"),
			TransportRatePerMin:  v.GetInt("TRANSPORT_RATE_PER_MINUTE"),
			DomainLimitBackend:   v.GetString("DOMAIN_LIMIT_BACKEND"),
			DeliverySchedule:     v.GetString("DELIVERY_SCHEDULE"),
			ReaperSchedule:       v.GetString("REAPER_SCHEDULE"),
			CampaignSchedule:     v.GetString("CAMPAIGN_SCHEDULE"),
		},
		Mail: MailConfig{
			Transport: v.GetString("MAIL_TRANSPORT"),
			SMTP: SMTPConfig{
				Host:     v.GetString("SMTP_HOST"),
				Port:     v.GetInt("SMTP_PORT"),
				Username: v.GetString("SMTP_USERNAME"),
				Password: v.GetString("SMTP_PASSWORD"),
				UseTLS:   v.GetBool("SMTP_USE_TLS"),
			},
			SES: SESConfig{
				Region:    v.GetString("SES_REGION"),
				AccessKey: v.GetString("SES_ACCESS_KEY"),
				SecretKey: v.GetString("SES_SECRET_KEY"),
			},
		},
		Tracing: TracingConfig{
			Enabled:              v.GetBool("TRACING_ENABLED"),
			ServiceName:          v.GetString("TRACING_SERVICE_NAME"),
			SamplingProbability:  v.GetFloat64("TRACING_SAMPLING_PROBABILITY"),
			TraceExporter:        v.GetString("TRACING_TRACE_EXPORTER"),
			JaegerEndpoint:       v.GetString("TRACING_JAEGER_ENDPOINT"),
			ZipkinEndpoint:       v.GetString("TRACING_ZIPKIN_ENDPOINT"),
			StackdriverProjectID: v.GetString("TRACING_STACKDRIVER_PROJECT_ID"),
			DatadogAgentAddress:  v.GetString("TRACING_DATADOG_AGENT_ADDRESS"),
			DatadogAPIKey:        v.GetString("TRACING_DATADOG_API_KEY"),
			XRayRegion:           v.GetString("TRACING_XRAY_REGION"),
			MetricsExporter:      v.GetString("TRACING_METRICS_EXPORTER"),
			PrometheusPort:       v.GetInt("TRACING_PROMETHEUS_PORT"),
		},
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Version:     v.GetString("VERSION"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects policy values that would stall or flood delivery
func (c *Config) Validate() error {
	d := c.Delivery
	if d.MaxHourlyPerDomain <= 0 || d.MaxDailyPerDomain <= 0 {
		return fmt.Errorf("MAX_HOURLY and MAX_DAILY must be positive")
	}
	if d.MaxHourlyPerDomain > d.MaxDailyPerDomain {
		return fmt.Errorf("MAX_HOURLY (%d) cannot exceed MAX_DAILY (%d)", d.MaxHourlyPerDomain, d.MaxDailyPerDomain)
	}
	if d.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if d.MaxBatchSize < 1 || d.TargetBatchCount < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE and TARGET_BATCH_COUNT must be at least 1")
	}
	switch d.DomainLimitBackend {
	case "postgres":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when DOMAIN_LIMIT_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unsupported DOMAIN_LIMIT_BACKEND: %s", d.DomainLimitBackend)
	}
	switch c.Mail.Transport {
	case "console", "ses":
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_TRANSPORT is smtp")
		}
	default:
		return fmt.Errorf("unsupported MAIL_TRANSPORT: %s", c.Mail.Transport)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
