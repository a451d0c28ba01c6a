package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded bool

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// AgentConfig is the sender identity used when a lead has no owning agent
// and no account matches DefaultAgentEmail.
type AgentConfig struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SESFeedbackConfig points at the SQS queue SES publishes bounces and
// complaints to. An empty QueueURL disables the consumer.
type SESFeedbackConfig struct {
	QueueURL string `json:"queue_url"`
	Region   string `json:"region"`
}

type SequenceConfig struct {
	CronSpec          string        `json:"cron_spec"`
	LockTTL           time.Duration `json:"lock_ttl"`
	MaxReportedErrors int           `json:"max_reported_errors"`
}

type Config struct {
	Environment    string            `json:"environment"`
	ServerPort     string            `json:"server_port"`
	BaseURL        string            `json:"base_url"`
	DBHost         string            `json:"db_host"`
	DBPort         string            `json:"db_port"`
	DBUser         string            `json:"db_user"`
	DBPassword     string            `json:"-"`
	DBName         string            `json:"db_name"`
	DBSSLMode      string            `json:"db_ssl_mode"`
	DBMaxIdleConns int               `json:"db_max_idle_conns"`
	DBMaxOpenConns int               `json:"db_max_open_conns"`
	Redis          RedisConfig       `json:"redis"`
	SMTP           SMTPConfig        `json:"smtp"`
	DefaultAgent   AgentConfig       `json:"default_agent"`
	Sequence       SequenceConfig    `json:"sequence"`
	SESFeedback    SESFeedbackConfig `json:"ses_feedback"`
	CronSecret     string            `json:"-"`
	AdminAPIToken  string            `json:"-"`
	WebhookSecret  string            `json:"-"`
	WebhookLimit   int               `json:"webhook_rate_limit"`
	SentryDSN      string            `json:"-"`
	LogLevel       string            `json:"log_level"`
	LogFormat      string            `json:"log_format"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		BaseURL:        strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "dripcrm"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", ""),
		},
		DefaultAgent: AgentConfig{
			Name:  getEnv("DEFAULT_AGENT_NAME", "Your Medicare Team"),
			Email: getEnv("DEFAULT_AGENT_EMAIL", ""),
			Phone: getEnv("DEFAULT_AGENT_PHONE", ""),
		},
		Sequence: SequenceConfig{
			CronSpec:          getEnv("SEQUENCE_CRON_SPEC", ""),
			LockTTL:           getEnvAsDuration("SEQUENCE_LOCK_TTL", 5*time.Minute),
			MaxReportedErrors: getEnvAsInt("SEQUENCE_MAX_REPORTED_ERRORS", 10),
		},
		SESFeedback: SESFeedbackConfig{
			QueueURL: getEnv("SES_FEEDBACK_QUEUE_URL", ""),
			Region:   getEnv("AWS_REGION", "us-east-1"),
		},
		CronSecret:    getEnv("CRON_SECRET", ""),
		AdminAPIToken: getEnv("ADMIN_API_TOKEN", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		WebhookLimit:  getEnvAsInt("WEBHOOK_RATE_LIMIT", 120),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logConfig(cfg)
	return cfg, nil
}

// Validate checks the values every deployment needs. Mail credentials are
// checked at send time so the API can run without them.
func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.Sequence.MaxReportedErrors <= 0 {
		return fmt.Errorf("SEQUENCE_MAX_REPORTED_ERRORS must be positive")
	}
	if c.Sequence.LockTTL <= 0 {
		return fmt.Errorf("SEQUENCE_LOCK_TTL must be positive")
	}
	if c.Environment == "production" && c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required in production")
	}
	if c.Environment == "production" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required in production")
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig(cfg *Config) {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Server Port: %s", cfg.ServerPort)
	log.Printf("Database: %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	log.Printf("SMTP configured: %t, Redis enabled: %t", cfg.SMTP.Host != "", cfg.Redis.Enabled)
	log.Printf("Sequence cron: %q, trigger secret set: %t", cfg.Sequence.CronSpec, cfg.CronSecret != "")
	log.Printf("Webhook secret set: %t", cfg.WebhookSecret != "")
	log.Printf("SES feedback queue: %q", cfg.SESFeedback.QueueURL)
}
