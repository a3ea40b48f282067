package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	SMS        SMSConfig        `yaml:"sms"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Backup     BackupConfig     `yaml:"backup"`
	Indexer    IndexerConfig    `yaml:"indexer"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MongoConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	Issuer           string        `yaml:"issuer"`
	OTPTTL           time.Duration `yaml:"otp_ttl"`
	OTPLength        int           `yaml:"otp_length"`
	OTPMaxAttempts   int           `yaml:"otp_max_attempts"`
	OTPRequestLimit  int           `yaml:"otp_request_limit"`
	OTPRequestWindow time.Duration `yaml:"otp_request_window"`
}

type SMSConfig struct {
	Enabled    bool          `yaml:"enabled"`
	GatewayURL string        `yaml:"gateway_url"`
	APIKey     string        `yaml:"api_key"`
	SenderID   string        `yaml:"sender_id"`
	Template   string        `yaml:"template"`
	Timeout    time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64       `yaml:"admin_chat_ids"`
	Debug        bool          `yaml:"debug"`
	Timeout      time.Duration `yaml:"timeout"`
	QueueSize    int           `yaml:"queue_size"`
}

type APIConfig struct {
	HTTP           APIHTTPConfig      `yaml:"http"`
	RateLimit      APIRateLimitConfig `yaml:"rate_limit"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// TrustedProxies lists peer IPs or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string      `yaml:"trusted_proxies"`
	IdleTTL        time.Duration `yaml:"idle_ttl"`
	SweepSchedule  string        `yaml:"sweep_schedule"` // cron spec
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // cron spec
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type IndexerConfig struct {
	ReconcileSchedule string        `yaml:"reconcile_schedule"` // cron spec
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// Load reads configPath, expanding ${VAR} references from the environment and
// an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 bytes")
	}
	if c.Auth.OTPLength < 4 || c.Auth.OTPLength > 10 {
		return fmt.Errorf("auth.otp_length must be between 4 and 10, got %d", c.Auth.OTPLength)
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		return errors.New("mongo.uri is required when mongo is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	if c.SMS.Enabled && c.SMS.GatewayURL == "" {
		return errors.New("sms.gateway_url is required when sms is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || len(c.Telegram.AdminChatIDs) == 0) {
		return errors.New("telegram.bot_token and telegram.admin_chat_ids are required when telegram is enabled")
	}
	for _, proxy := range c.API.RateLimit.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			return fmt.Errorf("api.rate_limit.trusted_proxies: %q is neither an IP nor a CIDR", proxy)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "monositi"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 10 * time.Second
	}
	if c.API.RateLimit.IdleTTL == 0 {
		c.API.RateLimit.IdleTTL = 10 * time.Minute
	}
	if c.API.RateLimit.SweepSchedule == "" {
		c.API.RateLimit.SweepSchedule = "@every 5m"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.App.Name
	}
	if c.Auth.OTPTTL == 0 {
		c.Auth.OTPTTL = 5 * time.Minute
	}
	if c.Auth.OTPLength == 0 {
		c.Auth.OTPLength = 6
	}
	if c.Auth.OTPMaxAttempts == 0 {
		c.Auth.OTPMaxAttempts = 5
	}
	if c.Auth.OTPRequestLimit == 0 {
		c.Auth.OTPRequestLimit = 3
	}
	if c.Auth.OTPRequestWindow == 0 {
		c.Auth.OTPRequestWindow = 10 * time.Minute
	}

	if c.SMS.Timeout == 0 {
		c.SMS.Timeout = 5 * time.Second
	}
	if c.SMS.Template == "" {
		c.SMS.Template = "Your verification code is %s"
	}

	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = 10 * time.Second
	}
	if c.Telegram.QueueSize == 0 {
		c.Telegram.QueueSize = 64
	}

	if c.Mongo.Database == "" {
		c.Mongo.Database = "monositi"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "listing_locations"
	}
	if c.Mongo.Timeout == 0 {
		c.Mongo.Timeout = 5 * time.Second
	}

	if c.Storage.MaxUploadMB == 0 {
		c.Storage.MaxUploadMB = 10
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	if c.Indexer.ReconcileSchedule == "" {
		c.Indexer.ReconcileSchedule = "@every 30m"
	}
	if c.Indexer.MaxRetries == 0 {
		c.Indexer.MaxRetries = 5
	}
	if c.Indexer.InitialDelay == 0 {
		c.Indexer.InitialDelay = 2 * time.Second
	}
	if c.Indexer.MaxDelay == 0 {
		c.Indexer.MaxDelay = time.Minute
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = 2 * time.Second
	}
}
