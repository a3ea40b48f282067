package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("MONOSITI_JWT_SECRET", "a-very-long-test-secret")

	yamlContent := `
database:
  path: "test.db"
auth:
  jwt_secret: "${MONOSITI_JWT_SECRET}"
  otp_ttl: 3m
api:
  rate_limit:
    rps: 5
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "a-very-long-test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 3*time.Minute, cfg.Auth.OTPTTL)
	assert.Equal(t, 6, cfg.Auth.OTPLength)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "monositi", cfg.Auth.Issuer)
	assert.Equal(t, 5.0, cfg.API.RateLimit.RPS)
	assert.Equal(t, "@every 30m", cfg.Indexer.ReconcileSchedule)
	assert.Equal(t, 10*time.Minute, cfg.API.RateLimit.IdleTTL)
	assert.Equal(t, 10*time.Second, cfg.Telegram.Timeout)
	assert.Equal(t, 64, cfg.Telegram.QueueSize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{
			Database: DatabaseConfig{Path: "path"},
			Auth:     AuthConfig{JWTSecret: "0123456789abcdef"},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "otp too long", mutate: func(c *Config) { c.Auth.OTPLength = 12 }, wantErr: true},
		{name: "mongo without uri", mutate: func(c *Config) { c.Mongo.Enabled = true }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
		}, wantErr: true},
		{name: "telegram without chats", mutate: func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "token"
		}, wantErr: true},
		{name: "storage without bucket", mutate: func(c *Config) { c.Storage.Enabled = true }, wantErr: true},
		{name: "sms without gateway", mutate: func(c *Config) { c.SMS.Enabled = true }, wantErr: true},
		{name: "trusted proxies", mutate: func(c *Config) {
			c.API.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.5"}
		}},
		{name: "bad trusted proxy", mutate: func(c *Config) {
			c.API.RateLimit.TrustedProxies = []string{"load-balancer"}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
