package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         3306,
		Database:     "app",
		Username:     "app_user",
		Password:     "secret",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"port too low", func(c *Config) { c.Port = 0 }, "port must be between"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port must be between"},
		{"missing database", func(c *Config) { c.Database = "" }, "name is required"},
		{"missing username", func(c *Config) { c.Username = "" }, "username is required"},
		{"no open conns", func(c *Config) { c.MaxOpenConns = 0 }, "max_open_conns"},
		{"idle exceeds open", func(c *Config) { c.MaxIdleConns = 20 }, "max_idle_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	config := validConfig()
	config.Charset = "utf8mb4"
	config.Collation = "utf8mb4_unicode_ci"

	dsn, err := config.DSN()

	require.NoError(t, err)
	assert.Contains(t, dsn, "app_user:secret@tcp(localhost:3306)/app")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "collation=utf8mb4_unicode_ci")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestConfigDSNWithSkipVerifyTLS(t *testing.T) {
	config := validConfig()
	config.SSL = SSLConfig{Enabled: true, SkipVerify: true}

	dsn, err := config.DSN()

	require.NoError(t, err)
	assert.Contains(t, dsn, "tls=skip-verify")
}

func TestConfigDSNWithBadCAFile(t *testing.T) {
	config := validConfig()
	config.SSL = SSLConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}

	_, err := config.DSN()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls configuration")
}

func TestConfigDSNRejectsHalfClientKeyPair(t *testing.T) {
	config := validConfig()
	config.SSL = SSLConfig{Enabled: true, CertFile: "/some/cert.pem"}

	_, err := config.DSN()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")
}

func TestParseLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, "UTC", parseLocation("").String())
	assert.Equal(t, "UTC", parseLocation("Not/AZone").String())
}

func TestManagerWithQueryTimeout(t *testing.T) {
	gormDB, _ := newMockGorm(t)

	withTimeout := NewManagerFromDB(gormDB, &Config{QueryTimeout: 5 * time.Second})
	ctx, cancel := withTimeout.WithQueryTimeout(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	without := NewManagerFromDB(gormDB, &Config{})
	ctx, cancel = without.WithQueryTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}
