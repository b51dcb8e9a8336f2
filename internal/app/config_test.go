package app

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/purchase",
		Database:    DatabaseConfig{Driver: DriverPostgres, TxTimeout: 10 * time.Second},
		Notify:      NotifyConfig{Kind: NotifyHTTP, URL: "http://localhost:5000/tasks/order-processed"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "database URL is required",
		},
		{
			name: "memory without url",
			mutate: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.DatabaseURL = ""
			},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "sqlite" },
			wantErr: `unknown database driver "sqlite"`,
		},
		{
			name:    "http without url",
			mutate:  func(c *Config) { c.Notify.URL = "" },
			wantErr: "notify URL is required",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Notify.Kind = NotifyKafka },
			wantErr: "kafka brokers are required",
		},
		{
			name: "kafka with brokers",
			mutate: func(c *Config) {
				c.Notify.Kind = NotifyKafka
				c.Notify.Kafka.Brokers = []string{"localhost:9092"}
			},
		},
		{
			name: "notifications off",
			mutate: func(c *Config) {
				c.Notify.Kind = NotifyNone
				c.Notify.URL = ""
			},
		},
		{
			name:    "unknown notifier",
			mutate:  func(c *Config) { c.Notify.Kind = "smtp" },
			wantErr: `unknown notifier "smtp"`,
		},
		{
			name:    "zero tx timeout",
			mutate:  func(c *Config) { c.Database.TxTimeout = 0 },
			wantErr: "tx timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	// Explicit settings win.
	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestNotPurchase(t *testing.T) {
	tests := []struct {
		method, path string
		want         bool
	}{
		{"POST", "/api/orders", false},
		{"POST", "/api/orders/", false},
		{"GET", "/api/orders/1", true},
		{"POST", "/api/products", true},
		{"GET", "/readyz", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, notPurchase(r), "%s %s", tt.method, tt.path)
	}
}
