package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		BridgePort:           "8390",
		PageSize:             10,
		DetailConcurrency:    4,
		ViewerID:             "viewer-1",
		CacheBackend:         CacheBackendSQLite,
		CachePath:            "cache.db",
		CacheCodec:           CacheCodecJSON,
		RealtimeDriver:       RealtimeDriverRedis,
		ResubscribeInitialMS: 500,
		ResubscribeMaxMS:     30000,
		DBSSLMode:            "disable",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Valid", func(_ *Config) {}, false},
		{"Missing port", func(c *Config) { c.BridgePort = "" }, true},
		{"Zero page size", func(c *Config) { c.PageSize = 0 }, true},
		{"Zero detail concurrency", func(c *Config) { c.DetailConcurrency = 0 }, true},
		{"No viewer", func(c *Config) { c.ViewerID = "" }, true},
		{"Token only", func(c *Config) { c.ViewerID = ""; c.AccessToken = "tok" }, false},
		{"Unknown cache backend", func(c *Config) { c.CacheBackend = "bolt" }, true},
		{"Sqlite without path", func(c *Config) { c.CachePath = "" }, true},
		{"Memory without path", func(c *Config) { c.CacheBackend = CacheBackendMemory; c.CachePath = "" }, false},
		{"Unknown codec", func(c *Config) { c.CacheCodec = "gob" }, true},
		{"Msgpack codec", func(c *Config) { c.CacheCodec = CacheCodecMsgpack }, false},
		{"Websocket without url", func(c *Config) { c.RealtimeDriver = RealtimeDriverWebsocket }, true},
		{"Websocket with url", func(c *Config) {
			c.RealtimeDriver = RealtimeDriverWebsocket
			c.RealtimeURL = "ws://localhost:4000/realtime"
		}, false},
		{"Unknown driver", func(c *Config) { c.RealtimeDriver = "mqtt" }, true},
		{"Backoff inverted", func(c *Config) { c.ResubscribeMaxMS = 100 }, true},
		{"Production without ssl", func(c *Config) { c.Env = "production" }, true},
		{"Production with ssl", func(c *Config) { c.Env = "prod"; c.DBSSLMode = "require" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("VIEWER_ID", "viewer-42")
	t.Setenv("PAGE_SIZE", "15")
	t.Setenv("CACHE_BACKEND", "  MEMORY ")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "viewer-42", c.ViewerID)
	assert.Equal(t, 15, c.PageSize)
	assert.Equal(t, CacheBackendMemory, c.CacheBackend)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "realtime:public:posts", c.RealtimeTopic)
	assert.Equal(t, CacheCodecJSON, c.CacheCodec)
}

func TestLoadConfig_RejectsMissingViewer(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("VIEWER_ID", "")
	t.Setenv("ACCESS_TOKEN", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
