package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()
	defer resetViper()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "evse-simulator", cfg.App.Name)
	assert.Equal(t, "ws://localhost:9000/ocpp", cfg.CSMS.URL)
	assert.Equal(t, "ocpp1.6", cfg.CSMS.SubProtocol)
	assert.Equal(t, 1024, cfg.Session.InboxSize)
	assert.Equal(t, 25000, cfg.Pool.MaxSessions)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	resetViper()
	defer resetViper()

	os.Setenv("SIM_CSMS_URLS", "ws://csms-a:9000/ocpp,ws://csms-b:9000/ocpp")
	os.Setenv("SIM_LOG_LEVEL", "debug")
	defer os.Unsetenv("SIM_CSMS_URLS")
	defer os.Unsetenv("SIM_LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://csms-a:9000/ocpp", cfg.CSMS.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadHonorsExplicitOverrides(t *testing.T) {
	resetViper()
	defer resetViper()
	DefaultConfig()
	viper.Set("session.heartbeat_interval", "10s")
	viper.Set("pool.max_sessions", 5000)

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))
	assert.Equal(t, 10*time.Second, cfg.Session.HeartbeatInterval)
	assert.Equal(t, 5000, cfg.Pool.MaxSessions)
}
