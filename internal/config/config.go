// Package config loads layered viper configuration for the simulator:
// config.yaml, an optional profile overlay, and SIM_-prefixed environment
// overrides. It is grounded on the gateway's internal/config.Load, which
// used the same multi-environment-file-plus-env-override shape for a
// server; this module carries the shape over for a pool of outbound
// dialers instead (App/Session/Pool/CSMS/Kafka/Redis/Log/Metrics sections
// per SPEC_FULL.md's AMBIENT STACK).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved simulator configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Session SessionConfig `mapstructure:"session"`
	Pool    PoolConfig    `mapstructure:"pool"`
	CSMS    CSMSConfig    `mapstructure:"csms"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig identifies this process instance.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
	PodID   string `mapstructure:"pod_id"`
}

// SessionConfig carries the per-session defaults new sessions inherit
// (spec §3/§4.4), before a StartBatch spec overrides a subset of them.
type SessionConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	MeterValueInterval   time.Duration `mapstructure:"meter_value_interval"`
	InboxSize            int           `mapstructure:"inbox_size"`
	MaxPendingCalls      int           `mapstructure:"max_pending_calls"`
	CallDeadline         time.Duration `mapstructure:"call_deadline"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	LogRingSize          int           `mapstructure:"log_ring_size"`
	ConnectorVoltage     float64       `mapstructure:"connector_voltage"`
	ConnectorPhases      int           `mapstructure:"connector_phases"`
	MaxPowerW            float64       `mapstructure:"max_power_w"`
}

// PoolConfig bounds how large a ramp the pool will accept (spec §4.5).
type PoolConfig struct {
	MaxSessions      int    `mapstructure:"max_sessions"`
	ShardCount       int    `mapstructure:"shard_count"`
	MemoryFloorBytes uint64 `mapstructure:"memory_floor_bytes"`
}

// CSMSConfig is the default dial target and transport posture for sessions
// that don't override it (spec §4.4).
type CSMSConfig struct {
	URL              string `mapstructure:"url"`
	SubProtocol      string `mapstructure:"subprotocol"`
	TrustAllCerts    bool   `mapstructure:"trust_all_certs"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// KafkaConfig wires the External Control API transport of SPEC_FULL.md's
// DOMAIN STACK section.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	CommandsTopic string   `mapstructure:"commands_topic"`
	EventsTopic   string   `mapstructure:"events_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// RedisConfig is the optional session-snapshot mirror (SPEC_FULL.md
// DOMAIN STACK).
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Enabled    bool          `mapstructure:"enabled"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// LogConfig mirrors the gateway's logger.Config shape.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig is the simulator's own liveness/metrics HTTP surface
// (SPEC_FULL.md SUPPLEMENTED FEATURES), distinct from the CSMS-facing
// surface spec §1 excludes.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig seeds every viper.SetDefault the way the gateway's
// setDefaults did, before any file or env override is applied.
func DefaultConfig() {
	viper.SetDefault("app.name", "evse-simulator")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.profile", "local")

	viper.SetDefault("session.heartbeat_interval", "30s")
	viper.SetDefault("session.meter_value_interval", "60s")
	viper.SetDefault("session.inbox_size", 1024)
	viper.SetDefault("session.max_pending_calls", 256)
	viper.SetDefault("session.call_deadline", "30s")
	viper.SetDefault("session.max_reconnect_attempts", 5)
	viper.SetDefault("session.reconnect_base_delay", "2s")
	viper.SetDefault("session.reconnect_max_delay", "60s")
	viper.SetDefault("session.log_ring_size", 1024)
	viper.SetDefault("session.connector_voltage", 230.0)
	viper.SetDefault("session.connector_phases", 1)
	viper.SetDefault("session.max_power_w", 22000.0)

	viper.SetDefault("pool.max_sessions", 25000)
	viper.SetDefault("pool.shard_count", 32)
	viper.SetDefault("pool.memory_floor_bytes", 256*1024*1024)

	viper.SetDefault("csms.url", "ws://localhost:9000/ocpp")
	viper.SetDefault("csms.subprotocol", "ocpp1.6")
	viper.SetDefault("csms.trust_all_certs", false)
	viper.SetDefault("csms.handshake_timeout", "10s")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.commands_topic", "sim.commands")
	viper.SetDefault("kafka.events_topic", "sim.events")
	viper.SetDefault("kafka.consumer_group", "evse-simulator")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.snapshot_ttl", "5m")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", true)

	viper.SetDefault("metrics.listen_addr", ":9090")
}

// Load resolves Config from config.yaml, an optional SIM_PROFILE overlay,
// and SIM_-prefixed environment variables, in that ascending priority
// order (spec AMBIENT STACK / gateway Load()'s same three-tier scheme).
func Load() (*Config, error) {
	DefaultConfig()

	if err := mergeConfigFile("config"); err != nil {
		fmt.Fprintf(os.Stderr, "config: no base config.yaml found, using defaults: %v\n", err)
	}

	profile := os.Getenv("SIM_PROFILE")
	if profile == "" {
		profile = viper.GetString("app.profile")
	}
	if profile != "" {
		if err := mergeConfigFile("config-" + profile); err != nil {
			fmt.Fprintf(os.Stderr, "config: no profile overlay config-%s.yaml found: %v\n", profile, err)
		}
	}

	viper.SetEnvPrefix("SIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if urls := os.Getenv("SIM_CSMS_URLS"); urls != "" {
		viper.Set("csms.url", strings.Split(urls, ",")[0])
	}
	if brokers := os.Getenv("SIM_KAFKA_BROKERS"); brokers != "" {
		parts := strings.Split(brokers, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		viper.Set("kafka.brokers", parts)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}
	cfg.App.Profile = profile
	return &cfg, nil
}

func mergeConfigFile(name string) error {
	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	return viper.MergeInConfig()
}
