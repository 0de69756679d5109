package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Push     PushConfig     `mapstructure:"push"`
	Network  NetworkConfig  `mapstructure:"network"`
	Sync     SyncConfig     `mapstructure:"sync"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig points at the remote game service.
type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

func (s ServerConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type PushConfig struct {
	ReconnectBaseDelay   string `mapstructure:"reconnect_base_delay"`
	MaxReconnectAttempts int    `mapstructure:"max_reconnect_attempts"`
}

func (p PushConfig) GetReconnectBaseDelay() time.Duration {
	d, err := time.ParseDuration(p.ReconnectBaseDelay)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

type NetworkConfig struct {
	ProbeInterval string `mapstructure:"probe_interval"`
	ProbeTimeout  string `mapstructure:"probe_timeout"`
}

func (n NetworkConfig) GetProbeInterval() time.Duration {
	d, err := time.ParseDuration(n.ProbeInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func (n NetworkConfig) GetProbeTimeout() time.Duration {
	d, err := time.ParseDuration(n.ProbeTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

type SyncConfig struct {
	SettleDelay       string `mapstructure:"settle_delay"`
	SuppressionWindow string `mapstructure:"suppression_window"`
	ReplaySchedule    string `mapstructure:"replay_schedule"`
	ReplayEnabled     bool   `mapstructure:"replay_enabled"`
}

func (s SyncConfig) GetSettleDelay() time.Duration {
	d, err := time.ParseDuration(s.SettleDelay)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

func (s SyncConfig) GetSuppressionWindow() time.Duration {
	d, err := time.ParseDuration(s.SuppressionWindow)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("database.path", "games.db")
	v.SetDefault("push.reconnect_base_delay", "5s")
	v.SetDefault("push.max_reconnect_attempts", 5)
	v.SetDefault("network.probe_interval", "10s")
	v.SetDefault("network.probe_timeout", "3s")
	v.SetDefault("sync.settle_delay", "1500ms")
	v.SetDefault("sync.suppression_window", "5s")
	v.SetDefault("sync.replay_schedule", "@every 1m")
	v.SetDefault("sync.replay_enabled", true)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
