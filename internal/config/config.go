package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the ingestor.
type Config struct {
	Broker     BrokerConfig     `mapstructure:"broker"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Log        LogConfig        `mapstructure:"log"`
	Devices    []DeviceSeed     `mapstructure:"devices"`
}

type BrokerConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PipelineConfig struct {
	Workers       int `mapstructure:"workers"`
	QueueSize     int `mapstructure:"queue_size"`
	CacheCapacity int `mapstructure:"cache_capacity"`
	SnapshotSize  int `mapstructure:"snapshot_size"`
	// consecutive storage faults before the db link is treated as lost
	FaultEscalation int `mapstructure:"fault_escalation"`
}

type ResilienceConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DeviceSeed registers a manhole at startup when the devices table is
// empty. Thresholds are optional overrides of the default table.
type DeviceSeed struct {
	ID        string  `mapstructure:"id"`
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Address   string  `mapstructure:"address"`
}

// Load reads config.yaml from path (plus matching environment variables)
// and fills in defaults for anything missing.
func Load(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.SetEnvPrefix("drainwatch")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// defaults only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("broker.brokers", []string{"localhost:9092"})
	viper.SetDefault("broker.topic", "manhole-telemetry")
	viper.SetDefault("broker.group_id", "drainwatch-ingestor")
	viper.SetDefault("storage.path", "data/drainwatch.db")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.queue_size", 1000)
	viper.SetDefault("pipeline.cache_capacity", 1000)
	viper.SetDefault("pipeline.snapshot_size", 100)
	viper.SetDefault("pipeline.fault_escalation", 3)
	viper.SetDefault("resilience.max_attempts", 5)
	viper.SetDefault("resilience.retry_delay", 5*time.Second)
	viper.SetDefault("log.level", "info")
}
