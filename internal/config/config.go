package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"roast_monitor/internal/transport"
)

// envPrefix scopes environment overrides, e.g. ROAST_MQTT_BROKER.
const envPrefix = "ROAST"

// Config is the process configuration read from configs/config.yml.
type Config struct {
	Port      string                    `mapstructure:"port"`
	DB        DBConfig                  `mapstructure:"db"`
	Log       LogConfig                 `mapstructure:"log"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Sampler   SamplerConfig             `mapstructure:"sampler"`
	Device    DeviceConfig              `mapstructure:"device"`
	MQTT      MQTTConfig                `mapstructure:"mqtt"`
	Simulator transport.SimulatorConfig `mapstructure:"simulator"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// SamplerConfig drives the roast timeline.
type SamplerConfig struct {
	Interval time.Duration `mapstructure:"interval"` // sample cadence while roasting
	Grace    time.Duration `mapstructure:"grace"`    // undo-drop window
}

type DeviceConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ETFallback   string        `mapstructure:"et_fallback"` // "zero" or "last-known"
	DefaultBaud  int           `mapstructure:"default_baud"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "roast.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("sampler.interval", time.Second)
	v.SetDefault("sampler.grace", 5*time.Second)
	v.SetDefault("device.poll_interval", transport.DefaultPollInterval)
	v.SetDefault("device.et_fallback", "zero")
	v.SetDefault("device.default_baud", transport.DefaultBaud)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "roastd")
	v.SetDefault("mqtt.topic_prefix", "roast/monitor")
	v.SetDefault("simulator.tick", time.Second)
	v.SetDefault("simulator.ambient", 25.0)
	v.SetDefault("simulator.heater", 240.0)
}

// Load reads the config file at path (or configs/config.yml when path is
// empty) and applies ROAST_* environment overrides. A missing default
// file is not an error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs") // configs/config.yml
		v.SetConfigName("config")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
