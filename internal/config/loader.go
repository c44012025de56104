package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/db"
	"github.com/rpattn/fieldlog/internal/fieldlog"
)

// ServerConfig holds the settings of cmd/server.
type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	LogLevel       string   `mapstructure:"logLevel"`
	Kafka          Kafka    `mapstructure:"kafka"`
	Export         Export   `mapstructure:"export"`
}

// Kafka configures the publish callback. It is registered only when brokers
// are set.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Export struct {
	MaxRows int `mapstructure:"maxRows"`
}

// DefaultServerConfig returns the settings used when nothing is configured.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		LogLevel:       "info",
		Kafka:          Kafka{Topic: "field-logs"},
		Export:         Export{MaxRows: 10000},
	}
}

func readConfig(configPath string, log *zap.Logger) *viper.Viper {
	if log == nil {
		log = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		log.Info("no config.yaml found, using defaults and env vars", zap.String("path", configPath))
	} else {
		log.Debug("loaded config.yaml", zap.String("file", v.ConfigFileUsed()))
	}
	return v
}

func LoadDBConfig(configPath string, log *zap.Logger) (db.Config, error) {
	// Start with default
	cfg := db.DefaultConfig()

	v := readConfig(configPath, log)
	v.AutomaticEnv()     // allow environment overrides
	v.SetEnvPrefix("DB") // map env vars like DB_HOST, DB_PORT

	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.maxconns", "DB_MAX_CONNS")

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.maxconns") {
		cfg.MaxConns = v.GetInt32("database.maxconns")
	}

	return cfg, nil
}

// LoadTrackingSettings decodes the fieldlog section of config.yaml. Viper
// lower-cases map keys, so extraData keys arrive lower-cased.
func LoadTrackingSettings(configPath string, log *zap.Logger) (fieldlog.Settings, error) {
	v := readConfig(configPath, log)
	v.BindEnv("fieldlog.enabled", "FIELDLOG_ENABLED")
	v.BindEnv("fieldlog.encoder", "FIELDLOG_ENCODER")

	var settings fieldlog.Settings
	if err := v.UnmarshalKey("fieldlog", &settings); err != nil {
		return fieldlog.Settings{}, fmt.Errorf("failed to decode fieldlog settings: %w", err)
	}
	if v.IsSet("fieldlog.enabled") {
		settings.Enabled = fieldlog.Bool(v.GetBool("fieldlog.enabled"))
	}
	if v.IsSet("fieldlog.encoder") {
		settings.Encoder = v.GetString("fieldlog.encoder")
	}
	return settings, nil
}

// LoadServerConfig decodes the server section of config.yaml over the
// defaults. KAFKA_BROKERS (comma separated) and SERVER_ADDRESS override it.
func LoadServerConfig(configPath string, log *zap.Logger) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	v := readConfig(configPath, log)
	v.BindEnv("server.address", "SERVER_ADDRESS")
	v.BindEnv("server.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("server.kafka.topic", "KAFKA_TOPIC")

	if err := v.UnmarshalKey("server", &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to decode server config: %w", err)
	}
	if v.IsSet("server.address") {
		cfg.Address = v.GetString("server.address")
	}
	if v.IsSet("server.kafka.topic") {
		cfg.Kafka.Topic = v.GetString("server.kafka.topic")
	}
	if v.IsSet("server.kafka.brokers") {
		cfg.Kafka.Brokers = splitList(v.GetStringSlice("server.kafka.brokers"))
	}
	if strings.TrimSpace(cfg.Address) == "" {
		cfg.Address = DefaultServerConfig().Address
	}
	return cfg, nil
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
