package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"devpulse/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("dedup.redis.host", "DEDUP_REDIS_HOST")
	viper.BindEnv("dedup.redis.port", "DEDUP_REDIS_PORT")
	viper.BindEnv("dedup.redis.password", "DEDUP_REDIS_PASSWORD")
	viper.BindEnv("dedup.redis.db", "DEDUP_REDIS_DB")

	viper.BindEnv("export.broker.kafka.brokers", "EXPORT_KAFKA_BROKERS")
	viper.BindEnv("export.topic", "EXPORT_TOPIC")

	viper.BindEnv("dead_letter.mongodb.uri", "DEAD_LETTER_MONGODB_URI")
	viper.BindEnv("dead_letter.mongodb.database", "DEAD_LETTER_MONGODB_DATABASE")

	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("EXPORT_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Export.Broker.Kafka.Brokers = brokers
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Queues.FlushInterval <= 0 {
		cfg.Queues.FlushInterval = constants.DefaultFlushInterval
	}

	for i := range cfg.Queues.Definitions {
		def := &cfg.Queues.Definitions[i]
		if def.BatchSize <= 0 {
			def.BatchSize = constants.DefaultBatchSize
		}
		if def.MaxBytes <= 0 {
			def.MaxBytes = constants.DefaultMaxQueueBytes
		}
		if def.MaxAttempts <= 0 {
			def.MaxAttempts = constants.DefaultMaxAttempts
		}
	}

	if cfg.Bus.HandlerDrainTimeout <= 0 {
		cfg.Bus.HandlerDrainTimeout = constants.HandlerDrainTimeout
	}

	if cfg.Dedup.TTLSeconds <= 0 {
		cfg.Dedup.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	if cfg.Dedup.OnError == "" {
		cfg.Dedup.OnError = constants.FallbackAllow
	}
}
