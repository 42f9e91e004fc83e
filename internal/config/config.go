package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Bus        BusConfig        `mapstructure:"bus"`
	Queues     QueuesConfig     `mapstructure:"queues"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Export     ExportConfig     `mapstructure:"export"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusConfig struct {
	// Filters holds CEL expressions installed as global filters at startup;
	// an event passing every expression proceeds to dispatch.
	Filters             []string      `mapstructure:"filters"`
	HandlerDrainTimeout time.Duration `mapstructure:"handler_drain_timeout"`
}

type QueuesConfig struct {
	FlushInterval time.Duration     `mapstructure:"flush_interval"`
	Definitions   []QueueDefinition `mapstructure:"definitions"`
	Routing       []RoutingRule     `mapstructure:"routing"`
}

type QueueDefinition struct {
	Name        string `mapstructure:"name"`
	Tier        int    `mapstructure:"tier"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxBytes    int    `mapstructure:"max_bytes"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// RoutingRule assigns matching events to a queue. Rules are evaluated in
// order, first match wins; Severities and Categories are OR lists and
// Expression is an optional CEL predicate combined with them.
type RoutingRule struct {
	Queue      string   `mapstructure:"queue"`
	Severities []string `mapstructure:"severities"`
	Categories []string `mapstructure:"categories"`
	Expression string   `mapstructure:"expression"`
}

type DedupConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
	OnError    string      `mapstructure:"on_error"` // "allow" or "deny"
	Redis      RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ExportConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Topic   string        `mapstructure:"topic"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type DeadLetterConfig struct {
	Store   string        `mapstructure:"store"` // "log" or "mongodb"
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type TracingConfig struct {
	Enabled     bool       `mapstructure:"enabled"`
	ServiceName string     `mapstructure:"service_name"`
	OTLP        OTLPConfig `mapstructure:"otlp"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
