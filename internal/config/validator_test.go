package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Queues: QueuesConfig{
			Definitions: []QueueDefinition{
				{Name: "critical", Tier: 5, BatchSize: 50, MaxBytes: 1 << 20, MaxAttempts: 3},
				{Name: "standard", Tier: 3, BatchSize: 100, MaxBytes: 1 << 20, MaxAttempts: 3},
			},
			Routing: []RoutingRule{
				{Queue: "critical", Severities: []string{"critical", "error"}},
				{Queue: "standard", Categories: []string{"build"}, Expression: `event_type.startsWith("build:")`},
			},
		},
	}
}

func TestValidateStaticAcceptsValidConfig(t *testing.T) {
	assert.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStaticRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
		},
		{
			name:   "queue name missing",
			mutate: func(c *Config) { c.Queues.Definitions[0].Name = "" },
		},
		{
			name:   "duplicate queue name",
			mutate: func(c *Config) { c.Queues.Definitions[1].Name = "critical" },
		},
		{
			name:   "tier above maximum",
			mutate: func(c *Config) { c.Queues.Definitions[0].Tier = 6 },
		},
		{
			name:   "tier below minimum",
			mutate: func(c *Config) { c.Queues.Definitions[0].Tier = 0 },
		},
		{
			name:   "batch size not positive",
			mutate: func(c *Config) { c.Queues.Definitions[0].BatchSize = 0 },
		},
		{
			name:   "max bytes not positive",
			mutate: func(c *Config) { c.Queues.Definitions[0].MaxBytes = -1 },
		},
		{
			name:   "max attempts below one",
			mutate: func(c *Config) { c.Queues.Definitions[0].MaxAttempts = 0 },
		},
		{
			name:   "routing rule without queue",
			mutate: func(c *Config) { c.Queues.Routing[0].Queue = "" },
		},
		{
			name:   "routing rule references undefined queue",
			mutate: func(c *Config) { c.Queues.Routing[0].Queue = "missing" },
		},
		{
			name:   "unknown severity in routing rule",
			mutate: func(c *Config) { c.Queues.Routing[0].Severities = []string{"fatal"} },
		},
		{
			name:   "unknown category in routing rule",
			mutate: func(c *Config) { c.Queues.Routing[1].Categories = []string{"shipping"} },
		},
		{
			name:   "malformed routing expression",
			mutate: func(c *Config) { c.Queues.Routing[1].Expression = "event_type ==" },
		},
		{
			name:   "non-boolean routing expression",
			mutate: func(c *Config) { c.Queues.Routing[1].Expression = "event_type" },
		},
		{
			name:   "malformed bus filter expression",
			mutate: func(c *Config) { c.Bus.Filters = []string{"source &&"} },
		},
		{
			name: "dedup enabled without redis host",
			mutate: func(c *Config) {
				c.Dedup.Enabled = true
				c.Dedup.OnError = "allow"
			},
		},
		{
			name: "dedup with unknown fallback",
			mutate: func(c *Config) {
				c.Dedup.Enabled = true
				c.Dedup.Redis.Host = "localhost"
				c.Dedup.OnError = "panic"
			},
		},
		{
			name: "export enabled without topic",
			mutate: func(c *Config) {
				c.Export.Enabled = true
				c.Export.Broker.Type = "kafka"
				c.Export.Broker.Kafka.Brokers = []string{"localhost:9092"}
			},
		},
		{
			name: "export with unknown broker type",
			mutate: func(c *Config) {
				c.Export.Enabled = true
				c.Export.Topic = "events"
				c.Export.Broker.Type = "rabbitmq"
			},
		},
		{
			name: "export without broker addresses",
			mutate: func(c *Config) {
				c.Export.Enabled = true
				c.Export.Topic = "events"
				c.Export.Broker.Type = "kafka"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateStatic(cfg))
		})
	}
}

func TestValidateStaticRoutingToDefaultQueue(t *testing.T) {
	cfg := validConfig()
	cfg.Queues.Routing = append(cfg.Queues.Routing, RoutingRule{
		Queue:      "default",
		Categories: []string{"test"},
	})

	assert.NoError(t, ValidateStatic(cfg))
}
