package config

import (
	"fmt"

	"devpulse/internal/constants"
	"devpulse/pkg/cel"
	"devpulse/pkg/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateQueues(cfg.Queues); err != nil {
		errors = append(errors, err)
	}

	if err := validateExpressions(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateDedup(cfg.Dedup); err != nil {
		errors = append(errors, err)
	}

	if err := validateExport(cfg.Export); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateQueues(cfg QueuesConfig) error {
	names := make(map[string]struct{}, len(cfg.Definitions))

	for _, def := range cfg.Definitions {
		if def.Name == "" {
			return &ValidationError{
				Field:   "queues.definitions.name",
				Message: "queue name is required",
			}
		}
		if _, dup := names[def.Name]; dup {
			return &ValidationError{
				Field:   "queues.definitions.name",
				Message: fmt.Sprintf("duplicate queue name %q", def.Name),
			}
		}
		names[def.Name] = struct{}{}

		if def.Tier < constants.MinPriorityTier || def.Tier > constants.MaxPriorityTier {
			return &ValidationError{
				Field:   "queues.definitions.tier",
				Message: fmt.Sprintf("queue %q tier must be between %d and %d, got %d", def.Name, constants.MinPriorityTier, constants.MaxPriorityTier, def.Tier),
			}
		}
		if def.BatchSize <= 0 {
			return &ValidationError{
				Field:   "queues.definitions.batch_size",
				Message: fmt.Sprintf("queue %q batch size must be positive", def.Name),
			}
		}
		if def.MaxBytes <= 0 {
			return &ValidationError{
				Field:   "queues.definitions.max_bytes",
				Message: fmt.Sprintf("queue %q max bytes must be positive", def.Name),
			}
		}
		if def.MaxAttempts < 1 {
			return &ValidationError{
				Field:   "queues.definitions.max_attempts",
				Message: fmt.Sprintf("queue %q max attempts must be at least 1", def.Name),
			}
		}
	}

	for _, rule := range cfg.Routing {
		if rule.Queue == "" {
			return &ValidationError{
				Field:   "queues.routing.queue",
				Message: "routing rule queue is required",
			}
		}
		if _, ok := names[rule.Queue]; !ok && rule.Queue != constants.DefaultQueueName {
			return &ValidationError{
				Field:   "queues.routing.queue",
				Message: fmt.Sprintf("routing rule references undefined queue %q", rule.Queue),
			}
		}
		for _, sev := range rule.Severities {
			if !models.Severity(sev).Valid() {
				return &ValidationError{
					Field:   "queues.routing.severities",
					Message: fmt.Sprintf("unknown severity %q", sev),
				}
			}
		}
		for _, cat := range rule.Categories {
			if !models.Category(cat).Valid() {
				return &ValidationError{
					Field:   "queues.routing.categories",
					Message: fmt.Sprintf("unknown category %q", cat),
				}
			}
		}
	}

	return nil
}

func validateExpressions(cfg *Config) error {
	exprs := make([]string, 0, len(cfg.Bus.Filters)+len(cfg.Queues.Routing))
	exprs = append(exprs, cfg.Bus.Filters...)
	for _, rule := range cfg.Queues.Routing {
		if rule.Expression != "" {
			exprs = append(exprs, rule.Expression)
		}
	}

	if len(exprs) == 0 {
		return nil
	}

	eval, err := cel.NewEvaluator()
	if err != nil {
		return &ValidationError{
			Field:   "bus.filters",
			Message: fmt.Sprintf("failed to build expression evaluator: %v", err),
		}
	}

	for _, expr := range exprs {
		if err := eval.ValidateFilterExpression(expr); err != nil {
			return &ValidationError{
				Field:   "expression",
				Message: fmt.Sprintf("invalid expression %q: %v", expr, err),
			}
		}
	}

	return nil
}

func validateDedup(cfg DedupConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Redis.Host == "" {
		return &ValidationError{
			Field:   "dedup.redis.host",
			Message: "redis host is required when dedup is enabled",
		}
	}
	if cfg.OnError != constants.FallbackAllow && cfg.OnError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "dedup.on_error",
			Message: fmt.Sprintf("on_error must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.OnError),
		}
	}
	return nil
}

func validateExport(cfg ExportConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "export.topic",
			Message: "export topic is required when export is enabled",
		}
	}
	if cfg.Broker.Type != "kafka" {
		return &ValidationError{
			Field:   "export.broker.type",
			Message: fmt.Sprintf("unknown broker type %q", cfg.Broker.Type),
		}
	}
	if len(cfg.Broker.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "export.broker.kafka.brokers",
			Message: "at least one kafka broker address is required",
		}
	}
	return nil
}
