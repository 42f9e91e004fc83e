package integration

import (
	"devpulse/internal/config"
	"devpulse/internal/constants"
	"devpulse/internal/logger"
	"devpulse/pkg/models"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		Enabled:    true,
		TTLSeconds: 300,
		OnError:    constants.FallbackAllow,
	}
}

func createTestEvent(eventType string, category models.Category) models.Event {
	return models.NewEventBuilder(eventType, category).
		WithSource("integration-test").
		WithField("branch", "main").
		Build()
}
