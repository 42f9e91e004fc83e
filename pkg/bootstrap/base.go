package bootstrap

import (
	"context"
	"fmt"

	"devpulse/internal/config"
	"devpulse/internal/logger"
)

// Base carries the pieces every service binary needs and aggregates
// shutdown errors so one failing component does not hide the rest.
type Base struct {
	Config *config.Config
	Logger logger.Logger
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) Shutdown(ctx context.Context, shutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	if shutdown != nil {
		errs = append(errs, shutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
