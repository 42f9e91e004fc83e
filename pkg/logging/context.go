package logging

import (
	"context"
)

type contextKey string

const (
	EventIDKey       contextKey = "event_id"
	CorrelationIDKey contextKey = "correlation_id"
	QueueKey         contextKey = "queue"
	ServiceNameKey   contextKey = "service_name"
)

func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, QueueKey, queue)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetEventID(ctx context.Context) string {
	return getString(ctx, EventIDKey)
}

func GetCorrelationID(ctx context.Context) string {
	return getString(ctx, CorrelationIDKey)
}

func GetQueue(ctx context.Context) string {
	return getString(ctx, QueueKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields collects every context-scoped field as a zap key/value list.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if eventID := GetEventID(ctx); eventID != "" {
		fields = append(fields, string(EventIDKey), eventID)
	}

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, string(CorrelationIDKey), correlationID)
	}

	if queue := GetQueue(ctx); queue != "" {
		fields = append(fields, string(QueueKey), queue)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
