package models

import (
	"time"

	"github.com/google/uuid"
)

type EventBuilder struct {
	event *Event
}

func NewEventBuilder(eventType string, category Category) *EventBuilder {
	return &EventBuilder{
		event: &Event{
			ID:       uuid.NewString(),
			Type:     eventType,
			Category: category,
			Severity: SeverityInfo,
			Data:     make(map[string]interface{}),
		},
	}
}

func (b *EventBuilder) WithSeverity(severity Severity) *EventBuilder {
	b.event.Severity = severity
	return b
}

func (b *EventBuilder) WithSource(source string) *EventBuilder {
	b.event.Source = source
	return b
}

func (b *EventBuilder) WithTimestamp(ts time.Time) *EventBuilder {
	b.event.Timestamp = ts.UnixMilli()
	return b
}

func (b *EventBuilder) WithData(data map[string]interface{}) *EventBuilder {
	b.event.Data = data
	return b
}

func (b *EventBuilder) WithField(key string, value interface{}) *EventBuilder {
	b.event.Data[key] = value
	return b
}

func (b *EventBuilder) WithMetadata(md Metadata) *EventBuilder {
	b.event.Metadata = &md
	return b
}

func (b *EventBuilder) WithCorrelationID(id string) *EventBuilder {
	b.event.CorrelationID = id
	return b
}

func (b *EventBuilder) WithParentID(id string) *EventBuilder {
	b.event.ParentID = id
	return b
}

func (b *EventBuilder) Build() Event {
	if b.event.Timestamp == 0 {
		b.event.Timestamp = time.Now().UnixMilli()
	}
	return *b.event
}
