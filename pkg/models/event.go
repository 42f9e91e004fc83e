package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies the area of the monitored system an event came from.
type Category string

const (
	CategorySystem   Category = "system"
	CategoryFile     Category = "file"
	CategoryGit      Category = "git"
	CategoryBuild    Category = "build"
	CategoryTest     Category = "test"
	CategoryDeploy   Category = "deploy"
	CategoryAPI      Category = "api"
	CategoryUser     Category = "user"
	CategoryAI       Category = "ai"
	CategoryActivity Category = "activity"
	CategoryStage    Category = "stage"
)

var validCategories = map[Category]struct{}{
	CategorySystem: {}, CategoryFile: {}, CategoryGit: {}, CategoryBuild: {},
	CategoryTest: {}, CategoryDeploy: {}, CategoryAPI: {}, CategoryUser: {},
	CategoryAI: {}, CategoryActivity: {}, CategoryStage: {},
}

func (c Category) Valid() bool {
	_, ok := validCategories[c]
	return ok
}

type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarn:     3,
	SeverityError:    4,
	SeverityCritical: 5,
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the drain priority of the severity, 1 (debug) to 5 (critical).
// Queue eviction uses it to pick victims under memory pressure.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Event is the immutable record every producer and consumer agrees on.
// ID is assigned once at creation and never changes; transformers may
// rewrite Data and Metadata but the bus restores the ID if one misbehaves.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"` // colon-namespaced, e.g. "git:commit"
	Category      Category               `json:"category"`
	Severity      Severity               `json:"severity"`
	Timestamp     int64                  `json:"timestamp"` // epoch millis
	Source        string                 `json:"source"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Metadata      *Metadata              `json:"metadata,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	ParentID      string                 `json:"parent_id,omitempty"`
}

type Metadata struct {
	Environment string `json:"environment,omitempty"`
	User        string `json:"user,omitempty"`
	Session     string `json:"session,omitempty"`
	Project     string `json:"project,omitempty"`
}

// Validate enforces the publish boundary contract: events missing required
// fields or carrying values outside the closed enums are rejected before
// statistics are updated.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown event category %q", e.Category)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("unknown event severity %q", e.Severity)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("event timestamp must be positive epoch millis, got %d", e.Timestamp)
	}
	return nil
}

// Size approximates the serialized footprint of the event in bytes.
// The queue manager's admission check charges this value against maxBytes.
func (e Event) Size() int {
	body, err := json.Marshal(e)
	if err != nil {
		return len(e.ID) + len(e.Type) + len(e.Source)
	}
	return len(body)
}

// Clone returns a copy with its own Data map and Metadata so transformers
// cannot alias the caller's event.
func (e Event) Clone() Event {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	if e.Metadata != nil {
		md := *e.Metadata
		out.Metadata = &md
	}
	return out
}

// Time converts the epoch-millis timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
