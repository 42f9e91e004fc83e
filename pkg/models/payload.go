package models

import "fmt"

// Known event types. Producers are free to publish other colon-namespaced
// types; those carry their Data map through unchanged (GenericPayload).
const (
	TypeGitCommit       = "git:commit"
	TypeFileChange      = "file:change"
	TypeBuildResult     = "build:result"
	TypeTestResult      = "test:result"
	TypeAIInteraction   = "ai:interaction"
	TypeStageTransition = "stage:transition"
	TypeSystemError     = "system:error"
	TypeQueueOverflow   = "queue:overflow"
)

type GitCommitPayload struct {
	Hash         string   `json:"hash"`
	Author       string   `json:"author"`
	Message      string   `json:"message"`
	Branch       string   `json:"branch"`
	FilesChanged []string `json:"files_changed"`
}

type FileChangePayload struct {
	Path      string `json:"path"`
	Operation string `json:"operation"` // create, modify, delete, rename
	SizeBytes int64  `json:"size_bytes"`
}

type BuildResultPayload struct {
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Output     string `json:"output"`
}

type TestResultPayload struct {
	Suite   string `json:"suite"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

type AIInteractionPayload struct {
	Tool         string `json:"tool"`
	Action       string `json:"action"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

type StageTransitionPayload struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Confidence float64 `json:"confidence"`
}

// SystemErrorPayload is attached to the synthetic system:error events the
// bus emits when a subscriber handler fails.
type SystemErrorPayload struct {
	SubscriberID string `json:"subscriber_id"`
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Error        string `json:"error"`
}

// QueueOverflowPayload is attached to queue:overflow diagnostics emitted
// when admission control drops or evicts events.
type QueueOverflowPayload struct {
	Queue        string `json:"queue"`
	DroppedID    string `json:"dropped_id"`
	DroppedType  string `json:"dropped_type"`
	Evicted      bool   `json:"evicted"` // true: pending victim evicted, false: incoming dropped
	PendingBytes int    `json:"pending_bytes"`
}

// GenericPayload wraps the raw Data map for event types the platform does
// not model explicitly.
type GenericPayload map[string]interface{}

// DecodePayload maps an event's Data to the typed shape registered for its
// Type, or GenericPayload when the type is unknown.
func DecodePayload(e Event) (interface{}, error) {
	switch e.Type {
	case TypeGitCommit:
		p := GitCommitPayload{
			Hash:    stringField(e.Data, "hash"),
			Author:  stringField(e.Data, "author"),
			Message: stringField(e.Data, "message"),
			Branch:  stringField(e.Data, "branch"),
		}
		if files, ok := e.Data["files_changed"].([]string); ok {
			p.FilesChanged = files
		} else if raw, ok := e.Data["files_changed"].([]interface{}); ok {
			for _, f := range raw {
				if s, ok := f.(string); ok {
					p.FilesChanged = append(p.FilesChanged, s)
				}
			}
		}
		if p.Hash == "" {
			return nil, fmt.Errorf("%s payload missing hash", e.Type)
		}
		return p, nil
	case TypeFileChange:
		p := FileChangePayload{
			Path:      stringField(e.Data, "path"),
			Operation: stringField(e.Data, "operation"),
			SizeBytes: intField(e.Data, "size_bytes"),
		}
		if p.Path == "" {
			return nil, fmt.Errorf("%s payload missing path", e.Type)
		}
		return p, nil
	case TypeBuildResult:
		return BuildResultPayload{
			Tool:       stringField(e.Data, "tool"),
			Success:    boolField(e.Data, "success"),
			DurationMs: intField(e.Data, "duration_ms"),
			Output:     stringField(e.Data, "output"),
		}, nil
	case TypeTestResult:
		return TestResultPayload{
			Suite:   stringField(e.Data, "suite"),
			Passed:  int(intField(e.Data, "passed")),
			Failed:  int(intField(e.Data, "failed")),
			Skipped: int(intField(e.Data, "skipped")),
		}, nil
	case TypeAIInteraction:
		return AIInteractionPayload{
			Tool:         stringField(e.Data, "tool"),
			Action:       stringField(e.Data, "action"),
			InputTokens:  int(intField(e.Data, "input_tokens")),
			OutputTokens: int(intField(e.Data, "output_tokens")),
		}, nil
	case TypeStageTransition:
		return StageTransitionPayload{
			From:       stringField(e.Data, "from"),
			To:         stringField(e.Data, "to"),
			Confidence: floatField(e.Data, "confidence"),
		}, nil
	case TypeSystemError:
		return SystemErrorPayload{
			SubscriberID: stringField(e.Data, "subscriber_id"),
			EventID:      stringField(e.Data, "event_id"),
			EventType:    stringField(e.Data, "event_type"),
			Error:        stringField(e.Data, "error"),
		}, nil
	case TypeQueueOverflow:
		return QueueOverflowPayload{
			Queue:        stringField(e.Data, "queue"),
			DroppedID:    stringField(e.Data, "dropped_id"),
			DroppedType:  stringField(e.Data, "dropped_type"),
			Evicted:      boolField(e.Data, "evicted"),
			PendingBytes: int(intField(e.Data, "pending_bytes")),
		}, nil
	default:
		return GenericPayload(e.Data), nil
	}
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func boolField(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func intField(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func floatField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
