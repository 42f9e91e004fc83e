package constants

import "time"

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultMaxQueueBytes = 100 * 1024 * 1024
	DefaultMaxAttempts   = 3
)

const (
	MinPriorityTier = 1
	MaxPriorityTier = 5
)

const (
	DefaultQueueName  = "default"
	FailedQueueSuffix = ":failed"
)

const (
	WildcardPattern = "*"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout        = 5 * time.Second
	HandlerDrainTimeout    = 10 * time.Second
	DedupKeyPrefix         = "devpulse:seen:"
	DefaultDedupTTLSeconds = 3600
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)
