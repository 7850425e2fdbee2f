package bus

import (
	"context"
	"io"
	"log"
)

// Stream names.
const (
	RecordsStream  = "records"
	FeedbackStream = "feedback"
)

// Bus defines the interface for event bus implementations
type Bus interface {
	// PublishRecord publishes a record change to the records stream
	PublishRecord(ctx context.Context, msg RecordMessage) error

	// PublishFeedback publishes submitted feedback to the feedback stream
	PublishFeedback(ctx context.Context, msg FeedbackMessage) error

	// ReadRecordsStream reads from the records stream
	ReadRecordsStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg RecordMessage) error) error

	// ReadFeedbackStream reads from the feedback stream
	ReadFeedbackStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg FeedbackMessage) error) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or invalid, returns a NullBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	// Try to create Redis bus
	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis fails
	logger.Printf("Redis unavailable, falling back to null bus: %v", err)
	return NewNullBus(logger)
}
