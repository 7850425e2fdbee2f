package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishRecord logs the change but doesn't actually publish it
func (nb *NullBus) PublishRecord(ctx context.Context, msg RecordMessage) error {
	nb.logger.Printf("Would publish %s for record %d (Redis disabled)", msg.Action, msg.RecordID)
	return nil
}

// PublishFeedback logs the feedback but doesn't actually publish it
func (nb *NullBus) PublishFeedback(ctx context.Context, msg FeedbackMessage) error {
	nb.logger.Printf("Would publish feedback %s with %d case(s) (Redis disabled)", msg.FeedbackID, len(msg.Cases))
	return nil
}

// ReadRecordsStream blocks until the context is cancelled
func (nb *NullBus) ReadRecordsStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg RecordMessage) error) error {
	nb.logger.Printf("Would read records stream %s:%s (Redis disabled)", group, consumer)
	<-ctx.Done()
	return ctx.Err()
}

// ReadFeedbackStream blocks until the context is cancelled
func (nb *NullBus) ReadFeedbackStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg FeedbackMessage) error) error {
	nb.logger.Printf("Would read feedback stream %s:%s (Redis disabled)", group, consumer)
	<-ctx.Done()
	return ctx.Err()
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":   "null",
		"status": "disabled",
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
