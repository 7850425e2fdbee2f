package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/casedesk/casedesk/internal/casetext"
)

// RedisBus provides Redis Streams-based messaging between operator consoles
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// StreamMessage represents a message in a Redis Stream
type StreamMessage struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Record actions carried by RecordMessage.
const (
	ActionEdited    = "edited"
	ActionSentOK    = "sent_ok"
	ActionArchived  = "archived"
	ActionDuplicate = "duplicate"
	ActionDeferred  = "deferred_updated"
	ActionImported  = "imported"
)

// RecordMessage announces a change made to a record
type RecordMessage struct {
	RecordID  int64  `json:"record_id"`
	Action    string `json:"action"`
	Actor     string `json:"actor,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// FeedbackMessage carries a submitted feedback message and the cases it references
type FeedbackMessage struct {
	FeedbackID string               `json:"feedback_id"`
	SessionID  string               `json:"session_id"`
	Summary    string               `json:"summary"`
	Cases      []casetext.Reference `json:"cases"`
	Timestamp  int64                `json:"timestamp"`
}

// StreamHandler is a function that processes stream messages
type StreamHandler func(ctx context.Context, message StreamMessage) error

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishRecord publishes a record change to the records stream
func (rb *RedisBus) PublishRecord(ctx context.Context, msg RecordMessage) error {
	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: RecordsStream,
		Values: recordFields(msg),
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish record change: %w", err)
	}

	rb.logger.Printf("Published %s for record %d to records stream", msg.Action, msg.RecordID)
	return nil
}

// PublishFeedback publishes feedback to the feedback stream
func (rb *RedisBus) PublishFeedback(ctx context.Context, msg FeedbackMessage) error {
	fields, err := feedbackFields(msg)
	if err != nil {
		return err
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: FeedbackStream,
		Values: fields,
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish feedback: %w", err)
	}

	rb.logger.Printf("Published feedback %s with %d case(s)", msg.FeedbackID, len(msg.Cases))
	return nil
}

// CreateConsumerGroup creates a consumer group for a stream if it doesn't exist
func (rb *RedisBus) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	result := rb.client.XGroupCreateMkStream(ctx, stream, group, "$")
	if err := result.Err(); err != nil {
		if !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group %s for stream %s: %w", group, stream, err)
		}
	}

	rb.logger.Printf("Consumer group %s ready for stream %s", group, stream)
	return nil
}

// ReadStream reads messages from a stream using consumer groups
func (rb *RedisBus) ReadStream(ctx context.Context, stream, group, consumer string, handler StreamHandler) error {
	if err := rb.CreateConsumerGroup(ctx, stream, group); err != nil {
		return err
	}

	rb.logger.Printf("Starting stream reader for %s (group: %s, consumer: %s)", stream, group, consumer)

	for {
		select {
		case <-ctx.Done():
			rb.logger.Printf("Stream reader for %s stopping due to context cancellation", stream)
			return ctx.Err()
		default:
		}

		result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    1 * time.Second,
		})
		if err := result.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rb.logger.Printf("Error reading from stream %s: %v", stream, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, st := range result.Val() {
			for _, message := range st.Messages {
				streamMsg := StreamMessage{
					ID:     message.ID,
					Fields: make(map[string]string, len(message.Values)),
				}
				for key, value := range message.Values {
					if strValue, ok := value.(string); ok {
						streamMsg.Fields[key] = strValue
					}
				}

				if err := handler(ctx, streamMsg); err != nil {
					rb.logger.Printf("Error processing message %s: %v", message.ID, err)
					continue
				}
				if err := rb.client.XAck(ctx, st.Stream, group, message.ID).Err(); err != nil {
					rb.logger.Printf("Error acknowledging message %s: %v", message.ID, err)
				}
			}
		}
	}
}

// ReadRecordsStream reads from the records stream
func (rb *RedisBus) ReadRecordsStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg RecordMessage) error) error {
	return rb.ReadStream(ctx, RecordsStream, group, consumer, func(ctx context.Context, message StreamMessage) error {
		return handler(ctx, recordFromFields(message.Fields))
	})
}

// ReadFeedbackStream reads from the feedback stream
func (rb *RedisBus) ReadFeedbackStream(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg FeedbackMessage) error) error {
	return rb.ReadStream(ctx, FeedbackStream, group, consumer, func(ctx context.Context, message StreamMessage) error {
		return handler(ctx, feedbackFromFields(message.Fields))
	})
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// CleanupOldMessages removes old messages from streams to prevent memory issues
func (rb *RedisBus) CleanupOldMessages(ctx context.Context, stream string, maxLen int64) error {
	result := rb.client.XTrimMaxLen(ctx, stream, maxLen)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to trim stream %s: %w", stream, err)
	}

	rb.logger.Printf("Trimmed stream %s to max length %d", stream, maxLen)
	return nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the Redis streams
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"type": "redis"}

	for _, stream := range []string{RecordsStream, FeedbackStream} {
		info, err := rb.GetStreamInfo(ctx, stream)
		if err != nil {
			continue
		}
		stats[stream+"_stream"] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
		if groups, err := rb.client.XInfoGroups(ctx, stream).Result(); err == nil {
			stats[stream+"_consumer_groups"] = len(groups)
		}
	}

	return stats, nil
}

func recordFields(msg RecordMessage) map[string]interface{} {
	ts := msg.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return map[string]interface{}{
		"record_id": strconv.FormatInt(msg.RecordID, 10),
		"action":    msg.Action,
		"actor":     msg.Actor,
		"detail":    msg.Detail,
		"timestamp": strconv.FormatInt(ts, 10),
	}
}

func recordFromFields(f map[string]string) RecordMessage {
	msg := RecordMessage{
		Action: f["action"],
		Actor:  f["actor"],
		Detail: f["detail"],
	}
	msg.RecordID, _ = strconv.ParseInt(f["record_id"], 10, 64)
	if ts, err := parseTimestamp(f["timestamp"]); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

func feedbackFields(msg FeedbackMessage) (map[string]interface{}, error) {
	cases := msg.Cases
	if cases == nil {
		cases = []casetext.Reference{}
	}
	casesJSON, err := json.Marshal(cases)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feedback cases: %w", err)
	}
	ts := msg.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return map[string]interface{}{
		"feedback_id": msg.FeedbackID,
		"session_id":  msg.SessionID,
		"summary":     msg.Summary,
		"cases":       string(casesJSON),
		"timestamp":   strconv.FormatInt(ts, 10),
	}, nil
}

func feedbackFromFields(f map[string]string) FeedbackMessage {
	msg := FeedbackMessage{
		FeedbackID: f["feedback_id"],
		SessionID:  f["session_id"],
		Summary:    f["summary"],
		Cases:      []casetext.Reference{},
	}
	if raw := f["cases"]; raw != "" {
		var cases []casetext.Reference
		if err := json.Unmarshal([]byte(raw), &cases); err == nil && cases != nil {
			msg.Cases = cases
		}
	}
	if ts, err := parseTimestamp(f["timestamp"]); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// parseTimestamp parses a timestamp string to int64
func parseTimestamp(timestamp string) (int64, error) {
	if timestamp == "" {
		return time.Now().Unix(), nil
	}

	// Try numeric epoch (seconds or milliseconds)
	if n, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		// 13+ digits are milliseconds
		if n > 1_000_000_000_000 {
			return n / 1000, nil
		}
		return n, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts.Unix(), nil
	}

	return time.Now().Unix(), fmt.Errorf("unable to parse timestamp: %s", timestamp)
}
