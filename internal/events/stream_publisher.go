package events

import (
	"context"
	"fmt"

	rediscommon "wisefido-ews/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamPublisher appends events to a Redis Stream, keyed by tenant.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher creates a StreamPublisher. maxLen <= 0 leaves the stream untrimmed.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	streamID, err := rediscommon.AppendJSON(ctx, p.client, p.stream, p.maxLen, rediscommon.Entry{
		Type:       string(event.Type),
		Key:        event.TenantID,
		Data:       event,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s to stream %s: %w", event.Type, p.stream, err)
	}

	p.logger.Debug("Published alert event to stream",
		zap.String("stream", p.stream),
		zap.String("stream_id", streamID),
		zap.String("event_type", string(event.Type)),
		zap.String("alert_id", event.Alert.AlertID),
	)
	return nil
}
