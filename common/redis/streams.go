package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Stream entry field names.
const (
	FieldType      = "type"
	FieldKey       = "key"
	FieldData      = "data"
	FieldTimestamp = "timestamp"
)

// Entry is one stream message. Data is stored JSON encoded.
type Entry struct {
	Type string
	// Key lets consumers filter without decoding data, e.g. by tenant. Omitted when empty.
	Key        string
	Data       any
	OccurredAt time.Time // zero means now
}

// AppendJSON adds e to stream with XADD and returns the entry ID. maxLen > 0 trims the
// stream approximately to that length.
func AppendJSON(ctx context.Context, client *redis.Client, stream string, maxLen int64, e Entry) (string, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s entry: %w", e.Type, err)
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	values := map[string]interface{}{
		FieldType:      e.Type,
		FieldData:      string(data),
		FieldTimestamp: strconv.FormatInt(at.UnixMilli(), 10),
	}
	if e.Key != "" {
		values[FieldKey] = e.Key
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}
