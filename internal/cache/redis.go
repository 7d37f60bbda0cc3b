// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Journal appends every announced realtime event to a Redis list so that a
// downstream consumer can audit or replay the push stream. The authoritative
// state lives in Postgres; the journal, like the push channel itself, is
// best-effort.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// EventRecord is the serialized journal entry.
type EventRecord struct {
	Channels  []string               `json:"channels"`
	EventType string                 `json:"event_type"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewJournal connects a Redis client and verifies it with a ping.
func NewJournal(addr string, db int, queue string) (*Journal, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// Publish pushes the record onto the journal queue.
func (j *Journal) Publish(ctx context.Context, record EventRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", j.queue, err)
	}
	return nil
}

// Close releases the underlying client.
func (j *Journal) Close() error { return j.rdb.Close() }
