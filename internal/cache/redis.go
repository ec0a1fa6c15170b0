// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ponghall/ponghall/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup;
// the match feed stays disabled when it is nil.
var Rdb *redis.Client

// DefaultFeedName is the Redis list the match-history consumer drains.
var DefaultFeedName = "ponghall_matches"

// ConnectRedis initializes the global Redis client from environment
// variables (REDIS_ADDR, default "localhost:6379").
func ConnectRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	Rdb = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishMatchResult serializes the record and pushes it onto the match
// feed for the downstream stats consumer. Best-effort: a failed push is
// logged by the caller and the match outcome stands regardless.
func PublishMatchResult(ctx context.Context, rec models.MatchRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	feed := os.Getenv("MATCH_FEED_NAME")
	if feed == "" {
		feed = DefaultFeedName
	}
	return Rdb.RPush(ctx, feed, data).Err()
}

// PublishMatchResultAsync fires the feed push on its own goroutine; suits
// the RoomStore's PublishFn hook, which must never stall termination.
func PublishMatchResultAsync(rec models.MatchRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := PublishMatchResult(ctx, rec); err != nil {
			log.Printf("match feed publish failed for room %s: %v", rec.RoomID, err)
		}
	}()
}
