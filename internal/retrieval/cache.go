package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes complete retrieval results in redis, keyed by role and a
// topic fingerprint. Every failure degrades to a miss; a dead redis never
// breaks retrieval.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		rdb:    rdb,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[RETR] ", log.LstdFlags),
	}
}

func cacheKey(role, topic string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(topic))
	return fmt.Sprintf("retr:%s:%x", role, h.Sum64())
}

func (c *Cache) Get(ctx context.Context, role, topic string) ([]Document, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(role, topic)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("cache get failed: %v", err)
		}
		return nil, false
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		c.logger.Printf("cache entry corrupt, ignoring: %v", err)
		return nil, false
	}
	if len(docs) == 0 {
		return nil, false
	}
	return docs, true
}

func (c *Cache) Set(ctx context.Context, role, topic string, docs []Document) {
	if c == nil || len(docs) == 0 {
		return
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(role, topic), raw, c.ttl).Err(); err != nil {
		c.logger.Printf("cache set failed: %v", err)
	}
}
