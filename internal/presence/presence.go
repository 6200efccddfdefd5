// Package presence publishes connection lifecycle state to Redis so the
// process supervisor can poll health per RoutingKey without touching frames.
//
// Graceful fallback: if Redis is unavailable, every operation is a silent
// no-op — transport behavior never depends on the presence store.
package presence

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/frame"
)

// KeyPrefix namespaces presence entries — keep in sync with the supervisor.
const KeyPrefix = "link:"

// DefaultTTL is how long a presence entry outlives its last update. A
// crashed process stops refreshing and the entry expires on its own.
const DefaultTTL = 60 * time.Second

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
	TTL      time.Duration
}

// Entry is the JSON value stored per RoutingKey.
type Entry struct {
	State     string `json:"state"`
	UpdatedAt int64  `json:"updated_at"` // unix milliseconds
}

var (
	client    *redis.Client
	ttl       = DefaultTTL
	connected bool
	mu        sync.RWMutex
)

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		log.Println("[Presence] Redis URL not configured, presence disabled")
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Presence] ❌ Invalid Redis URL: %v", err)
		return false
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Presence] ❌ Redis connection failed: %v", err)
		return false
	}

	mu.Lock()
	client = c
	connected = true
	if cfg.TTL > 0 {
		ttl = cfg.TTL
	}
	mu.Unlock()

	log.Println("[Presence] ✅ Connected")
	return true
}

// Close closes the Redis connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		client.Close()
		client = nil
		connected = false
	}
}

// IsAvailable checks if the presence store is usable.
func IsAvailable() bool {
	mu.RLock()
	defer mu.RUnlock()
	return connected && client != nil
}

func getClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if connected {
		return client
	}
	return nil
}

// Key returns the Redis key for a RoutingKey.
func Key(key frame.RoutingKey) string {
	return KeyPrefix + key.APIKey + ":" + key.Platform
}

// Record stores the current state for key with the configured TTL.
func Record(ctx context.Context, key frame.RoutingKey, state conn.State) {
	c := getClient()
	if c == nil {
		return
	}
	entry := Entry{State: state.String(), UpdatedAt: time.Now().UnixMilli()}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.Set(ctx, Key(key), string(data), ttl).Err(); err != nil {
		log.Printf("[Presence] record failed (%s): %v", key, err)
	}
}

// Get reads the recorded state for key. Returns false when absent or when
// the store is unavailable.
func Get(ctx context.Context, key frame.RoutingKey) (Entry, bool) {
	c := getClient()
	if c == nil {
		return Entry{}, false
	}
	raw, err := c.Get(ctx, Key(key)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Presence] get failed (%s): %v", key, err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

// StateHook returns a conn.StateHandler that records every transition.
// Wire it into Router.OnConnectionState.
func StateHook() conn.StateHandler {
	return func(key frame.RoutingKey, state conn.State) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		Record(ctx, key, state)
	}
}
