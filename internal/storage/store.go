package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRetentionTTL = 6 * time.Hour
	connectBackoffBase  = 500 * time.Millisecond
	connectBackoffCap   = 15 * time.Second
)

// MessageRecord is the persisted shape of a chat message. Later edits,
// reactions, and deletions are broadcast-only and never reconcile the stored
// record.
type MessageRecord struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	ReplyTo   string `json:"replyTo,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// Store keeps a time-limited message history per room in Redis. Each room
// maps to one list key; the key's TTL is reset on every append so an active
// room's history survives as long as the room stays busy.
type Store struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Open dials Redis and pings it until it answers, backing off between
// attempts. It returns only on success or when ctx is cancelled: a relay
// without its history store still serves live traffic, so startup keeps
// retrying instead of terminating the process.
func Open(ctx context.Context, opts Options, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	backoff := connectBackoffBase
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			log.Info("connected to redis", "addr", opts.Addr)
			return client, nil
		}
		log.Warn("redis not reachable, retrying",
			"addr", opts.Addr, "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > connectBackoffCap {
			backoff = connectBackoffCap
		}
	}
}

// New wraps an established Redis client. A non-positive ttl falls back to the
// default retention window.
func New(client *redis.Client, log *slog.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultRetentionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, log: log, ttl: ttl}
}

func roomKey(room string) string {
	return fmt.Sprintf("room:%s:messages", room)
}

// Append pushes a record onto the room's history list and resets the key's
// retention TTL.
func (s *Store) Append(ctx context.Context, room string, rec MessageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	key := roomKey(room)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

// Recent returns the room's retained history in append order. A missing key
// yields an empty slice; elements that fail to decode are skipped rather than
// failing the whole read.
func (s *Store) Recent(ctx context.Context, room string) ([]MessageRecord, error) {
	key := roomKey(room)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	records := make([]MessageRecord, 0, len(raw))
	for _, item := range raw {
		var rec MessageRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.log.Warn("skipping undecodable history entry", "room", room, "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping reports whether the store is currently reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
