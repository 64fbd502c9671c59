package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"smartchef/internal/recipe"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisKeyPrefix     = "smartchef:doc:"
	redisChannelPrefix = "smartchef:doc-events:"
)

// RedisStore keeps each document in a hash, one field per slot, and
// announces writes on a per-document pub/sub channel.
type RedisStore struct {
	client *redis.Client
	log    logrus.FieldLogger
}

// NewRedisStore connects to the Redis server at url.
func NewRedisStore(ctx context.Context, url string, log logrus.FieldLogger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, log), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, log logrus.FieldLogger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func redisKey(path Path) string     { return redisKeyPrefix + path.String() }
func redisChannel(path Path) string { return redisChannelPrefix + path.String() }

// Subscribe sends the current hash, then re-reads it on every write notification.
func (s *RedisStore) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	if !path.Complete() {
		return nil, fmt.Errorf("incomplete document path %q", path)
	}

	ps := s.client.Subscribe(ctx, redisChannel(path))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	sub := newSubscriber()
	go func() {
		defer sub.close()
		defer ps.Close()

		if !s.reload(ctx, path, sub) {
			return
		}

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				if !s.reload(ctx, path, sub) {
					return
				}
			}
		}
	}()

	return sub.ch, nil
}

// reload offers the current document and reports whether listening should continue.
func (s *RedisStore) reload(ctx context.Context, path Path, sub *subscriber) bool {
	snap, err := s.load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		sub.offer(Snapshot{Err: err})
		return false
	}
	sub.offer(snap)
	return true
}

func (s *RedisStore) load(ctx context.Context, path Path) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(path)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, nil
	}
	doc, err := decodeFields(fields)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return Snapshot{Document: doc, Exists: true}, nil
}

// MergeWrite sets the given hash fields and publishes a change notification.
func (s *RedisStore) MergeWrite(ctx context.Context, path Path, doc Document) error {
	if len(doc) == 0 {
		return nil
	}
	values, err := encodeFields(doc)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKey(path), values)
		pipe.Publish(ctx, redisChannel(path), "merge")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

// DeleteField removes a hash field and publishes a change notification.
func (s *RedisStore) DeleteField(ctx context.Context, path Path, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, redisKey(path), key)
		pipe.Publish(ctx, redisChannel(path), "delete")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", key, path, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeFields(doc Document) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(doc))
	for key, r := range doc {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		values[key] = string(b)
	}
	return values, nil
}

func decodeFields(fields map[string]string) (Document, error) {
	doc := make(Document, len(fields))
	for key, raw := range fields {
		var r recipe.Recipe
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		doc[key] = r
	}
	return doc, nil
}
