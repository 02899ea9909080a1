// Package kvstore keeps checklist documents in Redis.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reconbook/api/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "reconbook:"
	indexKey      = "checklists"
)

// ChecklistStore stores one JSON document per target and a sorted set of
// targets scored by updatedAt, which gives listAll its ordering.
type ChecklistStore struct {
	client *redis.Client
	prefix string
}

// NewChecklistStore connects to redisURL and checks the connection.
func NewChecklistStore(redisURL string) (*ChecklistStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewChecklistStoreWithClient(client), nil
}

// NewChecklistStoreWithClient wraps an existing client.
func NewChecklistStoreWithClient(client *redis.Client) *ChecklistStore {
	return &ChecklistStore{
		client: client,
		prefix: defaultPrefix,
	}
}

func (s *ChecklistStore) key(target string) string {
	return s.prefix + "checklist:" + target
}

func (s *ChecklistStore) index() string {
	return s.prefix + indexKey
}

func (s *ChecklistStore) GetChecklist(ctx context.Context, target string) (store.Checklist, error) {
	raw, err := s.client.Get(ctx, s.key(target)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Checklist{}, store.ErrNotFound
	}
	if err != nil {
		return store.Checklist{}, fmt.Errorf("get checklist: %w", err)
	}
	return decodeChecklist(raw)
}

// SaveChecklist writes the document and its index entry in one MULTI/EXEC.
// An existing document keeps its createdAt.
func (s *ChecklistStore) SaveChecklist(ctx context.Context, checklist store.Checklist) (store.Checklist, error) {
	saved := checklist.Clone()
	existing, err := s.GetChecklist(ctx, checklist.Target)
	switch {
	case err == nil:
		saved.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return store.Checklist{}, err
	}

	payload, err := json.Marshal(saved)
	if err != nil {
		return store.Checklist{}, fmt.Errorf("marshal checklist: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(saved.Target), payload, 0)
		pipe.ZAdd(ctx, s.index(), redis.Z{Score: float64(saved.UpdatedAt.UnixMilli()), Member: saved.Target})
		return nil
	})
	if err != nil {
		return store.Checklist{}, fmt.Errorf("save checklist: %w", err)
	}
	return saved, nil
}

func (s *ChecklistStore) ListChecklists(ctx context.Context) ([]store.Checklist, error) {
	targets, err := s.client.ZRevRange(ctx, s.index(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checklist index: %w", err)
	}
	result := []store.Checklist{}
	if len(targets) == 0 {
		return result, nil
	}

	keys := make([]string, len(targets))
	for i, target := range targets {
		keys[i] = s.key(target)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load checklists: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry whose document is gone
			continue
		}
		checklist, err := decodeChecklist([]byte(raw))
		if err != nil {
			return nil, err
		}
		result = append(result, checklist)
	}
	return result, nil
}

func (s *ChecklistStore) DeleteChecklist(ctx context.Context, target string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(target))
		pipe.ZRem(ctx, s.index(), target)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete checklist: %w", err)
	}
	return del.Val() > 0, nil
}

// Close closes the Redis connection
func (s *ChecklistStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *ChecklistStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeChecklist(raw []byte) (store.Checklist, error) {
	var checklist store.Checklist
	if err := json.Unmarshal(raw, &checklist); err != nil {
		return store.Checklist{}, fmt.Errorf("unmarshal checklist: %w", err)
	}
	if checklist.Items == nil {
		checklist.Items = []store.ChecklistItem{}
	}
	return checklist, nil
}
