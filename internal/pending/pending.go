// Package pending stores actions an anonymous caller attempted, so they can be
// replayed once the caller has signed in.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"licensedesk/pkg/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type ActionType string

const ActionArbitrate ActionType = "arbitrate"

type Action struct {
	ID        string         `json:"id"`
	Type      ActionType     `json:"type"`
	Kind      model.SlotKind `json:"kind"`
	SlotID    string         `json:"slot_id"`
	CreatedAt time.Time      `json:"created_at"`
}

var ErrNotFound = errors.New("pending action not found or expired")

// Queue hands each action out at most once.
type Queue interface {
	Enqueue(ctx context.Context, action Action) (string, error)
	Take(ctx context.Context, id string) (*Action, error)
}

const keyPrefix = "licensedesk:pending:"

type redisQueue struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQueue(client *redis.Client, ttl time.Duration) Queue {
	return &redisQueue{client: client, ttl: ttl}
}

func (q *redisQueue) Enqueue(ctx context.Context, action Action) (string, error) {
	prepare(&action)
	data, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("pending: marshal action: %w", err)
	}
	if err := q.client.Set(ctx, keyPrefix+action.ID, data, q.ttl).Err(); err != nil {
		return "", fmt.Errorf("pending: store action: %w", err)
	}
	return action.ID, nil
}

func (q *redisQueue) Take(ctx context.Context, id string) (*Action, error) {
	data, err := q.client.GetDel(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pending: take action: %w", err)
	}

	var action Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("pending: decode action: %w", err)
	}
	return &action, nil
}

type memoryEntry struct {
	action    Action
	expiresAt time.Time
}

type memoryQueue struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryQueue(ttl time.Duration) Queue {
	return &memoryQueue{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (q *memoryQueue) Enqueue(_ context.Context, action Action) (string, error) {
	prepare(&action)

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, e := range q.entries {
		if !now.Before(e.expiresAt) {
			delete(q.entries, id)
		}
	}
	q.entries[action.ID] = memoryEntry{action: action, expiresAt: now.Add(q.ttl)}
	return action.ID, nil
}

func (q *memoryQueue) Take(_ context.Context, id string) (*Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(q.entries, id)
	if !q.now().Before(e.expiresAt) {
		return nil, ErrNotFound
	}
	return &e.action, nil
}

func prepare(action *Action) {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
}
