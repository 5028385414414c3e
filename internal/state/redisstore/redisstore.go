// Package redisstore keeps working memory in Redis lists so several
// signalpilot processes can share the results of a conversation.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/state"
)

const keyPrefix = "signalpilot:results:"

type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL expires a conversation's results after its last write. Zero
	// keeps them forever.
	TTL time.Duration
}

// WorkingMemory stores each conversation as a list of JSON results.
type WorkingMemory struct {
	client *redis.Client
	ttl    time.Duration
}

var _ state.WorkingMemory = (*WorkingMemory)(nil)

func New(opts Options) *WorkingMemory {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &WorkingMemory{client: rdb, ttl: opts.TTL}
}

// Ping checks the connection.
func (m *WorkingMemory) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis working memory: %w", err)
	}
	return nil
}

func (m *WorkingMemory) Close() error { return m.client.Close() }

func key(conversationID string) string { return keyPrefix + conversationID }

func (m *WorkingMemory) Record(ctx context.Context, conversationID string, res action.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	k := key(conversationID)
	_, err = m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, data)
		if m.ttl > 0 {
			p.Expire(ctx, k, m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (m *WorkingMemory) Results(ctx context.Context, conversationID string) ([]action.Result, error) {
	items, err := m.client.LRange(ctx, key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	out := make([]action.Result, 0, len(items))
	for _, item := range items {
		var res action.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			return nil, fmt.Errorf("results: decode: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (m *WorkingMemory) Latest(ctx context.Context, conversationID, actionType string) (action.Result, error) {
	results, err := m.Results(ctx, conversationID)
	if err != nil {
		return action.Result{}, err
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].ActionType == actionType {
			return results[i], nil
		}
	}
	return action.Result{}, state.ErrNotFound
}

func (m *WorkingMemory) Clear(ctx context.Context, conversationID string) error {
	if err := m.client.Del(ctx, key(conversationID)).Err(); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}
