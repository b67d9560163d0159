package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/polyfactory/internal/model"
)

type RedisAuditRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *RedisClient, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "audit_logs"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return pushCapped(ctx, r.client, r.listKey, r.listMax, payload)
}

func (r *RedisAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(scanWindow(limit, r.listMax)-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.AuditLog, 0, limit)
	for _, raw := range items {
		var entry model.AuditLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if !filter.Matches(&entry) {
			continue
		}
		results = append(results, &entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// pushCapped prepends payload and trims the list to capacity entries.
func pushCapped(ctx context.Context, client *RedisClient, key string, capacity int, payload []byte) error {
	pipe := client.Client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(capacity-1))
	_, err := pipe.Exec(ctx)
	return err
}

// scanWindow is how far down a capped list to read when filtering for limit
// matches.
func scanWindow(limit, capacity int) int {
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > capacity {
		fetch = capacity
	}
	return fetch
}
