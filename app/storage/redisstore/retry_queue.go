/*
Package redisstore lưu hàng đợi retry trên Redis.
Mỗi entry nằm trong một HASH (JSON), thời điểm retry nằm trong ZSET với score là NextRetryAt (ms):
một ZSET chung và một ZSET riêng cho mỗi entity type.
*/
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agent_erpsync/app/retry"

	r "github.com/redis/go-redis/v9"
)

const defaultPrefix = "erpsync:retry"

// RetryQueue implement retry.Queue trên Redis
type RetryQueue struct {
	rdb    *r.Client
	prefix string
}

var _ retry.Queue = (*RetryQueue)(nil)

// NewRetryQueue tạo queue; prefix rỗng dùng "erpsync:retry"
func NewRetryQueue(rdb *r.Client, prefix string) *RetryQueue {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RetryQueue{rdb: rdb, prefix: prefix}
}

func (q *RetryQueue) entriesKey() string { return q.prefix + ":entries" }

func (q *RetryQueue) dueKey(entityType string) string {
	if entityType == "" {
		return q.prefix + ":due"
	}
	return q.prefix + ":due:" + entityType
}

func (q *RetryQueue) Upsert(ctx context.Context, e retry.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode retry entry: %w", err)
	}
	score := float64(e.NextRetryAt.UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.entriesKey(), e.Key(), raw)
	pipe.ZAdd(ctx, q.dueKey(""), r.Z{Score: score, Member: e.Key()})
	pipe.ZAdd(ctx, q.dueKey(e.EntityType), r.Z{Score: score, Member: e.Key()})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RetryQueue) Get(ctx context.Context, entityType, entityID string) (*retry.Entry, error) {
	raw, err := q.rdb.HGet(ctx, q.entriesKey(), retry.Key(entityType, entityID)).Result()
	if errors.Is(err, r.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e retry.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode retry entry: %w", err)
	}
	return &e, nil
}

func (q *RetryQueue) Due(ctx context.Context, entityType string, now time.Time, limit int) ([]retry.Entry, error) {
	by := &r.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		by.Count = int64(limit)
	}
	keys, err := q.rdb.ZRangeByScore(ctx, q.dueKey(entityType), by).Result()
	if err != nil || len(keys) == 0 {
		return []retry.Entry{}, err
	}

	vals, err := q.rdb.HMGet(ctx, q.entriesKey(), keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]retry.Entry, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// HASH và ZSET lệch nhau: bỏ member mồ côi
			q.rdb.ZRem(ctx, q.dueKey(entityType), keys[i])
			continue
		}
		var e retry.Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode retry entry %s: %w", keys[i], err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *RetryQueue) Remove(ctx context.Context, entityType, entityID string) error {
	key := retry.Key(entityType, entityID)
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, q.entriesKey(), key)
	pipe.ZRem(ctx, q.dueKey(""), key)
	pipe.ZRem(ctx, q.dueKey(entityType), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RetryQueue) Count(ctx context.Context, entityType string) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.dueKey(entityType)).Result()
	return int(n), err
}

func (q *RetryQueue) IDs(ctx context.Context, entityType string) ([]string, error) {
	keys, err := q.rdb.ZRange(ctx, q.dueKey(entityType), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	prefix := retry.Key(entityType, "")
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}
