package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "matchstate:"

// RedisStore keeps matching state in Redis so multiple engine replicas can
// share it. Terminal states are written with the retention window as TTL;
// Redis then handles their expiry and the periodic sweep has nothing left
// to delete.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func stateKey(requestID string) string { return stateKeyPrefix + requestID }

func (r *RedisStore) Get(ctx context.Context, requestID string) (*State, error) {
	raw, err := r.rdb.Get(ctx, stateKey(requestID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", requestID, err)
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", requestID, err)
	}
	return &st, nil
}

func (r *RedisStore) Put(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.RequestID, err)
	}
	// Live states must not expire out from under an in-flight request.
	var ttl time.Duration
	if st.Status.Terminal() {
		ttl = r.retention
	}
	if err := r.rdb.Set(ctx, stateKey(st.RequestID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", st.RequestID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, requestID string) error {
	if err := r.rdb.Del(ctx, stateKey(requestID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", requestID, err)
	}
	return nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]*State, error) {
	var out []*State
	iter := r.rdb.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.rdb.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}
		var st State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("decode state %s: %w", iter.Val(), err)
		}
		out = append(out, &st)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

var _ StateStore = (*RedisStore)(nil)
