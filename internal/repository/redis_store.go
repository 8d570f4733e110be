package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment-service/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// redisSessionStore implements SessionStore on redis. WATCH/MULTI/EXEC
// supplies the optimistic-transaction contract; an EXEC aborted by a
// watched-key change surfaces as ErrTxConflict.
type redisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(redisClient *cache.RedisClient) (SessionStore, error) {
	if redisClient == nil {
		return nil, ErrStoreUnavailable
	}
	return &redisSessionStore{client: redisClient.GetClient()}, nil
}

func (s *redisSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", err)
	}
	return val, true, nil
}

func (s *redisSessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeErr("set", err)
	}
	return nil
}

func (s *redisSessionStore) SetKeepTTL(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, redis.KeepTTL).Err(); err != nil {
		return storeErr("set keepttl", err)
	}
	return nil
}

func (s *redisSessionStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return storeErr("expire", err)
	}
	return nil
}

func (s *redisSessionStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storeErr("hgetall", err)
	}
	return fields, nil
}

func (s *redisSessionStore) Del(ctx context.Context, keys ...string) error {
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storeErr("del", err)
	}
	return nil
}

func (s *redisSessionStore) Watch(ctx context.Context, fn func(Tx) error, keys ...string) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&redisTx{tx: rtx})
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrTxConflict
	}
	return err
}

type redisTx struct {
	tx *redis.Tx
}

func (t *redisTx) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := t.tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("tx get", err)
	}
	return val, true, nil
}

func (t *redisTx) Exec(ctx context.Context, fn func(Pipeline)) error {
	var pending []pendingBool
	_, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisPipeline{ctx: ctx, pipe: pipe, pending: &pending})
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return ErrTxConflict
	}
	if err != nil {
		return storeErr("exec", err)
	}
	for _, p := range pending {
		p.result.SetVal(p.cmd.Val())
	}
	return nil
}

type pendingBool struct {
	cmd    *redis.BoolCmd
	result *BoolResult
}

type redisPipeline struct {
	ctx     context.Context
	pipe    redis.Pipeliner
	pending *[]pendingBool
}

func (p *redisPipeline) Set(key, value string, ttl time.Duration) {
	p.pipe.Set(p.ctx, key, value, ttl)
}

func (p *redisPipeline) HSet(key, field, value string) {
	p.pipe.HSet(p.ctx, key, field, value)
}

func (p *redisPipeline) HSetNX(key, field, value string) *BoolResult {
	result := &BoolResult{}
	cmd := p.pipe.HSetNX(p.ctx, key, field, value)
	*p.pending = append(*p.pending, pendingBool{cmd: cmd, result: result})
	return result
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(p.ctx, key, ttl)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
