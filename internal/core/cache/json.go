package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Typed 一类按 int64 id 存放的 JSON 值
//
// 每个 id 带一个代数 prefix+"gen:"+id，数据键为 prefix+id+":"+代数。
// Forget 只递增代数：失效之前已经开始的回源写回旧代数的键，之后的读取看不到。
type Typed[T any] struct {
	c      *Cache
	prefix string
	ttl    time.Duration
}

func NewTyped[T any](c *Cache, prefix string, ttl time.Duration) *Typed[T] {
	return &Typed[T]{c: c, prefix: prefix, ttl: ttl}
}

func (t *Typed[T]) genKey(id int64) string { return t.prefix + "gen:" + strconv.FormatInt(id, 10) }

func (t *Typed[T]) dataKey(id, gen int64) string {
	return t.prefix + strconv.FormatInt(id, 10) + ":" + strconv.FormatInt(gen, 10)
}

// Get 未命中时回源；load 返回 nil 也写入（"null"），不存在的 id 不会反复打到数据库
func (t *Typed[T]) Get(ctx context.Context, id int64, load func(ctx context.Context) (*T, error)) (*T, error) {
	gen, err := t.c.RDB.Get(ctx, t.genKey(id)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// redis 不可用：不缓存
		return load(ctx)
	}
	key := t.dataKey(id, gen)
	b, err := t.c.GetOrLoad(ctx, key, t.ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	var out *T
	if err := json.Unmarshal(b, &out); err != nil {
		// 旧格式 / 脏数据：丢掉缓存直接回源
		_ = t.c.Del(ctx, key)
		return load(ctx)
	}
	return out, nil
}

// Forget 递增代数，旧数据键随 ttl 过期
func (t *Typed[T]) Forget(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	// 代数键活得比数据键久，避免过期后回退到旧代数
	keep := 2*t.ttl + time.Minute
	pipe := t.c.RDB.TxPipeline()
	for _, id := range ids {
		pipe.Incr(ctx, t.genKey(id))
		pipe.Expire(ctx, t.genKey(id), keep)
	}
	_, err := pipe.Exec(ctx)
	return err
}
