package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"

	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
)

// maxTxRetries bounds optimistic-transaction retries before the update is
// reported as contended.
const maxTxRetries = 10

type pluginOptions struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Plugin implements persistence.Store on redis. One JSON record per task plus
// a ZSET index scored by creation time for ordered listing.
type Plugin struct {
	rdb *redis.Client
}

// NewPlugin creates a redis-backed persistence backend.
func NewPlugin(config persistence.PluginConfig) (persistence.Store, error) {
	var opts pluginOptions
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &opts); err != nil {
			return nil, fmt.Errorf("redis persistence config: %w", err)
		}
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Plugin{rdb: rdb}, nil
}

// NewPluginWithClient wraps an existing client; used by tests and by callers
// that share one client between the store and other components.
func NewPluginWithClient(rdb *redis.Client) *Plugin {
	return &Plugin{rdb: rdb}
}

func (p *Plugin) Tasks() persistence.TaskStore { return &taskStore{rdb: p.rdb} }

func (p *Plugin) Health(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *Plugin) Close() error { return p.rdb.Close() }

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}

type taskStore struct {
	rdb *redis.Client
}

func keyTask(id string) string { return "diagramq:task:" + id }

const keyIndex = "diagramq:tasks:index"

// encodeTask uses the standard library; decodeTask uses sonic, which is
// noticeably faster for the read-heavy list path.
func encodeTask(t *domain.Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTask(raw string) (*domain.Task, error) {
	var t domain.Task
	if err := sonic.Unmarshal([]byte(raw), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *taskStore) Create(ctx context.Context, task *domain.Task) error {
	raw, err := encodeTask(task)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, keyTask(task.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return persistence.ErrAlreadyExists
	}
	return s.rdb.ZAdd(ctx, keyIndex, &redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID,
	}).Err()
}

func (s *taskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	raw, err := s.rdb.Get(ctx, keyTask(id)).Result()
	if err == redis.Nil {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeTask(raw)
}

func (s *taskStore) Update(ctx context.Context, id string, mutate func(*domain.Task) error) (*domain.Task, error) {
	key := keyTask(id)
	var updated *domain.Task

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return persistence.ErrNotFound
		}
		if err != nil {
			return err
		}
		task, err := decodeTask(raw)
		if err != nil {
			return err
		}

		prev := task.UpdatedAt
		if err := mutate(task); err != nil {
			return err
		}
		task.UpdatedAt = time.Now()
		if !task.UpdatedAt.After(prev) {
			task.UpdatedAt = prev.Add(time.Nanosecond)
		}

		next, err := encodeTask(task)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = task
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update task %s: %w", id, persistence.ErrContention)
}

func (s *taskStore) List(ctx context.Context, f persistence.Filter) ([]*domain.Task, error) {
	ids, err := s.rdb.ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyTask(id)
	}
	raws, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Task, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// Index entry without a record: deleted concurrently.
			continue
		}
		task, err := decodeTask(str)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && task.Status != f.Status {
			continue
		}
		out = append(out, task)
	}
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *taskStore) Delete(ctx context.Context, id string) (bool, error) {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, keyTask(id))
	pipe.ZRem(ctx, keyIndex, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func paginate(tasks []*domain.Task, limit, offset int) []*domain.Task {
	if offset > 0 {
		if offset >= len(tasks) {
			return nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}
