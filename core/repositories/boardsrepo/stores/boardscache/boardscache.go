// Package boardscache wraps a boardsrepo.Storer with a Redis read-through
// cache for board reads. Every write through the cache evicts the board's
// keys, so a session that reloads after its own commit sees its writes.
//
// Each board also has an epoch key that eviction increments. A read fills
// the cache only if the epoch is unchanged since before it read the backing
// store, so a slow read cannot put rows older than a write back in the cache.
package boardscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrazmi/kanban/core/board"
	"github.com/jrazmi/kanban/core/repositories/boardsrepo"
)

// Cache is a boardsrepo.Storer.
type Cache struct {
	base  boardsrepo.Storer
	redis *redis.Client
	ttl   time.Duration
}

// New wraps base. A nil client or a zero ttl disables caching.
func New(base boardsrepo.Storer, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("boardscache.New: base storer is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) GetBoard(ctx context.Context, boardID string) (board.Board, error) {
	return c.base.GetBoard(ctx, boardID)
}

func (c *Cache) ListColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	var cols []board.Column
	f, hit := c.load(ctx, boardID, columnsKey(boardID), &cols)
	if hit {
		return cols, nil
	}

	cols, err := c.base.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, f, cols)
	return cols, nil
}

func (c *Cache) ListTasks(ctx context.Context, boardID string) ([]board.Task, error) {
	var tasks []board.Task
	f, hit := c.load(ctx, boardID, tasksKey(boardID), &tasks)
	if hit {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, f, tasks)
	return tasks, nil
}

// UpdateTaskPlacement evicts on success and on a stale rejection, since the
// rejection means another writer changed the board.
func (c *Cache) UpdateTaskPlacement(ctx context.Context, p board.Placement) (int64, error) {
	version, err := c.base.UpdateTaskPlacement(ctx, p)
	if err != nil && !errors.Is(err, boardsrepo.ErrStalePlacement) {
		return 0, err
	}
	c.evict(ctx, p.BoardID)
	return version, err
}

func (c *Cache) UpdateColumnPosition(ctx context.Context, p board.ColumnPlacement) error {
	if err := c.base.UpdateColumnPosition(ctx, p); err != nil {
		return err
	}
	c.evict(ctx, p.BoardID)
	return nil
}

func (c *Cache) GetMembership(ctx context.Context, boardID, userID string) (board.TeamMembership, error) {
	return c.base.GetMembership(ctx, boardID, userID)
}

func (c *Cache) CreateColumns(ctx context.Context, columns []board.Column) error {
	if err := c.base.CreateColumns(ctx, columns); err != nil {
		return err
	}
	boards := map[string]bool{}
	for _, col := range columns {
		if !boards[col.BoardID] {
			boards[col.BoardID] = true
			c.evict(ctx, col.BoardID)
		}
	}
	return nil
}

func (c *Cache) CreateTask(ctx context.Context, task boardsrepo.NewTask) (board.Task, error) {
	created, err := c.base.CreateTask(ctx, task)
	if err != nil {
		return board.Task{}, err
	}
	c.evict(ctx, task.BoardID)
	return created, nil
}

// UpdateTask evicts like UpdateTaskPlacement.
func (c *Cache) UpdateTask(ctx context.Context, u boardsrepo.TaskUpdate) (board.Task, error) {
	updated, err := c.base.UpdateTask(ctx, u)
	if err != nil && !errors.Is(err, boardsrepo.ErrStalePlacement) {
		return board.Task{}, err
	}
	c.evict(ctx, u.BoardID)
	return updated, err
}

func (c *Cache) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := c.base.DeleteTask(ctx, boardID, taskID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) ListCorruptBoards(ctx context.Context, limit int) ([]string, error) {
	return c.base.ListCorruptBoards(ctx, limit)
}

// Evict drops the cached reads for boardID.
func (c *Cache) Evict(ctx context.Context, boardID string) {
	c.evict(ctx, boardID)
}

// fill is what a miss needs to write the backing store's answer back.
type fill struct {
	boardID string
	key     string
	epoch   string
	ok      bool
}

// load reads key into dst. On a miss it returns the board's epoch as of
// before the backing read. A Redis failure leaves the cache alone: the entry
// may be fine, and neither a delete nor a fill is likely to get through.
func (c *Cache) load(ctx context.Context, boardID, key string, dst any) (fill, bool) {
	if c.redis == nil {
		return fill{}, false
	}

	vals, err := c.redis.MGet(ctx, epochKey(boardID), key).Result()
	if err != nil {
		return fill{}, false
	}

	f := fill{boardID: boardID, key: key, ok: true}
	if epoch, isString := vals[0].(string); isString {
		f.epoch = epoch
	}

	data, isString := vals[1].(string)
	if !isString {
		return f, false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return f, false
	}
	return f, true
}

// store writes v under f.key unless the board was evicted after load read
// the epoch. WATCH aborts the write if an eviction lands in between.
func (c *Cache) store(ctx context.Context, f fill, v any) {
	if c.redis == nil || c.ttl == 0 || !f.ok {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	ek := epochKey(f.boardID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, ek).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != f.epoch {
			return errEvicted
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, f.key, data, c.ttl)
			return nil
		})
		return err
	}, ek)
}

var errEvicted = errors.New("board evicted during read")

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, columnsKey(boardID), tasksKey(boardID))
		pipe.Incr(ctx, epochKey(boardID))
		return nil
	})
}

func columnsKey(boardID string) string {
	return "board:" + boardID + ":columns"
}

func tasksKey(boardID string) string {
	return "board:" + boardID + ":tasks"
}

func epochKey(boardID string) string {
	return "board:" + boardID + ":epoch"
}
