package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"flowboard-api/domain"
)

// Cache wraps a Backend with Redis-backed caching for the two read paths.
// Reads after a process restart (sign-in replays, mostly) skip the remote
// round trip when a cached copy is still fresh. Any write evicts.
type Cache struct {
	base   Backend
	redis  *redis.Client
	userID string
	ttl    time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, userID string, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, userID: userID, ttl: ttl}
}

func (c *Cache) Source() string { return c.base.Source() }

func (c *Cache) FetchUserBoards(ctx context.Context) (domain.UserBoards, bool, error) {
	if boards, ok := c.loadBoardsFromCache(ctx); ok {
		return boards, true, nil
	}

	boards, present, err := c.base.FetchUserBoards(ctx)
	if err != nil || !present {
		return boards, present, err
	}

	c.store(ctx, c.boardsKey(), boards)
	return boards, true, nil
}

func (c *Cache) FetchComments(ctx context.Context) ([]domain.Comment, error) {
	if comments, ok := c.loadCommentsFromCache(ctx); ok {
		return comments, nil
	}

	comments, err := c.base.FetchComments(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, c.commentsKey(), comments)
	return comments, nil
}

func (c *Cache) StoreUserBoards(ctx context.Context, boards domain.UserBoards) error {
	if err := c.base.StoreUserBoards(ctx, boards); err != nil {
		return err
	}
	c.evict(ctx, c.boardsKey())
	return nil
}

func (c *Cache) StoreComments(ctx context.Context, boardID string, comments []domain.Comment) error {
	if err := c.base.StoreComments(ctx, boardID, comments); err != nil {
		return err
	}
	c.evict(ctx, c.commentsKey())
	return nil
}

func (c *Cache) StoreComment(ctx context.Context, boardID string, comment domain.Comment) error {
	if err := c.base.StoreComment(ctx, boardID, comment); err != nil {
		return err
	}
	c.evict(ctx, c.commentsKey())
	return nil
}

func (c *Cache) DeleteComment(ctx context.Context, commentID int) error {
	if err := c.base.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	c.evict(ctx, c.commentsKey())
	return nil
}

func (c *Cache) loadBoardsFromCache(ctx context.Context) (domain.UserBoards, bool) {
	if c.redis == nil {
		return domain.UserBoards{}, false
	}
	data, err := c.redis.Get(ctx, c.boardsKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, c.boardsKey()).Err()
		}
		return domain.UserBoards{}, false
	}
	var boards domain.UserBoards
	if err := json.Unmarshal(data, &boards); err != nil {
		_ = c.redis.Del(ctx, c.boardsKey()).Err()
		return domain.UserBoards{}, false
	}
	return boards, true
}

func (c *Cache) loadCommentsFromCache(ctx context.Context) ([]domain.Comment, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.commentsKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, c.commentsKey()).Err()
		}
		return nil, false
	}
	var comments []domain.Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		_ = c.redis.Del(ctx, c.commentsKey()).Err()
		return nil, false
	}
	return comments, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) boardsKey() string {
	return "boards:" + c.userID
}

func (c *Cache) commentsKey() string {
	return "comments:" + c.userID
}
