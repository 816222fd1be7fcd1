package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
)

// ErrCacheMiss is returned by ShareCache.Get for unknown tokens.
var ErrCacheMiss = errors.New("repo: share cache miss")

// ShareCache remembers which project a share token resolves to.
type ShareCache interface {
	Get(ctx context.Context, token string) (string, error)
	Set(ctx context.Context, token, projectID string, ttl time.Duration) error
	Close() error
}

const shareKeyPrefix = "stepwise:share:"

type redisShareCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisShareCache connects to addr and pings it.
func NewRedisShareCache(addr string, log *logger.Logger) (ShareCache, error) {
	if log == nil {
		log = logger.Nop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisShareCache{log: log.With("service", "RedisShareCache"), rdb: rdb}, nil
}

func (c *redisShareCache) Get(ctx context.Context, token string) (string, error) {
	id, err := c.rdb.Get(ctx, shareKeyPrefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("repo: share cache get: %w", err)
	}
	return id, nil
}

func (c *redisShareCache) Set(ctx context.Context, token, projectID string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, shareKeyPrefix+token, projectID, ttl).Err(); err != nil {
		return fmt.Errorf("repo: share cache set: %w", err)
	}
	return nil
}

func (c *redisShareCache) Close() error { return c.rdb.Close() }

type memoryEntry struct {
	projectID string
	expires   time.Time
}

type memoryShareCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryShareCache returns a process-local cache for single-instance
// deployments.
func NewMemoryShareCache() ShareCache {
	return &memoryShareCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *memoryShareCache) Get(_ context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return "", ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, token)
		return "", ErrCacheMiss
	}
	return e.projectID, nil
}

func (c *memoryShareCache) Set(_ context.Context, token, projectID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{projectID: projectID}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[token] = e
	return nil
}

func (c *memoryShareCache) Close() error { return nil }

// Shares resolves public share tokens through the cache, falling back to
// the repository on a miss.
type Shares struct {
	repo  ProjectRepo
	cache ShareCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewShares(repo ProjectRepo, cache ShareCache, ttl time.Duration, log *logger.Logger) *Shares {
	if log == nil {
		log = logger.Nop()
	}
	return &Shares{repo: repo, cache: cache, ttl: ttl, log: log.With("service", "Shares")}
}

// Resolve returns the shared project. Cache failures are logged and
// bypassed.
func (s *Shares) Resolve(ctx context.Context, token string) (project.Project, error) {
	id, err := s.cache.Get(ctx, token)
	switch {
	case err == nil:
		p, err := s.repo.GetByID(ctx, nil, id)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return p, err
		}
	case !errors.Is(err, ErrCacheMiss):
		s.log.Warn("share cache unavailable", "error", err)
	}

	id, err = s.repo.ResolveShare(ctx, nil, token)
	if err != nil {
		return project.Project{}, err
	}
	if err := s.cache.Set(ctx, token, id, s.ttl); err != nil {
		s.log.Warn("share cache write failed", "error", err)
	}
	return s.repo.GetByID(ctx, nil, id)
}

// Create issues a token for an owned project and primes the cache.
func (s *Shares) Create(ctx context.Context, tx *gorm.DB, owner, id string) (string, error) {
	token, err := s.repo.CreateShare(ctx, tx, owner, id)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, token, id, s.ttl); err != nil {
		s.log.Warn("share cache write failed", "error", err)
	}
	return token, nil
}
