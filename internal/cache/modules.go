package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mind-engage/coursehub/internal/curriculum"
	"github.com/mind-engage/coursehub/internal/logger"
)

const keyPrefix = "coursehub:module:"

func moduleKey(moduleID int64) string {
	return fmt.Sprintf("%s%d:details", keyPrefix, moduleID)
}

// versionKey counts invalidations of a module; it carries no TTL.
func versionKey(moduleID int64) string {
	return fmt.Sprintf("%s%d:version", keyPrefix, moduleID)
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient dials Redis and pings it once.
func NewClient(ctx context.Context, o Options) (*goredis.Client, error) {
	if o.Addr == "" {
		return nil, errors.New("cache: redis addr required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Modules caches built module details as JSON.
type Modules struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewModules(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *Modules {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Modules{rdb: rdb, ttl: ttl, log: log.With("component", "ModuleCache")}
}

// Get returns the cached details, or on a miss the module's version to hand
// back to Set.
func (m *Modules) Get(ctx context.Context, moduleID int64) ([]curriculum.Lesson, int64, bool, error) {
	vals, err := m.rdb.MGet(ctx, moduleKey(moduleID), versionKey(moduleID)).Result()
	if err != nil {
		return nil, 0, false, err
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, version, false, nil
	}
	var lessons []curriculum.Lesson
	if err := json.Unmarshal([]byte(raw), &lessons); err != nil {
		// a bad entry is a miss; drop it
		m.log.Warn("dropping undecodable cache entry", "module_id", moduleID, "error", err)
		_ = m.rdb.Del(ctx, moduleKey(moduleID)).Err()
		return nil, version, false, nil
	}
	return lessons, version, true, nil
}

func parseVersion(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: bad module version %q: %w", s, err)
	}
	return n, nil
}

// Set stores lessons unless the module was invalidated after version was
// read. A lost race is not an error.
func (m *Modules) Set(ctx context.Context, moduleID, version int64, lessons []curriculum.Lesson) error {
	raw, err := json.Marshal(lessons)
	if err != nil {
		return err
	}
	vk := versionKey(moduleID)
	err = m.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, vk).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if cur != version {
			m.log.Debug("skipping stale module details", "module_id", moduleID, "read_version", version, "version", cur)
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, moduleKey(moduleID), raw, m.ttl)
			return nil
		})
		return err
	}, vk)
	if errors.Is(err, goredis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate bumps the module's version and drops its details in one
// transaction.
func (m *Modules) Invalidate(ctx context.Context, moduleID int64) error {
	_, err := m.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Incr(ctx, versionKey(moduleID))
		p.Del(ctx, moduleKey(moduleID))
		return nil
	})
	return err
}

func (m *Modules) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}
