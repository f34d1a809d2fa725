package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/repository"
	"telegram-x-monitor/internal/infra/metrics"
	red "telegram-x-monitor/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

const defaultUserCacheTTL = 10 * time.Minute

// userRepoCacheDecorator caches user lookups and role lists in Redis. Role lists
// are read on every relayed post, so they dominate the read load.
// It wraps any UserRepository, the SQLite one included.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration

	// role-list keys written by this process, dropped on any user write
	roleKeys sync.Map
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	return &userRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func userKey(tgID int64) string { return fmt.Sprintf("user:tgid:%d", tgID) }

func rolesKey(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	sort.Strings(names)
	return "user:roles:" + strings.Join(names, ",")
}

// For write operations, we must invalidate the user and every cached role list.
func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	d.invalidate(ctx, u.TelegramID)
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, tgID int64) error {
	d.invalidate(ctx, tgID)
	return d.inner.Delete(ctx, tx, tgID)
}

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, tgID int64) {
	keys := []string{userKey(tgID)}
	d.roleKeys.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	_ = d.cache.Del(ctx, keys...)
}

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	// reads inside a transaction must see uncommitted writes
	if tx != nil {
		return d.inner.FindByTelegramID(ctx, tx, tgID)
	}
	key := userKey(tgID)
	var user model.User
	if d.get(ctx, "user", key, &user) {
		return &user, nil
	}

	u, err := d.inner.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	d.set(ctx, key, u)
	return u, nil
}

func (d *userRepoCacheDecorator) ListByRoles(ctx context.Context, tx repository.Tx, roles ...model.Role) ([]*model.User, error) {
	if tx != nil {
		return d.inner.ListByRoles(ctx, tx, roles...)
	}
	key := rolesKey(roles)
	var users []*model.User
	if d.get(ctx, "user_roles", key, &users) {
		return users, nil
	}

	users, err := d.inner.ListByRoles(ctx, tx, roles...)
	if err != nil {
		return nil, err
	}
	d.roleKeys.Store(key, struct{}{})
	d.set(ctx, key, users)
	return users, nil
}

func (d *userRepoCacheDecorator) get(ctx context.Context, cache, key string, dst interface{}) bool {
	val, err := d.cache.Get(ctx, key)
	if err == nil && json.Unmarshal([]byte(val), dst) == nil {
		metrics.IncCacheRequest(cache, "hit")
		return true
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest(cache, "error")
		return false
	}
	metrics.IncCacheRequest(cache, "miss")
	return false
}

func (d *userRepoCacheDecorator) set(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, key, b, d.ttl)
}
