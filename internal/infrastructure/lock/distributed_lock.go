package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 钱包余额的并发安全由数据库行锁保证（SELECT ... FOR UPDATE），
// 这里的锁用于粗粒度的业务互斥：
//   - 同一活动的结算同时只允许一个请求执行
//   - 同一月份的批量评分同时只允许一个实例执行
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本校验 value 后删除，避免误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// Releaser 已持有的锁
type Releaser interface {
	Unlock(ctx context.Context) error
}

// Locker 获取互斥锁，拿不到锁时返回 ErrLockFailed
type Locker interface {
	Obtain(ctx context.Context, key, owner string, ttl time.Duration) (Releaser, error)
}

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// RedisLocker 基于 Redis 的 Locker
type RedisLocker struct {
	client        *redis.Client
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, retryInterval: 100 * time.Millisecond, maxRetries: 30}
}

func (l *RedisLocker) Obtain(ctx context.Context, key, owner string, ttl time.Duration) (Releaser, error) {
	dl := NewDistributedLock(l.client, key, owner, ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, err
	}
	return dl, nil
}

// LocalLocker 进程内的 Locker，单实例部署和测试使用
// 拿不到锁立即返回 ErrLockFailed
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) Obtain(_ context.Context, key, owner string, _ time.Duration) (Releaser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLockFailed
	}
	l.held[key] = owner
	return &localRelease{locker: l, key: key, owner: owner}, nil
}

type localRelease struct {
	locker *LocalLocker
	key    string
	owner  string
}

func (r *localRelease) Unlock(context.Context) error {
	r.locker.mu.Lock()
	defer r.locker.mu.Unlock()
	if r.locker.held[r.key] == r.owner {
		delete(r.locker.held, r.key)
	}
	return nil
}

// SettleLockKey 活动结算锁
func SettleLockKey(eventID int64) string {
	return fmt.Sprintf("settle:lock:event:%d", eventID)
}

// ScoringLockKey 月度批量评分锁
func ScoringLockKey(period string) string {
	return fmt.Sprintf("scoring:lock:%s", period)
}
