package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/constants"
	"resume-builder-go/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-builder-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.BuilderModulePrefix + ":" + constants.EntitySession + ":": 0.05, // 会话读写采样5%
	constants.AppPrefix + ":" + constants.BuilderModulePrefix + ":" + constants.EntityLock + ":":    0.5,  // 锁操作采样50%
}

// 随机数生成器
var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}

	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}

	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// AcquireLock 尝试获取一个分布式锁，成功时返回锁的持有者标识
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	// 随机值作为锁的持有者标识
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())
	// NX保证了原子性
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	// 未能获取锁
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	// 如果key存在且值匹配，则删除key
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}

	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}

	return false, nil
}

// SessionStore 基于Redis的构建器会话存储，实现builder.SessionStore接口。
// 会话以JSON全量存储，每次写入刷新TTL；过期回收由Redis的TTL机制完成。
type SessionStore struct {
	redis *Redis
	ttl   time.Duration
}

// NewSessionStore 创建会话存储
func NewSessionStore(r *Redis, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = constants.DefaultSessionTTL
	}
	return &SessionStore{
		redis: r,
		ttl:   ttl,
	}
}

// sessionKey 格式: app:builder:session:{sessionID}
func sessionKey(id string) string {
	return fmt.Sprintf(constants.KeyBuilderSession, id)
}

// sessionLockKey 格式: app:builder:lock:{sessionID}
func sessionLockKey(id string) string {
	return fmt.Sprintf(constants.KeyBuilderSessionLock, id)
}

// Get 实现builder.SessionStore接口
func (s *SessionStore) Get(ctx context.Context, id string) (*builder.BuilderSession, error) {
	key := sessionKey(id)

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "SessionStore.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeAttributeValue("db.redis.key", key, tracing.MaxRedisLength)),
		)
	}

	raw, err := s.redis.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if span != nil {
				span.SetStatus(codes.Ok, "session not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			}
			return nil, builder.ErrSessionNotFound
		}
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}

	var session builder.BuilderSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("反序列化会话失败: %w", err)
	}

	if span != nil {
		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(raw)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return &session, nil
}

// Put 实现builder.SessionStore接口：全量覆盖写入并刷新TTL
func (s *SessionStore) Put(ctx context.Context, session *builder.BuilderSession) error {
	key := sessionKey(session.ID)

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	var span trace.Span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "SessionStore.Put", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeAttributeValue("db.redis.key", key, tracing.MaxRedisLength)),
			attribute.Int("db.redis.value_length", len(raw)),
			attribute.Int64("db.redis.expiration_ms", s.ttl.Milliseconds()),
		)
	}

	if err := s.redis.Client.Set(ctx, key, string(raw), s.ttl).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("写入会话失败: %w", err)
	}

	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
	return nil
}

// Delete 实现builder.SessionStore接口
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

// CountActive 统计当前存活的会话数量。
// 过期会话由Redis的TTL机制回收，这里仅用于运维观测。
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	pattern := fmt.Sprintf(constants.KeyBuilderSession, "*")

	var count int64
	var cursor uint64
	for {
		keys, next, err := s.redis.Client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return 0, fmt.Errorf("扫描会话key失败: %w", err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// AcquireSessionLock 获取某会话的分布式锁，供多实例部署下的跨进程串行化
func (s *SessionStore) AcquireSessionLock(ctx context.Context, id string, expiration time.Duration) (string, error) {
	return s.redis.AcquireLock(ctx, sessionLockKey(id), expiration)
}

// ReleaseSessionLock 释放某会话的分布式锁
func (s *SessionStore) ReleaseSessionLock(ctx context.Context, id string, token string) (bool, error) {
	return s.redis.ReleaseLock(ctx, sessionLockKey(id), token)
}

var _ builder.SessionStore = (*SessionStore)(nil)
var _ builder.SessionLocker = (*SessionStore)(nil)
