package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-builder-go/internal/config"
	"resume-builder-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 键值存储，构建器会话的权威存储
	Redis *Redis

	// 会话存储 (基于Redis)
	Sessions *SessionStore

	// 关系型数据库，完成简历的落库
	MySQL *MySQL

	// 对象存储，完成会话快照归档 (可选)
	MinIO *MinIO

	// 消息队列，简历创建事件 (可选)
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。
// Redis与MySQL为必需组件，初始化失败直接返回错误；
// MinIO与RabbitMQ为可选组件，失败仅告警，对应能力降级。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error
	var initWarnings []string

	// 初始化Redis (必需)
	if cfg.Redis.Address == "" {
		return nil, fmt.Errorf("Redis未配置, 会话存储不可用")
	}
	storage.Redis, err = NewRedisAdapter(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("初始化Redis失败: %w", err)
	}
	logger.Info().Str("address", cfg.Redis.Address).Msg("Redis客户端初始化成功")

	sessionTTL := time.Duration(cfg.Builder.SessionTTLHours) * time.Hour
	storage.Sessions = NewSessionStore(storage.Redis, sessionTTL)

	// 初始化MySQL (必需)
	if cfg.MySQL.Host == "" {
		storage.Redis.Close()
		return nil, fmt.Errorf("MySQL未配置, 简历存储不可用")
	}
	storage.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		storage.Redis.Close()
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	logger.Info().Str("host", cfg.MySQL.Host).Msg("MySQL客户端初始化成功")

	// 初始化MinIO (可选)
	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败, 会话快照归档不可用")
			initWarnings = append(initWarnings, fmt.Sprintf("MinIO: %v", err))
			storage.MinIO = nil
		}
	} else {
		logger.Info().Msg("MinIO未配置, 跳过初始化")
	}

	// 初始化RabbitMQ (可选)
	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败, 简历事件发布不可用")
			initWarnings = append(initWarnings, fmt.Sprintf("RabbitMQ: %v", err))
			storage.RabbitMQ = nil
		}
	} else {
		logger.Info().Msg("RabbitMQ未配置, 跳过初始化")
	}

	if len(initWarnings) > 0 {
		logger.Warn().Str("components", strings.Join(initWarnings, "; ")).Msg("部分可选存储组件初始化失败")
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}

	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// MinIO客户端无需显式Close
}
