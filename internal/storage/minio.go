package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// MinIO 提供完成会话快照的对象存储功能
type MinIO struct {
	client        *minio.Client
	cfg           *config.MinIOConfig
	archiveBucket string
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	archiveBucket := cfg.ArchiveBucket
	if archiveBucket == "" {
		archiveBucket = "builder-sessions"
	}

	m := &MinIO{
		client:        client,
		cfg:           cfg,
		archiveBucket: archiveBucket,
	}

	if err := m.ensureBucketExists(archiveBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保会话快照存储桶 %s 存在失败: %w", archiveBucket, err)
	}

	// 设置生命周期规则
	if cfg.ArchiveExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), archiveBucket, "expire-archived-sessions", cfg.ArchiveExpireDays); err != nil {
			logger.Warn().Err(err).Str("bucket", archiveBucket).Msg("设置会话快照生命周期规则失败")
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", archiveBucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		logger.Info().Str("bucket", bucketName).Msg("存储桶创建成功")
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// archiveObjectName 格式: sessions/{sessionID}.json
func archiveObjectName(sessionID string) string {
	return fmt.Sprintf("sessions/%s.json", sessionID)
}

// ArchiveSession 实现builder.SessionArchiver接口。
// 将完成的会话快照以JSON形式写入归档存储桶，供审计与回放使用。
func (m *MinIO) ArchiveSession(ctx context.Context, session *builder.BuilderSession) error {
	if session == nil {
		return fmt.Errorf("会话快照不能为空")
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化会话快照失败: %w", err)
	}

	objectName := archiveObjectName(session.ID)
	_, err = m.client.PutObject(ctx, m.archiveBucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("上传会话快照 %s 到存储桶 %s 失败: %w", objectName, m.archiveBucket, err)
	}

	logger.Debug().
		Str("session_id", session.ID).
		Str("object", objectName).
		Int("size", len(data)).
		Msg("会话快照归档成功")
	return nil
}

// GetArchivedSession 读取已归档的会话快照
func (m *MinIO) GetArchivedSession(ctx context.Context, sessionID string) (*builder.BuilderSession, error) {
	objectName := archiveObjectName(sessionID)

	obj, err := m.client.GetObject(ctx, m.archiveBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取会话快照 %s 失败: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取会话快照 %s 数据失败: %w", objectName, err)
	}

	var session builder.BuilderSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("反序列化会话快照失败: %w", err)
	}
	return &session, nil
}

// GetPresignedArchiveURL 获取会话快照的预签名下载URL
func (m *MinIO) GetPresignedArchiveURL(ctx context.Context, sessionID string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.archiveBucket, archiveObjectName(sessionID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteArchivedSession 删除已归档的会话快照
func (m *MinIO) DeleteArchivedSession(ctx context.Context, sessionID string) error {
	objectName := archiveObjectName(sessionID)
	if err := m.client.RemoveObject(ctx, m.archiveBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除会话快照 %s 失败: %w", objectName, err)
	}
	return nil
}

var _ builder.SessionArchiver = (*MinIO)(nil)
