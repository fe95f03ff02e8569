package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/storage/models"
	"resume-builder-go/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	applogger "resume-builder-go/internal/logger"
)

var mysqlTracer = otel.Tracer("resume-builder-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.TruncateString(sqlStatement, tracing.MaxSQLLength)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不作为错误处理
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	applogger.Info().Str("database", cfg.Database).Msg("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	// 迁移期间关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.Resume{},
	)
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateResume 持久化一份新简历。同一事务内检查该所有者是否已有简历，
// 第一份标记为主简历。实现builder.ResumeStore接口。
func (m *MySQL) CreateResume(ctx context.Context, resume *builder.Resume) (string, error) {
	record, err := toResumeModel(resume)
	if err != nil {
		return "", fmt.Errorf("序列化简历失败: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("生成简历ID失败: %w", err)
	}
	record.ResumeID = id.String()

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := ownerResumesForUpdate(tx, resume.OwnerID).Count(&count).Error; err != nil {
			return fmt.Errorf("查询所有者简历数量失败: %w", err)
		}
		record.IsPrimary = count == 0

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("写入简历记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return record.ResumeID, nil
}

// ownerResumesForUpdate 对某所有者的简历行加排他锁后查询。
// 主简历判定依赖该锁：两个并发事务不会同时读到count为0。
func ownerResumesForUpdate(tx *gorm.DB, ownerID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&models.Resume{}).
		Where("owner_id = ?", ownerID)
}

// GetResume 按ID读取简历，不存在时返回builder.ErrResumeNotFound
func (m *MySQL) GetResume(ctx context.Context, resumeID string) (*builder.Resume, error) {
	var record models.Resume
	err := m.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, builder.ErrResumeNotFound
		}
		return nil, fmt.Errorf("查询简历失败: %w", err)
	}
	return fromResumeModel(&record)
}

// ListResumes 返回某所有者的全部简历，按创建时间倒序
func (m *MySQL) ListResumes(ctx context.Context, ownerID string) ([]*builder.Resume, error) {
	var records []models.Resume
	err := m.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询简历列表失败: %w", err)
	}

	resumes := make([]*builder.Resume, 0, len(records))
	for i := range records {
		resume, err := fromResumeModel(&records[i])
		if err != nil {
			return nil, err
		}
		resumes = append(resumes, resume)
	}
	return resumes, nil
}

// DeleteResume 删除某所有者的一份简历，不存在时返回builder.ErrResumeNotFound
func (m *MySQL) DeleteResume(ctx context.Context, resumeID string, ownerID string) error {
	result := m.db.WithContext(ctx).
		Where("resume_id = ? AND owner_id = ?", resumeID, ownerID).
		Delete(&models.Resume{})
	if result.Error != nil {
		return fmt.Errorf("删除简历失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return builder.ErrResumeNotFound
	}
	return nil
}

// toResumeModel 领域简历转数据库记录
func toResumeModel(resume *builder.Resume) (*models.Resume, error) {
	contactJSON, err := json.Marshal(resume.Contact)
	if err != nil {
		return nil, err
	}
	experienceJSON, err := json.Marshal(resume.Experience)
	if err != nil {
		return nil, err
	}
	educationJSON, err := json.Marshal(resume.Education)
	if err != nil {
		return nil, err
	}
	skillsJSON, err := json.Marshal(resume.Skills)
	if err != nil {
		return nil, err
	}

	return &models.Resume{
		OwnerID:        resume.OwnerID,
		ResumeName:     resume.Name,
		ContactJSON:    contactJSON,
		Summary:        resume.Summary,
		ExperienceJSON: experienceJSON,
		EducationJSON:  educationJSON,
		SkillsJSON:     skillsJSON,
	}, nil
}

// fromResumeModel 数据库记录转领域简历
func fromResumeModel(record *models.Resume) (*builder.Resume, error) {
	resume := &builder.Resume{
		ID:        record.ResumeID,
		OwnerID:   record.OwnerID,
		Name:      record.ResumeName,
		Summary:   record.Summary,
		IsPrimary: record.IsPrimary,
	}

	if len(record.ContactJSON) > 0 {
		if err := json.Unmarshal(record.ContactJSON, &resume.Contact); err != nil {
			return nil, fmt.Errorf("反序列化联系方式失败: %w", err)
		}
	}
	if len(record.ExperienceJSON) > 0 {
		if err := json.Unmarshal(record.ExperienceJSON, &resume.Experience); err != nil {
			return nil, fmt.Errorf("反序列化工作经历失败: %w", err)
		}
	}
	if len(record.EducationJSON) > 0 {
		if err := json.Unmarshal(record.EducationJSON, &resume.Education); err != nil {
			return nil, fmt.Errorf("反序列化教育经历失败: %w", err)
		}
	}
	if len(record.SkillsJSON) > 0 {
		if err := json.Unmarshal(record.SkillsJSON, &resume.Skills); err != nil {
			return nil, fmt.Errorf("反序列化技能列表失败: %w", err)
		}
	}

	return resume, nil
}

var _ builder.ResumeStore = (*MySQL)(nil)
