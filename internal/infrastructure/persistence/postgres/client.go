// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/domain/entity"
)

var tracer = otel.Tracer("postgres")

// Client PostgreSQL 客户端（GORM 版本）
type Client struct {
	db *gorm.DB
}

// NewClient 创建 PostgreSQL 客户端
func NewClient(cfg *config.PostgresConfig) (*Client, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &Client{db: db}
	if cfg.AutoMigrate {
		if err := c.AutoMigrate(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewClientWithDB 用已打开的 gorm.DB 构造客户端（测试使用 sqlite）
func NewClientWithDB(db *gorm.DB) *Client {
	return &Client{db: db}
}

// AutoMigrate 创建或更新战役相关表
func (c *Client) AutoMigrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	if err := c.db.WithContext(ctx).AutoMigrate(
		&entity.Campaign{},
		&entity.CampaignSession{},
		&entity.CampaignEntity{},
		&entity.GenerationDraft{},
		&entity.SourceUsage{},
		&entity.LLMUsageEvent{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB 获取 GORM DB 实例
func (c *Client) DB() *gorm.DB {
	return c.db
}

// SqlDB 获取底层 sql.DB（用于健康检查等）
func (c *Client) SqlDB() (*sql.DB, error) {
	return c.db.DB()
}

// Close 关闭数据库连接
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.HealthCheck")
	defer span.End()

	var result int
	if err := c.db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
