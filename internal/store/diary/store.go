package diary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/diary"
)

const (
	maxLabelRunes   = 25
	maxSummaryRunes = 3000
)

// Store 维护每用户每天一行的情绪日记记录。
type Store interface {
	// FindByUserAndDate 查询某用户某天的记录，不存在时返回 (nil, nil)。
	FindByUserAndDate(ctx context.Context, userCode int64, date string) (*diary.EmotionRecord, error)
	// UpsertSummary 写入当天的日记文本；已有记录时只覆盖 summary 和 create_at。
	UpsertSummary(ctx context.Context, userCode int64, date string, summary string, at time.Time) error
	// UpsertScore 写入当天的情绪分数与标签；已有记录时保留 summary。
	UpsertScore(ctx context.Context, userCode int64, date string, score float64, label string, at time.Time) error
}

// GormStore 基于 GORM + MariaDB 实现 Store。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 连接 MariaDB 并迁移表结构。
func NewGormStore(cfg config.MariaDBConfig) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mariadb: %w", err)
	}
	if err := db.AutoMigrate(&diary.EmotionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate analysis_result: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDB 使用外部提供的连接创建 Store（测试用）。
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&diary.EmotionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate analysis_result: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close 释放底层连接池。
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindByUserAndDate 查询某用户某天的记录。
func (s *GormStore) FindByUserAndDate(ctx context.Context, userCode int64, date string) (*diary.EmotionRecord, error) {
	var record diary.EmotionRecord
	err := s.db.WithContext(ctx).
		Where("user_code = ? AND record_date = ?", userCode, date).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query emotion record: %w", err)
	}
	return &record, nil
}

// UpsertSummary 原子写入日记文本。冲突时只更新 summary 和 create_at，
// 保留既有的 emotion_score / emotion_name；新插入的行分数为 0、标签为空。
func (s *GormStore) UpsertSummary(ctx context.Context, userCode int64, date string, summary string, at time.Time) error {
	text := truncateRunes(summary, maxSummaryRunes)
	record := diary.EmotionRecord{
		UserCode:     userCode,
		RecordDate:   date,
		EmotionScore: 0.0,
		EmotionName:  "",
		Summary:      &text,
		CreateAt:     at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_code"}, {Name: "record_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"summary":   text,
			"create_at": at,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// UpsertScore 原子写入情绪分数与标签。冲突时不触碰 summary；
// 新插入的行 summary 为 NULL。
func (s *GormStore) UpsertScore(ctx context.Context, userCode int64, date string, score float64, label string, at time.Time) error {
	name := truncateRunes(label, maxLabelRunes)
	record := diary.EmotionRecord{
		UserCode:     userCode,
		RecordDate:   date,
		EmotionScore: score,
		EmotionName:  name,
		Summary:      nil,
		CreateAt:     at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_code"}, {Name: "record_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"emotion_score": score,
			"emotion_name":  name,
			"create_at":     at,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}
	return nil
}

// truncateRunes 按字符数截断，防止超出列宽（韩文为多字节）。
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
