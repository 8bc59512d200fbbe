package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/modguard/moderation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TableName 审核日志表名，与迁移文件保持一致
const TableName = "submission-result-logs"

// SubmissionRecord 审核日志行
type SubmissionRecord struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type           string    `gorm:"column:type;size:16;not null;index" json:"type"`
	Text           *string   `gorm:"column:text;type:text" json:"text"`
	Analysis       string    `gorm:"column:analysis;type:text;not null" json:"analysis"`
	Classification string    `gorm:"column:classification;size:32;not null;index" json:"classification"`
	Explanation    *string   `gorm:"column:explanation;type:text" json:"explanation"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

// TableName 实现 gorm 的 Tabler
func (SubmissionRecord) TableName() string { return TableName }

// RecordFromLog 转换为数据库行
func RecordFromLog(log moderation.SubmissionLog) SubmissionRecord {
	created := log.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return SubmissionRecord{
		Type:           log.Type,
		Text:           log.Text,
		Analysis:       log.Analysis,
		Classification: log.Classification,
		Explanation:    log.Explanation,
		CreatedAt:      created,
	}
}

// ListOptions 查询条件，零值表示不过滤
type ListOptions struct {
	Type           string
	Classification string
	Limit          int
	Offset         int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	default:
		return o.Limit
	}
}

// SubmissionStore 基于 gorm 的审核日志存储，实现 moderation.ResultSink
type SubmissionStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubmissionStore 创建存储
func NewSubmissionStore(db *gorm.DB, logger *zap.Logger) *SubmissionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionStore{
		db:     db,
		logger: logger.With(zap.String("component", "submission_store")),
	}
}

var _ moderation.ResultSink = (*SubmissionStore)(nil)

// Record 写入一条审核日志
func (s *SubmissionStore) Record(ctx context.Context, log moderation.SubmissionLog) error {
	rec := RecordFromLog(log)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert submission log: %w", err)
	}
	s.logger.Debug("submission log stored",
		zap.Uint64("id", rec.ID),
		zap.String("type", rec.Type),
		zap.String("classification", rec.Classification),
	)
	return nil
}

func (s *SubmissionStore) filtered(ctx context.Context, opts ListOptions) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&SubmissionRecord{})
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.Classification != "" {
		q = q.Where("classification = ?", opts.Classification)
	}
	return q
}

// List 按创建时间倒序返回日志
func (s *SubmissionStore) List(ctx context.Context, opts ListOptions) ([]SubmissionRecord, error) {
	var out []SubmissionRecord
	err := s.filtered(ctx, opts).
		Order("created_at DESC").Order("id DESC").
		Limit(opts.limit()).Offset(max(opts.Offset, 0)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list submission logs: %w", err)
	}
	return out, nil
}

// Count 返回满足条件的日志总数
func (s *SubmissionStore) Count(ctx context.Context, opts ListOptions) (int64, error) {
	var n int64
	if err := s.filtered(ctx, opts).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count submission logs: %w", err)
	}
	return n, nil
}

// AutoMigrate 用 gorm 建表，仅用于 sqlite 开发环境与测试；生产环境走 migration 包
func (s *SubmissionStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&SubmissionRecord{})
}
