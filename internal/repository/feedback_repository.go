package repository

import (
	"context"
	"invest-assist-go/internal/model"

	"gorm.io/gorm"
)

// FeedbackRepository 定义了反馈的持久化操作。
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *model.Feedback) error
}

// feedbackRepository 是 FeedbackRepository 接口的 GORM 实现。
type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository 创建一个新的 FeedbackRepository 实例。
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

// Create 在数据库中插入一条反馈记录。
func (r *feedbackRepository) Create(ctx context.Context, feedback *model.Feedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}
