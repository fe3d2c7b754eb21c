package service

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"invest-assist-go/internal/model"
	"invest-assist-go/internal/repository"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"

	"github.com/oklog/ulid/v2"
)

// 反馈字段的长度上限，超出部分截断。
const (
	maxFeedbackMessage = 4000
	maxFeedbackPage    = 255
)

// FeedbackPublisher 把反馈事件发布到消息队列。
type FeedbackPublisher interface {
	PublishFeedback(ctx context.Context, event tasks.FeedbackEvent) error
}

// FeedbackInput 是提交的反馈内容。
type FeedbackInput struct {
	SessionID string
	Rating    int
	Message   string
	Page      string
	ClientIP  string
}

// FeedbackService 处理反馈提交。提交是尽力而为的：存储或发布失败只记录日志。
type FeedbackService interface {
	Submit(ctx context.Context, in FeedbackInput) string
}

type feedbackService struct {
	repo      repository.FeedbackRepository
	publisher FeedbackPublisher
	now       func() time.Time
}

// NewFeedbackService 创建 FeedbackService。repo 与 publisher 都可为 nil。
func NewFeedbackService(repo repository.FeedbackRepository, publisher FeedbackPublisher) FeedbackService {
	return &feedbackService{repo: repo, publisher: publisher, now: time.Now}
}

// Submit 保存并发布反馈，返回反馈 ID。
func (s *feedbackService) Submit(ctx context.Context, in FeedbackInput) string {
	now := s.now()
	feedback := &model.Feedback{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SessionID: strings.TrimSpace(in.SessionID),
		Rating:    in.Rating,
		Message:   truncateRunes(in.Message, maxFeedbackMessage),
		Page:      truncateRunes(in.Page, maxFeedbackPage),
		ClientIP:  in.ClientIP,
		CreatedAt: now,
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, feedback); err != nil {
			log.Warnw("保存反馈失败", "id", feedback.ID, "error", err)
		}
	}
	if s.publisher != nil {
		event := tasks.FeedbackEvent{
			ID:        feedback.ID,
			SessionID: feedback.SessionID,
			Rating:    feedback.Rating,
			Message:   feedback.Message,
			Page:      feedback.Page,
			CreatedAt: now,
		}
		if err := s.publisher.PublishFeedback(ctx, event); err != nil {
			log.Warnw("发布反馈事件失败", "id", feedback.ID, "error", err)
		}
	}
	log.Infow("收到反馈", "id", feedback.ID, "session_id", feedback.SessionID, "rating", feedback.Rating)
	return feedback.ID
}
