package service

import (
	"context"
	"errors"
	"strings"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"
)

// IndexTaskPublisher 把索引任务投递到消息队列。
type IndexTaskPublisher interface {
	PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error
}

// IndexTaskProcessor 同步执行索引任务。
type IndexTaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIndexTask) error
}

// IndexService 接收知识文档索引请求。配置了消息队列时异步投递，否则同步处理。
type IndexService interface {
	Enqueue(ctx context.Context, task tasks.DocumentIndexTask) (queued bool, err error)
}

type indexService struct {
	publisher IndexTaskPublisher
	processor IndexTaskProcessor
}

// NewIndexService 创建 IndexService。publisher 为 nil 时使用 processor 同步处理。
func NewIndexService(publisher IndexTaskPublisher, processor IndexTaskProcessor) IndexService {
	return &indexService{publisher: publisher, processor: processor}
}

func (s *indexService) Enqueue(ctx context.Context, task tasks.DocumentIndexTask) (bool, error) {
	task.DocID = strings.TrimSpace(task.DocID)
	task.ObjectName = strings.TrimSpace(task.ObjectName)
	if task.DocID == "" || task.ObjectName == "" {
		return false, apperr.Newf(apperr.ValidationError, "doc_id and object_name are required")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishIndexTask(ctx, task); err != nil {
			return false, apperr.Wrap(apperr.InternalError, err)
		}
		log.Infof("[IndexService] 索引任务已投递, DocID: %s", task.DocID)
		return true, nil
	}
	if s.processor == nil {
		return false, apperr.Wrap(apperr.InternalError, errors.New("document indexing is not configured"))
	}
	if err := s.processor.Process(ctx, task); err != nil {
		return false, apperr.Wrap(apperr.InternalError, err)
	}
	return false, nil
}
