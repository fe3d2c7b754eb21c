// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// DocumentIndexTask 描述一次知识文档索引任务：从对象存储读取文档并写入检索索引。
type DocumentIndexTask struct {
	DocID      string `json:"doc_id"`
	ObjectName string `json:"object_name"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// FeedbackEvent 是发布到反馈主题的事件。
type FeedbackEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Message   string    `json:"message"`
	Page      string    `json:"page,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
