// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// maxTaskAttempts 是一个索引任务的最大处理次数，达到后提交 offset 放弃重试。
const maxTaskAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIndexTask) error
}

// AttemptCounter 记录任务失败次数，跨消费者实例共享。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// SplitBrokers 解析逗号分隔的 broker 列表。
func SplitBrokers(brokers string) []string {
	out := make([]string, 0)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 向单个主题发送 JSON 消息。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(brokers []string, topic string) *Producer {
	log.Infof("Kafka 生产者初始化成功, topic: %s", topic)
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish 以 key 为分区键发送一条 JSON 消息。
func (p *Producer) Publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal kafka payload: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

// PublishIndexTask 发送一个文档索引任务。
func (p *Producer) PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	return p.Publish(ctx, task.DocID, task)
}

// PublishFeedback 发送一条反馈事件。
func (p *Producer) PublishFeedback(ctx context.Context, event tasks.FeedbackEvent) error {
	return p.Publish(ctx, event.SessionID, event)
}

// Close 刷新缓冲并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理文档索引任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, brokers []string, topic, groupID string, processor TaskProcessor, attempts AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,    // 索引任务消息很小，不等待攒批
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		if handleMessage(ctx, m.Value, processor, attempts) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// retryBackoff 返回第 attempt 次失败后的等待时间。
var retryBackoff = func(attempt int64) time.Duration {
	return time.Duration(attempt) * 2 * time.Second
}

// handleMessage 处理一条消息并返回是否应提交 offset。
// 消费者组不会重新投递未提交的消息，所以失败的任务在这里原地重试，
// 共处理 maxTaskAttempts 次后提交 offset 放弃。失败次数记在 attempts 中，
// 进程在重试途中退出后，重新投递的消息会接着之前的次数计数。
// 只有 ctx 取消时返回 false，消息留待下次启动从已提交的 offset 继续消费。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, attempts AttemptCounter) bool {
	var task tasks.DocumentIndexTask
	if err := json.Unmarshal(value, &task); err != nil || task.DocID == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.DocID)
	var local int64
	for {
		log.Infof("开始处理索引任务: DocID=%s, Object=%s", task.DocID, task.ObjectName)
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("索引任务处理成功: DocID=%s", task.DocID)
			if attempts != nil {
				_ = attempts.Reset(ctx, attemptsKey)
			}
			return true
		}
		log.Errorf("处理索引任务失败: DocID=%s, Error: %v", task.DocID, err)

		local++
		n := local
		if attempts != nil {
			if shared, incErr := attempts.Incr(ctx, attemptsKey); incErr == nil {
				n = shared
			} else {
				log.Warnf("记录索引任务失败次数出错, 使用本地计数: DocID=%s, error: %v", task.DocID, incErr)
			}
		}
		if n >= maxTaskAttempts {
			log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: DocID=%s", maxTaskAttempts, task.DocID)
			if attempts != nil {
				_ = attempts.Reset(ctx, attemptsKey)
			}
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryBackoff(n)):
		}
	}
}
