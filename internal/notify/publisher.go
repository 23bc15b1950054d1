package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blogpulse/internal/stats"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher 在某个日期的记录写入成功后发布变更事件。
type Publisher interface {
	PublishRecords(ctx context.Context, records []stats.Record) error
	Close() error
}

// NoopPublisher 在未配置消息队列时使用。
type NoopPublisher struct{}

// PublishRecords 不做任何事。
func (NoopPublisher) PublishRecords(context.Context, []stats.Record) error { return nil }

// Close 不做任何事。
func (NoopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher 将记录变更事件写入 Kafka topic，消息键为日期。
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher 为指定 broker 与 topic 创建生产者。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

// New 根据 broker 列表选择实现，列表为空时返回 NoopPublisher。
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

// RecordEvent 是写入消息体的记录快照，不包含原始载荷。
type RecordEvent struct {
	Date      string    `json:"date"`
	Views     *int64    `json:"views"`
	Visitors  *int64    `json:"visitors"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PublishRecords 在一次 WriteMessages 调用中发布多条记录。
func (p *KafkaPublisher) PublishRecords(ctx context.Context, records []stats.Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := toMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close 关闭底层 writer。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(record stats.Record) (kafkago.Message, error) {
	data, err := json.Marshal(RecordEvent{
		Date:      record.Date,
		Views:     record.Views,
		Visitors:  record.Visitors,
		UpdatedAt: record.UpdatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", record.Date, err)
	}

	var present []string
	for _, metric := range stats.Metrics {
		if _, ok := record.Value(metric); ok {
			present = append(present, metric.String())
		}
	}

	return kafkago.Message{
		Key:   []byte(record.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "metrics", Value: []byte(strings.Join(present, ","))},
			{Key: "updated_at", Value: []byte(record.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
