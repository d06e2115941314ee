package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer は kgo.Client の同期送信部分です。
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// TopicCreator は kadm.Client のトピック作成部分です。
type TopicCreator interface {
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

// Message は Kafka に書き込む通知レコードです。ゲートウェイはこれを読み取って DM を送ります。
type Message struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipient_id"`
	Notice      employee.Notice `json:"notice"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Kafka は通知を Kafka トピックへ送信する Notifier です。レコードのキーは受信者 ID です。
type Kafka struct {
	producer Producer
	topic    string
	now      func() time.Time
	newID    func() string
}

var _ employee.Notifier = (*Kafka)(nil)

// NewKafka は Kafka を生成します。
func NewKafka(producer Producer, topic string) *Kafka {
	return &Kafka{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// Notify は通知を 1 レコードとして同期送信します。
func (k *Kafka) Notify(ctx context.Context, recipientID string, notice employee.Notice) error {
	payload, err := json.Marshal(Message{
		ID:          k.newID(),
		RecipientID: recipientID,
		Notice:      notice,
		CreatedAt:   k.now(),
	})
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(recipientID),
		Value: payload,
	}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("notify: produce to %s: %w", k.topic, err)
	}
	return nil
}

// NewKafkaClient はブローカーへ接続する kgo.Client を生成します。
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic はトピックが存在しなければ作成します。
func EnsureTopic(ctx context.Context, admin TopicCreator, topic string, partitions int32, replicationFactor int16) error {
	responses, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("notify: create topic %s: %w", topic, err)
	}
	for _, resp := range responses {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("notify: create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}
