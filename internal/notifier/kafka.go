package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
)

// Writer - часть kafka.Writer, которой пользуется notifier. Подменяется в тестах.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer Writer
	zaplog *zap.Logger
}

// NewKafkaNotifier создает writer без фиксированного топика: топик задается в каждом сообщении.
// Hash-балансировщик отправляет сообщения с одним ключом в одну партицию.
func NewKafkaNotifier(brokers []string, timeout time.Duration, zaplog *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return NewKafkaNotifierWithWriter(w, zaplog)
}

func NewKafkaNotifierWithWriter(w Writer, zaplog *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, zaplog: zaplog}
}

func (n *KafkaNotifier) Publish(ctx context.Context, topic string, key string, payload model.PaymentRequest) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	eventID := uuid.NewString()
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: headerEventID, Value: []byte(eventID)}},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	n.zaplog.Debug("kafka published",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event", eventID),
	)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
