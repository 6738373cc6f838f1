package notifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
	"github.com/iurnickita/collection/internal/notifier/config"
)

// Notifier публикует событие об изменении платежа. Доставка "хотя бы раз",
// получатели должны переносить повторы.
type Notifier interface {
	Publish(ctx context.Context, topic string, key string, payload model.PaymentRequest) error
	Close() error
}

var ErrUnknownTransport = errors.New("unknown notifier transport")

const (
	headerEventID      = "event-id"
	headerPartitionKey = "X-Partition-Key"
	headerWebhookEvent = "X-Event-Id"
)

func NewNotifier(cfg config.Config, zaplog *zap.Logger) (Notifier, error) {
	switch cfg.Transport {
	case config.TransportKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka notifier: no brokers")
		}
		return NewKafkaNotifier(cfg.KafkaBrokers, cfg.Timeout, zaplog), nil
	case config.TransportWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook notifier: no url")
		}
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, zaplog), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
	}
}
