package notifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/model"
)

// WebhookNotifier отправляет событие POST-запросом на <baseURL>/<topic>.
type WebhookNotifier struct {
	client *resty.Client
	zaplog *zap.Logger
}

func NewWebhookNotifier(baseURL string, timeout time.Duration, zaplog *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, zaplog: zaplog}
}

func (n *WebhookNotifier) Publish(ctx context.Context, topic string, key string, payload model.PaymentRequest) error {
	eventID := uuid.NewString()

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader(headerPartitionKey, key).
		SetHeader(headerWebhookEvent, eventID).
		SetBody(payload).
		Post("/" + url.PathEscape(topic))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s status: %d", topic, resp.StatusCode())
	}

	n.zaplog.Debug("webhook published",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event", eventID),
	)
	return nil
}

func (n *WebhookNotifier) Close() error {
	return nil
}
