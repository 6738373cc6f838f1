package config

import "time"

const (
	TransportKafka   = "kafka"
	TransportWebhook = "webhook"
)

type Config struct {
	Transport    string
	KafkaBrokers []string
	WebhookURL   string
	Timeout      time.Duration
}
