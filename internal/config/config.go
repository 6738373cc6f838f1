package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	authConfig "github.com/iurnickita/collection/internal/auth/config"
	handlerConfig "github.com/iurnickita/collection/internal/handler/config"
	loggerConfig "github.com/iurnickita/collection/internal/logger/config"
	notifierConfig "github.com/iurnickita/collection/internal/notifier/config"
	serviceConfig "github.com/iurnickita/collection/internal/service/config"
	storeConfig "github.com/iurnickita/collection/internal/store/config"
)

type Config struct {
	Handler  handlerConfig.Config
	Service  serviceConfig.Config
	Store    storeConfig.Config
	Logger   loggerConfig.Config
	Notifier notifierConfig.Config
	Auth     authConfig.Config
}

const (
	defaultServerAddr    = ":8080"
	defaultLogLevel      = "info"
	defaultSearchLimit   = 100
	defaultWorkflowTopic = "collection.payment.workflow"
	defaultKafkaBrokers  = "localhost:9092"
	defaultTimeout       = 10 * time.Second
)

// GetConfig читает флаги командной строки, переменные окружения имеют приоритет.
func GetConfig() Config {
	return parse(flag.CommandLine, os.Args[1:], os.LookupEnv)
}

func parse(fs *flag.FlagSet, args []string, lookupEnv func(string) (string, bool)) Config {
	cfg := Config{}

	var brokers string
	fs.StringVar(&cfg.Handler.ServerAddr, "a", defaultServerAddr, "server address")
	fs.StringVar(&cfg.Store.DBDsn, "d", "", "database DSN, in-memory store if empty")
	fs.StringVar(&cfg.Logger.LogLevel, "l", defaultLogLevel, "log level")
	fs.IntVar(&cfg.Service.SearchLimit, "search-limit", defaultSearchLimit, "payment search page size")
	fs.StringVar(&cfg.Service.WorkflowTopic, "topic", defaultWorkflowTopic, "workflow notification topic")
	fs.StringVar(&cfg.Service.WorkflowTopicKey, "topic-key", "", "workflow notification partition key")
	fs.StringVar(&cfg.Notifier.Transport, "notifier", notifierConfig.TransportKafka, "notifier transport: kafka|webhook")
	fs.StringVar(&brokers, "kafka-brokers", defaultKafkaBrokers, "comma separated kafka brokers")
	fs.StringVar(&cfg.Notifier.WebhookURL, "webhook-url", "", "webhook notifier base URL")
	fs.DurationVar(&cfg.Notifier.Timeout, "notifier-timeout", defaultTimeout, "notifier request timeout")
	fs.StringVar(&cfg.Auth.SecretKey, "jwt-secret", "", "JWT signing key")
	fs.Parse(args)

	if v, ok := lookupEnv("RUN_ADDRESS"); ok {
		cfg.Handler.ServerAddr = v
	}
	if v, ok := lookupEnv("DATABASE_URI"); ok {
		cfg.Store.DBDsn = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Logger.LogLevel = v
	}
	if v, ok := lookupEnv("SEARCH_LIMIT"); ok {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			cfg.Service.SearchLimit = limit
		}
	}
	if v, ok := lookupEnv("WORKFLOW_TOPIC"); ok {
		cfg.Service.WorkflowTopic = v
	}
	if v, ok := lookupEnv("WORKFLOW_TOPIC_KEY"); ok {
		cfg.Service.WorkflowTopicKey = v
	}
	if v, ok := lookupEnv("NOTIFIER"); ok {
		cfg.Notifier.Transport = v
	}
	if v, ok := lookupEnv("KAFKA_BROKERS"); ok {
		brokers = v
	}
	if v, ok := lookupEnv("WEBHOOK_URL"); ok {
		cfg.Notifier.WebhookURL = v
	}
	if v, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.Auth.SecretKey = v
	}

	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.Notifier.KafkaBrokers = append(cfg.Notifier.KafkaBrokers, broker)
		}
	}

	return cfg
}
