package config

type Config struct {
	// Размер страницы при поиске платежей
	SearchLimit int
	// Топик уведомлений об изменении платежей
	WorkflowTopic string
	// Ключ партиционирования. Пустой - id платежа
	WorkflowTopicKey string
}
