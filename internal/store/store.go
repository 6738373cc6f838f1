package store

import (
	"context"
	"errors"

	"github.com/iurnickita/collection/internal/model"
	"github.com/iurnickita/collection/internal/store/config"
)

type Store interface {
	PaymentPost(ctx context.Context, payment *model.Payment) error
	// FetchPayments возвращает платежи вместе с детализацией и счетами
	FetchPayments(ctx context.Context, criteria model.PaymentSearchCriteria) ([]*model.Payment, error)
	// UpdateStatus сохраняет статусы и аудит всей пачки. Либо все, либо ничего
	UpdateStatus(ctx context.Context, payments []*model.Payment) error
	Close() error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
)

// NewStore открывает Postgres по DSN, без DSN данные хранятся в памяти.
func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(cfg.DBDsn)
}

func toStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
